package jobs

import (
	"context"
	"testing"
	"time"

	"reliefops/internal/events"
	"reliefops/internal/models"
	"reliefops/internal/repositories"
	"reliefops/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

// MockCacheService mocks the CacheService interface for testing
type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) GetInventoryLine(ctx context.Context, lineID uuid.UUID) (*models.InventoryLine, error) {
	args := m.Called(ctx, lineID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryLine), args.Error(1)
}

func (m *MockCacheService) SetInventoryLine(ctx context.Context, line *models.InventoryLine, ttl time.Duration) error {
	args := m.Called(ctx, line, ttl)
	return args.Error(0)
}

func (m *MockCacheService) DeleteInventoryLine(ctx context.Context, lineID uuid.UUID) error {
	args := m.Called(ctx, lineID)
	return args.Error(0)
}

func (m *MockCacheService) PublishDeliveryAlert(ctx context.Context, alert *models.DeliveryAlert, dedupe time.Duration) (bool, error) {
	args := m.Called(ctx, alert, dedupe)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheService) ListDeliveryAlerts(ctx context.Context, limit int) ([]*models.DeliveryAlert, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*models.DeliveryAlert), args.Error(1)
}

func (m *MockCacheService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCacheService) InvalidateAllCache(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var sweepNow = time.Date(2025, 7, 14, 6, 0, 0, 0, time.UTC)

type EscalationSweeperTestSuite struct {
	suite.Suite
	store      *repositories.MemoryStore
	cache      *MockCacheService
	sweeper    *EscalationSweeper
	requests   services.RequestService
	resourceID uuid.UUID
	ctx        context.Context
}

func (suite *EscalationSweeperTestSuite) SetupTest() {
	logger := zap.NewNop()
	now := func() time.Time { return sweepNow }

	suite.store = repositories.NewMemoryStore(time.Second)
	suite.cache = &MockCacheService{}
	dispatcher := events.NewDispatcher(logger)
	audit := services.NewAuditLogsService(suite.store, logger, now)
	ledger := services.NewLedger(audit, nil, logger, now)
	suite.requests = services.NewRequestService(suite.store, audit, services.DefaultEscalationPolicy(), logger, now)
	allocations := services.NewAllocationService(suite.store, ledger, audit, dispatcher, logger, now)
	disasters := services.NewDisasterService(suite.store, audit, dispatcher, logger, now)
	services.NewCascadeRules(dispatcher, ledger, suite.requests, audit, "", logger).Register()

	suite.sweeper = NewEscalationSweeper(suite.requests, allocations, disasters, suite.cache, DefaultEscalationConfig(), logger, now)
	suite.resourceID = uuid.New()
	suite.store.SeedResource(models.Resource{ID: suite.resourceID, Name: "Water", Unit: "litre"})
	suite.ctx = context.Background()
}

func (suite *EscalationSweeperTestSuite) seedRequest(urgency models.Urgency, age time.Duration) uuid.UUID {
	id := uuid.New()
	suite.store.SeedRequest(models.Request{
		ID:                id,
		AreaID:            uuid.New(),
		ResourceID:        suite.resourceID,
		QuantityRequested: 10,
		Urgency:           urgency,
		Status:            models.RequestPending,
		RequestDate:       sweepNow.Add(-age),
	})
	return id
}

func (suite *EscalationSweeperTestSuite) seedAllocation(status models.DeliveryStatus, since time.Duration) uuid.UUID {
	requestID := suite.seedRequest(models.UrgencyHigh, time.Hour)
	id := uuid.New()
	suite.store.SeedAllocation(models.Allocation{
		ID:                id,
		RequestID:         requestID,
		InventoryLineID:   uuid.New(),
		ReservationID:     uuid.New(),
		QuantityAllocated: 10,
		AllocationDate:    sweepNow.Add(-since),
		DeliveryStatus:    status,
		StatusChangedAt:   sweepNow.Add(-since),
	})
	return id
}

func (suite *EscalationSweeperTestSuite) TestSweepEscalations() {
	aged := suite.seedRequest(models.UrgencyLow, 100*time.Hour)
	suite.seedRequest(models.UrgencyLow, 10*time.Hour)

	result, err := suite.sweeper.SweepEscalations(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(1, result.TotalItems)
	suite.Equal("completed", result.Status)
	suite.Equal(models.SweepItemSucceeded, result.Items[0].Status)
	suite.Equal(aged.String(), result.Items[0].ItemID)

	view, err := suite.requests.GetRequest(suite.ctx, aged)
	suite.Require().NoError(err)
	suite.Equal(models.UrgencyMedium, view.Urgency)

	result, err = suite.sweeper.SweepEscalations(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(models.SweepItemSkipped, result.Items[0].Status)
}

func (suite *EscalationSweeperTestSuite) TestSweepEscalationsIsolatesBadRows() {
	good := suite.seedRequest(models.UrgencyHigh, 200*time.Hour)
	suite.seedRequest("Severe", 200*time.Hour)

	result, err := suite.sweeper.SweepEscalations(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(2, result.TotalItems)
	suite.Equal(1, result.ProcessedItems)
	suite.Equal(1, result.FailedItems)
	suite.Equal("partial", result.Status)
	suite.Require().Len(result.Errors, 1)

	view, err := suite.requests.GetRequest(suite.ctx, good)
	suite.Require().NoError(err)
	suite.Equal(models.UrgencyCritical, view.Urgency)
}

func (suite *EscalationSweeperTestSuite) TestSweepDeliveryAlertsDeduplicates() {
	dispatched := suite.seedAllocation(models.DeliveryDispatched, 30*time.Hour)
	suite.seedAllocation(models.DeliveryDispatched, 2*time.Hour)
	inTransit := suite.seedAllocation(models.DeliveryInTransit, 50*time.Hour)

	isAlertFor := func(id uuid.UUID) interface{} {
		return mock.MatchedBy(func(a *models.DeliveryAlert) bool { return a.AllocationID == id })
	}
	suite.cache.On("PublishDeliveryAlert", mock.Anything, isAlertFor(dispatched), DefaultEscalationConfig().AlertDedupe).Return(true, nil).Once()
	suite.cache.On("PublishDeliveryAlert", mock.Anything, isAlertFor(inTransit), DefaultEscalationConfig().AlertDedupe).Return(false, nil).Once()

	result, err := suite.sweeper.SweepDeliveryAlerts(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(2, result.TotalItems)

	byID := map[string]string{}
	for _, item := range result.Items {
		byID[item.ItemID] = item.Status
	}
	suite.Equal(models.SweepItemSucceeded, byID[dispatched.String()])
	suite.Equal(models.SweepItemSkipped, byID[inTransit.String()])
	suite.cache.AssertExpectations(suite.T())
}

func (suite *EscalationSweeperTestSuite) TestSweepOrphanedVolunteers() {
	teamID := uuid.New()
	suite.store.SeedDisaster(models.Disaster{ID: uuid.New(), Name: "Quake", Status: models.DisasterResolved, StartDate: sweepNow.Add(-240 * time.Hour)})
	suite.store.SeedTeam(models.ReliefTeam{ID: teamID, Name: "Rescue", Status: models.TeamDisbanded})
	for _, name := range []string{"Asha", "Ravi"} {
		suite.store.SeedVolunteer(models.Volunteer{ID: uuid.New(), Name: name, TeamID: &teamID, Availability: models.VolunteerBusy})
	}

	result, err := suite.sweeper.SweepOrphanedVolunteers(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(2, result.TotalItems)
	suite.Equal(2, result.ProcessedItems)

	result, err = suite.sweeper.SweepOrphanedVolunteers(suite.ctx)
	suite.Require().NoError(err)
	suite.Zero(result.TotalItems)
	suite.Equal("completed", result.Status)
}

func (suite *EscalationSweeperTestSuite) TestRunAll() {
	results, err := suite.sweeper.RunAll(suite.ctx)
	suite.Require().NoError(err)
	suite.Len(results, 3)
	for _, name := range []string{SweepEscalation, SweepDeliveryAlerts, SweepOrphanVolunteers} {
		suite.Contains(results, name)
	}
}

func TestEscalationSweeperTestSuite(t *testing.T) {
	suite.Run(t, new(EscalationSweeperTestSuite))
}
