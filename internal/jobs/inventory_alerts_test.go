package jobs

import (
	"context"
	"errors"
	"testing"

	"reliefops/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

// MockInventoryService mocks the InventoryService interface for testing
type MockInventoryService struct {
	mock.Mock
}

func (m *MockInventoryService) RegisterResource(ctx context.Context, resource *models.Resource) error {
	args := m.Called(ctx, resource)
	return args.Error(0)
}

func (m *MockInventoryService) ListResources(ctx context.Context) ([]*models.Resource, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.Resource), args.Error(1)
}

func (m *MockInventoryService) Reserve(ctx context.Context, op models.OpContext, resourceID uuid.UUID, warehouse string, qty int) (models.ReservationToken, error) {
	args := m.Called(ctx, op, resourceID, warehouse, qty)
	return args.Get(0).(models.ReservationToken), args.Error(1)
}

func (m *MockInventoryService) Release(ctx context.Context, op models.OpContext, token models.ReservationToken, qty int) error {
	args := m.Called(ctx, op, token, qty)
	return args.Error(0)
}

func (m *MockInventoryService) Adjust(ctx context.Context, op models.OpContext, resourceID uuid.UUID, warehouse string, delta int) (*models.InventoryLine, error) {
	args := m.Called(ctx, op, resourceID, warehouse, delta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryLine), args.Error(1)
}

func (m *MockInventoryService) AddStock(ctx context.Context, op models.OpContext, input models.StockInput) (*models.InventoryLine, error) {
	args := m.Called(ctx, op, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryLine), args.Error(1)
}

func (m *MockInventoryService) Transfer(ctx context.Context, op models.OpContext, input models.TransferInput) error {
	args := m.Called(ctx, op, input)
	return args.Error(0)
}

func (m *MockInventoryService) GetLine(ctx context.Context, id uuid.UUID) (*models.InventoryLine, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InventoryLine), args.Error(1)
}

func (m *MockInventoryService) ListLines(ctx context.Context) ([]*models.InventoryLine, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.InventoryLine), args.Error(1)
}

func (m *MockInventoryService) LowStockAlerts(ctx context.Context) ([]*models.LowStockLine, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LowStockLine), args.Error(1)
}

type StockAlertJobTestSuite struct {
	suite.Suite
	inventory *MockInventoryService
	job       *StockAlertJob
	ctx       context.Context
}

func (suite *StockAlertJobTestSuite) SetupTest() {
	suite.inventory = &MockInventoryService{}
	suite.job = NewStockAlertJob(suite.inventory, zap.NewNop())
	suite.ctx = context.Background()
}

func lowStock(name, warehouse string, available, minStock int) *models.LowStockLine {
	line := &models.InventoryLine{ID: uuid.New(), WarehouseLocation: warehouse, QuantityAvailable: available}
	return &models.LowStockLine{
		Line:     line,
		Resource: &models.Resource{ID: uuid.New(), Name: name, MinStock: minStock},
		Status:   line.StockStatus(minStock),
	}
}

func (suite *StockAlertJobTestSuite) TestCheckListsOutOfStockFirst() {
	low := lowStock("Water", "North", 3, 10)
	out := lowStock("Rice", "Central", 0, 5)
	alsoLow := lowStock("Tents", "South", 1, 2)
	suite.inventory.On("LowStockAlerts", suite.ctx).Return([]*models.LowStockLine{low, out, alsoLow}, nil)

	alerts, err := suite.job.Check(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().Len(alerts, 3)
	suite.Equal(models.StockStatusOut, alerts[0].Status)
	suite.Equal("Rice", alerts[0].Resource.Name)
	suite.Equal("Water", alerts[1].Resource.Name)
	suite.Equal("Tents", alerts[2].Resource.Name)
	suite.inventory.AssertExpectations(suite.T())
}

func (suite *StockAlertJobTestSuite) TestRunWithNoAlerts() {
	suite.inventory.On("LowStockAlerts", suite.ctx).Return([]*models.LowStockLine{}, nil)
	suite.NoError(suite.job.Run(suite.ctx))
}

func (suite *StockAlertJobTestSuite) TestRunPropagatesErrors() {
	suite.inventory.On("LowStockAlerts", suite.ctx).Return(nil, errors.New("store unavailable"))

	err := suite.job.Run(suite.ctx)
	assert.EqualError(suite.T(), err, "store unavailable")
}

func TestStockAlertJobTestSuite(t *testing.T) {
	suite.Run(t, new(StockAlertJobTestSuite))
}
