package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"reliefops/internal/events"
	"reliefops/internal/models"
	"reliefops/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var engineEpoch = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by every service of a testEngine.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testEngine wires the full service graph over a MemoryStore.
type testEngine struct {
	store       *repositories.MemoryStore
	clock       *testClock
	dispatcher  *events.Dispatcher
	audit       AuditLogsService
	ledger      *Ledger
	inventory   InventoryService
	requests    RequestService
	allocations AllocationService
	donations   DonationService
	disasters   DisasterService
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	logger := zap.NewNop()
	clock := &testClock{now: engineEpoch}
	now := clock.Now

	store := repositories.NewMemoryStore(2 * time.Second)
	dispatcher := events.NewDispatcher(logger)
	audit := NewAuditLogsService(store, logger, now)
	ledger := NewLedger(audit, nil, logger, now)
	requests := NewRequestService(store, audit, DefaultEscalationPolicy(), logger, now)

	e := &testEngine{
		store:       store,
		clock:       clock,
		dispatcher:  dispatcher,
		audit:       audit,
		ledger:      ledger,
		inventory:   NewInventoryService(store, ledger, nil, logger, now),
		requests:    requests,
		allocations: NewAllocationService(store, ledger, audit, dispatcher, logger, now),
		donations:   NewDonationService(store, audit, dispatcher, logger, now),
		disasters:   NewDisasterService(store, audit, dispatcher, logger, now),
	}
	NewCascadeRules(dispatcher, ledger, requests, audit, DefaultDonationWarehouse, logger).Register()
	return e
}

var operatorOp = models.OpContext{Actor: "ops-desk", Role: models.RoleOperator, ClientHost: "10.1.0.4"}

var adminOp = models.OpContext{Actor: "coordinator", Role: models.RoleAdmin}

func (e *testEngine) seedResource(name string, minStock int) uuid.UUID {
	id := uuid.New()
	e.store.SeedResource(models.Resource{ID: id, Name: name, Category: "Water", Unit: "unit", MinStock: minStock, CreatedAt: engineEpoch})
	return id
}

func (e *testEngine) seedLine(resourceID uuid.UUID, warehouse string, qty int) uuid.UUID {
	id := uuid.New()
	e.store.SeedLine(models.InventoryLine{ID: id, ResourceID: resourceID, WarehouseLocation: warehouse, QuantityAvailable: qty, LastUpdated: engineEpoch})
	return id
}

func (e *testEngine) seedRequest(resourceID uuid.UUID, qty int, urgency models.Urgency, requestedAt time.Time) uuid.UUID {
	id := uuid.New()
	e.store.SeedRequest(models.Request{
		ID:                id,
		AreaID:            uuid.New(),
		ResourceID:        resourceID,
		QuantityRequested: qty,
		Urgency:           urgency,
		Status:            models.RequestPending,
		RequestDate:       requestedAt,
	})
	return id
}

func (e *testEngine) lineQuantity(t *testing.T, id uuid.UUID) int {
	t.Helper()
	line, err := e.inventory.GetLine(context.Background(), id)
	require.NoError(t, err)
	return line.QuantityAvailable
}

func (e *testEngine) requestView(t *testing.T, id uuid.UUID) *models.RequestView {
	t.Helper()
	view, err := e.requests.GetRequest(context.Background(), id)
	require.NoError(t, err)
	return view
}

// auditCount counts committed audit entries per entity type.
func (e *testEngine) auditCount() map[string]int {
	counts := make(map[string]int)
	for _, entry := range e.store.AuditEntries() {
		counts[entry.EntityType]++
	}
	return counts
}

func allocate(requestID uuid.UUID, choices ...models.WarehouseAllocation) models.AllocateInput {
	return models.AllocateInput{RequestID: requestID, Warehouses: choices}
}

func from(warehouse string, qty int) models.WarehouseAllocation {
	return models.WarehouseAllocation{WarehouseLocation: warehouse, Quantity: qty}
}
