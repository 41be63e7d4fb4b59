package services

import (
	"context"
	"strings"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/events"
	"reliefops/internal/models"
	"reliefops/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllocationService is the allocation coordinator: it reserves stock from one
// or more warehouse lines against a request, all or nothing.
type AllocationService interface {
	Allocate(ctx context.Context, op models.OpContext, input models.AllocateInput) ([]*models.Allocation, error)
	UpdateDeliveryStatus(ctx context.Context, op models.OpContext, allocationID uuid.UUID, status models.DeliveryStatus) (*models.Allocation, error)
	// CancelAllocation releases the reservation and re-derives the request. Cancelling twice is a no-op.
	CancelAllocation(ctx context.Context, op models.OpContext, allocationID uuid.UUID) (*models.Allocation, error)

	GetAllocation(ctx context.Context, id uuid.UUID) (*models.Allocation, error)
	ListAllocations(ctx context.Context, requestID uuid.UUID) ([]*models.Allocation, error)
	// ListStaleDeliveries returns live allocations that have sat in status since before cutoff.
	ListStaleDeliveries(ctx context.Context, status models.DeliveryStatus, cutoff time.Time) ([]*models.Allocation, error)
}

type allocationService struct {
	scope      repositories.TransactionScope
	ledger     *Ledger
	audit      AuditLogsService
	dispatcher *events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

func NewAllocationService(scope repositories.TransactionScope, ledger *Ledger, audit AuditLogsService, dispatcher *events.Dispatcher, logger *zap.Logger, now Clock) AllocationService {
	if now == nil {
		now = SystemClock
	}
	return &allocationService{
		scope:      scope,
		ledger:     ledger,
		audit:      audit,
		dispatcher: dispatcher,
		logger:     logger,
		now:        now,
	}
}

// normalizeAllocateInput returns a copy of input with trimmed warehouse names,
// so duplicate detection and line lookup see the same key.
func normalizeAllocateInput(input models.AllocateInput) models.AllocateInput {
	choices := make([]models.WarehouseAllocation, len(input.Warehouses))
	for i, w := range input.Warehouses {
		choices[i] = models.WarehouseAllocation{WarehouseLocation: strings.TrimSpace(w.WarehouseLocation), Quantity: w.Quantity}
	}
	input.Warehouses = choices
	return input
}

func validateAllocateInput(input models.AllocateInput) (int, error) {
	if err := common.ValidateStruct(input); err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(input.Warehouses))
	total := 0
	for i, w := range input.Warehouses {
		if seen[w.WarehouseLocation] {
			return 0, common.NewValidationError("warehouses", "warehouse %q listed more than once (index %d)", w.WarehouseLocation, i)
		}
		seen[w.WarehouseLocation] = true
		total += w.Quantity
	}
	return total, nil
}

func (s *allocationService) Allocate(ctx context.Context, op models.OpContext, input models.AllocateInput) ([]*models.Allocation, error) {
	input = normalizeAllocateInput(input)
	total, err := validateAllocateInput(input)
	if err != nil {
		return nil, err
	}

	var created []*models.Allocation
	err = s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		created = nil
		req, err := repos.Requests().GetForUpdate(ctx, input.RequestID)
		if err != nil {
			return err
		}
		if req.Status == models.RequestRejected || req.Status == models.RequestFulfilled {
			return common.NewValidationError("request_id", "request %s is %s and cannot be allocated", req.ID, req.Status)
		}

		totals, err := repos.Allocations().TotalsForRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		if totals.Allocated+total > req.QuantityRequested {
			return &common.OverAllocationError{
				RequestID:        req.ID,
				Requested:        req.QuantityRequested,
				AlreadyAllocated: totals.Allocated,
				Attempted:        total,
			}
		}

		lines, shortfalls, err := s.lockChoices(ctx, repos, req.ResourceID, input.Warehouses)
		if err != nil {
			return err
		}
		if len(shortfalls) > 0 {
			return &common.InsufficientStockError{Shortfalls: shortfalls}
		}

		at := s.now()
		evts := make([]models.Event, 0, len(input.Warehouses))
		for i, choice := range input.Warehouses {
			line := lines[i]
			allocationID := uuid.New()
			token, err := s.ledger.ReserveFor(ctx, repos, op, line, choice.Quantity, allocationID)
			if err != nil {
				return err
			}
			allocation := &models.Allocation{
				ID:                allocationID,
				RequestID:         req.ID,
				InventoryLineID:   line.ID,
				ReservationID:     token.ID,
				QuantityAllocated: choice.Quantity,
				AllocationDate:    at,
				DeliveryStatus:    models.DeliveryPending,
				StatusChangedAt:   at,
			}
			if err := repos.Allocations().Create(ctx, allocation); err != nil {
				return err
			}
			if err := s.audit.LogEntityCreate(ctx, repos, op, models.EntityAllocation, allocation.ID.String(), allocation.Snapshot()); err != nil {
				return err
			}
			created = append(created, allocation)
			evts = append(evts, models.AllocationCreated{Allocation: allocation, Op: op})
		}
		return s.dispatcher.Dispatch(ctx, repos, evts...)
	})
	if err != nil {
		s.reportInvariant(ctx, op, "allocate", err)
		return nil, err
	}

	s.logger.Info("allocation committed",
		zap.String("request_id", input.RequestID.String()),
		zap.Int("lines", len(created)),
		zap.Int("quantity", total),
		zap.String("actor", op.Actor),
	)
	return created, nil
}

// lockChoices resolves each warehouse choice to its line, locks the lines in
// ascending id order and reports every choice the stock cannot cover. The
// returned slice is aligned with choices.
func (s *allocationService) lockChoices(ctx context.Context, repos repositories.Repos, resourceID uuid.UUID, choices []models.WarehouseAllocation) ([]*models.InventoryLine, []common.Shortfall, error) {
	ids := make([]uuid.UUID, 0, len(choices))
	resolved := make([]uuid.UUID, len(choices))
	for i, choice := range choices {
		line, err := repos.Inventory().GetByResourceAndWarehouse(ctx, resourceID, choice.WarehouseLocation)
		if err != nil {
			if common.IsNotFound(err) {
				continue
			}
			return nil, nil, err
		}
		resolved[i] = line.ID
		ids = append(ids, line.ID)
	}

	locked, err := repos.Inventory().LockByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	lines := make([]*models.InventoryLine, len(choices))
	var shortfalls []common.Shortfall
	for i, choice := range choices {
		line := locked[resolved[i]]
		if line == nil {
			shortfalls = append(shortfalls, common.Shortfall{
				ResourceID: resourceID,
				Warehouse:  choice.WarehouseLocation,
				Requested:  choice.Quantity,
				Missing:    choice.Quantity,
			})
			continue
		}
		if choice.Quantity > line.QuantityAvailable {
			shortfalls = append(shortfalls, common.Shortfall{
				LineID:     line.ID,
				ResourceID: resourceID,
				Warehouse:  line.WarehouseLocation,
				Requested:  choice.Quantity,
				Available:  line.QuantityAvailable,
				Missing:    choice.Quantity - line.QuantityAvailable,
			})
		}
		lines[i] = line
	}
	return lines, shortfalls, nil
}

func (s *allocationService) UpdateDeliveryStatus(ctx context.Context, op models.OpContext, allocationID uuid.UUID, status models.DeliveryStatus) (*models.Allocation, error) {
	if !status.Valid() {
		return nil, common.NewValidationError("delivery_status", "unknown delivery status %q", status)
	}

	var allocation *models.Allocation
	err := s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		allocation, err = repos.Allocations().GetForUpdate(ctx, allocationID)
		if err != nil {
			return err
		}
		if _, err := repos.Requests().GetForUpdate(ctx, allocation.RequestID); err != nil {
			return err
		}
		if !allocation.Active() {
			return &common.InvalidTransitionError{Entity: models.EntityAllocation, From: "Cancelled", To: string(status)}
		}
		if allocation.DeliveryStatus == status {
			return nil
		}
		if !models.CanTransitionDelivery(allocation.DeliveryStatus, status) {
			return &common.InvalidTransitionError{Entity: models.EntityAllocation, From: string(allocation.DeliveryStatus), To: string(status)}
		}

		before := allocation.Snapshot()
		from := allocation.DeliveryStatus
		at := s.now()
		allocation.DeliveryStatus = status
		allocation.StatusChangedAt = at
		if status == models.DeliveryDelivered {
			allocation.DeliveredDate = &at
		}
		if err := repos.Allocations().Update(ctx, allocation); err != nil {
			return err
		}
		if err := s.audit.LogEntityUpdate(ctx, repos, op, models.EntityAllocation, allocation.ID.String(), before, allocation.Snapshot()); err != nil {
			return err
		}
		return s.dispatcher.Dispatch(ctx, repos, models.DeliveryStatusChanged{Allocation: allocation, From: from, Op: op})
	})
	if err != nil {
		s.reportInvariant(ctx, op, "update_delivery_status", err)
		return nil, err
	}
	return allocation, nil
}

func (s *allocationService) CancelAllocation(ctx context.Context, op models.OpContext, allocationID uuid.UUID) (*models.Allocation, error) {
	var allocation *models.Allocation
	err := s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		allocation, err = repos.Allocations().GetForUpdate(ctx, allocationID)
		if err != nil {
			return err
		}
		if _, err := repos.Requests().GetForUpdate(ctx, allocation.RequestID); err != nil {
			return err
		}
		if !allocation.Active() {
			return nil
		}
		if allocation.DeliveryStatus == models.DeliveryDelivered {
			return common.NewValidationError("allocation_id", "allocation %s was delivered and cannot be cancelled", allocation.ID)
		}

		before := allocation.Snapshot()
		at := s.now()
		allocation.CancelledAt = &at
		if err := repos.Allocations().Update(ctx, allocation); err != nil {
			return err
		}
		if err := s.audit.LogEntityDelete(ctx, repos, op, models.EntityAllocation, allocation.ID.String(), before, allocation.Snapshot()); err != nil {
			return err
		}
		return s.dispatcher.Dispatch(ctx, repos, models.AllocationCancelled{Allocation: allocation, Op: op})
	})
	if err != nil {
		s.reportInvariant(ctx, op, "cancel_allocation", err)
		return nil, err
	}
	return allocation, nil
}

func (s *allocationService) GetAllocation(ctx context.Context, id uuid.UUID) (*models.Allocation, error) {
	var allocation *models.Allocation
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		allocation, err = repos.Allocations().GetByID(ctx, id)
		return err
	})
	return allocation, err
}

func (s *allocationService) ListAllocations(ctx context.Context, requestID uuid.UUID) ([]*models.Allocation, error) {
	var allocations []*models.Allocation
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		if _, err := repos.Requests().GetByID(ctx, requestID); err != nil {
			return err
		}
		var err error
		allocations, err = repos.Allocations().ListByRequest(ctx, requestID)
		return err
	})
	return allocations, err
}

func (s *allocationService) ListStaleDeliveries(ctx context.Context, status models.DeliveryStatus, cutoff time.Time) ([]*models.Allocation, error) {
	var allocations []*models.Allocation
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		allocations, err = repos.Allocations().ListStale(ctx, status, cutoff)
		return err
	})
	return allocations, err
}

func (s *allocationService) reportInvariant(ctx context.Context, op models.OpContext, operation string, err error) {
	if common.IsInvariantViolation(err) {
		s.audit.RecordCritical(ctx, op, operation, err)
	}
}
