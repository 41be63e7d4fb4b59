package services

import (
	"context"
	"fmt"

	"reliefops/internal/caching"
	"reliefops/internal/common"
	"reliefops/internal/models"
	"reliefops/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Ledger is the only writer of inventory quantities. Its methods run inside
// the caller's transaction on lines the caller has already locked, append one
// audit entry per line change and invalidate the cached line after commit.
type Ledger struct {
	audit  AuditLogsService
	cache  caching.CacheService
	logger *zap.Logger
	now    Clock
}

func NewLedger(audit AuditLogsService, cache caching.CacheService, logger *zap.Logger, now Clock) *Ledger {
	if now == nil {
		now = SystemClock
	}
	return &Ledger{audit: audit, cache: cache, logger: logger, now: now}
}

// Reserve takes qty from a locked line and records a reservation backing it.
func (l *Ledger) Reserve(ctx context.Context, repos repositories.Repos, op models.OpContext, line *models.InventoryLine, qty int) (models.ReservationToken, error) {
	return l.reserve(ctx, repos, op, line, qty, nil)
}

// ReserveFor is Reserve for a reservation owned by allocationID. Such a
// reservation is released only through ReleaseForAllocation.
func (l *Ledger) ReserveFor(ctx context.Context, repos repositories.Repos, op models.OpContext, line *models.InventoryLine, qty int, allocationID uuid.UUID) (models.ReservationToken, error) {
	return l.reserve(ctx, repos, op, line, qty, &allocationID)
}

func (l *Ledger) reserve(ctx context.Context, repos repositories.Repos, op models.OpContext, line *models.InventoryLine, qty int, owner *uuid.UUID) (models.ReservationToken, error) {
	if qty <= 0 {
		return models.ReservationToken{}, common.NewValidationError("quantity", "must be positive")
	}
	if qty > line.QuantityAvailable {
		return models.ReservationToken{}, &common.InsufficientStockError{Shortfalls: []common.Shortfall{{
			LineID:     line.ID,
			ResourceID: line.ResourceID,
			Warehouse:  line.WarehouseLocation,
			Requested:  qty,
			Available:  line.QuantityAvailable,
			Missing:    qty - line.QuantityAvailable,
		}}}
	}

	if err := l.apply(ctx, repos, op, line, -qty, false); err != nil {
		return models.ReservationToken{}, err
	}

	reservation := &models.Reservation{
		ID:              uuid.New(),
		InventoryLineID: line.ID,
		AllocationID:    owner,
		Quantity:        qty,
		CreatedAt:       l.now(),
	}
	if err := repos.Reservations().Create(ctx, reservation); err != nil {
		return models.ReservationToken{}, fmt.Errorf("create reservation: %w", err)
	}
	return reservation.Token(), nil
}

// Release credits a reservation back to its line. qty must be zero or the full
// reserved amount. Releasing an already released token is a no-op and reports false.
// A reservation backing an allocation is refused; cancel the allocation instead.
func (l *Ledger) Release(ctx context.Context, repos repositories.Repos, op models.OpContext, token models.ReservationToken, qty int) (bool, error) {
	return l.release(ctx, repos, op, token, qty, nil)
}

// ReleaseForAllocation releases the reservation owned by allocationID in full.
func (l *Ledger) ReleaseForAllocation(ctx context.Context, repos repositories.Repos, op models.OpContext, token models.ReservationToken, allocationID uuid.UUID) (bool, error) {
	return l.release(ctx, repos, op, token, 0, &allocationID)
}

func (l *Ledger) release(ctx context.Context, repos repositories.Repos, op models.OpContext, token models.ReservationToken, qty int, owner *uuid.UUID) (bool, error) {
	reservation, err := repos.Reservations().GetForUpdate(ctx, token.ID)
	if err != nil {
		return false, err
	}
	if reservation.InventoryLineID != token.InventoryLineID {
		return false, common.NewValidationError("token", "does not match reservation %s", token.ID)
	}
	if qty != 0 && qty != reservation.Quantity {
		return false, common.NewValidationError("quantity", "must equal the reserved quantity %d", reservation.Quantity)
	}
	if reservation.Released() {
		return false, nil
	}
	switch {
	case reservation.AllocationID == nil:
	case owner == nil:
		return false, common.NewValidationError("token", "reservation %s backs allocation %s; cancel the allocation instead", token.ID, *reservation.AllocationID)
	case *owner != *reservation.AllocationID:
		return false, common.NewValidationError("token", "reservation %s is not held by allocation %s", token.ID, *owner)
	}

	lines, err := repos.Inventory().LockByIDs(ctx, []uuid.UUID{reservation.InventoryLineID})
	if err != nil {
		return false, err
	}
	if err := l.apply(ctx, repos, op, lines[reservation.InventoryLineID], reservation.Quantity, false); err != nil {
		return false, err
	}
	if err := repos.Reservations().MarkReleased(ctx, reservation.ID, l.now()); err != nil {
		return false, fmt.Errorf("mark reservation released: %w", err)
	}
	return true, nil
}

// Adjust applies delta to a locked line. A debit larger than the stock fails with InsufficientStock.
func (l *Ledger) Adjust(ctx context.Context, repos repositories.Repos, op models.OpContext, line *models.InventoryLine, delta int) error {
	if delta == 0 {
		return common.NewValidationError("delta", "must not be zero")
	}
	if line.QuantityAvailable+delta < 0 {
		return &common.InsufficientStockError{Shortfalls: []common.Shortfall{{
			LineID:     line.ID,
			ResourceID: line.ResourceID,
			Warehouse:  line.WarehouseLocation,
			Requested:  -delta,
			Available:  line.QuantityAvailable,
			Missing:    -delta - line.QuantityAvailable,
		}}}
	}
	return l.apply(ctx, repos, op, line, delta, false)
}

// Credit adds qty to the (resource, warehouse) line, creating the line when absent.
func (l *Ledger) Credit(ctx context.Context, repos repositories.Repos, op models.OpContext, resourceID uuid.UUID, warehouse string, qty int) (*models.InventoryLine, error) {
	if qty <= 0 {
		return nil, common.NewValidationError("quantity", "must be positive")
	}
	line, created, err := repos.Inventory().Ensure(ctx, resourceID, warehouse)
	if err != nil {
		return nil, err
	}
	if err := l.apply(ctx, repos, op, line, qty, created); err != nil {
		return nil, err
	}
	return line, nil
}

func (l *Ledger) apply(ctx context.Context, repos repositories.Repos, op models.OpContext, line *models.InventoryLine, delta int, created bool) error {
	before := line.Snapshot()
	next := line.QuantityAvailable + delta
	if next < 0 {
		return &common.InvariantViolationError{
			Invariant: "inventory_quantity_non_negative",
			Detail:    fmt.Sprintf("line %s: %d%+d", line.ID, line.QuantityAvailable, delta),
		}
	}

	at := l.now()
	if err := repos.Inventory().UpdateQuantity(ctx, line.ID, next, at); err != nil {
		return err
	}
	line.QuantityAvailable = next
	line.LastUpdated = at

	var err error
	if created {
		err = l.audit.LogEntityCreate(ctx, repos, op, models.EntityInventoryLine, line.ID.String(), line.Snapshot())
	} else {
		err = l.audit.LogEntityUpdate(ctx, repos, op, models.EntityInventoryLine, line.ID.String(), before, line.Snapshot())
	}
	if err != nil {
		return err
	}

	if l.cache != nil {
		lineID := line.ID
		repos.AfterCommit(func() {
			if cacheErr := l.cache.DeleteInventoryLine(context.Background(), lineID); cacheErr != nil {
				l.logger.Warn("failed to invalidate inventory line cache", zap.String("line_id", lineID.String()), zap.Error(cacheErr))
			}
		})
	}
	return nil
}
