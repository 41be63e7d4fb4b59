package repositories

import (
	"context"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"

	"github.com/google/uuid"
)

const allocationColumns = `id, request_id, inventory_line_id, reservation_id, quantity_allocated, allocation_date,
		delivery_status, status_changed_at, delivered_date, cancelled_at`

type allocationRepo struct {
	db Database
}

func NewAllocationRepo(db Database) AllocationRepository {
	return &allocationRepo{db: db}
}

func scanAllocation(row scanner) (*models.Allocation, error) {
	a := &models.Allocation{}
	if err := row.Scan(&a.ID, &a.RequestID, &a.InventoryLineID, &a.ReservationID, &a.QuantityAllocated, &a.AllocationDate,
		&a.DeliveryStatus, &a.StatusChangedAt, &a.DeliveredDate, &a.CancelledAt); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *allocationRepo) Create(ctx context.Context, a *models.Allocation) error {
	query := `
		INSERT INTO allocations (id, request_id, inventory_line_id, reservation_id, quantity_allocated, allocation_date,
			delivery_status, status_changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query, a.ID, a.RequestID, a.InventoryLineID, a.ReservationID, a.QuantityAllocated, a.AllocationDate,
		a.DeliveryStatus, a.StatusChangedAt)
	return mapPgError(err, "allocation", a.ID.String())
}

func (r *allocationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Allocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM allocations WHERE id = $1`
	a, err := scanAllocation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapPgError(err, "allocation", id.String())
	}
	return a, nil
}

func (r *allocationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Allocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM allocations WHERE id = $1 FOR UPDATE`
	a, err := scanAllocation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapPgError(err, "allocation", id.String())
	}
	return a, nil
}

func (r *allocationRepo) Update(ctx context.Context, a *models.Allocation) error {
	query := `
		UPDATE allocations
		SET delivery_status = $1, status_changed_at = $2, delivered_date = $3, cancelled_at = $4
		WHERE id = $5
	`
	tag, err := r.db.Exec(ctx, query, a.DeliveryStatus, a.StatusChangedAt, a.DeliveredDate, a.CancelledAt, a.ID)
	if err != nil {
		return mapPgError(err, "allocation", a.ID.String())
	}
	if tag.RowsAffected() == 0 {
		return common.NewNotFoundError("allocation", a.ID)
	}
	return nil
}

func (r *allocationRepo) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Allocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM allocations WHERE request_id = $1 ORDER BY allocation_date, id`
	return r.list(ctx, query, requestID)
}

func (r *allocationRepo) TotalsForRequest(ctx context.Context, requestID uuid.UUID) (models.RequestTotals, error) {
	var totals models.RequestTotals
	query := `
		SELECT COALESCE(SUM(quantity_allocated), 0),
		       COALESCE(SUM(quantity_allocated) FILTER (WHERE delivery_status = 'Delivered'), 0)
		FROM allocations
		WHERE request_id = $1 AND cancelled_at IS NULL
	`
	if err := r.db.QueryRow(ctx, query, requestID).Scan(&totals.Allocated, &totals.Delivered); err != nil {
		return totals, mapPgError(err, "request", requestID.String())
	}
	return totals, nil
}

func (r *allocationRepo) ListStale(ctx context.Context, status models.DeliveryStatus, cutoff time.Time) ([]*models.Allocation, error) {
	query := `
		SELECT ` + allocationColumns + `
		FROM allocations
		WHERE delivery_status = $1 AND cancelled_at IS NULL AND status_changed_at < $2
		ORDER BY status_changed_at
	`
	return r.list(ctx, query, status, cutoff)
}

func (r *allocationRepo) list(ctx context.Context, query string, args ...interface{}) ([]*models.Allocation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err, "allocation", "")
	}
	defer rows.Close()

	var allocations []*models.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}
