package repositories

import (
	"context"
	"time"

	"reliefops/internal/models"

	"github.com/google/uuid"
)

type reservationRepo struct {
	db Database
}

func NewReservationRepo(db Database) ReservationRepository {
	return &reservationRepo{db: db}
}

func (r *reservationRepo) Create(ctx context.Context, reservation *models.Reservation) error {
	query := `
		INSERT INTO reservations (id, inventory_line_id, allocation_id, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, reservation.ID, reservation.InventoryLineID, reservation.AllocationID, reservation.Quantity, reservation.CreatedAt)
	return mapPgError(err, "reservation", reservation.ID.String())
}

func (r *reservationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	reservation := &models.Reservation{}
	query := `
		SELECT id, inventory_line_id, allocation_id, quantity, created_at, released_at
		FROM reservations
		WHERE id = $1
		FOR UPDATE
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&reservation.ID, &reservation.InventoryLineID, &reservation.AllocationID, &reservation.Quantity, &reservation.CreatedAt, &reservation.ReleasedAt)
	if err != nil {
		return nil, mapPgError(err, "reservation", id.String())
	}
	return reservation, nil
}

func (r *reservationRepo) MarkReleased(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE reservations SET released_at = $1 WHERE id = $2 AND released_at IS NULL`
	_, err := r.db.Exec(ctx, query, at, id)
	return mapPgError(err, "reservation", id.String())
}
