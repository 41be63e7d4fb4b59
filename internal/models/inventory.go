package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryLine is the stock of one resource at one warehouse. Unique on (ResourceID, WarehouseLocation).
type InventoryLine struct {
	ID                uuid.UUID `json:"id" db:"id"`
	ResourceID        uuid.UUID `json:"resource_id" db:"resource_id"`
	WarehouseLocation string    `json:"warehouse_location" db:"warehouse_location"`
	QuantityAvailable int       `json:"quantity_available" db:"quantity_available"`
	LastUpdated       time.Time `json:"last_updated" db:"last_updated"`
}

// Stock status values reported for a line
const (
	StockStatusOut = "OUT"
	StockStatusLow = "LOW"
	StockStatusOK  = "OK"
)

// StockStatus classifies the line against the resource minimum.
func (l *InventoryLine) StockStatus(minStock int) string {
	switch {
	case l.QuantityAvailable == 0:
		return StockStatusOut
	case l.QuantityAvailable < minStock:
		return StockStatusLow
	default:
		return StockStatusOK
	}
}

// Snapshot returns the audit representation of the line.
func (l *InventoryLine) Snapshot() JSONB {
	return JSONB{
		"id":                 l.ID.String(),
		"resource_id":        l.ResourceID.String(),
		"warehouse_location": l.WarehouseLocation,
		"quantity_available": l.QuantityAvailable,
		"last_updated":       l.LastUpdated,
	}
}

// Reservation is the persisted backing of a ReservationToken. AllocationID is
// set when the reservation backs an allocation; only cancelling that
// allocation may release it.
type Reservation struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	InventoryLineID uuid.UUID  `json:"inventory_line_id" db:"inventory_line_id"`
	AllocationID    *uuid.UUID `json:"allocation_id,omitempty" db:"allocation_id"`
	Quantity        int        `json:"quantity" db:"quantity"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	ReleasedAt      *time.Time `json:"released_at,omitempty" db:"released_at"`
}

// Released reports whether the reservation was already credited back.
func (r *Reservation) Released() bool {
	return r.ReleasedAt != nil
}

// ReservationToken identifies the exact line and amount held by a reservation.
type ReservationToken struct {
	ID              uuid.UUID `json:"id"`
	InventoryLineID uuid.UUID `json:"inventory_line_id"`
	Quantity        int       `json:"quantity"`
}

// Token builds the caller-facing handle for the reservation.
func (r *Reservation) Token() ReservationToken {
	return ReservationToken{ID: r.ID, InventoryLineID: r.InventoryLineID, Quantity: r.Quantity}
}

// LowStockLine pairs a line with its resource for alerting
type LowStockLine struct {
	Line     *InventoryLine `json:"line"`
	Resource *Resource      `json:"resource"`
	Status   string         `json:"status"`
}
