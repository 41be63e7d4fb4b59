package models

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "Pending"
	DeliveryDispatched DeliveryStatus = "Dispatched"
	DeliveryInTransit  DeliveryStatus = "In_Transit"
	DeliveryDelivered  DeliveryStatus = "Delivered"
	DeliveryFailed     DeliveryStatus = "Failed"
)

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryPending:    {DeliveryDispatched, DeliveryFailed},
	DeliveryDispatched: {DeliveryInTransit, DeliveryDelivered, DeliveryFailed},
	DeliveryInTransit:  {DeliveryDelivered, DeliveryFailed},
}

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryPending, DeliveryDispatched, DeliveryInTransit, DeliveryDelivered, DeliveryFailed:
		return true
	}
	return false
}

// CanTransitionDelivery reports whether from -> to is allowed. Delivered and Failed are final.
func CanTransitionDelivery(from, to DeliveryStatus) bool {
	for _, next := range deliveryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Allocation is a committed reservation of one inventory line against one request.
type Allocation struct {
	ID                uuid.UUID      `json:"id" db:"id"`
	RequestID         uuid.UUID      `json:"request_id" db:"request_id"`
	InventoryLineID   uuid.UUID      `json:"inventory_line_id" db:"inventory_line_id"`
	ReservationID     uuid.UUID      `json:"reservation_id" db:"reservation_id"`
	QuantityAllocated int            `json:"quantity_allocated" db:"quantity_allocated"`
	AllocationDate    time.Time      `json:"allocation_date" db:"allocation_date"`
	DeliveryStatus    DeliveryStatus `json:"delivery_status" db:"delivery_status"`
	StatusChangedAt   time.Time      `json:"status_changed_at" db:"status_changed_at"`
	DeliveredDate     *time.Time     `json:"delivered_date,omitempty" db:"delivered_date"`
	CancelledAt       *time.Time     `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

// Active reports whether the allocation still counts against its request.
func (a *Allocation) Active() bool {
	return a.CancelledAt == nil
}

// Snapshot returns the audit representation of the allocation.
func (a *Allocation) Snapshot() JSONB {
	snap := JSONB{
		"id":                 a.ID.String(),
		"request_id":         a.RequestID.String(),
		"inventory_line_id":  a.InventoryLineID.String(),
		"reservation_id":     a.ReservationID.String(),
		"quantity_allocated": a.QuantityAllocated,
		"allocation_date":    a.AllocationDate,
		"delivery_status":    string(a.DeliveryStatus),
		"status_changed_at":  a.StatusChangedAt,
	}
	if a.DeliveredDate != nil {
		snap["delivered_date"] = *a.DeliveredDate
	}
	if a.CancelledAt != nil {
		snap["cancelled_at"] = *a.CancelledAt
	}
	return snap
}

// WarehouseAllocation is one (warehouse, quantity) pair of a multi-warehouse allocate call.
type WarehouseAllocation struct {
	WarehouseLocation string `json:"warehouse_location" validate:"required,max=200"`
	Quantity          int    `json:"quantity" validate:"required,gt=0"`
}

// AllocateInput is the payload of an allocate call.
type AllocateInput struct {
	RequestID  uuid.UUID             `json:"request_id" validate:"required"`
	Warehouses []WarehouseAllocation `json:"warehouses" validate:"required,min=1,dive"`
}

// DeliveryAlert flags an allocation stuck in transit. Observational only.
type DeliveryAlert struct {
	AllocationID   uuid.UUID      `json:"allocation_id"`
	RequestID      uuid.UUID      `json:"request_id"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	Since          time.Time      `json:"since"`
	Age            time.Duration  `json:"age"`
	RaisedAt       time.Time      `json:"raised_at"`
}
