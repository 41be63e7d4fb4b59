package models

import "github.com/google/uuid"

// SubmitRequestInput is the payload of submitRequest.
type SubmitRequestInput struct {
	AreaID     uuid.UUID `json:"area_id" validate:"required"`
	ResourceID uuid.UUID `json:"resource_id" validate:"required"`
	Quantity   int       `json:"quantity" validate:"required,gt=0"`
	Urgency    Urgency   `json:"urgency" validate:"required,oneof=Low Medium High Critical"`
	Remarks    *string   `json:"remarks,omitempty" validate:"omitempty,max=1000"`
}

// RequestDecisionInput carries a human decision on a request.
type RequestDecisionInput struct {
	Status RequestStatus `json:"status" validate:"required"`
	Reason string        `json:"reason" validate:"max=1000"`
}

// StockInput adds stock to a warehouse line.
type StockInput struct {
	ResourceID        uuid.UUID `json:"resource_id" validate:"required"`
	WarehouseLocation string    `json:"warehouse_location" validate:"required,max=200"`
	Quantity          int       `json:"quantity" validate:"required,gt=0"`
}

// TransferInput moves stock between two warehouses of the same resource.
type TransferInput struct {
	ResourceID    uuid.UUID `json:"resource_id" validate:"required"`
	FromWarehouse string    `json:"from_warehouse" validate:"required,max=200"`
	ToWarehouse   string    `json:"to_warehouse" validate:"required,max=200,nefield=FromWarehouse"`
	Quantity      int       `json:"quantity" validate:"required,gt=0"`
}
