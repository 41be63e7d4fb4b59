package models

import (
	"github.com/google/uuid"
)

// EventType names a state change that cascade rules react to.
type EventType string

const (
	EventAllocationCreated     EventType = "allocation.created"
	EventDeliveryStatusChanged EventType = "allocation.delivery_status_changed"
	EventAllocationCancelled   EventType = "allocation.cancelled"
	EventDonationRecorded      EventType = "donation.recorded"
	EventDisasterClosed        EventType = "disaster.closed"
	EventTeamDisbanded         EventType = "team.disbanded"
)

// Event is produced by a state-changing operation. Op is the context of that
// operation; cascades attribute their own audit entries to it.
type Event interface {
	Type() EventType
	Origin() OpContext
}

type AllocationCreated struct {
	Allocation *Allocation
	Op         OpContext
}

func (AllocationCreated) Type() EventType     { return EventAllocationCreated }
func (e AllocationCreated) Origin() OpContext { return e.Op }

type DeliveryStatusChanged struct {
	Allocation *Allocation
	From       DeliveryStatus
	Op         OpContext
}

func (DeliveryStatusChanged) Type() EventType     { return EventDeliveryStatusChanged }
func (e DeliveryStatusChanged) Origin() OpContext { return e.Op }

type AllocationCancelled struct {
	Allocation *Allocation
	Op         OpContext
}

func (AllocationCancelled) Type() EventType     { return EventAllocationCancelled }
func (e AllocationCancelled) Origin() OpContext { return e.Op }

// DonationRecorded is dispatched before the donation is stored so that
// handlers can assign the receipt number and credit stock.
type DonationRecorded struct {
	Donation *Donation
	Op       OpContext
}

func (DonationRecorded) Type() EventType     { return EventDonationRecorded }
func (e DonationRecorded) Origin() OpContext { return e.Op }

// DisasterClosed carries a result that cascade handlers fill in.
type DisasterClosed struct {
	DisasterID uuid.UUID
	Result     *CloseDisasterResult
	Op         OpContext
}

func (DisasterClosed) Type() EventType     { return EventDisasterClosed }
func (e DisasterClosed) Origin() OpContext { return e.Op }

// TeamDisbandedEvent is dispatched for each team a disaster closure disbands.
type TeamDisbandedEvent struct {
	Team   *ReliefTeam
	Result *CloseDisasterResult
	Op     OpContext
}

func (TeamDisbandedEvent) Type() EventType     { return EventTeamDisbanded }
func (e TeamDisbandedEvent) Origin() OpContext { return e.Op }
