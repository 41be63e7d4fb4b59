package models

import (
	"time"

	"github.com/google/uuid"
)

type Urgency string

const (
	UrgencyLow      Urgency = "Low"
	UrgencyMedium   Urgency = "Medium"
	UrgencyHigh     Urgency = "High"
	UrgencyCritical Urgency = "Critical"
)

var urgencyRank = map[Urgency]int{
	UrgencyLow:      0,
	UrgencyMedium:   1,
	UrgencyHigh:     2,
	UrgencyCritical: 3,
}

// Valid reports whether u is a known urgency level.
func (u Urgency) Valid() bool {
	_, ok := urgencyRank[u]
	return ok
}

// Next returns the urgency one level up. Critical has no next level.
func (u Urgency) Next() (Urgency, bool) {
	switch u {
	case UrgencyLow:
		return UrgencyMedium, true
	case UrgencyMedium:
		return UrgencyHigh, true
	case UrgencyHigh:
		return UrgencyCritical, true
	}
	return u, false
}

type RequestStatus string

const (
	RequestPending            RequestStatus = "Pending"
	RequestApproved           RequestStatus = "Approved"
	RequestFulfilled          RequestStatus = "Fulfilled"
	RequestPartiallyFulfilled RequestStatus = "Partially_Fulfilled"
	RequestRejected           RequestStatus = "Rejected"
)

// requestTransitions lists the business transitions; anything else needs an administrative override.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:            {RequestApproved, RequestRejected},
	RequestApproved:           {RequestPartiallyFulfilled, RequestFulfilled},
	RequestPartiallyFulfilled: {RequestFulfilled},
}

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestFulfilled, RequestPartiallyFulfilled, RequestRejected:
		return true
	}
	return false
}

// Terminal reports whether no business transition leaves s.
func (s RequestStatus) Terminal() bool {
	return s == RequestFulfilled || s == RequestRejected
}

// CanTransition reports whether from -> to is an allowed business transition.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Request is an area's ask for a quantity of one resource. Never deleted.
type Request struct {
	ID                uuid.UUID     `json:"id" db:"id"`
	AreaID            uuid.UUID     `json:"area_id" db:"area_id"`
	ResourceID        uuid.UUID     `json:"resource_id" db:"resource_id"`
	QuantityRequested int           `json:"quantity_requested" db:"quantity_requested"`
	Urgency           Urgency       `json:"urgency" db:"urgency"`
	Status            RequestStatus `json:"status" db:"status"`
	RequestDate       time.Time     `json:"request_date" db:"request_date"`
	Remarks           *string       `json:"remarks,omitempty" db:"remarks"`
}

// Snapshot returns the audit representation of the request.
func (r *Request) Snapshot() JSONB {
	snap := JSONB{
		"id":                 r.ID.String(),
		"area_id":            r.AreaID.String(),
		"resource_id":        r.ResourceID.String(),
		"quantity_requested": r.QuantityRequested,
		"urgency":            string(r.Urgency),
		"status":             string(r.Status),
		"request_date":       r.RequestDate,
	}
	if r.Remarks != nil {
		snap["remarks"] = *r.Remarks
	}
	return snap
}

// RequestTotals aggregates the live allocations of a request.
type RequestTotals struct {
	Allocated int `json:"allocated"`
	Delivered int `json:"delivered"`
}

// DeriveStatus computes the status implied by delivered and reserved quantities.
// Delivered quantity decides fulfilment; a reservation alone only approves a pending request.
func DeriveStatus(current RequestStatus, requested int, totals RequestTotals) RequestStatus {
	switch {
	case totals.Delivered >= requested:
		return RequestFulfilled
	case totals.Delivered > 0:
		return RequestPartiallyFulfilled
	case totals.Allocated > 0 && current == RequestPending:
		return RequestApproved
	}
	return current
}

// RequestView is a request with its allocation totals.
type RequestView struct {
	*Request
	Totals RequestTotals `json:"totals"`
}
