package models

import (
	"time"

	"github.com/google/uuid"
)

// JSONB is a free-form JSON object stored in jsonb columns.
type JSONB map[string]interface{}

type AuditAction string

// Action constants for audit entries
const (
	ActionCreate AuditAction = "Create"
	ActionUpdate AuditAction = "Update"
	ActionDelete AuditAction = "Delete"
)

// Entity types recorded by the audit trail
const (
	EntityInventoryLine = "inventory_line"
	EntityRequest       = "request"
	EntityAllocation    = "allocation"
	EntityDonation      = "donation"
	EntityDisaster      = "disaster"
	EntityReliefTeam    = "relief_team"
	EntityVolunteer     = "volunteer"
	EntityEngine        = "engine"
)

// AuditEntry is an append-only record of one mutation.
type AuditEntry struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	EntityType     string      `json:"entity_type" db:"entity_type"`
	EntityID       string      `json:"entity_id" db:"entity_id"`
	Action         AuditAction `json:"action" db:"action"`
	BeforeSnapshot JSONB       `json:"before_snapshot,omitempty" db:"before_snapshot"`
	AfterSnapshot  JSONB       `json:"after_snapshot,omitempty" db:"after_snapshot"`
	Actor          string      `json:"actor" db:"actor"`
	ClientHost     string      `json:"client_host,omitempty" db:"client_host"`
	Timestamp      time.Time   `json:"timestamp" db:"timestamp"`
	Seq            int64       `json:"seq" db:"seq"` // insertion order, breaks timestamp ties
}

// AuditLogFilters narrows audit queries
type AuditLogFilters struct {
	EntityType *string      `json:"entity_type"`
	EntityID   *string      `json:"entity_id"`
	Action     *AuditAction `json:"action"`
	StartDate  *time.Time   `json:"start_date"`
	EndDate    *time.Time   `json:"end_date"`
	Limit      int          `json:"limit"`
	Offset     int          `json:"offset"`
}

// Matches reports whether the entry satisfies every set filter.
func (f *AuditLogFilters) Matches(e *AuditEntry) bool {
	if f == nil {
		return true
	}
	if f.EntityType != nil && e.EntityType != *f.EntityType {
		return false
	}
	if f.EntityID != nil && e.EntityID != *f.EntityID {
		return false
	}
	if f.Action != nil && e.Action != *f.Action {
		return false
	}
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	return true
}

// AuditArchiveResult describes one archival move
type AuditArchiveResult struct {
	ObjectName string    `json:"object_name"`
	Archived   int       `json:"archived"`
	Before     time.Time `json:"before"`
}
