package models

import (
	"time"

	"github.com/google/uuid"
)

type DisasterStatus string

const (
	DisasterActive     DisasterStatus = "Active"
	DisasterMonitoring DisasterStatus = "Monitoring"
	DisasterResolved   DisasterStatus = "Resolved"
)

type TeamStatus string

const (
	TeamActive    TeamStatus = "Active"
	TeamStandby   TeamStatus = "Standby"
	TeamDisbanded TeamStatus = "Disbanded"
)

type VolunteerAvailability string

const (
	VolunteerAvailable   VolunteerAvailability = "Available"
	VolunteerBusy        VolunteerAvailability = "Busy"
	VolunteerUnavailable VolunteerAvailability = "Unavailable"
)

type Disaster struct {
	ID        uuid.UUID      `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	Type      string         `json:"type" db:"disaster_type"`
	Severity  string         `json:"severity" db:"severity"`
	Status    DisasterStatus `json:"status" db:"status"`
	StartDate time.Time      `json:"start_date" db:"start_date"`
	EndDate   *time.Time     `json:"end_date,omitempty" db:"end_date"`
}

// Snapshot returns the audit representation of the disaster.
func (d *Disaster) Snapshot() JSONB {
	snap := JSONB{
		"id":         d.ID.String(),
		"name":       d.Name,
		"status":     string(d.Status),
		"start_date": d.StartDate,
	}
	if d.EndDate != nil {
		snap["end_date"] = *d.EndDate
	}
	return snap
}

type ReliefTeam struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	DisasterID uuid.UUID  `json:"disaster_id" db:"disaster_id"`
	Name       string     `json:"name" db:"team_name"`
	Status     TeamStatus `json:"status" db:"status"`
}

// Snapshot returns the audit representation of the team.
func (t *ReliefTeam) Snapshot() JSONB {
	return JSONB{
		"id":          t.ID.String(),
		"disaster_id": t.DisasterID.String(),
		"name":        t.Name,
		"status":      string(t.Status),
	}
}

type Volunteer struct {
	ID           uuid.UUID             `json:"id" db:"id"`
	Name         string                `json:"name" db:"name"`
	TeamID       *uuid.UUID            `json:"team_id,omitempty" db:"team_id"`
	Availability VolunteerAvailability `json:"availability" db:"availability"`
}

// Snapshot returns the audit representation of the volunteer.
func (v *Volunteer) Snapshot() JSONB {
	snap := JSONB{
		"id":           v.ID.String(),
		"name":         v.Name,
		"availability": string(v.Availability),
	}
	if v.TeamID != nil {
		snap["team_id"] = v.TeamID.String()
	}
	return snap
}

// CloseDisasterResult reports what a disaster closure changed
type CloseDisasterResult struct {
	TeamsDisbanded     int `json:"teams_disbanded"`
	VolunteersReleased int `json:"volunteers_released"`
}
