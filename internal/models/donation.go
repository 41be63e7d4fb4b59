package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DonationType string

const (
	DonationMoney    DonationType = "Money"
	DonationMaterial DonationType = "Material"
)

// Donation is a recorded gift. ReceiptNumber is unique.
type Donation struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	DonorID       uuid.UUID        `json:"donor_id" db:"donor_id"`
	DisasterID    *uuid.UUID       `json:"disaster_id,omitempty" db:"disaster_id"`
	Type          DonationType     `json:"type" db:"donation_type"`
	Amount        *decimal.Decimal `json:"amount,omitempty" db:"amount"`
	ResourceID    *uuid.UUID       `json:"resource_id,omitempty" db:"resource_id"`
	Quantity      *int             `json:"quantity,omitempty" db:"quantity"`
	ReceiptYear   int              `json:"receipt_year" db:"receipt_year"`
	ReceiptSeq    int              `json:"receipt_seq" db:"receipt_seq"`
	ReceiptNumber string           `json:"receipt_number" db:"receipt_number"`
	DonationDate  time.Time        `json:"donation_date" db:"donation_date"`
}

// FormatReceiptNumber renders DON-<year>-<seq> with a three digit minimum sequence.
func FormatReceiptNumber(year, seq int) string {
	return fmt.Sprintf("DON-%d-%03d", year, seq)
}

// Snapshot returns the audit representation of the donation.
func (d *Donation) Snapshot() JSONB {
	snap := JSONB{
		"id":             d.ID.String(),
		"donor_id":       d.DonorID.String(),
		"type":           string(d.Type),
		"receipt_number": d.ReceiptNumber,
		"donation_date":  d.DonationDate,
	}
	if d.DisasterID != nil {
		snap["disaster_id"] = d.DisasterID.String()
	}
	if d.Amount != nil {
		snap["amount"] = d.Amount.String()
	}
	if d.ResourceID != nil {
		snap["resource_id"] = d.ResourceID.String()
	}
	if d.Quantity != nil {
		snap["quantity"] = *d.Quantity
	}
	return snap
}

// DonationInput is the payload of recordDonation.
type DonationInput struct {
	DonorID    uuid.UUID        `json:"donor_id" validate:"required"`
	DisasterID *uuid.UUID       `json:"disaster_id,omitempty"`
	Type       DonationType     `json:"type" validate:"required,oneof=Money Material"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	ResourceID *uuid.UUID       `json:"resource_id,omitempty"`
	Quantity   *int             `json:"quantity,omitempty" validate:"omitempty,gt=0"`
}
