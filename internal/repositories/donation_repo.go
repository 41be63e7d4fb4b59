package repositories

import (
	"context"

	"reliefops/internal/models"

	"github.com/google/uuid"
)

// receiptLockNamespace keeps receipt advisory locks apart from any other advisory lock users.
const receiptLockNamespace int64 = 0x52435054 // "RCPT"

type donationRepo struct {
	db Database
}

func NewDonationRepo(db Database) DonationRepository {
	return &donationRepo{db: db}
}

func (r *donationRepo) Create(ctx context.Context, d *models.Donation) error {
	query := `
		INSERT INTO donations (id, donor_id, disaster_id, donation_type, amount, resource_id, quantity,
			receipt_year, receipt_seq, receipt_number, donation_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query, d.ID, d.DonorID, d.DisasterID, d.Type, d.Amount, d.ResourceID, d.Quantity,
		d.ReceiptYear, d.ReceiptSeq, d.ReceiptNumber, d.DonationDate)
	return mapPgError(err, "donation", d.ID.String())
}

func (r *donationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	d := &models.Donation{}
	query := `
		SELECT id, donor_id, disaster_id, donation_type, amount, resource_id, quantity,
			receipt_year, receipt_seq, receipt_number, donation_date
		FROM donations
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&d.ID, &d.DonorID, &d.DisasterID, &d.Type, &d.Amount, &d.ResourceID, &d.Quantity,
		&d.ReceiptYear, &d.ReceiptSeq, &d.ReceiptNumber, &d.DonationDate)
	if err != nil {
		return nil, mapPgError(err, "donation", id.String())
	}
	return d, nil
}

// NextReceiptSeq takes a transaction-scoped advisory lock for the year, so
// concurrent donations number strictly one after another.
func (r *donationRepo) NextReceiptSeq(ctx context.Context, year int) (int, error) {
	if _, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, receiptLockNamespace<<32|int64(year)); err != nil {
		return 0, mapPgError(err, "receipt sequence", "")
	}

	var next int
	query := `SELECT COALESCE(MAX(receipt_seq), 0) + 1 FROM donations WHERE receipt_year = $1`
	if err := r.db.QueryRow(ctx, query, year).Scan(&next); err != nil {
		return 0, mapPgError(err, "receipt sequence", "")
	}
	return next, nil
}
