package repositories

import (
	"context"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"

	"github.com/google/uuid"
)

const requestColumns = `id, area_id, resource_id, quantity_requested, urgency, status, request_date, remarks`

type requestRepo struct {
	db Database
}

func NewRequestRepo(db Database) RequestRepository {
	return &requestRepo{db: db}
}

func scanRequest(row scanner) (*models.Request, error) {
	req := &models.Request{}
	if err := row.Scan(&req.ID, &req.AreaID, &req.ResourceID, &req.QuantityRequested, &req.Urgency, &req.Status, &req.RequestDate, &req.Remarks); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *requestRepo) Create(ctx context.Context, req *models.Request) error {
	query := `
		INSERT INTO requests (id, area_id, resource_id, quantity_requested, urgency, status, request_date, remarks)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query, req.ID, req.AreaID, req.ResourceID, req.QuantityRequested, req.Urgency, req.Status, req.RequestDate, req.Remarks)
	return mapPgError(err, "request", req.ID.String())
}

func (r *requestRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapPgError(err, "request", id.String())
	}
	return req, nil
}

func (r *requestRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1 FOR UPDATE`
	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapPgError(err, "request", id.String())
	}
	return req, nil
}

func (r *requestRepo) Update(ctx context.Context, req *models.Request) error {
	query := `
		UPDATE requests
		SET urgency = $1, status = $2, remarks = $3
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, req.Urgency, req.Status, req.Remarks, req.ID)
	if err != nil {
		return mapPgError(err, "request", req.ID.String())
	}
	if tag.RowsAffected() == 0 {
		return common.NewNotFoundError("request", req.ID)
	}
	return nil
}

func (r *requestRepo) ListEscalationCandidates(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM requests
		WHERE status = 'Pending' AND urgency <> 'Critical' AND request_date <= $1
		ORDER BY request_date ASC
	`
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, mapPgError(err, "request", "")
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
