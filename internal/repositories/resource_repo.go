package repositories

import (
	"context"

	"reliefops/internal/models"

	"github.com/google/uuid"
)

type resourceRepo struct {
	db Database
}

func NewResourceRepo(db Database) ResourceRepository {
	return &resourceRepo{db: db}
}

func (r *resourceRepo) Create(ctx context.Context, resource *models.Resource) error {
	query := `
		INSERT INTO resources (id, name, category, unit, min_stock, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, resource.ID, resource.Name, resource.Category, resource.Unit, resource.MinStock, resource.CreatedAt)
	return mapPgError(err, "resource", resource.ID.String())
}

func (r *resourceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Resource, error) {
	resource := &models.Resource{}
	query := `
		SELECT id, name, category, unit, min_stock, created_at
		FROM resources
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&resource.ID, &resource.Name, &resource.Category, &resource.Unit, &resource.MinStock, &resource.CreatedAt)
	if err != nil {
		return nil, mapPgError(err, "resource", id.String())
	}
	return resource, nil
}

func (r *resourceRepo) List(ctx context.Context) ([]*models.Resource, error) {
	query := `
		SELECT id, name, category, unit, min_stock, created_at
		FROM resources
		ORDER BY name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, mapPgError(err, "resource", "")
	}
	defer rows.Close()

	var resources []*models.Resource
	for rows.Next() {
		resource := &models.Resource{}
		if err := rows.Scan(&resource.ID, &resource.Name, &resource.Category, &resource.Unit, &resource.MinStock, &resource.CreatedAt); err != nil {
			return nil, err
		}
		resources = append(resources, resource)
	}
	return resources, rows.Err()
}
