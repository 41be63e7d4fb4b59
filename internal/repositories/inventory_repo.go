package repositories

import (
	"context"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"

	"github.com/google/uuid"
)

const inventoryColumns = `id, resource_id, warehouse_location, quantity_available, last_updated`

type inventoryRepo struct {
	db Database
}

func NewInventoryRepo(db Database) InventoryRepository {
	return &inventoryRepo{db: db}
}

func scanInventoryLine(row scanner) (*models.InventoryLine, error) {
	line := &models.InventoryLine{}
	if err := row.Scan(&line.ID, &line.ResourceID, &line.WarehouseLocation, &line.QuantityAvailable, &line.LastUpdated); err != nil {
		return nil, err
	}
	return line, nil
}

func (r *inventoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.InventoryLine, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory_lines WHERE id = $1`
	line, err := scanInventoryLine(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapPgError(err, "inventory line", id.String())
	}
	return line, nil
}

func (r *inventoryRepo) GetByResourceAndWarehouse(ctx context.Context, resourceID uuid.UUID, warehouse string) (*models.InventoryLine, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory_lines WHERE resource_id = $1 AND warehouse_location = $2`
	line, err := scanInventoryLine(r.db.QueryRow(ctx, query, resourceID, warehouse))
	if err != nil {
		return nil, mapPgError(err, "inventory line", resourceID.String()+"@"+warehouse)
	}
	return line, nil
}

func (r *inventoryRepo) LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.InventoryLine, error) {
	ordered := sortedIDs(ids)
	query := `
		SELECT ` + inventoryColumns + `
		FROM inventory_lines
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`
	rows, err := r.db.Query(ctx, query, ordered)
	if err != nil {
		return nil, mapPgError(err, "inventory line", "")
	}
	defer rows.Close()

	lines := make(map[uuid.UUID]*models.InventoryLine, len(ordered))
	for rows.Next() {
		line, err := scanInventoryLine(rows)
		if err != nil {
			return nil, err
		}
		lines[line.ID] = line
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError(err, "inventory line", "")
	}
	for _, id := range ordered {
		if _, ok := lines[id]; !ok {
			return nil, common.NewNotFoundError("inventory line", id)
		}
	}
	return lines, nil
}

func (r *inventoryRepo) Ensure(ctx context.Context, resourceID uuid.UUID, warehouse string) (*models.InventoryLine, bool, error) {
	insert := `
		INSERT INTO inventory_lines (id, resource_id, warehouse_location, quantity_available, last_updated)
		VALUES ($1, $2, $3, 0, NOW())
		ON CONFLICT (resource_id, warehouse_location) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, insert, uuid.New(), resourceID, warehouse)
	if err != nil {
		return nil, false, mapPgError(err, "inventory line", "")
	}

	query := `
		SELECT ` + inventoryColumns + `
		FROM inventory_lines
		WHERE resource_id = $1 AND warehouse_location = $2
		FOR UPDATE
	`
	line, err := scanInventoryLine(r.db.QueryRow(ctx, query, resourceID, warehouse))
	if err != nil {
		return nil, false, mapPgError(err, "inventory line", resourceID.String()+"@"+warehouse)
	}
	return line, tag.RowsAffected() == 1, nil
}

func (r *inventoryRepo) UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int, at time.Time) error {
	query := `
		UPDATE inventory_lines
		SET quantity_available = $1, last_updated = $2
		WHERE id = $3
	`
	tag, err := r.db.Exec(ctx, query, quantity, at, id)
	if err != nil {
		return mapPgError(err, "inventory line", id.String())
	}
	if tag.RowsAffected() == 0 {
		return common.NewNotFoundError("inventory line", id)
	}
	return nil
}

func (r *inventoryRepo) List(ctx context.Context) ([]*models.InventoryLine, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory_lines ORDER BY warehouse_location, resource_id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, mapPgError(err, "inventory line", "")
	}
	defer rows.Close()

	var lines []*models.InventoryLine
	for rows.Next() {
		line, err := scanInventoryLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *inventoryRepo) ListLowStock(ctx context.Context) ([]*models.LowStockLine, error) {
	query := `
		SELECT l.id, l.resource_id, l.warehouse_location, l.quantity_available, l.last_updated,
		       r.id, r.name, r.category, r.unit, r.min_stock, r.created_at
		FROM inventory_lines l
		JOIN resources r ON r.id = l.resource_id
		WHERE l.quantity_available = 0 OR l.quantity_available < r.min_stock
		ORDER BY l.quantity_available ASC, l.warehouse_location
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, mapPgError(err, "inventory line", "")
	}
	defer rows.Close()

	var result []*models.LowStockLine
	for rows.Next() {
		line := &models.InventoryLine{}
		resource := &models.Resource{}
		if err := rows.Scan(
			&line.ID, &line.ResourceID, &line.WarehouseLocation, &line.QuantityAvailable, &line.LastUpdated,
			&resource.ID, &resource.Name, &resource.Category, &resource.Unit, &resource.MinStock, &resource.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &models.LowStockLine{Line: line, Resource: resource, Status: line.StockStatus(resource.MinStock)})
	}
	return result, rows.Err()
}
