package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reliefops/internal/models"

	"github.com/google/uuid"
)

const auditColumns = `id, seq, entity_type, entity_id, action, before_snapshot, after_snapshot, actor, client_host, timestamp`

type auditLogsRepo struct {
	db Database
}

func NewAuditLogsRepo(db Database) AuditLogsRepository {
	return &auditLogsRepo{db: db}
}

func marshalSnapshot(snap models.JSONB) ([]byte, error) {
	if snap == nil {
		return nil, nil
	}
	return json.Marshal(snap)
}

func scanAuditEntry(row scanner) (*models.AuditEntry, error) {
	entry := &models.AuditEntry{}
	var beforeBytes, afterBytes []byte
	err := row.Scan(
		&entry.ID,
		&entry.Seq,
		&entry.EntityType,
		&entry.EntityID,
		&entry.Action,
		&beforeBytes,
		&afterBytes,
		&entry.Actor,
		&entry.ClientHost,
		&entry.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	if len(beforeBytes) > 0 {
		if err := json.Unmarshal(beforeBytes, &entry.BeforeSnapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal before_snapshot: %w", err)
		}
	}
	if len(afterBytes) > 0 {
		if err := json.Unmarshal(afterBytes, &entry.AfterSnapshot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal after_snapshot: %w", err)
		}
	}
	return entry, nil
}

func (r *auditLogsRepo) Create(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	beforeBytes, err := marshalSnapshot(entry.BeforeSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal before_snapshot: %w", err)
	}
	afterBytes, err := marshalSnapshot(entry.AfterSnapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal after_snapshot: %w", err)
	}

	query := `
		INSERT INTO audit_logs (id, entity_type, entity_id, action, before_snapshot, after_snapshot, actor, client_host, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq
	`
	err = r.db.QueryRow(ctx, query,
		entry.ID,
		entry.EntityType,
		entry.EntityID,
		entry.Action,
		beforeBytes,
		afterBytes,
		entry.Actor,
		entry.ClientHost,
		entry.Timestamp,
	).Scan(&entry.Seq)
	return mapPgError(err, "audit entry", entry.ID.String())
}

func (r *auditLogsRepo) ListByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY timestamp ASC, seq ASC
	`
	return r.list(ctx, query, entityType, entityID)
}

func (r *auditLogsRepo) List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditEntry, error) {
	if filters == nil {
		filters = &models.AuditLogFilters{}
	}

	query := `
		SELECT ` + auditColumns + `
		FROM audit_logs
		WHERE 1 = 1
	`
	args := []interface{}{}
	argIdx := 0

	if filters.EntityType != nil {
		argIdx++
		query += fmt.Sprintf(" AND entity_type = $%d", argIdx)
		args = append(args, *filters.EntityType)
	}

	if filters.EntityID != nil {
		argIdx++
		query += fmt.Sprintf(" AND entity_id = $%d", argIdx)
		args = append(args, *filters.EntityID)
	}

	if filters.Action != nil {
		argIdx++
		query += fmt.Sprintf(" AND action = $%d", argIdx)
		args = append(args, *filters.Action)
	}

	if filters.StartDate != nil {
		argIdx++
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *filters.StartDate)
	}

	if filters.EndDate != nil {
		argIdx++
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *filters.EndDate)
	}

	query += " ORDER BY timestamp ASC, seq ASC"

	if filters.Limit > 0 {
		argIdx++
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		if filters.Offset > 0 {
			argIdx++
			query += fmt.Sprintf(" OFFSET $%d", argIdx)
			args = append(args, filters.Offset)
		}
	}

	return r.list(ctx, query, args...)
}

func (r *auditLogsRepo) ListBefore(ctx context.Context, before time.Time, limit int) ([]*models.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_logs
		WHERE timestamp < $1
		ORDER BY timestamp ASC, seq ASC
		LIMIT $2
	`
	return r.list(ctx, query, before, limit)
}

func (r *auditLogsRepo) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `DELETE FROM audit_logs WHERE id = ANY($1)`
	tag, err := r.db.Exec(ctx, query, ids)
	if err != nil {
		return 0, mapPgError(err, "audit entry", "")
	}
	return tag.RowsAffected(), nil
}

func (r *auditLogsRepo) list(ctx context.Context, query string, args ...interface{}) ([]*models.AuditEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPgError(err, "audit entry", "")
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
