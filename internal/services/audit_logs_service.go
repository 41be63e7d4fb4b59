package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"
	"reliefops/internal/repositories"

	"go.uber.org/zap"
)

// AuditLogsService records and queries the append-only audit trail.
//
// Record and its helpers write through the repositories of the caller's
// transaction: an audit failure fails the business operation, which then
// rolls back as a whole.
type AuditLogsService interface {
	Record(ctx context.Context, repos repositories.Repos, op models.OpContext, entityType, entityID string, action models.AuditAction, before, after models.JSONB) error
	LogEntityCreate(ctx context.Context, repos repositories.Repos, op models.OpContext, entityType, entityID string, after models.JSONB) error
	LogEntityUpdate(ctx context.Context, repos repositories.Repos, op models.OpContext, entityType, entityID string, before, after models.JSONB) error
	LogEntityDelete(ctx context.Context, repos repositories.Repos, op models.OpContext, entityType, entityID string, before, after models.JSONB) error

	// RecordCritical logs an invariant violation in its own transaction, after
	// the failed operation has rolled back.
	RecordCritical(ctx context.Context, op models.OpContext, operation string, violation error)

	GetEntityHistory(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error)
	ListHighRisk(ctx context.Context, start, end time.Time) ([]*models.AuditEntry, error)
	ListAuditLogs(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditEntry, error)
	ValidateAuditFilters(filters *models.AuditLogFilters) error
}

type auditLogsService struct {
	scope  repositories.TransactionScope
	logger *zap.Logger
	now    Clock
}

func NewAuditLogsService(scope repositories.TransactionScope, logger *zap.Logger, now Clock) AuditLogsService {
	if now == nil {
		now = SystemClock
	}
	return &auditLogsService{scope: scope, logger: logger, now: now}
}

func (s *auditLogsService) Record(ctx context.Context, repos repositories.Repos, op models.OpContext, entityType, entityID string, action models.AuditAction, before, after models.JSONB) error {
	if entityType == "" {
		return errors.New("entity_type is required")
	}
	if action == "" {
		return errors.New("action is required")
	}
	actor := op.Actor
	if actor == "" {
		actor = models.SystemActor
	}

	entry := &models.AuditEntry{
		EntityType:     entityType,
		EntityID:       entityID,
		Action:         action,
		BeforeSnapshot: before,
		AfterSnapshot:  after,
		Actor:          actor,
		ClientHost:     op.ClientHost,
		Timestamp:      s.now(),
	}
	if err := repos.AuditLogs().Create(ctx, entry); err != nil {
		return fmt.Errorf("record audit for %s %s: %w", entityType, entityID, err)
	}
	return nil
}

func (s *auditLogsService) LogEntityCreate(ctx context.Context, repos repositories.Repos, op models.OpContext, entityType, entityID string, after models.JSONB) error {
	return s.Record(ctx, repos, op, entityType, entityID, models.ActionCreate, nil, after)
}

func (s *auditLogsService) LogEntityUpdate(ctx context.Context, repos repositories.Repos, op models.OpContext, entityType, entityID string, before, after models.JSONB) error {
	return s.Record(ctx, repos, op, entityType, entityID, models.ActionUpdate, before, after)
}

func (s *auditLogsService) LogEntityDelete(ctx context.Context, repos repositories.Repos, op models.OpContext, entityType, entityID string, before, after models.JSONB) error {
	return s.Record(ctx, repos, op, entityType, entityID, models.ActionDelete, before, after)
}

func (s *auditLogsService) RecordCritical(ctx context.Context, op models.OpContext, operation string, violation error) {
	s.logger.Error("invariant violation",
		zap.String("operation", operation),
		zap.String("actor", op.Actor),
		zap.Error(violation),
	)

	after := models.JSONB{
		"severity":  "critical",
		"operation": operation,
		"error":     violation.Error(),
	}
	var iv *common.InvariantViolationError
	if errors.As(violation, &iv) {
		after["invariant"] = iv.Invariant
		after["detail"] = iv.Detail
	}
	critical := models.OpContext{Actor: models.SystemActor, ClientHost: op.ClientHost, Role: models.RoleSystem}
	err := s.scope.Execute(context.WithoutCancel(ctx), 0, func(ctx context.Context, repos repositories.Repos) error {
		return s.Record(ctx, repos, critical, models.EntityEngine, operation, models.ActionUpdate, nil, after)
	})
	if err != nil {
		s.logger.Error("failed to record critical audit entry", zap.String("operation", operation), zap.Error(err))
	}
}

func (s *auditLogsService) GetEntityHistory(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error) {
	if entityType == "" || entityID == "" {
		return nil, common.NewValidationError("entity", "entity_type and entity_id are required")
	}
	var entries []*models.AuditEntry
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		entries, err = repos.AuditLogs().ListByEntity(ctx, entityType, entityID)
		return err
	})
	return entries, err
}

// ListHighRisk returns Delete entries in [start, end], oldest first.
func (s *auditLogsService) ListHighRisk(ctx context.Context, start, end time.Time) ([]*models.AuditEntry, error) {
	if err := common.ValidateDateRange(start, end); err != nil {
		return nil, err
	}
	action := models.ActionDelete
	return s.ListAuditLogs(ctx, &models.AuditLogFilters{Action: &action, StartDate: &start, EndDate: &end})
}

func (s *auditLogsService) ListAuditLogs(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditEntry, error) {
	if err := s.ValidateAuditFilters(filters); err != nil {
		return nil, err
	}
	var entries []*models.AuditEntry
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		entries, err = repos.AuditLogs().List(ctx, filters)
		return err
	})
	return entries, err
}

func (s *auditLogsService) ValidateAuditFilters(filters *models.AuditLogFilters) error {
	if filters == nil {
		return nil
	}
	if filters.Action != nil {
		switch *filters.Action {
		case models.ActionCreate, models.ActionUpdate, models.ActionDelete:
		default:
			return common.NewValidationError("action", "must be one of: Create, Update, Delete")
		}
	}
	if filters.StartDate != nil && filters.EndDate != nil {
		if err := common.ValidateDateRange(*filters.StartDate, *filters.EndDate); err != nil {
			return err
		}
	}
	if filters.Limit < 0 || filters.Offset < 0 {
		return common.NewValidationError("limit", "limit and offset cannot be negative")
	}
	return nil
}
