package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"
	"reliefops/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxArchiveBatch = 5000

// AuditArchiveService moves audit entries older than a cutoff into object
// storage. It is the only path that removes audit entries.
type AuditArchiveService interface {
	Archive(ctx context.Context, op models.OpContext, before time.Time) (*models.AuditArchiveResult, error)
	ArchiveURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

type auditArchiveService struct {
	scope  repositories.TransactionScope
	store  MinioService
	bucket string
	logger *zap.Logger
	now    Clock
}

func NewAuditArchiveService(scope repositories.TransactionScope, store MinioService, bucket string, logger *zap.Logger, now Clock) AuditArchiveService {
	if now == nil {
		now = SystemClock
	}
	return &auditArchiveService{scope: scope, store: store, bucket: bucket, logger: logger, now: now}
}

type archiveBatch struct {
	Before     time.Time            `json:"before"`
	ArchivedAt time.Time            `json:"archived_at"`
	ArchivedBy string               `json:"archived_by"`
	Entries    []*models.AuditEntry `json:"entries"`
}

// Archive writes one batch of entries dated before the cutoff to the bucket and
// then deletes exactly those entries. Nothing is deleted if the upload fails, and
// the uploaded object is removed if the transaction does not commit.
func (s *auditArchiveService) Archive(ctx context.Context, op models.OpContext, before time.Time) (*models.AuditArchiveResult, error) {
	if !op.IsAdmin() {
		return nil, common.ErrForbidden
	}
	if before.IsZero() || before.After(s.now()) {
		return nil, common.NewValidationError("before", "must be a past instant")
	}
	if err := s.store.EnsureBucketExists(ctx, s.bucket); err != nil {
		return nil, fmt.Errorf("ensure archive bucket: %w", err)
	}

	result := &models.AuditArchiveResult{Before: before}
	var uploaded string
	err := s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		entries, err := repos.AuditLogs().ListBefore(ctx, before, maxArchiveBatch)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		archivedAt := s.now()
		payload, err := json.Marshal(archiveBatch{Before: before, ArchivedAt: archivedAt, ArchivedBy: op.Actor, Entries: entries})
		if err != nil {
			return fmt.Errorf("encode archive batch: %w", err)
		}
		objectName := fmt.Sprintf("audit/%s/%s.json", archivedAt.Format("2006/01/02"), uuid.New().String())
		if err := s.store.UploadObject(ctx, s.bucket, objectName, bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
			return fmt.Errorf("upload archive batch: %w", err)
		}
		uploaded = objectName

		ids := make([]uuid.UUID, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		deleted, err := repos.AuditLogs().DeleteByIDs(ctx, ids)
		if err == nil && deleted != int64(len(ids)) {
			err = &common.InvariantViolationError{
				Invariant: "audit_archive_exact",
				Detail:    fmt.Sprintf("archived %d entries but deleted %d", len(ids), deleted),
			}
		}
		if err != nil {
			return err
		}

		result.ObjectName = objectName
		result.Archived = len(entries)
		return nil
	})
	if err != nil {
		if uploaded != "" {
			if cleanupErr := s.store.DeleteObject(context.WithoutCancel(ctx), s.bucket, uploaded); cleanupErr != nil {
				s.logger.Warn("failed to remove orphaned archive object", zap.String("object", uploaded), zap.Error(cleanupErr))
			}
		}
		return nil, err
	}

	s.logger.Info("audit entries archived",
		zap.String("object", result.ObjectName),
		zap.Int("archived", result.Archived),
		zap.Time("before", before),
		zap.String("actor", op.Actor),
	)
	return result, nil
}

func (s *auditArchiveService) ArchiveURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	if objectName == "" {
		return "", common.NewValidationError("object_name", "is required")
	}
	return s.store.GetPresignedURL(ctx, s.bucket, objectName, expiry)
}
