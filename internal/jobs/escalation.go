// Package jobs holds the periodic sweeps of the relief engine. Each sweep
// processes every candidate in its own short transaction and collects
// per-item outcomes; one bad row never aborts a sweep.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reliefops/internal/caching"
	"reliefops/internal/models"
	"reliefops/internal/services"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Sweep names, also used as scheduler job names.
const (
	SweepEscalation       = "request-escalation"
	SweepDeliveryAlerts   = "delivery-alerts"
	SweepOrphanVolunteers = "orphan-volunteers"
)

type EscalationConfig struct {
	DispatchedAlertAfter time.Duration
	InTransitAlertAfter  time.Duration
	AlertDedupe          time.Duration
	Workers              int
}

// DefaultEscalationConfig alerts after 24h dispatched or 48h in transit.
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		DispatchedAlertAfter: 24 * time.Hour,
		InTransitAlertAfter:  48 * time.Hour,
		AlertDedupe:          caching.DefaultAlertWindow,
		Workers:              4,
	}
}

type EscalationSweeper struct {
	requests    services.RequestService
	allocations services.AllocationService
	disasters   services.DisasterService
	cache       caching.CacheService
	cfg         EscalationConfig
	logger      *zap.Logger
	now         services.Clock
}

// NewEscalationSweeper builds the sweeper. cache may be nil, in which case
// delivery alerts are only logged.
func NewEscalationSweeper(requests services.RequestService, allocations services.AllocationService, disasters services.DisasterService,
	cache caching.CacheService, cfg EscalationConfig, logger *zap.Logger, now services.Clock) *EscalationSweeper {
	if now == nil {
		now = services.SystemClock
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &EscalationSweeper{
		requests:    requests,
		allocations: allocations,
		disasters:   disasters,
		cache:       cache,
		cfg:         cfg,
		logger:      logger,
		now:         now,
	}
}

// sweepItem processes one candidate and returns its status and a short detail.
type sweepItem func(ctx context.Context) (status, detail string, err error)

// run executes items on a bounded ants pool and collects their outcomes.
func (s *EscalationSweeper) run(ctx context.Context, name string, ids []string, items []sweepItem) (*models.BulkOperationResult, error) {
	result := models.NewBulkOperationResult(fmt.Sprintf("%s-%s", name, uuid.New().String()), len(items), s.now())
	if len(items) == 0 {
		result.Finish(s.now())
		return result, nil
	}

	pool, err := ants.NewPool(s.cfg.Workers, ants.WithNonblocking(false), ants.WithExpiryDuration(10*time.Second))
	if err != nil {
		return nil, fmt.Errorf("create %s worker pool: %w", name, err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i := range items {
		idx := i
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					result.Record(idx, ids[idx], models.SweepItemFailed, "", fmt.Errorf("panic: %v", p))
				}
			}()
			if ctx.Err() != nil {
				result.Record(idx, ids[idx], models.SweepItemFailed, "", ctx.Err())
				return
			}
			status, detail, err := items[idx](ctx)
			result.Record(idx, ids[idx], status, detail, err)
		})
		if submitErr != nil {
			wg.Done()
			result.Record(idx, ids[idx], models.SweepItemFailed, "", submitErr)
		}
	}
	wg.Wait()
	result.Finish(s.now())

	for _, e := range result.Errors {
		s.logger.Warn("sweep item failed", zap.String("sweep", name), zap.String("item_id", e.ItemID), zap.String("error", e.Error))
	}
	s.logger.Info("sweep completed",
		zap.String("sweep", name),
		zap.String("status", result.Status),
		zap.Int("total", result.TotalItems),
		zap.Int("processed", result.ProcessedItems),
		zap.Int("failed", result.FailedItems),
	)
	return result, nil
}

// SweepEscalations raises the urgency of every pending request past its threshold.
func (s *EscalationSweeper) SweepEscalations(ctx context.Context) (*models.BulkOperationResult, error) {
	candidates, err := s.requests.EscalationCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list escalation candidates: %w", err)
	}

	op := models.SystemOp()
	ids := make([]string, len(candidates))
	items := make([]sweepItem, len(candidates))
	for i, id := range candidates {
		requestID := id
		ids[i] = requestID.String()
		items[i] = func(ctx context.Context) (string, string, error) {
			steps, err := s.requests.Escalate(ctx, op, requestID)
			if err != nil {
				return "", "", err
			}
			if steps == 0 {
				return models.SweepItemSkipped, "", nil
			}
			return models.SweepItemSucceeded, fmt.Sprintf("escalated %d level(s)", steps), nil
		}
	}
	return s.run(ctx, SweepEscalation, ids, items)
}

// SweepDeliveryAlerts raises an alert for each allocation stuck in Dispatched or In_Transit.
func (s *EscalationSweeper) SweepDeliveryAlerts(ctx context.Context) (*models.BulkOperationResult, error) {
	now := s.now()
	thresholds := []struct {
		status models.DeliveryStatus
		after  time.Duration
	}{
		{models.DeliveryDispatched, s.cfg.DispatchedAlertAfter},
		{models.DeliveryInTransit, s.cfg.InTransitAlertAfter},
	}

	var stale []*models.Allocation
	for _, t := range thresholds {
		rows, err := s.allocations.ListStaleDeliveries(ctx, t.status, now.Add(-t.after))
		if err != nil {
			return nil, fmt.Errorf("list stale %s allocations: %w", t.status, err)
		}
		stale = append(stale, rows...)
	}

	ids := make([]string, len(stale))
	items := make([]sweepItem, len(stale))
	for i, a := range stale {
		allocation := a
		ids[i] = allocation.ID.String()
		items[i] = func(ctx context.Context) (string, string, error) {
			alert := &models.DeliveryAlert{
				AllocationID:   allocation.ID,
				RequestID:      allocation.RequestID,
				DeliveryStatus: allocation.DeliveryStatus,
				Since:          allocation.StatusChangedAt,
				Age:            now.Sub(allocation.StatusChangedAt),
				RaisedAt:       now,
			}
			return s.raiseAlert(ctx, alert)
		}
	}
	return s.run(ctx, SweepDeliveryAlerts, ids, items)
}

func (s *EscalationSweeper) raiseAlert(ctx context.Context, alert *models.DeliveryAlert) (string, string, error) {
	if s.cache != nil {
		fresh, err := s.cache.PublishDeliveryAlert(ctx, alert, s.cfg.AlertDedupe)
		if err != nil {
			return "", "", fmt.Errorf("publish delivery alert: %w", err)
		}
		if !fresh {
			return models.SweepItemSkipped, "already alerted", nil
		}
	}
	s.logger.Warn("delivery overdue",
		zap.String("allocation_id", alert.AllocationID.String()),
		zap.String("request_id", alert.RequestID.String()),
		zap.String("delivery_status", string(alert.DeliveryStatus)),
		zap.Duration("age", alert.Age),
	)
	return models.SweepItemSucceeded, fmt.Sprintf("%s for %s", alert.DeliveryStatus, alert.Age.Round(time.Minute)), nil
}

// SweepOrphanedVolunteers releases volunteers left attached to disbanded teams.
func (s *EscalationSweeper) SweepOrphanedVolunteers(ctx context.Context) (*models.BulkOperationResult, error) {
	orphans, err := s.disasters.ListOrphanedVolunteers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list orphaned volunteers: %w", err)
	}

	op := models.SystemOp()
	ids := make([]string, len(orphans))
	items := make([]sweepItem, len(orphans))
	for i, v := range orphans {
		volunteerID := v.ID
		ids[i] = volunteerID.String()
		items[i] = func(ctx context.Context) (string, string, error) {
			released, err := s.disasters.ReleaseOrphanedVolunteer(ctx, op, volunteerID)
			if err != nil {
				return "", "", err
			}
			if !released {
				return models.SweepItemSkipped, "no longer orphaned", nil
			}
			return models.SweepItemSucceeded, "released", nil
		}
	}
	return s.run(ctx, SweepOrphanVolunteers, ids, items)
}

// RunAll runs every sweep once. A sweep that cannot even list its candidates
// is reported in the returned error; the other sweeps still run.
func (s *EscalationSweeper) RunAll(ctx context.Context) (map[string]*models.BulkOperationResult, error) {
	sweeps := []struct {
		name string
		fn   func(context.Context) (*models.BulkOperationResult, error)
	}{
		{SweepEscalation, s.SweepEscalations},
		{SweepDeliveryAlerts, s.SweepDeliveryAlerts},
		{SweepOrphanVolunteers, s.SweepOrphanedVolunteers},
	}

	results := make(map[string]*models.BulkOperationResult, len(sweeps))
	var firstErr error
	for _, sw := range sweeps {
		res, err := sw.fn(ctx)
		if err != nil {
			s.logger.Error("sweep failed", zap.String("sweep", sw.name), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results[sw.name] = res
	}
	return results, firstErr
}
