package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"
	"reliefops/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EscalationPolicy sets how long a pending request may sit at each urgency
// level, measured from its request date, before it is raised one level.
type EscalationPolicy struct {
	LowAfter    time.Duration
	MediumAfter time.Duration
	HighAfter   time.Duration
}

// DefaultEscalationPolicy escalates after 3, 5 and 7 days.
func DefaultEscalationPolicy() EscalationPolicy {
	return EscalationPolicy{LowAfter: 72 * time.Hour, MediumAfter: 120 * time.Hour, HighAfter: 168 * time.Hour}
}

// Threshold returns the age at which a request at urgency u moves up.
func (p EscalationPolicy) Threshold(u models.Urgency) (time.Duration, bool) {
	switch u {
	case models.UrgencyLow:
		return p.LowAfter, true
	case models.UrgencyMedium:
		return p.MediumAfter, true
	case models.UrgencyHigh:
		return p.HighAfter, true
	}
	return 0, false
}

// Earliest is the smallest threshold, used to pre-filter candidates.
func (p EscalationPolicy) Earliest() time.Duration {
	earliest := p.LowAfter
	for _, d := range []time.Duration{p.MediumAfter, p.HighAfter} {
		if d < earliest {
			earliest = d
		}
	}
	return earliest
}

type RequestService interface {
	SubmitRequest(ctx context.Context, op models.OpContext, input models.SubmitRequestInput) (*models.Request, error)
	GetRequest(ctx context.Context, id uuid.UUID) (*models.RequestView, error)

	// Human decisions, valid only on pending requests.
	Approve(ctx context.Context, op models.OpContext, id uuid.UUID) (*models.Request, error)
	Reject(ctx context.Context, op models.OpContext, id uuid.UUID, reason string) (*models.Request, error)
	// Override sets any status, including leaving a terminal one. Admin only.
	Override(ctx context.Context, op models.OpContext, id uuid.UUID, status models.RequestStatus, reason string) (*models.Request, error)

	// Rederive recomputes status from allocation totals inside the caller's transaction.
	Rederive(ctx context.Context, repos repositories.Repos, op models.OpContext, id uuid.UUID) (*models.Request, error)

	// EscalationCandidates lists pending requests old enough to escalate.
	EscalationCandidates(ctx context.Context) ([]uuid.UUID, error)
	// Escalate raises one request's urgency in its own transaction, one audited step
	// per threshold crossed. It returns the number of steps taken.
	Escalate(ctx context.Context, op models.OpContext, id uuid.UUID) (int, error)
}

type requestService struct {
	scope  repositories.TransactionScope
	audit  AuditLogsService
	policy EscalationPolicy
	logger *zap.Logger
	now    Clock
}

func NewRequestService(scope repositories.TransactionScope, audit AuditLogsService, policy EscalationPolicy, logger *zap.Logger, now Clock) RequestService {
	if now == nil {
		now = SystemClock
	}
	return &requestService{scope: scope, audit: audit, policy: policy, logger: logger, now: now}
}

func (s *requestService) SubmitRequest(ctx context.Context, op models.OpContext, input models.SubmitRequestInput) (*models.Request, error) {
	if err := common.ValidateStruct(input); err != nil {
		return nil, err
	}
	req := &models.Request{
		ID:                uuid.New(),
		AreaID:            input.AreaID,
		ResourceID:        input.ResourceID,
		QuantityRequested: input.Quantity,
		Urgency:           input.Urgency,
		Status:            models.RequestPending,
		RequestDate:       s.now(),
		Remarks:           input.Remarks,
	}
	err := s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		if _, err := repos.Resources().GetByID(ctx, input.ResourceID); err != nil {
			return err
		}
		if err := repos.Requests().Create(ctx, req); err != nil {
			return err
		}
		return s.audit.LogEntityCreate(ctx, repos, op, models.EntityRequest, req.ID.String(), req.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *requestService) GetRequest(ctx context.Context, id uuid.UUID) (*models.RequestView, error) {
	var view *models.RequestView
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		req, err := repos.Requests().GetByID(ctx, id)
		if err != nil {
			return err
		}
		totals, err := repos.Allocations().TotalsForRequest(ctx, id)
		if err != nil {
			return err
		}
		view = &models.RequestView{Request: req, Totals: totals}
		return nil
	})
	return view, err
}

func (s *requestService) Approve(ctx context.Context, op models.OpContext, id uuid.UUID) (*models.Request, error) {
	return s.decide(ctx, op, id, models.RequestApproved, "")
}

func (s *requestService) Reject(ctx context.Context, op models.OpContext, id uuid.UUID, reason string) (*models.Request, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, common.NewValidationError("reason", "is required to reject a request")
	}
	return s.decide(ctx, op, id, models.RequestRejected, reason)
}

func (s *requestService) decide(ctx context.Context, op models.OpContext, id uuid.UUID, to models.RequestStatus, reason string) (*models.Request, error) {
	var req *models.Request
	err := s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		req, err = repos.Requests().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != models.RequestPending || !models.CanTransition(req.Status, to) {
			return &common.InvalidTransitionError{Entity: models.EntityRequest, From: string(req.Status), To: string(to)}
		}
		before := req.Snapshot()
		req.Status = to
		if reason != "" {
			req.Remarks = &reason
		}
		if err := repos.Requests().Update(ctx, req); err != nil {
			return err
		}
		return s.audit.LogEntityUpdate(ctx, repos, op, models.EntityRequest, req.ID.String(), before, req.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *requestService) Override(ctx context.Context, op models.OpContext, id uuid.UUID, status models.RequestStatus, reason string) (*models.Request, error) {
	if !op.IsAdmin() {
		return nil, common.ErrForbidden
	}
	if !status.Valid() {
		return nil, common.NewValidationError("status", "unknown request status %q", status)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, common.NewValidationError("reason", "is required for an override")
	}

	var req *models.Request
	err := s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		req, err = repos.Requests().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status == status {
			return nil
		}
		if status == models.RequestRejected {
			totals, err := repos.Allocations().TotalsForRequest(ctx, id)
			if err != nil {
				return err
			}
			if totals.Allocated > 0 {
				return common.NewValidationError("status", "cannot reject a request with %d units allocated", totals.Allocated)
			}
		}
		before := req.Snapshot()
		req.Status = status
		if err := repos.Requests().Update(ctx, req); err != nil {
			return err
		}
		after := req.Snapshot()
		after["override_reason"] = reason
		return s.audit.LogEntityUpdate(ctx, repos, op, models.EntityRequest, req.ID.String(), before, after)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("request status overridden",
		zap.String("request_id", id.String()),
		zap.String("status", string(status)),
		zap.String("actor", op.Actor),
	)
	return req, nil
}

// Rederive moves the request to the status its delivered and reserved totals imply.
// It writes and audits only when the status actually changes.
func (s *requestService) Rederive(ctx context.Context, repos repositories.Repos, op models.OpContext, id uuid.UUID) (*models.Request, error) {
	req, err := repos.Requests().GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	totals, err := repos.Allocations().TotalsForRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if totals.Allocated > req.QuantityRequested {
		return nil, &common.InvariantViolationError{
			Invariant: "allocations_within_requested",
			Detail:    fmt.Sprintf("request %s: %d allocated of %d requested", id, totals.Allocated, req.QuantityRequested),
		}
	}

	next := models.DeriveStatus(req.Status, req.QuantityRequested, totals)
	if next == req.Status {
		return req, nil
	}
	before := req.Snapshot()
	req.Status = next
	if err := repos.Requests().Update(ctx, req); err != nil {
		return nil, err
	}
	if err := s.audit.LogEntityUpdate(ctx, repos, op, models.EntityRequest, req.ID.String(), before, req.Snapshot()); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *requestService) EscalationCandidates(ctx context.Context) ([]uuid.UUID, error) {
	cutoff := s.now().Add(-s.policy.Earliest())
	var ids []uuid.UUID
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		ids, err = repos.Requests().ListEscalationCandidates(ctx, cutoff)
		return err
	})
	return ids, err
}

func (s *requestService) Escalate(ctx context.Context, op models.OpContext, id uuid.UUID) (int, error) {
	steps := 0
	err := s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		steps = 0
		req, err := repos.Requests().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != models.RequestPending {
			return nil
		}
		if !req.Urgency.Valid() {
			return common.NewValidationError("urgency", "unknown urgency %q on request %s", req.Urgency, id)
		}

		age := s.now().Sub(req.RequestDate)
		for {
			threshold, ok := s.policy.Threshold(req.Urgency)
			if !ok || age < threshold {
				return nil
			}
			next, _ := req.Urgency.Next()
			before := req.Snapshot()
			from := req.Urgency
			req.Urgency = next
			if err := repos.Requests().Update(ctx, req); err != nil {
				return err
			}
			after := req.Snapshot()
			after["auto_escalation"] = fmt.Sprintf("%s -> %s after %s", from, next, threshold)
			if err := s.audit.LogEntityUpdate(ctx, repos, op, models.EntityRequest, req.ID.String(), before, after); err != nil {
				return err
			}
			steps++
		}
	})
	return steps, err
}
