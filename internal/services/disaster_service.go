package services

import (
	"context"
	"strings"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/events"
	"reliefops/internal/models"
	"reliefops/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DisasterService interface {
	CreateDisaster(ctx context.Context, op models.OpContext, disaster *models.Disaster) error
	GetDisaster(ctx context.Context, id uuid.UUID) (*models.Disaster, error)
	CreateTeam(ctx context.Context, op models.OpContext, team *models.ReliefTeam) error
	RegisterVolunteer(ctx context.Context, op models.OpContext, volunteer *models.Volunteer) error

	// CloseDisaster resolves the disaster, disbands its teams and releases their
	// volunteers in one transaction. Closing a resolved disaster reports nothing changed.
	CloseDisaster(ctx context.Context, op models.OpContext, id uuid.UUID, endDate time.Time) (*models.CloseDisasterResult, error)

	ListOrphanedVolunteers(ctx context.Context) ([]*models.Volunteer, error)
	// ReleaseOrphanedVolunteer detaches the volunteer if its team is disbanded and reports whether it did.
	ReleaseOrphanedVolunteer(ctx context.Context, op models.OpContext, id uuid.UUID) (bool, error)
}

type disasterService struct {
	scope      repositories.TransactionScope
	audit      AuditLogsService
	dispatcher *events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

func NewDisasterService(scope repositories.TransactionScope, audit AuditLogsService, dispatcher *events.Dispatcher, logger *zap.Logger, now Clock) DisasterService {
	if now == nil {
		now = SystemClock
	}
	return &disasterService{scope: scope, audit: audit, dispatcher: dispatcher, logger: logger, now: now}
}

func (s *disasterService) CreateDisaster(ctx context.Context, op models.OpContext, disaster *models.Disaster) error {
	disaster.Name = strings.TrimSpace(disaster.Name)
	if disaster.Name == "" {
		return common.NewValidationError("name", "is required")
	}
	if disaster.ID == uuid.Nil {
		disaster.ID = uuid.New()
	}
	if disaster.Status == "" {
		disaster.Status = models.DisasterActive
	}
	if disaster.StartDate.IsZero() {
		disaster.StartDate = s.now()
	}
	return s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		if err := repos.Disasters().Create(ctx, disaster); err != nil {
			return err
		}
		return s.audit.LogEntityCreate(ctx, repos, op, models.EntityDisaster, disaster.ID.String(), disaster.Snapshot())
	})
}

func (s *disasterService) GetDisaster(ctx context.Context, id uuid.UUID) (*models.Disaster, error) {
	var disaster *models.Disaster
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		disaster, err = repos.Disasters().GetByID(ctx, id)
		return err
	})
	return disaster, err
}

func (s *disasterService) CreateTeam(ctx context.Context, op models.OpContext, team *models.ReliefTeam) error {
	team.Name = strings.TrimSpace(team.Name)
	if team.Name == "" {
		return common.NewValidationError("name", "is required")
	}
	if team.ID == uuid.Nil {
		team.ID = uuid.New()
	}
	if team.Status == "" {
		team.Status = models.TeamActive
	}
	return s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		disaster, err := repos.Disasters().GetForUpdate(ctx, team.DisasterID)
		if err != nil {
			return err
		}
		if disaster.Status == models.DisasterResolved {
			return common.NewValidationError("disaster_id", "disaster %s is resolved", disaster.ID)
		}
		if err := repos.Teams().Create(ctx, team); err != nil {
			return err
		}
		return s.audit.LogEntityCreate(ctx, repos, op, models.EntityReliefTeam, team.ID.String(), team.Snapshot())
	})
}

func (s *disasterService) RegisterVolunteer(ctx context.Context, op models.OpContext, volunteer *models.Volunteer) error {
	volunteer.Name = strings.TrimSpace(volunteer.Name)
	if volunteer.Name == "" {
		return common.NewValidationError("name", "is required")
	}
	if volunteer.ID == uuid.Nil {
		volunteer.ID = uuid.New()
	}
	switch {
	case volunteer.Availability != "":
	case volunteer.TeamID != nil:
		volunteer.Availability = models.VolunteerBusy
	default:
		volunteer.Availability = models.VolunteerAvailable
	}
	return s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		if volunteer.TeamID != nil {
			team, err := repos.Teams().GetByID(ctx, *volunteer.TeamID)
			if err != nil {
				return err
			}
			if team.Status == models.TeamDisbanded {
				return common.NewValidationError("team_id", "team %s is disbanded", team.ID)
			}
		}
		if err := repos.Volunteers().Create(ctx, volunteer); err != nil {
			return err
		}
		return s.audit.LogEntityCreate(ctx, repos, op, models.EntityVolunteer, volunteer.ID.String(), volunteer.Snapshot())
	})
}

func (s *disasterService) CloseDisaster(ctx context.Context, op models.OpContext, id uuid.UUID, endDate time.Time) (*models.CloseDisasterResult, error) {
	if endDate.IsZero() {
		endDate = s.now()
	}

	var result *models.CloseDisasterResult
	err := s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		result = &models.CloseDisasterResult{}
		disaster, err := repos.Disasters().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if disaster.Status == models.DisasterResolved {
			return nil
		}
		if endDate.Before(disaster.StartDate) {
			return common.NewValidationError("end_date", "cannot precede the start date %s", disaster.StartDate.Format(time.RFC3339))
		}

		before := disaster.Snapshot()
		disaster.Status = models.DisasterResolved
		disaster.EndDate = &endDate
		if err := repos.Disasters().Update(ctx, disaster); err != nil {
			return err
		}
		if err := s.audit.LogEntityUpdate(ctx, repos, op, models.EntityDisaster, disaster.ID.String(), before, disaster.Snapshot()); err != nil {
			return err
		}
		return s.dispatcher.Dispatch(ctx, repos, models.DisasterClosed{DisasterID: disaster.ID, Result: result, Op: op})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("disaster closed",
		zap.String("disaster_id", id.String()),
		zap.Int("teams_disbanded", result.TeamsDisbanded),
		zap.Int("volunteers_released", result.VolunteersReleased),
	)
	return result, nil
}

func (s *disasterService) ListOrphanedVolunteers(ctx context.Context) ([]*models.Volunteer, error) {
	var volunteers []*models.Volunteer
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		volunteers, err = repos.Volunteers().ListOrphaned(ctx)
		return err
	})
	return volunteers, err
}

func (s *disasterService) ReleaseOrphanedVolunteer(ctx context.Context, op models.OpContext, id uuid.UUID) (bool, error) {
	released := false
	err := s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		released = false
		volunteer, err := repos.Volunteers().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if volunteer.TeamID == nil {
			return nil
		}
		team, err := repos.Teams().GetByID(ctx, *volunteer.TeamID)
		if err != nil {
			return err
		}
		if team.Status != models.TeamDisbanded {
			return nil
		}
		if err := releaseVolunteer(ctx, repos, s.audit, op, volunteer); err != nil {
			return err
		}
		released = true
		return nil
	})
	return released, err
}
