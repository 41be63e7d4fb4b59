package services

import (
	"context"

	"reliefops/internal/common"
	"reliefops/internal/events"
	"reliefops/internal/models"
	"reliefops/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type DonationService interface {
	// RecordDonation stores the donation with its receipt number. Material
	// donations also credit the donation warehouse in the same transaction.
	RecordDonation(ctx context.Context, op models.OpContext, input models.DonationInput) (*models.Donation, error)
	GetDonation(ctx context.Context, id uuid.UUID) (*models.Donation, error)
}

type donationService struct {
	scope      repositories.TransactionScope
	audit      AuditLogsService
	dispatcher *events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

func NewDonationService(scope repositories.TransactionScope, audit AuditLogsService, dispatcher *events.Dispatcher, logger *zap.Logger, now Clock) DonationService {
	if now == nil {
		now = SystemClock
	}
	return &donationService{scope: scope, audit: audit, dispatcher: dispatcher, logger: logger, now: now}
}

func validateDonation(input models.DonationInput) error {
	if err := common.ValidateStruct(input); err != nil {
		return err
	}
	switch input.Type {
	case models.DonationMoney:
		if input.Amount == nil || !input.Amount.IsPositive() {
			return common.NewValidationError("amount", "must be positive for a money donation")
		}
		if input.ResourceID != nil || input.Quantity != nil {
			return common.NewValidationError("resource_id", "a money donation carries no resource")
		}
	case models.DonationMaterial:
		if input.ResourceID == nil || *input.ResourceID == uuid.Nil {
			return common.NewValidationError("resource_id", "is required for a material donation")
		}
		if input.Quantity == nil {
			return common.NewValidationError("quantity", "is required for a material donation")
		}
		if input.Amount != nil {
			return common.NewValidationError("amount", "a material donation carries no amount")
		}
	}
	return nil
}

func (s *donationService) RecordDonation(ctx context.Context, op models.OpContext, input models.DonationInput) (*models.Donation, error) {
	if err := validateDonation(input); err != nil {
		return nil, err
	}

	var donation *models.Donation
	err := s.scope.Execute(ctx, op.LockWait, func(ctx context.Context, repos repositories.Repos) error {
		if input.DisasterID != nil {
			if _, err := repos.Disasters().GetByID(ctx, *input.DisasterID); err != nil {
				return err
			}
		}
		donation = &models.Donation{
			ID:           uuid.New(),
			DonorID:      input.DonorID,
			DisasterID:   input.DisasterID,
			Type:         input.Type,
			Amount:       input.Amount,
			ResourceID:   input.ResourceID,
			Quantity:     input.Quantity,
			DonationDate: s.now(),
		}
		if err := s.dispatcher.Dispatch(ctx, repos, models.DonationRecorded{Donation: donation, Op: op}); err != nil {
			return err
		}
		if err := repos.Donations().Create(ctx, donation); err != nil {
			return err
		}
		return s.audit.LogEntityCreate(ctx, repos, op, models.EntityDonation, donation.ID.String(), donation.Snapshot())
	})
	if err != nil {
		if common.IsInvariantViolation(err) {
			s.audit.RecordCritical(ctx, op, "record_donation", err)
		}
		return nil, err
	}

	s.logger.Info("donation recorded",
		zap.String("receipt_number", donation.ReceiptNumber),
		zap.String("type", string(donation.Type)),
		zap.String("actor", op.Actor),
	)
	return donation, nil
}

func (s *donationService) GetDonation(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	var donation *models.Donation
	err := s.scope.Execute(ctx, 0, func(ctx context.Context, repos repositories.Repos) error {
		var err error
		donation, err = repos.Donations().GetByID(ctx, id)
		return err
	})
	return donation, err
}
