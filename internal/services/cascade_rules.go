package services

import (
	"context"
	"fmt"

	"reliefops/internal/events"
	"reliefops/internal/models"
	"reliefops/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultDonationWarehouse receives material donations unless configured otherwise.
const DefaultDonationWarehouse = "Central Warehouse"

// CascadeRules holds the reactions that derive secondary state from a primary
// mutation. Every rule runs inside the transaction of the triggering operation.
type CascadeRules struct {
	dispatcher        *events.Dispatcher
	ledger            *Ledger
	requests          RequestService
	audit             AuditLogsService
	logger            *zap.Logger
	donationWarehouse string
}

func NewCascadeRules(dispatcher *events.Dispatcher, ledger *Ledger, requests RequestService, audit AuditLogsService, donationWarehouse string, logger *zap.Logger) *CascadeRules {
	if donationWarehouse == "" {
		donationWarehouse = DefaultDonationWarehouse
	}
	return &CascadeRules{
		dispatcher:        dispatcher,
		ledger:            ledger,
		requests:          requests,
		audit:             audit,
		logger:            logger,
		donationWarehouse: donationWarehouse,
	}
}

// Register installs every rule on the dispatcher.
func (c *CascadeRules) Register() {
	c.dispatcher.Register(models.EventAllocationCreated, c.onAllocationCreated)
	c.dispatcher.Register(models.EventDeliveryStatusChanged, c.onDeliveryStatusChanged)
	c.dispatcher.Register(models.EventAllocationCancelled, c.onAllocationCancelled)
	c.dispatcher.Register(models.EventDonationRecorded, c.onDonationRecorded)
	c.dispatcher.Register(models.EventDisasterClosed, c.onDisasterClosed)
	c.dispatcher.Register(models.EventTeamDisbanded, c.onTeamDisbanded)
}

// The stock was already taken by the reservation; only the request moves.
func (c *CascadeRules) onAllocationCreated(ctx context.Context, repos repositories.Repos, evt models.Event) error {
	e := evt.(models.AllocationCreated)
	_, err := c.requests.Rederive(ctx, repos, e.Op, e.Allocation.RequestID)
	return err
}

func (c *CascadeRules) onDeliveryStatusChanged(ctx context.Context, repos repositories.Repos, evt models.Event) error {
	e := evt.(models.DeliveryStatusChanged)
	if e.Allocation.DeliveryStatus != models.DeliveryDelivered {
		return nil
	}
	_, err := c.requests.Rederive(ctx, repos, e.Op, e.Allocation.RequestID)
	return err
}

func (c *CascadeRules) onAllocationCancelled(ctx context.Context, repos repositories.Repos, evt models.Event) error {
	e := evt.(models.AllocationCancelled)
	token := models.ReservationToken{
		ID:              e.Allocation.ReservationID,
		InventoryLineID: e.Allocation.InventoryLineID,
		Quantity:        e.Allocation.QuantityAllocated,
	}
	released, err := c.ledger.ReleaseForAllocation(ctx, repos, e.Op, token, e.Allocation.ID)
	if err != nil {
		return fmt.Errorf("release reservation %s: %w", token.ID, err)
	}
	if !released {
		c.logger.Warn("cancelled allocation had no live reservation",
			zap.String("allocation_id", e.Allocation.ID.String()),
			zap.String("reservation_id", token.ID.String()),
		)
	}
	_, err = c.requests.Rederive(ctx, repos, e.Op, e.Allocation.RequestID)
	return err
}

// onDonationRecorded numbers the receipt within the donation year and credits
// material gifts to the donation warehouse.
func (c *CascadeRules) onDonationRecorded(ctx context.Context, repos repositories.Repos, evt models.Event) error {
	e := evt.(models.DonationRecorded)
	d := e.Donation

	year := d.DonationDate.Year()
	seq, err := repos.Donations().NextReceiptSeq(ctx, year)
	if err != nil {
		return fmt.Errorf("next receipt sequence for %d: %w", year, err)
	}
	d.ReceiptYear = year
	d.ReceiptSeq = seq
	d.ReceiptNumber = models.FormatReceiptNumber(year, seq)

	if d.Type != models.DonationMaterial {
		return nil
	}
	if _, err := repos.Resources().GetByID(ctx, *d.ResourceID); err != nil {
		return err
	}
	_, err = c.ledger.Credit(ctx, repos, e.Op, *d.ResourceID, c.donationWarehouse, *d.Quantity)
	return err
}

// onDisasterClosed disbands every team of the disaster. Volunteers still hanging
// off teams that were disbanded earlier are released here as well.
func (c *CascadeRules) onDisasterClosed(ctx context.Context, repos repositories.Repos, evt models.Event) error {
	e := evt.(models.DisasterClosed)
	teams, err := repos.Teams().LockByDisaster(ctx, e.DisasterID)
	if err != nil {
		return err
	}

	var stale []uuid.UUID
	for _, team := range teams {
		if team.Status == models.TeamDisbanded {
			stale = append(stale, team.ID)
			continue
		}
		before := team.Snapshot()
		team.Status = models.TeamDisbanded
		if err := repos.Teams().Update(ctx, team); err != nil {
			return err
		}
		if err := c.audit.LogEntityUpdate(ctx, repos, e.Op, models.EntityReliefTeam, team.ID.String(), before, team.Snapshot()); err != nil {
			return err
		}
		e.Result.TeamsDisbanded++
		if err := c.dispatcher.Dispatch(ctx, repos, models.TeamDisbandedEvent{Team: team, Result: e.Result, Op: e.Op}); err != nil {
			return err
		}
	}

	if len(stale) == 0 {
		return nil
	}
	released, err := c.releaseVolunteers(ctx, repos, e.Op, stale)
	e.Result.VolunteersReleased += released
	return err
}

func (c *CascadeRules) onTeamDisbanded(ctx context.Context, repos repositories.Repos, evt models.Event) error {
	e := evt.(models.TeamDisbandedEvent)
	released, err := c.releaseVolunteers(ctx, repos, e.Op, []uuid.UUID{e.Team.ID})
	if e.Result != nil {
		e.Result.VolunteersReleased += released
	}
	return err
}

// releaseVolunteers detaches every volunteer of teamIDs and marks them Available.
func (c *CascadeRules) releaseVolunteers(ctx context.Context, repos repositories.Repos, op models.OpContext, teamIDs []uuid.UUID) (int, error) {
	volunteers, err := repos.Volunteers().LockByTeams(ctx, teamIDs)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, v := range volunteers {
		if err := releaseVolunteer(ctx, repos, c.audit, op, v); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// releaseVolunteer detaches a locked volunteer from its team.
func releaseVolunteer(ctx context.Context, repos repositories.Repos, audit AuditLogsService, op models.OpContext, v *models.Volunteer) error {
	before := v.Snapshot()
	v.TeamID = nil
	v.Availability = models.VolunteerAvailable
	if err := repos.Volunteers().Update(ctx, v); err != nil {
		return err
	}
	return audit.LogEntityUpdate(ctx, repos, op, models.EntityVolunteer, v.ID.String(), before, v.Snapshot())
}
