package repositories

import (
	"context"
	"time"

	"reliefops/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Database is satisfied by pgx.Tx, *pgxpool.Pool and pgxmock.
type Database interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TransactionScope runs fn inside one logical transaction. Row locks taken
// through the repositories are held until fn returns and are released on
// commit, rollback or timeout alike. A non-positive lockWait uses the scope default.
type TransactionScope interface {
	Execute(ctx context.Context, lockWait time.Duration, fn func(ctx context.Context, repos Repos) error) error
	DefaultLockWait() time.Duration
}

// Repos gives access to the repositories bound to the current transaction.
type Repos interface {
	Resources() ResourceRepository
	Inventory() InventoryRepository
	Reservations() ReservationRepository
	Requests() RequestRepository
	Allocations() AllocationRepository
	AuditLogs() AuditLogsRepository
	Donations() DonationRepository
	Disasters() DisasterRepository
	Teams() TeamRepository
	Volunteers() VolunteerRepository
	// AfterCommit registers fn to run once the transaction has committed.
	AfterCommit(fn func())
}

type ResourceRepository interface {
	Create(ctx context.Context, resource *models.Resource) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Resource, error)
	List(ctx context.Context) ([]*models.Resource, error)
}

type InventoryRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.InventoryLine, error)
	GetByResourceAndWarehouse(ctx context.Context, resourceID uuid.UUID, warehouse string) (*models.InventoryLine, error)
	// LockByIDs locks lines in ascending id order and returns them keyed by id.
	LockByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.InventoryLine, error)
	// Ensure returns the locked line for (resource, warehouse), creating it empty when absent.
	Ensure(ctx context.Context, resourceID uuid.UUID, warehouse string) (line *models.InventoryLine, created bool, err error)
	UpdateQuantity(ctx context.Context, id uuid.UUID, quantity int, at time.Time) error
	List(ctx context.Context) ([]*models.InventoryLine, error)
	ListLowStock(ctx context.Context) ([]*models.LowStockLine, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, reservation *models.Reservation) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	MarkReleased(ctx context.Context, id uuid.UUID, at time.Time) error
}

type RequestRepository interface {
	Create(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Request, error)
	Update(ctx context.Context, request *models.Request) error
	// ListEscalationCandidates returns pending, non-critical requests dated at or before cutoff.
	ListEscalationCandidates(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

type AllocationRepository interface {
	Create(ctx context.Context, allocation *models.Allocation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Allocation, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Allocation, error)
	Update(ctx context.Context, allocation *models.Allocation) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]*models.Allocation, error)
	// TotalsForRequest sums active allocations, and delivered ones separately.
	TotalsForRequest(ctx context.Context, requestID uuid.UUID) (models.RequestTotals, error)
	// ListStale returns active allocations in status whose status changed before cutoff.
	ListStale(ctx context.Context, status models.DeliveryStatus, cutoff time.Time) ([]*models.Allocation, error)
}

type AuditLogsRepository interface {
	Create(ctx context.Context, entry *models.AuditEntry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*models.AuditEntry, error)
	List(ctx context.Context, filters *models.AuditLogFilters) ([]*models.AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]*models.AuditEntry, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type DonationRepository interface {
	Create(ctx context.Context, donation *models.Donation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	// NextReceiptSeq serializes receipt numbering for year until the transaction ends.
	NextReceiptSeq(ctx context.Context, year int) (int, error)
}

type DisasterRepository interface {
	Create(ctx context.Context, disaster *models.Disaster) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Disaster, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Disaster, error)
	Update(ctx context.Context, disaster *models.Disaster) error
}

type TeamRepository interface {
	Create(ctx context.Context, team *models.ReliefTeam) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ReliefTeam, error)
	// LockByDisaster locks every team of the disaster in ascending id order.
	LockByDisaster(ctx context.Context, disasterID uuid.UUID) ([]*models.ReliefTeam, error)
	Update(ctx context.Context, team *models.ReliefTeam) error
}

type VolunteerRepository interface {
	Create(ctx context.Context, volunteer *models.Volunteer) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Volunteer, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Volunteer, error)
	// LockByTeams locks volunteers attached to any of teamIDs in ascending id order.
	LockByTeams(ctx context.Context, teamIDs []uuid.UUID) ([]*models.Volunteer, error)
	Update(ctx context.Context, volunteer *models.Volunteer) error
	// ListOrphaned returns volunteers still attached to a disbanded team.
	ListOrphaned(ctx context.Context) ([]*models.Volunteer, error)
}
