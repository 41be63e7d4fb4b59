package repositories

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"reliefops/internal/common"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// PostgreSQL error codes the engine translates
const (
	pgLockNotAvailable = "55P03"
	pgUniqueViolation  = "23505"
	pgCheckViolation   = "23514"
	pgDeadlockDetected = "40P01"
)

// TxBeginner is satisfied by *pgxpool.Pool and pgxmock.PgxPoolIface.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type postgresScope struct {
	db       TxBeginner
	lockWait time.Duration
	logger   *zap.Logger
}

// NewPostgresScope returns a scope that maps each Execute to one database
// transaction with a bounded lock_timeout.
func NewPostgresScope(db TxBeginner, lockWait time.Duration, logger *zap.Logger) TransactionScope {
	return &postgresScope{db: db, lockWait: lockWait, logger: logger}
}

func (s *postgresScope) DefaultLockWait() time.Duration {
	return s.lockWait
}

func (s *postgresScope) Execute(ctx context.Context, lockWait time.Duration, fn func(ctx context.Context, repos Repos) error) (err error) {
	if lockWait <= 0 {
		lockWait = s.lockWait
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapPgError(err, "", ""))
	}

	rollback := func() {
		if rbErr := tx.Rollback(context.Background()); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
	}
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	// SET does not accept bind parameters; the value is an integer we format ourselves.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", lockWait.Milliseconds())); err != nil {
		rollback()
		return fmt.Errorf("set lock timeout: %w", mapPgError(err, "", ""))
	}

	repos := &pgRepos{db: tx}
	if err := fn(ctx, repos); err != nil {
		rollback()
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", mapPgError(err, "", ""))
	}
	for _, hook := range repos.afterCommit {
		hook()
	}
	return nil
}

type pgRepos struct {
	db          Database
	afterCommit []func()
}

func (r *pgRepos) Resources() ResourceRepository       { return NewResourceRepo(r.db) }
func (r *pgRepos) Inventory() InventoryRepository      { return NewInventoryRepo(r.db) }
func (r *pgRepos) Reservations() ReservationRepository { return NewReservationRepo(r.db) }
func (r *pgRepos) Requests() RequestRepository         { return NewRequestRepo(r.db) }
func (r *pgRepos) Allocations() AllocationRepository   { return NewAllocationRepo(r.db) }
func (r *pgRepos) AuditLogs() AuditLogsRepository      { return NewAuditLogsRepo(r.db) }
func (r *pgRepos) Donations() DonationRepository       { return NewDonationRepo(r.db) }
func (r *pgRepos) Disasters() DisasterRepository       { return NewDisasterRepo(r.db) }
func (r *pgRepos) Teams() TeamRepository               { return NewTeamRepo(r.db) }
func (r *pgRepos) Volunteers() VolunteerRepository     { return NewVolunteerRepo(r.db) }

func (r *pgRepos) AfterCommit(fn func()) {
	r.afterCommit = append(r.afterCommit, fn)
}

// mapPgError translates driver errors into the engine taxonomy.
func mapPgError(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return common.NewNotFoundError(entity, id)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", common.ErrLockTimeout, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected:
			return fmt.Errorf("%w: %s", common.ErrLockTimeout, pgErr.Message)
		case pgUniqueViolation:
			return &common.ValidationError{Field: pgErr.ConstraintName, Message: "already exists"}
		case pgCheckViolation:
			return &common.InvariantViolationError{Invariant: pgErr.ConstraintName, Detail: pgErr.Message}
		}
	}
	return err
}

// sortedIDs returns a copy of ids without duplicates in ascending byte order,
// which matches PostgreSQL's uuid ordering.
func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

type scanner interface {
	Scan(dest ...interface{}) error
}
