// Package app assembles the engine from configuration. The HTTP server and
// the operator CLI share it so both run against identical wiring.
package app

import (
	"context"
	"fmt"

	"reliefops/internal/caching"
	"reliefops/internal/config"
	"reliefops/internal/events"
	"reliefops/internal/jobs"
	"reliefops/internal/repositories"
	"reliefops/internal/services"
	"reliefops/pkg/database"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger

	Pool  *pgxpool.Pool // nil with the memory driver
	Scope repositories.TransactionScope
	Cache caching.CacheService // nil when redis is disabled
	Minio services.MinioService // nil when object storage is disabled

	Dispatcher  *events.Dispatcher
	Audit       services.AuditLogsService
	Ledger      *services.Ledger
	Inventory   services.InventoryService
	Requests    services.RequestService
	Allocations services.AllocationService
	Donations   services.DonationService
	Disasters   services.DisasterService
	Archive     services.AuditArchiveService // nil when object storage is disabled

	Sweeper     *jobs.EscalationSweeper
	StockAlerts *jobs.StockAlertJob
}

// New connects the configured backends and wires every service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	switch cfg.Database.Driver {
	case "postgres":
		pool, err := database.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns, logger)
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			logger.Info("database schema applied")
		}
		a.Scope = repositories.NewPostgresScope(pool, cfg.Locking.WaitTimeout, logger)
	case "memory":
		logger.Warn("using in-memory store; state is lost on exit")
		a.Scope = repositories.NewMemoryStore(cfg.Locking.WaitTimeout)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	if cfg.Redis.Enabled {
		a.Cache = caching.NewRedisCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	}

	if cfg.Minio.Enabled {
		minioSvc, err := services.NewMinioService(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize minio: %w", err)
		}
		a.Minio = minioSvc
	}

	a.wireServices()
	return a, nil
}

func (a *App) wireServices() {
	cfg, logger := a.Config, a.Logger
	now := services.SystemClock

	a.Dispatcher = events.NewDispatcher(logger)
	a.Audit = services.NewAuditLogsService(a.Scope, logger, now)
	a.Ledger = services.NewLedger(a.Audit, a.Cache, logger, now)
	a.Inventory = services.NewInventoryService(a.Scope, a.Ledger, a.Cache, logger, now)

	policy := services.EscalationPolicy{
		LowAfter:    cfg.Escalation.LowAfter,
		MediumAfter: cfg.Escalation.MediumAfter,
		HighAfter:   cfg.Escalation.HighAfter,
	}
	a.Requests = services.NewRequestService(a.Scope, a.Audit, policy, logger, now)
	a.Allocations = services.NewAllocationService(a.Scope, a.Ledger, a.Audit, a.Dispatcher, logger, now)
	a.Donations = services.NewDonationService(a.Scope, a.Audit, a.Dispatcher, logger, now)
	a.Disasters = services.NewDisasterService(a.Scope, a.Audit, a.Dispatcher, logger, now)

	services.NewCascadeRules(a.Dispatcher, a.Ledger, a.Requests, a.Audit, cfg.Donations.DefaultWarehouse, logger).Register()

	if a.Minio != nil {
		a.Archive = services.NewAuditArchiveService(a.Scope, a.Minio, cfg.Minio.Bucket, logger, now)
	}

	sweepCfg := jobs.DefaultEscalationConfig()
	sweepCfg.DispatchedAlertAfter = cfg.Escalation.DispatchedAlertAfter
	sweepCfg.InTransitAlertAfter = cfg.Escalation.InTransitAlertAfter
	sweepCfg.Workers = cfg.Escalation.Workers
	a.Sweeper = jobs.NewEscalationSweeper(a.Requests, a.Allocations, a.Disasters, a.Cache, sweepCfg, logger, now)
	a.StockAlerts = jobs.NewStockAlertJob(a.Inventory, logger)
}

// Close releases the database pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database disconnected")
	}
}
