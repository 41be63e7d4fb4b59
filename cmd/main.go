package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/random"
	"go.uber.org/zap"

	"reliefops/internal/app"
	"reliefops/internal/config"
	"reliefops/internal/handlers"
	"reliefops/internal/jobs/background"
	"reliefops/internal/logger"
	"reliefops/internal/middleware"
	"reliefops/internal/models"
)

const version = "1.0.0"

// archiveActor attributes scheduled archival. Enabling audit.archive_enabled is the authorization.
const archiveActor = "audit-archiver"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize engine", zap.Error(err))
	}
	defer a.Close()

	if a.Minio != nil {
		if err := a.Minio.EnsureBucketExists(ctx, cfg.Minio.Bucket); err != nil {
			zlog.Warn("audit archive bucket unavailable", zap.String("bucket", cfg.Minio.Bucket), zap.Error(err))
		}
	}

	// JWT configuration
	jwtSecret := cfg.JWT.Secret
	if jwtSecret == "" && cfg.JWT.JWKSURL == "" {
		if cfg.IsProduction() {
			zlog.Fatal("jwt.secret or jwt.jwks_url is required in production")
		}
		jwtSecret = random.String(32)
		zlog.Warn("using generated JWT secret for development", zap.String("secret", jwtSecret))
	}
	auth, err := middleware.NewJWTAuth(jwtSecret, cfg.JWT.JWKSURL, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize JWT auth", zap.Error(err))
	}
	defer auth.Close()

	scheduler, err := background.NewJobScheduler(a.Sweeper, a.StockAlerts, background.Intervals{
		Escalation:      cfg.Escalation.Interval,
		DeliveryCheck:   cfg.Escalation.DeliveryCheckInterval,
		OrphanSweep:     cfg.Escalation.OrphanSweepInterval,
		StockAlertCheck: cfg.Escalation.StockAlertInterval,
	}, zlog)
	if err != nil {
		zlog.Fatal("failed to create job scheduler", zap.Error(err))
	}
	if cfg.Audit.ArchiveEnabled && a.Archive != nil {
		archiveOp := models.OpContext{Actor: archiveActor, Role: models.RoleAdmin}
		err := scheduler.AddJob("audit-archive", 24*time.Hour, func() {
			before := time.Now().Add(-cfg.Audit.ArchiveAfter)
			if _, err := a.Archive.Archive(context.Background(), archiveOp, before); err != nil {
				zlog.Error("scheduled audit archive failed", zap.Error(err))
			}
		})
		if err != nil {
			zlog.Fatal("failed to schedule audit archive", zap.Error(err))
		}
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			zlog.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints (no auth required)
	var db handlers.Pinger
	if a.Pool != nil {
		db = a.Pool
	}
	handlers.NewHealthHandlers(db, a.Cache, a.Minio, cfg.Minio.Bucket, version).Register(e)

	versionMiddleware := middleware.NewVersionMiddleware()
	e.GET("/versions", versionMiddleware.VersionsHandler)

	// API routes (require a bearer token naming the actor)
	v1 := versionMiddleware.VersionRoute(e, "v1")
	v1.Use(auth.Middleware(), middleware.RequireActor())

	retryAfter := cfg.Locking.WaitTimeout
	handlers.NewRequestHandlers(a.Requests, retryAfter).Register(v1)
	handlers.NewAllocationHandlers(a.Allocations, a.Cache, retryAfter).Register(v1)
	handlers.NewInventoryHandlers(a.Inventory, retryAfter).Register(v1)
	handlers.NewDonationHandlers(a.Donations, retryAfter).Register(v1)
	handlers.NewDisasterHandlers(a.Disasters, retryAfter, nil).Register(v1)
	handlers.NewAuditLogsHandlers(a.Audit, a.Archive, nil).Register(v1)

	scheduler.Start()

	addr := fmt.Sprintf(":%d", cfg.App.Port)
	go func() {
		zlog.Info("reliefops server starting",
			zap.String("version", version),
			zap.String("addr", addr),
			zap.String("env", cfg.App.Env),
			zap.String("store", cfg.Database.Driver),
		)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server stopped unexpectedly", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http server shutdown failed", zap.Error(err))
	}
	if err := scheduler.Stop(); err != nil {
		zlog.Error("job scheduler shutdown failed", zap.Error(err))
	}
}
