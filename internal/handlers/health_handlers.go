package handlers

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"reliefops/internal/caching"
	"reliefops/internal/services"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlers handles health check and monitoring endpoints
type HealthHandlers struct {
	db        Pinger
	redisSvc  caching.CacheService
	minioSvc  services.MinioService
	bucket    string
	version   string
	startedAt time.Time
}

// NewHealthHandlers creates a new health handlers instance. Any dependency may be
// nil: a nil db means the in-memory store, nil cache and storage mean disabled.
func NewHealthHandlers(db Pinger, redisSvc caching.CacheService, minioSvc services.MinioService, bucket, version string) *HealthHandlers {
	return &HealthHandlers{
		db:        db,
		redisSvc:  redisSvc,
		minioSvc:  minioSvc,
		bucket:    bucket,
		version:   version,
		startedAt: time.Now(),
	}
}

func (h *HealthHandlers) Register(e *echo.Echo) {
	e.GET("/health", h.HealthCheck)
	e.GET("/health/ready", h.ReadinessCheck)
	e.GET("/health/live", h.LivenessCheck)
	e.GET("/health/detailed", h.DetailedHealthCheck)
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Services   map[string]string `json:"services"`
	Uptime     string            `json:"uptime"`
	Version    string            `json:"version"`
}

var errDisabled = errors.New("disabled")

type check struct {
	name string
	fn   func(ctx context.Context) error
}

func (h *HealthHandlers) checks() []check {
	return []check{
		{"database", h.checkDatabase},
		{"redis", h.checkRedis},
		{"storage", h.checkMinIO},
	}
}

// HealthCheck performs comprehensive health checks
func (h *HealthHandlers) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	health := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]string),
		Version:   h.version,
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
	}

	for _, chk := range h.checks() {
		switch err := chk.fn(ctx); {
		case errors.Is(err, errDisabled):
			health.Services[chk.name] = "disabled"
		case err != nil:
			health.Services[chk.name] = "unhealthy"
			health.Status = "degraded"
		default:
			health.Services[chk.name] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if health.Status == "degraded" {
		statusCode = http.StatusPartialContent
	}
	return c.JSON(statusCode, health)
}

func (h *HealthHandlers) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	return h.db.Ping(ctx)
}

func (h *HealthHandlers) checkRedis(ctx context.Context) error {
	if h.redisSvc == nil {
		return errDisabled
	}
	return h.redisSvc.Ping(ctx)
}

func (h *HealthHandlers) checkMinIO(ctx context.Context) error {
	if h.minioSvc == nil {
		return errDisabled
	}
	_, err := h.minioSvc.BucketExists(ctx, h.bucket)
	return err
}

// ReadinessCheck determines if the application is ready to serve traffic.
// Only the database is critical; cache and storage degrade gracefully.
func (h *HealthHandlers) ReadinessCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.checkDatabase(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":  "not_ready",
			"message": "Database unavailable",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ready",
		"message": "All systems operational",
	})
}

// LivenessCheck determines if the application is running (basic liveness probe)
func (h *HealthHandlers) LivenessCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// DetailedHealthCheck provides detailed health information
func (h *HealthHandlers) DetailedHealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]interface{})
	overall := "healthy"
	for _, chk := range h.checks() {
		started := time.Now()
		err := chk.fn(ctx)
		result := map[string]interface{}{
			"status":     "healthy",
			"latency_ms": time.Since(started).Milliseconds(),
		}
		switch {
		case errors.Is(err, errDisabled):
			result["status"] = "disabled"
		case err != nil:
			result["status"] = "unhealthy"
			result["message"] = err.Error()
			overall = "degraded"
		}
		checks[chk.name] = result
	}

	statusCode := http.StatusOK
	if overall == "degraded" {
		statusCode = http.StatusPartialContent
	}
	return c.JSON(statusCode, map[string]interface{}{
		"overall_status": overall,
		"checks":         checks,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"version":        h.version,
		"goroutines":     runtime.NumGoroutine(),
	})
}
