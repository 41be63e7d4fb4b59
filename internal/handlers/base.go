package handlers

import (
	"net/http"
	"time"

	"reliefops/internal/common"
	"reliefops/internal/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// lockWaitHeader lets a caller bound how long it waits on contended rows, e.g. "750ms".
const lockWaitHeader = "X-Lock-Wait"

const maxLockWait = 30 * time.Second

// opFromRequest builds the operation context from the authenticated request.
func opFromRequest(c echo.Context) (models.OpContext, error) {
	ctx := c.Request().Context()
	actor, ok := common.ActorFromContext(ctx)
	if !ok {
		return models.OpContext{}, echo.NewHTTPError(http.StatusUnauthorized, "Actor not found")
	}
	op := models.OpContext{
		Actor:      actor,
		Role:       common.RoleFromContext(ctx),
		ClientHost: common.ClientHostFromContext(ctx),
	}
	if raw := c.Request().Header.Get(lockWaitHeader); raw != "" {
		wait, err := time.ParseDuration(raw)
		if err != nil || wait <= 0 || wait > maxLockWait {
			return models.OpContext{}, common.NewValidationError("lock_wait", "must be a duration between 1ms and %s", maxLockWait)
		}
		op.LockWait = wait
	}
	return op, nil
}

func pathUUID(c echo.Context, name string) (uuid.UUID, error) {
	return common.ValidateUUID(c.Param(name), name)
}

func parseUUIDField(raw, field string) (uuid.UUID, error) {
	return common.ValidateUUID(raw, field)
}

// respondError sends err through the engine error mapping, passing HTTP errors through.
func respondError(c echo.Context, err error, retryAfter time.Duration) error {
	if he, ok := err.(*echo.HTTPError); ok {
		return he
	}
	return common.SendEngineError(c, err, retryAfter)
}
