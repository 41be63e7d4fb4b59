package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	ActorKey      contextKey = "actor"
	RoleKey       contextKey = "role"
	ClientHostKey contextKey = "client_host"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// SendValidationError sends a validation error response
func SendValidationError(c echo.Context, field, message string) error {
	details := map[string]string{
		field: message,
	}
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("VALIDATION_ERROR", "Validation failed", details))
}

// SendClientError sends a client error response
func SendClientError(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, CreateErrorResponse("CLIENT_ERROR", message, nil))
}

// SendServerError sends a server error response
func SendServerError(c echo.Context, message string) error {
	return c.JSON(http.StatusInternalServerError, CreateErrorResponse("SERVER_ERROR", message, nil))
}

// SendNotFoundError sends a not found error response
func SendNotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, CreateErrorResponse("NOT_FOUND", fmt.Sprintf("%s not found", resource), nil))
}

// SendUnauthorizedError sends an unauthorized error response
func SendUnauthorizedError(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, CreateErrorResponse("UNAUTHORIZED", "Unauthorized access", nil))
}

// SendForbiddenError sends a forbidden error response
func SendForbiddenError(c echo.Context) error {
	return c.JSON(http.StatusForbidden, CreateErrorResponse("FORBIDDEN", "Operation not permitted", nil))
}

// SendConflictError sends a conflict response for business rule failures
func SendConflictError(c echo.Context, code, message string, details map[string]string) error {
	return c.JSON(http.StatusConflict, CreateErrorResponse(code, message, details))
}

// SendLockTimeoutError asks the client to retry after contention clears
func SendLockTimeoutError(c echo.Context, retryAfter time.Duration) error {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	c.Response().Header().Set("Retry-After", fmt.Sprint(secs))
	return c.JSON(http.StatusServiceUnavailable, CreateErrorResponse("LOCK_TIMEOUT", "Resource busy, retry later", nil))
}

// SendEngineError translates an engine error into the matching HTTP envelope.
func SendEngineError(c echo.Context, err error, retryAfter time.Duration) error {
	var (
		ve  *ValidationError
		te  *InvalidTransitionError
		nf  *NotFoundError
		ise *InsufficientStockError
		oae *OverAllocationError
	)
	switch {
	case errors.As(err, &ve):
		return SendValidationError(c, ve.Field, ve.Message)
	case errors.As(err, &te):
		return SendValidationError(c, "status", te.Error())
	case errors.As(err, &nf):
		return SendNotFoundError(c, nf.Entity)
	case errors.As(err, &ise):
		details := make(map[string]string, len(ise.Shortfalls))
		for _, s := range ise.Shortfalls {
			details[s.Warehouse] = fmt.Sprintf("requested %d, available %d, missing %d", s.Requested, s.Available, s.Missing)
		}
		return SendConflictError(c, "INSUFFICIENT_STOCK", "Insufficient stock", details)
	case errors.As(err, &oae):
		return SendConflictError(c, "OVER_ALLOCATION", "Allocation exceeds requested quantity", map[string]string{
			"requested":         fmt.Sprint(oae.Requested),
			"already_allocated": fmt.Sprint(oae.AlreadyAllocated),
			"attempted":         fmt.Sprint(oae.Attempted),
		})
	case errors.Is(err, ErrLockTimeout):
		return SendLockTimeoutError(c, retryAfter)
	case errors.Is(err, ErrForbidden):
		return SendForbiddenError(c)
	}
	return SendServerError(c, "operation could not be completed")
}

// ValidateUUID validates UUID format
func ValidateUUID(idStr string, fieldName string) (uuid.UUID, error) {
	idStr = strings.TrimSpace(idStr)
	if idStr == "" {
		return uuid.Nil, NewValidationError(fieldName, "is required")
	}
	if len(idStr) != 36 {
		return uuid.Nil, NewValidationError(fieldName, "must be exactly 36 characters (including hyphens)")
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, NewValidationError(fieldName, "contains invalid characters: %v", err)
	}
	return id, nil
}

// ParseDate parses YYYY-MM-DD or RFC3339; empty input yields nil.
func ParseDate(dateStr, fieldName string) (*time.Time, error) {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, dateStr); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return nil, NewValidationError(fieldName, "must be in YYYY-MM-DD or RFC3339 format")
	}
	return &t, nil
}

// SafeString safely handles string pointer operations
func SafeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ActorFromContext extracts the authenticated actor from the request context
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(ActorKey).(string)
	return actor, ok && actor != ""
}

// RoleFromContext extracts the actor role from the request context
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(RoleKey).(string)
	return role
}

// ClientHostFromContext extracts the caller address recorded for audit entries
func ClientHostFromContext(ctx context.Context) string {
	host, _ := ctx.Value(ClientHostKey).(string)
	return host
}

// ValidatePaginationParams validates pagination parameters
func ValidatePaginationParams(limit, offset int) (int, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	if offset > 1000000 {
		return 0, 0, NewValidationError("offset", "cannot exceed 1,000,000")
	}
	return limit, offset, nil
}

// ValidateDateRange validates date ranges to prevent abuse
func ValidateDateRange(startDate, endDate time.Time) error {
	if endDate.Before(startDate) {
		return NewValidationError("end_date", "cannot be before start date")
	}
	if endDate.Sub(startDate) > time.Hour*24*365*10 {
		return NewValidationError("end_date", "date range cannot exceed 10 years")
	}
	return nil
}
