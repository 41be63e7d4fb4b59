package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrLockTimeout is returned when a row or key lock is not granted within the bounded wait.
var ErrLockTimeout = errors.New("lock wait timeout exceeded")

// ErrForbidden is returned when the actor lacks the role an operation needs.
var ErrForbidden = errors.New("operation not permitted for actor")

// ValidationError reports bad input shape. It is raised before any lock is taken.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError is a ValidationError raised by a status machine.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %s to %s", e.Entity, e.From, e.To)
}

// Shortfall names one inventory line that could not cover its share.
type Shortfall struct {
	LineID     uuid.UUID `json:"line_id"`
	ResourceID uuid.UUID `json:"resource_id"`
	Warehouse  string    `json:"warehouse"`
	Requested  int       `json:"requested"`
	Available  int       `json:"available"`
	Missing    int       `json:"missing"`
}

// InsufficientStockError lists every line short of stock in one operation.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s short by %d (requested %d, available %d)",
			s.Warehouse, s.Missing, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// OverAllocationError reports that a request's allocation cap would be exceeded.
type OverAllocationError struct {
	RequestID        uuid.UUID
	Requested        int
	AlreadyAllocated int
	Attempted        int
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("over-allocation on request %s: %d already allocated + %d attempted exceeds %d requested",
		e.RequestID, e.AlreadyAllocated, e.Attempted, e.Requested)
}

// NotFoundError reports a missing referenced entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NewNotFoundError builds a NotFoundError for entity.
func NewNotFoundError(entity string, id any) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

// InvariantViolationError should never surface in normal operation.
// The failing operation is rolled back and a critical audit entry is recorded.
type InvariantViolationError struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant %q violated: %s", e.Invariant, e.Detail)
}

// IsValidation reports whether err is a ValidationError or InvalidTransitionError.
func IsValidation(err error) bool {
	var ve *ValidationError
	var te *InvalidTransitionError
	return errors.As(err, &ve) || errors.As(err, &te)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvariantViolation reports whether err wraps an InvariantViolationError.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolationError
	return errors.As(err, &iv)
}
