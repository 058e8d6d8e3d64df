// internal/domain/shared/errors.go
package shared

import (
	"errors"
	"fmt"
)

// DomainError is the error type returned by all domain services. Handlers
// match on the sentinel values below with errors.Is and map the code to an
// HTTP status.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is makes wrapped domain errors match their sentinel by code
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if errors.As(target, &de) {
		return e.Code == de.Code
	}
	return false
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidTransition   = NewDomainError("INVALID_TRANSITION", "Status transition not allowed from current state")
	ErrInsufficientStock   = NewDomainError("INSUFFICIENT_STOCK", "Insufficient stock available")
	ErrCapacityExceeded    = NewDomainError("CAPACITY_EXCEEDED", "Warehouse capacity exceeded")
	ErrAlreadyProcessed    = NewDomainError("ALREADY_PROCESSED", "Operation has already been applied")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
)

// Wrap attaches operation detail to a sentinel while keeping errors.Is
// matching intact, e.g. Wrap(ErrInsufficientStock, "product %q: required %d, available %d", ...).
func Wrap(sentinel *DomainError, format string, args ...interface{}) error {
	return &DomainError{
		Code:    sentinel.Code,
		Message: fmt.Sprintf(format, args...),
	}
}
