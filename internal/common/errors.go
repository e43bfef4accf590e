package common

import (
	"errors"
	"fmt"
)

// Domain errors - use errors.Is() to check
var (
	// Generic errors
	ErrInternal   = errors.New("internal error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrBadRequest = errors.New("bad request")

	// Resource-specific errors
	ErrJobNotFound  = fmt.Errorf("job %w", ErrNotFound)
	ErrFileNotFound = fmt.Errorf("file %w", ErrNotFound)

	// Job lifecycle errors
	ErrJobTerminal        = fmt.Errorf("job already finished: %w", ErrConflict)
	ErrInvalidTransition  = fmt.Errorf("invalid status transition: %w", ErrConflict)
	ErrUnknownKind        = fmt.Errorf("unknown job kind: %w", ErrBadRequest)
	ErrSupervisorStopped  = errors.New("supervisor stopped")
	ErrWorkerNotAvailable = errors.New("worker command not configured")

	// Validation errors
	ErrValidation = errors.New("validation error")
)

// ValidationError represents a validation error with field details
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is implements errors.Is for ValidationError
func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// WrapNotFound wraps an error as a not found error with context
func WrapNotFound(resource string, err error) error {
	return fmt.Errorf("%s: %w", resource, errors.Join(ErrNotFound, err))
}

// WrapInternal wraps an error as an internal error with context
func WrapInternal(operation string, err error) error {
	return fmt.Errorf("%s: %w", operation, errors.Join(ErrInternal, err))
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if error is a conflict error
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsBadRequest checks if error is a malformed request error
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// IsValidation checks if error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
