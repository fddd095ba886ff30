package entity

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain layer operations.
var (
	// ErrNotFound indicates that a requested entity was not found
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrValidationFailed indicates that validation checks have failed
	ErrValidationFailed = errors.New("validation failed")

	// ErrInvalidTransition indicates a job state change outside the lifecycle
	ErrInvalidTransition = errors.New("invalid job transition")

	// ErrJobActive indicates that the source already owns a non-terminal job
	ErrJobActive = errors.New("source already has an active job")

	// ErrSnapshotConflict indicates that the current snapshot moved underneath a commit
	ErrSnapshotConflict = errors.New("current snapshot changed concurrently")
)

// ValidationError represents a validation error with detailed field information.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns a formatted error message for the validation error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrValidationFailed) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// FailureKind marks bad source definitions as permanent failures.
func (e *ValidationError) FailureKind() FailureKind {
	return FailurePermanent
}
