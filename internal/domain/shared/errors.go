// Package shared contains the error taxonomy and storage contract used across
// all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// ErrNotFound is returned when an operation references an unknown entity.
	ErrNotFound = errors.New("entity not found")

	// ErrValidation is returned when input is rejected before any mutation.
	ErrValidation = errors.New("validation error")

	// ErrEmptyValue is a validation error for blank required values.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrPersistence is returned when the storage adapter failed to read or write.
	ErrPersistence = errors.New("persistence error")

	// ErrCorruptRecord is a persistence error for stored data that cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrClosed is returned when an operation is attempted after teardown.
	ErrClosed = errors.New("closed")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "participant", "eventlog"
	Op      string // Operation that failed, e.g., "Add", "Reset"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Participant domain errors
var (
	ErrParticipantNotFound = NewDomainError("participant", "Find", ErrNotFound, "participant not found")
	ErrEmptyName           = NewDomainError("participant", "Validate", ErrEmptyValue, "name cannot be empty")
	ErrWrongSecret         = NewDomainError("participant", "Join", ErrValidation, "shared secret does not match")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrEmptyValue)
}

// IsPersistence checks if the error came from the storage adapter.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence) || errors.Is(err, ErrCorruptRecord)
}
