// Package domain contains the business types of the login service and the
// errors its operations fail with. Errors are transport-agnostic; adapters
// map them to status codes.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated indicates credentials were missing or did not match.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrValidation indicates input broke a business rule.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable indicates a required dependency is unavailable.
	ErrUnavailable = errors.New("unavailable")
)

// NotFoundError names the entity that was looked up.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with id %q not found", e.Entity, e.ID)
	}
	return e.Entity + " not found"
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError creates a not found error with context.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// UnauthenticatedError is returned for a failed login. Reason is for logs
// only; callers must not tell an unknown user apart from a wrong password.
type UnauthenticatedError struct {
	Username string
	Reason   string
}

func (e *UnauthenticatedError) Error() string {
	return fmt.Sprintf("authentication failed for %q: %s", e.Username, e.Reason)
}

func (e *UnauthenticatedError) Unwrap() error { return ErrUnauthenticated }

// NewUnauthenticatedError creates an authentication failure.
func NewUnauthenticatedError(username, reason string) error {
	return &UnauthenticatedError{Username: username, Reason: reason}
}

// ValidationError provides context for validation errors.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return "validation failed: " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a validation error with context.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// UnavailableError names the dependency that could not be reached.
type UnavailableError struct {
	Service string
	Cause   error
}

func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("service %q unavailable: %v", e.Service, e.Cause)
	}
	return fmt.Sprintf("service %q unavailable", e.Service)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *UnavailableError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrUnavailable}
	}
	return []error{ErrUnavailable, e.Cause}
}

// NewUnavailableError wraps a dependency failure.
func NewUnavailableError(service string, cause error) error {
	return &UnavailableError{Service: service, Cause: cause}
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnauthenticated checks if an error is an authentication failure.
func IsUnauthenticated(err error) bool { return errors.Is(err, ErrUnauthenticated) }

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsUnavailable checks if an error is an unavailable error.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
