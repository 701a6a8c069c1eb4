// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation = errors.New("validation error")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// External service errors
	ErrExternalService = errors.New("external service error")
)

// Authorization failure reasons. The HTTP layer keys its responses on these.
const (
	ReasonNotMatched     = "not_matched"
	ReasonNotSender      = "not_sender"
	ReasonNotParticipant = "not_participant"
	ReasonNotAdmin       = "not_admin"
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "matching", "conversation", "fitness"
	Op      string // Operation that failed, e.g., "CreateMatch", "SendMessage"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Field   string // Offending input field for validation errors
	Reason  string // Which authorization invariant failed
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

// NewValidationError reports a user-correctable input problem on field.
func NewValidationError(domain, op, field, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    ErrValidation,
		Field:   field,
		Message: message,
	}
}

// NewAuthorizationError reports that the caller is not allowed to act.
// reason is one of the Reason* constants.
func NewAuthorizationError(domain, op, reason, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    ErrForbidden,
		Reason:  reason,
		Message: message,
	}
}

// NewConflictError reports a uniqueness violation.
func NewConflictError(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrAlreadyExists, message)
}

// NewNotFoundError reports an unknown entity.
func NewNotFoundError(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrNotFound, message)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is an "already exists" error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsAuthorization checks if the error is an authorization failure.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService)
}

// AuthorizationReason extracts the failed invariant from an authorization error.
// Returns "" when err is not an authorization error.
func AuthorizationReason(err error) string {
	var de *DomainError
	if errors.As(err, &de) && errors.Is(de.Kind, ErrForbidden) {
		return de.Reason
	}
	return ""
}

// ValidationField extracts the offending field from a validation error.
func ValidationField(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Field
	}
	return ""
}
