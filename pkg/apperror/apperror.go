// Package apperror defines the domain error taxonomy returned by chat operations.
// None of these errors are transient; callers surface them as-is and never retry.
package apperror

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or cross-constraint-violating input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NotFoundError reports a referenced entity id that does not resolve.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s %s", e.Entity, e.ID)
}

// ConflictError reports a uniqueness violation.
type ConflictError struct {
	Field   string
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s: %s", e.Field, e.Message)
}

// TenantMismatchError reports entity references that span organizations.
type TenantMismatchError struct {
	Entity  string
	Message string
}

func (e *TenantMismatchError) Error() string {
	return fmt.Sprintf("tenant mismatch: %s: %s", e.Entity, e.Message)
}

// Validation returns a *ValidationError for field.
func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a *NotFoundError.
func NotFound(entity string, id fmt.Stringer) error {
	return &NotFoundError{Entity: entity, ID: id.String()}
}

// Conflict returns a *ConflictError for field.
func Conflict(field, format string, args ...interface{}) error {
	return &ConflictError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TenantMismatch returns a *TenantMismatchError.
func TenantMismatch(entity, format string, args ...interface{}) error {
	return &TenantMismatchError{Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err wraps a *ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConflict reports whether err wraps a *ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsTenantMismatch reports whether err wraps a *TenantMismatchError.
func IsTenantMismatch(err error) bool {
	var target *TenantMismatchError
	return errors.As(err, &target)
}

// IsDomain reports whether err is one of the domain error kinds.
func IsDomain(err error) bool {
	return IsValidation(err) || IsNotFound(err) || IsConflict(err) || IsTenantMismatch(err)
}
