// Package domain holds the shared error taxonomy used across the booking
// engine. Storage adapters translate backend-specific failures into these
// types at the boundary; everything above matches on them with errors.As.
package domain

import "fmt"

// NotFoundError indicates an entity required by an operation does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFoundError creates a NotFoundError for the given entity and identifier.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ValidationError indicates malformed or missing required fields, caught
// before any write is attempted.
type ValidationError struct {
	Message string
}

// NewValidationError creates a ValidationError with the given message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message
}

// ConflictError indicates a unique-constraint violation. The migration
// pipeline matches on it to degrade an insert into an update.
type ConflictError struct {
	Message string
}

// NewConflictError creates a ConflictError with the given message.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Message
}

// InvalidStateError indicates a disallowed booking status transition.
type InvalidStateError struct {
	From string
	To   string
}

// NewInvalidStateError creates an InvalidStateError for the given transition.
func NewInvalidStateError(from, to string) *InvalidStateError {
	return &InvalidStateError{From: from, To: to}
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// TransientStorageError wraps an I/O failure with no further classification.
type TransientStorageError struct {
	Err error
}

// NewTransientStorageError wraps err as a TransientStorageError.
func NewTransientStorageError(err error) *TransientStorageError {
	return &TransientStorageError{Err: err}
}

func (e *TransientStorageError) Error() string {
	return "transient storage error: " + e.Err.Error()
}

func (e *TransientStorageError) Unwrap() error {
	return e.Err
}
