// Package domain defines the core types, interfaces, and errors shared by
// every stage of the lakehouse pipeline.
package domain

import "fmt"

// SchemaError indicates an unrecoverable schema problem: an unknown table or
// field, or a type mismatch that coercion cannot resolve. Fatal for the
// enclosing stage.
type SchemaError struct {
	Message string
}

func (e *SchemaError) Error() string { return e.Message }

// UnknownTableError indicates that no schema definition exists for a table.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown table %q: no schema registered", e.Table)
}

// ValidationFailureError indicates a fail-severity quality rule tripped.
// Fatal for the affected partition; prior committed output is untouched.
type ValidationFailureError struct {
	Table   string
	RuleIDs []string
}

func (e *ValidationFailureError) Error() string {
	return fmt.Sprintf("quality validation failed for %q: rules %v", e.Table, e.RuleIDs)
}

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input on the control-plane surface.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., a run already in flight).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrSchema creates a SchemaError with a formatted message.
func ErrSchema(format string, args ...interface{}) *SchemaError {
	return &SchemaError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}
