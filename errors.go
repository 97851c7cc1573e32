package rowan

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("rowan: entity not found")

	// ErrNotConnected is returned when an operation is attempted before
	// Connect or after Close.
	ErrNotConnected = errors.New("rowan: adapter is not connected")

	// ErrNoTransaction is returned when Commit or Rollback is called with
	// no transaction in progress.
	ErrNoTransaction = errors.New("rowan: no transaction in progress")
)

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the ID that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("rowan: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("rowan: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the ID that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity type.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the ID that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ConfigurationError reports an invalid entity configuration or an invalid
// request built from one: unknown dialects, unknown relations, aggregate
// functions outside the allowed set, malformed identifiers and the like.
type ConfigurationError struct {
	Component string // Part of the configuration at fault (entity, relation, ...)
	Reason    string
}

// Error returns the error string.
func (e *ConfigurationError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("rowan: invalid configuration: %s: %s", e.Component, e.Reason)
	}
	return fmt.Sprintf("rowan: invalid configuration: %s", e.Reason)
}

// NewConfigurationError returns a new ConfigurationError for the given component.
func NewConfigurationError(component, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

// IsConfiguration returns true if the error is a ConfigurationError.
func IsConfiguration(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigurationError
	return errors.As(err, &e)
}

// BindError reports a mismatch between the placeholders of a statement and
// the parameters bound to it. It is a programming error: a statement with a
// BindError is never sent to the database.
type BindError struct {
	Clause   string // Fragment that was bound
	Expected int    // Placeholders in the fragment
	Actual   int    // Parameters supplied
}

// Error returns the error string.
func (e *BindError) Error() string {
	return fmt.Sprintf("rowan: bind %q: statement wants %d parameters, got %d", e.Clause, e.Expected, e.Actual)
}

// NewBindError returns a new BindError for the given clause.
func NewBindError(clause string, expected, actual int) *BindError {
	return &BindError{Clause: clause, Expected: expected, Actual: actual}
}

// IsBind returns true if the error is a BindError.
func IsBind(err error) bool {
	if err == nil {
		return false
	}
	var e *BindError
	return errors.As(err, &e)
}

// ComputedError wraps a failure while evaluating a computed property.
type ComputedError struct {
	Property string
	Err      error
}

// Error returns the error string.
func (e *ComputedError) Error() string {
	return fmt.Sprintf("rowan: computing %q: %v", e.Property, e.Err)
}

// Unwrap returns the underlying error.
func (e *ComputedError) Unwrap() error {
	return e.Err
}

// NewComputedError returns a new ComputedError for the given property.
func NewComputedError(property string, err error) *ComputedError {
	return &ComputedError{Property: property, Err: err}
}

// IsComputed returns true if the error is a ComputedError.
func IsComputed(err error) bool {
	if err == nil {
		return false
	}
	var e *ComputedError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("rowan: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// ValidationError represents a validation error for field values.
type ValidationError struct {
	Name string // Field or entity name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("rowan: validator failed for field %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "rowan: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("rowan: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// QueryError wraps a query error with additional context.
type QueryError struct {
	Entity string // Entity type being queried
	Op     string // Operation (e.g., "select", "count", "exist")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("rowan: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("rowan: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a mutation error with additional context.
type MutationError struct {
	Entity string // Entity type being mutated
	Op     string // Operation (e.g., "create", "update", "delete")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("rowan: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}
