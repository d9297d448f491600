package anansi

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below match them with errors.Is.
var (
	// ErrFieldNotFound is returned when a path segment names no field.
	ErrFieldNotFound = errors.New("anansi: field not found")

	// ErrReferenceNotFound is returned when a path segment names no reference.
	ErrReferenceNotFound = errors.New("anansi: reference not found")

	// ErrCollectorNotFound is returned when a path segment names no collector.
	ErrCollectorNotFound = errors.New("anansi: collector not found")

	// ErrModelNotFound is returned when a model name does not resolve
	// against the registry.
	ErrModelNotFound = errors.New("anansi: model not found")

	// ErrStoreNotFound is returned when no store can be resolved.
	ErrStoreNotFound = errors.New("anansi: store not found")

	// ErrReadOnly is returned when mutating a view or a reserved
	// collection key.
	ErrReadOnly = errors.New("anansi: read only")

	// ErrCollectionIsNull is returned by aggregate operations on a
	// collection with neither records nor a schema.
	ErrCollectionIsNull = errors.New("anansi: collection is null")

	// ErrIndexOutOfRange is returned by Collection.At.
	ErrIndexOutOfRange = errors.New("anansi: index out of range")

	// ErrKeyArity is returned when a key tuple does not match the key fields.
	ErrKeyArity = errors.New("anansi: key arity mismatch")

	// ErrNotHandled is returned when a dispatched action yields no result.
	ErrNotHandled = errors.New("anansi: action not handled")
)

// PathKind identifies the kind of member a path segment failed to resolve.
type PathKind uint8

// Path kinds.
const (
	PathField PathKind = iota
	PathReference
	PathCollector
)

var pathKindNames = [...]string{"field", "reference", "collector"}

func (k PathKind) String() string {
	if int(k) < len(pathKindNames) {
		return pathKindNames[k]
	}
	return "member"
}

// PathError is returned when a dotted path segment does not resolve.
type PathError struct {
	Kind   PathKind
	Schema string
	Path   string
}

// Error returns the error string.
func (e *PathError) Error() string {
	return fmt.Sprintf("anansi: %s %q not found on %s", e.Kind, e.Path, e.Schema)
}

// Is reports whether target is the sentinel matching the error kind.
func (e *PathError) Is(target error) bool {
	switch e.Kind {
	case PathReference:
		return target == ErrReferenceNotFound
	case PathCollector:
		return target == ErrCollectorNotFound
	default:
		return target == ErrFieldNotFound
	}
}

// NewPathError returns a new PathError.
func NewPathError(kind PathKind, schema, path string) *PathError {
	return &PathError{Kind: kind, Schema: schema, Path: path}
}

// IsNotFound returns true if the error reports an unresolvable path segment
// or an unknown model.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrFieldNotFound) ||
		errors.Is(err, ErrReferenceNotFound) ||
		errors.Is(err, ErrCollectorNotFound) ||
		errors.Is(err, ErrModelNotFound)
}

// ModelNotFoundError is returned when a model name does not resolve.
type ModelNotFoundError struct {
	Name string
}

// Error returns the error string.
func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("anansi: model %q not found", e.Name)
}

// Is reports whether the target error matches ModelNotFoundError.
func (e *ModelNotFoundError) Is(err error) bool {
	return err == ErrModelNotFound
}

// NewModelNotFoundError returns a new ModelNotFoundError.
func NewModelNotFoundError(name string) *ModelNotFoundError {
	return &ModelNotFoundError{Name: name}
}

// ReadOnlyError is returned when a mutation targets a view or a reserved key.
type ReadOnlyError struct {
	Entity string
	Key    string // Optional: the reserved key being written
}

// Error returns the error string.
func (e *ReadOnlyError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("anansi: %s.%s is read only", e.Entity, e.Key)
	}
	return fmt.Sprintf("anansi: %s is read only", e.Entity)
}

// Is reports whether the target error matches ReadOnlyError.
func (e *ReadOnlyError) Is(err error) bool {
	return err == ErrReadOnly
}

// NewReadOnlyError returns a new ReadOnlyError.
func NewReadOnlyError(entity, key string) *ReadOnlyError {
	return &ReadOnlyError{Entity: entity, Key: key}
}

// IsReadOnly returns true if the error is a ReadOnlyError.
func IsReadOnly(err error) bool {
	return err != nil && errors.Is(err, ErrReadOnly)
}

// IndexError is returned when a collection index is out of bounds.
type IndexError struct {
	Index int
	Len   int
}

// Error returns the error string.
func (e *IndexError) Error() string {
	return fmt.Sprintf("anansi: index %d out of range [0:%d]", e.Index, e.Len)
}

// Is reports whether the target error matches IndexError.
func (e *IndexError) Is(err error) bool {
	return err == ErrIndexOutOfRange
}

// KeyArityError is returned when a key tuple length differs from the
// number of key fields.
type KeyArityError struct {
	Schema string
	Want   int
	Got    int
}

// Error returns the error string.
func (e *KeyArityError) Error() string {
	return fmt.Sprintf("anansi: %s expects %d key values, got %d", e.Schema, e.Want, e.Got)
}

// Is reports whether the target error matches KeyArityError.
func (e *KeyArityError) Is(err error) bool {
	return err == ErrKeyArity
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("anansi: constraint failed: %s", e.msg)
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
	return fmt.Sprintf("anansi: validator failed for field %q: %s", e.Name, e.Err)
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

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("anansi: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "anansi: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("anansi: multiple errors:")
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
		return fmt.Sprintf("anansi: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("anansi: querying %s: %v", e.Entity, e.Err)
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
	return fmt.Sprintf("anansi: %s %s: %v", e.Op, e.Entity, e.Err)
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

// PrivacyError represents a privacy policy violation.
type PrivacyError struct {
	Entity string // Entity type
	Op     string // Operation (query or mutation)
	Rule   string // Rule that denied the operation
}

// Error returns the error string.
func (e *PrivacyError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("anansi: privacy denied %s on %s (rule: %s)", e.Op, e.Entity, e.Rule)
	}
	return fmt.Sprintf("anansi: privacy denied %s on %s", e.Op, e.Entity)
}

// NewPrivacyError returns a new PrivacyError.
func NewPrivacyError(entity, op, rule string) *PrivacyError {
	return &PrivacyError{Entity: entity, Op: op, Rule: rule}
}

// IsPrivacyError returns true if the error is a PrivacyError.
func IsPrivacyError(err error) bool {
	if err == nil {
		return false
	}
	var e *PrivacyError
	return errors.As(err, &e)
}
