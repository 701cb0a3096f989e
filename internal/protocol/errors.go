package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrNoDefaultValue  = errors.New("protocol: no default value")
	ErrFieldValue      = errors.New("protocol: invalid field value")
	ErrUnsupportedCall = errors.New("protocol: unsupported call")
	ErrUnknownField    = errors.New("protocol: unknown field")
	ErrTruncated       = errors.New("protocol: truncated data")
	ErrMalformed       = errors.New("protocol: malformed structure")
)

// NoDefaultValue reports a pack of an absent value on a field without a default.
type NoDefaultValue struct {
	Field string
}

func (e *NoDefaultValue) Error() string {
	return fmt.Sprintf("protocol: field %q has no value and no default", e.Field)
}

func (e *NoDefaultValue) Is(target error) bool { return target == ErrNoDefaultValue }

// FieldValueError reports a value or layout outside a field's domain.
type FieldValueError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldValueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: field %q: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol: field %q: %s", e.Field, e.Reason)
}

func (e *FieldValueError) Is(target error) bool { return target == ErrFieldValue }

func (e *FieldValueError) Unwrap() error { return e.Err }

// FieldValuef builds a FieldValueError with a formatted reason.
func FieldValuef(field, format string, args ...any) error {
	return &FieldValueError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedCall reports an operation a field kind cannot serve.
type UnsupportedCall struct {
	Field string
	Op    string
}

func (e *UnsupportedCall) Error() string {
	return fmt.Sprintf("protocol: field %q does not support %s", e.Field, e.Op)
}

func (e *UnsupportedCall) Is(target error) bool { return target == ErrUnsupportedCall }

// UnknownFieldWarning is recorded, not returned, when a caller sets an
// undeclared name. The value is dropped.
type UnknownFieldWarning struct {
	Schema string
	Field  string
}

func (e *UnknownFieldWarning) Error() string {
	return fmt.Sprintf("protocol: %s has no field %q", e.Schema, e.Field)
}

func (e *UnknownFieldWarning) Is(target error) bool { return target == ErrUnknownField }

// MalformedError is raised by post-process validation hooks.
type MalformedError struct {
	Schema string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("protocol: malformed %s: %s", e.Schema, e.Reason)
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed || target == ErrFieldValue
}
