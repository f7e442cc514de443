package schema

import (
	"fmt"
	"strings"
)

// Code categorizes a field error.
type Code uint8

const (
	CodeTypeMismatch Code = iota
	CodeOutOfRange
	CodeInvalidEnum
	CodeInvalidFormat
	CodeRequiredMissing
	CodeUnknownProperty
)

// String returns a stable name for the code.
func (c Code) String() string {
	switch c {
	case CodeTypeMismatch:
		return "type_mismatch"
	case CodeOutOfRange:
		return "out_of_range"
	case CodeInvalidEnum:
		return "invalid_enum"
	case CodeInvalidFormat:
		return "invalid_format"
	case CodeRequiredMissing:
		return "required_missing"
	case CodeUnknownProperty:
		return "unknown_property"
	default:
		return "unknown"
	}
}

// ValidationError is a single field-level failure.
type ValidationError struct {
	// Path is the dot-separated path to the invalid value (e.g. "sensory.fontSize").
	Path string `json:"path"`

	// Message is the human-readable reason.
	Message string `json:"message"`

	// Value is the rejected value (may be nil).
	Value any `json:"value,omitempty"`

	// Expected describes what was expected.
	Expected string `json:"expected,omitempty"`

	Code Code `json:"code"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

// Error implements the error interface.
func (e *ValidationErrors) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no validation errors"
	case 1:
		return e.Errors[0].Error()
	}

	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e.Errors), strings.Join(msgs, "\n  - "))
}

// Add adds a validation error with the given code.
func (e *ValidationErrors) Add(path string, code Code, message string) {
	e.Errors = append(e.Errors, &ValidationError{
		Path:    path,
		Message: message,
		Code:    code,
	})
}

// AddError adds an existing ValidationError.
func (e *ValidationErrors) AddError(err *ValidationError) {
	e.Errors = append(e.Errors, err)
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Len returns the number of errors.
func (e *ValidationErrors) Len() int {
	return len(e.Errors)
}

// AsError returns nil if no errors, otherwise returns self.
func (e *ValidationErrors) AsError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// Paths returns the path of every error, in report order.
func (e *ValidationErrors) Paths() []string {
	paths := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		paths[i] = err.Path
	}
	return paths
}

// NewTypeError creates a validation error for type mismatch.
func NewTypeError(path string, expected string, actual any) *ValidationError {
	return &ValidationError{
		Path:     path,
		Message:  fmt.Sprintf("expected %s, got %s", expected, jsonTypeName(actual)),
		Value:    actual,
		Expected: expected,
		Code:     CodeTypeMismatch,
	}
}

// NewEnumError creates a validation error for invalid enum value.
func NewEnumError(path string, value any, allowed []any) *ValidationError {
	return &ValidationError{
		Path:     path,
		Message:  fmt.Sprintf("value %v is not one of allowed values: %v", value, allowed),
		Value:    value,
		Expected: fmt.Sprintf("one of %v", allowed),
		Code:     CodeInvalidEnum,
	}
}

// NewRangeError creates a validation error for out-of-range value.
func NewRangeError(path string, value any, min, max *float64) *ValidationError {
	var expected string
	switch {
	case min != nil && max != nil:
		expected = fmt.Sprintf("between %v and %v", *min, *max)
	case min != nil:
		expected = fmt.Sprintf(">= %v", *min)
	case max != nil:
		expected = fmt.Sprintf("<= %v", *max)
	default:
		expected = "valid range"
	}
	return &ValidationError{
		Path:     path,
		Message:  fmt.Sprintf("value %v is out of range (%s)", value, expected),
		Value:    value,
		Expected: expected,
		Code:     CodeOutOfRange,
	}
}

// NewFormatError creates a validation error for a malformed formatted string.
func NewFormatError(path, value, format string) *ValidationError {
	return &ValidationError{
		Path:     path,
		Message:  fmt.Sprintf("invalid %s: %q", format, value),
		Value:    value,
		Expected: format,
		Code:     CodeInvalidFormat,
	}
}

// NewRequiredError creates a validation error for missing required field.
func NewRequiredError(path string) *ValidationError {
	return &ValidationError{
		Path:    path,
		Message: "required field is missing",
		Code:    CodeRequiredMissing,
	}
}

// NewUnknownPropertyError creates a validation error for unknown property.
func NewUnknownPropertyError(path string) *ValidationError {
	return &ValidationError{
		Path:    path,
		Message: "unknown property",
		Code:    CodeUnknownProperty,
	}
}

func jsonTypeName(v any) string {
	switch {
	case v == nil:
		return TypeNameNull
	case isNumber(v):
		return TypeNameNumber
	}
	switch v.(type) {
	case string:
		return TypeNameString
	case bool:
		return TypeNameBoolean
	case map[string]any:
		return TypeNameObject
	case []any:
		return TypeNameArray
	default:
		return fmt.Sprintf("%T", v)
	}
}
