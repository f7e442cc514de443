package prefs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/prefstore/internal/prefs/schema"
)

// Errors returned by store operations.
var (
	// ErrValidation indicates a candidate document failed schema validation.
	ErrValidation = errors.New("validation failed")

	// ErrParse indicates serialized input was not a well-formed document.
	ErrParse = errors.New("malformed document")

	// ErrMigrationConfig indicates the migration chain cannot reach the
	// current version.
	ErrMigrationConfig = errors.New("migration chain incomplete")

	// ErrUnsupportedVersion indicates a document version that is unparseable
	// or newer than the current version.
	ErrUnsupportedVersion = errors.New("unsupported schema version")

	// ErrStorage indicates the storage adapter failed.
	ErrStorage = errors.New("storage failure")

	// ErrNotInitialized indicates an operation ran before Initialize.
	ErrNotInitialized = errors.New("store not initialized")

	// ErrClosed indicates an operation ran after Close.
	ErrClosed = errors.New("store closed")
)

// ValidationError reports every field that failed validation.
type ValidationError struct {
	Errors []*schema.ValidationError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return ErrValidation.Error()
	case 1:
		return fmt.Sprintf("%s: %s", ErrValidation, e.Errors[0])
	}

	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("%s: %d errors:\n  - %s", ErrValidation, len(e.Errors), strings.Join(msgs, "\n  - "))
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Paths returns the path of each field error in report order.
func (e *ValidationError) Paths() []string {
	paths := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		paths[i] = fe.Path
	}
	return paths
}

// newValidationError converts validator output into a ValidationError.
// It returns nil when err is nil.
func newValidationError(err error) *ValidationError {
	if err == nil {
		return nil
	}

	var errs *schema.ValidationErrors
	if errors.As(err, &errs) {
		return &ValidationError{Errors: errs.Errors}
	}
	var single *schema.ValidationError
	if errors.As(err, &single) {
		return &ValidationError{Errors: []*schema.ValidationError{single}}
	}
	return &ValidationError{Errors: []*schema.ValidationError{{Message: err.Error()}}}
}

// ParseError represents malformed serialized input.
type ParseError struct {
	// Format is the transfer format that failed to parse ("json", "yaml").
	Format string
	// Message describes the problem.
	Message string
	// Err is the underlying decoder error, if any.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("parse error: %s", e.Message)
	}
	return fmt.Sprintf("parse error in %s input: %s", e.Format, e.Message)
}

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// MigrationConfigError reports a registry that cannot carry a document to
// the current version. It is a programming error, not a data error.
type MigrationConfigError struct {
	// Reached is the version the chain stopped at.
	Reached string
	// Current is the version the registry promised.
	Current string
	// Message describes the problem.
	Message string
}

// Error implements the error interface.
func (e *MigrationConfigError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("migration config: %s", e.Message)
	}
	return fmt.Sprintf("migration config: no migration from %s (current %s)", e.Reached, e.Current)
}

// Is reports whether target is ErrMigrationConfig.
func (e *MigrationConfigError) Is(target error) bool {
	return target == ErrMigrationConfig
}

// VersionError reports a document version the registry cannot accept.
type VersionError struct {
	// Version is the version found in the document.
	Version string
	// Current is the registry's current version.
	Current string
	// Err is the parse error, if the version was malformed.
	Err error
}

// Error implements the error interface.
func (e *VersionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid schema version %q: %v", e.Version, e.Err)
	}
	return fmt.Sprintf("schema version %s is newer than supported version %s", e.Version, e.Current)
}

// Is reports whether target is ErrUnsupportedVersion.
func (e *VersionError) Is(target error) bool {
	return target == ErrUnsupportedVersion
}

// Unwrap returns the underlying error.
func (e *VersionError) Unwrap() error {
	return e.Err
}

// StorageError wraps a storage adapter failure.
type StorageError struct {
	// Op is the adapter operation that failed ("get", "set", ...).
	Op string
	// Key is the storage key involved.
	Key string
	// Err is the adapter error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

// Is reports whether target is ErrStorage.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}
