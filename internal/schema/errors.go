package schema

import (
	"errors"
	"fmt"
)

// Errors returned by registry operations.
var (
	// ErrUnknownSetting indicates the key is not registered.
	ErrUnknownSetting = errors.New("unknown setting")

	// ErrAlreadyRegistered indicates a duplicate registration attempt.
	ErrAlreadyRegistered = errors.New("setting already registered")

	// ErrRegistryFrozen indicates registration after startup completed.
	ErrRegistryFrozen = errors.New("registry is frozen")
)

// ValidationError describes why a value failed validation for a key.
type ValidationError struct {
	// Key is the setting key that failed validation.
	Key string
	// Value is the offending value.
	Value any
	// Constraint is the strategy that rejected the value.
	Constraint ConstraintKind
	// Err is the underlying predicate error.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for %s: %v", e.Key, e.Err)
}

// Unwrap returns the underlying predicate error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
