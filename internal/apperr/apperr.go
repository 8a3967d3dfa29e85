// Package apperr holds the error taxonomy shared by the persistence layer, the trip
// engine and the HTTP boundary. Callers classify errors with errors.Is against the
// sentinel values.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrPermission     = errors.New("permission denied")
	ErrConflict       = errors.New("conflict")
	ErrInfrastructure = errors.New("infrastructure failure")
)

// Validation reports malformed or missing input.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound reports that no entity matched.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Permission reports a failed capability check.
func Permission(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPermission, fmt.Sprintf(format, args...))
}

// Conflict reports that the entity already moved past the requested state.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Infrastructure wraps a persistence or transport failure. A nil err yields nil.
// Errors that are already classified pass through unchanged.
func Infrastructure(op string, err error) error {
	if err == nil {
		return nil
	}
	if Classified(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrInfrastructure, op, err)
}

// Classified reports whether err already carries one of the sentinel kinds.
func Classified(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPermission) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInfrastructure)
}
