package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped to client-facing outcomes by the adapters.
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid argument")
	ErrSignaling = errors.New("signaling error")
)

// SignalingError reports a media-server step that did not succeed.
// ConnectionID is set when a connection was opened before the failing step,
// so the caller can tear it down.
type SignalingError struct {
	Step         string
	Entity       string
	ConnectionID string
	Err          error
}

func (e *SignalingError) Error() string {
	return fmt.Sprintf("signaling: %s failed for %s: %v", e.Step, e.Entity, e.Err)
}

func (e *SignalingError) Unwrap() []error { return []error{ErrSignaling, e.Err} }

func NotFound(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrForbidden)
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalid)
}
