package models

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLocked             = errors.New("locked")
	ErrRateLimited        = errors.New("rate limited")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInvalidToken       = errors.New("invalid token")
	ErrValidation         = errors.New("validation failed")
	ErrSessionInactive    = errors.New("session is not active")
)

// LockedError carries the time left until the phone is unlocked.
type LockedError struct {
	RetryAfterMinutes int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("locked, retry after %d minutes", e.RetryAfterMinutes)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
