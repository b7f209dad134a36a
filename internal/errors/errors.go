package errors

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a short identifier has no matching link record.
var ErrNotFound = errors.New("link not found")

// ErrInvalidConfiguration is returned when a link's policy fields are missing
// or malformed for its declared mode.
var ErrInvalidConfiguration = errors.New("invalid attribution configuration")

// ErrStoreUnavailable is returned when the store cannot serve a read or a write.
var ErrStoreUnavailable = errors.New("store unavailable")

// ErrAliasConflict is returned when an administrator picks an alias that is already taken.
var ErrAliasConflict = errors.New("alias already exists")

// ErrInvalidAlias is returned when an alias contains characters outside
// [a-zA-Z0-9_-] or names a reserved route (health, metrics, r, api).
var ErrInvalidAlias = errors.New("alias can only contain letters, numbers, hyphens and underscores and cannot be a reserved route")

// ErrInvalidURL is returned when the provided URL is invalid
var ErrInvalidURL = errors.New("invalid URL format")

// ErrInvalidInput is returned when an admin request fails validation.
var ErrInvalidInput = errors.New("invalid input")

// ErrShortIDGenerationFailed is returned when we can't generate a unique short identifier
var ErrShortIDGenerationFailed = errors.New("failed to generate unique short id")

// ErrClickRecordingFailed is returned when the click transaction could not be committed.
type ErrClickRecordingFailed struct {
	ShortID string
	Err     error
}

func (e ErrClickRecordingFailed) Error() string {
	return fmt.Sprintf("failed to record click for link %s: %v", e.ShortID, e.Err)
}

func (e ErrClickRecordingFailed) Unwrap() error {
	return e.Err
}

// ErrPolicyField describes which policy field made a link undecodable.
type ErrPolicyField struct {
	Mode   string
	Field  string
	Reason string
}

func (e ErrPolicyField) Error() string {
	return fmt.Sprintf("mode %q: field %s %s", e.Mode, e.Field, e.Reason)
}

func (e ErrPolicyField) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// ErrURLCheckFailed is returned when URL health check fails
type ErrURLCheckFailed struct {
	URL    string
	Reason string
}

func (e ErrURLCheckFailed) Error() string {
	return fmt.Sprintf("failed to check URL %s: %s", e.URL, e.Reason)
}
