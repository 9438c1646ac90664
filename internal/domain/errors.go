package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed record. It is raised before any write
// and is never retried automatically.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a record that is absent or not owned by the caller.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("record %s not found", e.ID)
}

// LocalStoreError wraps a persistence failure.
type LocalStoreError struct {
	Op  string
	Err error
}

func (e *LocalStoreError) Error() string {
	return fmt.Sprintf("local store %s: %v", e.Op, e.Err)
}

func (e *LocalStoreError) Unwrap() error { return e.Err }

// RemoteProviderError wraps a provider rejection, network failure or timeout.
// Re-sending the same change is safe.
type RemoteProviderError struct {
	Provider string
	Zone     string
	Err      error
}

func (e *RemoteProviderError) Error() string {
	return fmt.Sprintf("remote provider %s (zone %s): %v", e.Provider, e.Zone, e.Err)
}

func (e *RemoteProviderError) Unwrap() error { return e.Err }

// DivergenceError marks the one unsafe state: the provider confirmed a delete
// but the local record could not be removed. It needs operator attention.
type DivergenceError struct {
	RecordID string
	Err      error
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("divergence on record %s: deleted remotely but still present locally: %v", e.RecordID, e.Err)
}

func (e *DivergenceError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsLocalStore(err error) bool {
	var target *LocalStoreError
	return errors.As(err, &target)
}

func IsRemoteProvider(err error) bool {
	var target *RemoteProviderError
	return errors.As(err, &target)
}

func IsDivergence(err error) bool {
	var target *DivergenceError
	return errors.As(err, &target)
}
