package ingest

import (
	"errors"
	"fmt"

	"github.com/roach88/shelfwise/internal/model"
)

// SyncErrorCode categorizes sync failures.
type SyncErrorCode string

const (
	// ErrCodeTransientUpstream indicates a network failure, 5xx or throttling
	// that persisted through every retry. Safe to re-run.
	ErrCodeTransientUpstream SyncErrorCode = "TRANSIENT_UPSTREAM"

	// ErrCodeUpstreamRejected indicates a 4xx or an undecodable body. Not
	// retried; usually needs operator action (e.g. re-authorization).
	ErrCodeUpstreamRejected SyncErrorCode = "UPSTREAM_REJECTED"

	// ErrCodeStorage indicates a failed write. The page being written was not
	// counted and the cursor was not advanced.
	ErrCodeStorage SyncErrorCode = "STORAGE"

	// ErrCodeConfiguration indicates an unknown or unauthorized store. Raised
	// before any upstream request.
	ErrCodeConfiguration SyncErrorCode = "CONFIGURATION"

	// ErrCodeCanceled indicates the caller's context ended mid-run.
	ErrCodeCanceled SyncErrorCode = "CANCELED"
)

// SyncError is a run-aborting failure with enough context for an operator to
// decide whether to retry.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	StoreID string
	Entity  model.EntityType

	// Page is the 1-based page being processed, 0 when the failure happened
	// before the first fetch.
	Page int

	// Status is the upstream HTTP status, 0 if none was received.
	Status int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	where := fmt.Sprintf("sync %s for %s", e.Entity, e.StoreID)
	if e.Page > 0 {
		where += fmt.Sprintf(" page %d", e.Page)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, where, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Retryable reports whether re-running the sync may succeed without
// operator intervention.
func (e *SyncError) Retryable() bool {
	switch e.Code {
	case ErrCodeTransientUpstream, ErrCodeStorage, ErrCodeCanceled:
		return true
	default:
		return false
	}
}

// IsConfigurationError returns true if err is a ConfigurationError.
// Uses errors.As to handle wrapped errors.
func IsConfigurationError(err error) bool {
	return hasCode(err, ErrCodeConfiguration)
}

// IsUpstreamRejected returns true if upstream refused the request.
func IsUpstreamRejected(err error) bool {
	return hasCode(err, ErrCodeUpstreamRejected)
}

// IsTransientUpstream returns true if upstream stayed unavailable through
// every retry.
func IsTransientUpstream(err error) bool {
	return hasCode(err, ErrCodeTransientUpstream)
}

// IsStorageError returns true if a store write failed.
func IsStorageError(err error) bool {
	return hasCode(err, ErrCodeStorage)
}

func hasCode(err error, code SyncErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// MalformedRecordError describes a record that failed shape validation. It is
// never returned from Run; such records are skipped and counted.
type MalformedRecordError struct {
	Entity model.EntityType
	Index  int // position within the page
	Reason string
}

// Error implements the error interface.
func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record at index %d: %s", e.Entity, e.Index, e.Reason)
}
