package ingest

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation wraps a batch-level validation failure (§4.3 failure
// case (a)): no writes, no bus emissions.
type ErrValidation struct {
	EventIndex int
	Reason     string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("ingest: event %d: %s", e.EventIndex, e.Reason)
}

// ErrRateLimited is returned on failure case (b): refused with a
// retry-after, no writes.
type ErrRateLimited struct {
	RetryAfter time.Duration
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("ingest: rate limited, retry after %s", e.RetryAfter)
}

// ErrStoreFailure wraps failure case (c): the store rejected the
// batch after the per-session locks were acquired. Locks are always
// released before this error is returned.
type ErrStoreFailure struct {
	Cause error
}

func (e *ErrStoreFailure) Error() string {
	return fmt.Sprintf("ingest: store failure: %v", e.Cause)
}

func (e *ErrStoreFailure) Unwrap() error {
	return e.Cause
}

// IsValidation reports whether err is (or wraps) an *ErrValidation.
func IsValidation(err error) bool {
	var v *ErrValidation
	return errors.As(err, &v)
}

// IsRateLimited reports whether err is (or wraps) an *ErrRateLimited.
func IsRateLimited(err error) bool {
	var v *ErrRateLimited
	return errors.As(err, &v)
}
