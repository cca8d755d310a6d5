package apierrors

import (
	"errors"

	"github.com/agentlensio/agentlens/pkg/compliance"
	"github.com/agentlensio/agentlens/pkg/ingest"
	"github.com/agentlensio/agentlens/pkg/store"
)

// FromInternal classifies an error returned by an internal package
// (store, ingest, compliance, ...) into the §7 taxonomy, mirroring the
// single-translation-point pattern of mapServiceError: every internal
// error type is checked once, here, rather than scattered across
// handlers.
func FromInternal(err error) *Error {
	if err == nil {
		return nil
	}

	if e, ok := As(err); ok {
		return e
	}

	var validErr *ingest.ErrValidation
	if errors.As(err, &validErr) {
		return Validation(validErr.Error())
	}

	var rateErr *ingest.ErrRateLimited
	if errors.As(err, &rateErr) {
		return RateLimited(rateErr.Error(), rateErr.RetryAfter)
	}

	var storeErr *ingest.ErrStoreFailure
	if errors.As(err, &storeErr) {
		return StoreUnavailable(storeErr.Cause)
	}

	var rangeErr *compliance.ErrRangeTooLarge
	if errors.As(err, &rangeErr) {
		return Validation(rangeErr.Error())
	}

	if errors.Is(err, store.ErrNotFound) {
		return NotFound("resource not found")
	}

	return Internal(err)
}
