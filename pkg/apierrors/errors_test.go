package apierrors_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlensio/agentlens/pkg/apierrors"
	"github.com/agentlensio/agentlens/pkg/compliance"
	"github.com/agentlensio/agentlens/pkg/ingest"
	"github.com/agentlensio/agentlens/pkg/store"
)

func TestKind_Status(t *testing.T) {
	tests := []struct {
		kind apierrors.Kind
		want int
	}{
		{apierrors.KindValidation, 400},
		{apierrors.KindAuth, 401},
		{apierrors.KindAuthorization, 403},
		{apierrors.KindNotFound, 404},
		{apierrors.KindConflict, 409},
		{apierrors.KindRateLimited, 429},
		{apierrors.KindPayloadTooLarge, 413},
		{apierrors.KindStoreUnavailable, 503},
		{apierrors.KindInternal, 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.Status(), tt.kind)
	}
}

func TestFromInternal_StoreNotFound(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", store.ErrNotFound)
	got := apierrors.FromInternal(err)
	assert.Equal(t, apierrors.KindNotFound, got.Kind)
	assert.Equal(t, 404, got.Status())
}

func TestFromInternal_IngestValidation(t *testing.T) {
	err := &ingest.ErrValidation{EventIndex: 2, Reason: "missing sessionId"}
	got := apierrors.FromInternal(err)
	assert.Equal(t, apierrors.KindValidation, got.Kind)
	assert.Contains(t, got.Error(), "missing sessionId")
}

func TestFromInternal_IngestRateLimited(t *testing.T) {
	err := &ingest.ErrRateLimited{RetryAfter: 42 * time.Second}
	got := apierrors.FromInternal(err)
	assert.Equal(t, apierrors.KindRateLimited, got.Kind)
	assert.Equal(t, 42*time.Second, got.RetryAfter)
	assert.Equal(t, 429, got.Status())
}

func TestFromInternal_IngestStoreFailure(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := &ingest.ErrStoreFailure{Cause: cause}
	got := apierrors.FromInternal(err)
	assert.Equal(t, apierrors.KindStoreUnavailable, got.Kind)
	assert.ErrorIs(t, got, cause)
}

func TestFromInternal_ComplianceRangeTooLarge(t *testing.T) {
	err := &compliance.ErrRangeTooLarge{Days: 400}
	got := apierrors.FromInternal(err)
	assert.Equal(t, apierrors.KindValidation, got.Kind)
}

func TestFromInternal_UnknownErrorMapsToInternal(t *testing.T) {
	got := apierrors.FromInternal(fmt.Errorf("something unexpected"))
	assert.Equal(t, apierrors.KindInternal, got.Kind)
	assert.Equal(t, 500, got.Status())
}

func TestFromInternal_PassesThroughAlreadyClassified(t *testing.T) {
	original := apierrors.Conflict("duplicate key")
	got := apierrors.FromInternal(original)
	require.Same(t, original, got)
}

func TestError_Envelope(t *testing.T) {
	err := apierrors.Validation("bad input", apierrors.Detail{Field: "sessionId", Message: "required"})
	env := err.Envelope()
	assert.Equal(t, "bad input", env.Error)
	assert.Equal(t, 400, env.Status)
	require.Len(t, env.Details, 1)
	assert.Equal(t, "sessionId", env.Details[0].Field)
}
