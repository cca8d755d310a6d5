package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlensio/agentlens/pkg/auth"
	"github.com/agentlensio/agentlens/pkg/ratelimit"
)

func TestScopesForRole(t *testing.T) {
	assert.Equal(t, []auth.Scope{auth.ScopeRead}, auth.ScopesForRole(auth.RoleViewer))
	assert.Equal(t, []auth.Scope{auth.ScopeRead, auth.ScopeWrite}, auth.ScopesForRole(auth.RoleMember))
	assert.Equal(t, []auth.Scope{auth.ScopeAll}, auth.ScopesForRole(auth.RoleAdmin))
	assert.Equal(t, []auth.Scope{auth.ScopeRead, auth.ScopeAudit}, auth.ScopesForRole(auth.RoleAuditor))
	assert.Nil(t, auth.ScopesForRole(auth.Role("nonexistent")))
}

func TestHasScope_WildcardGrantsEverything(t *testing.T) {
	assert.True(t, auth.HasScope([]auth.Scope{auth.ScopeAll}, auth.ScopeBilling))
	assert.True(t, auth.HasScope([]auth.Scope{auth.ScopeRead}, auth.ScopeRead))
	assert.False(t, auth.HasScope([]auth.Scope{auth.ScopeRead}, auth.ScopeWrite))
}

func TestHashKey_IsDeterministicAndOneWay(t *testing.T) {
	h1 := auth.HashKey("my-secret-key")
	h2 := auth.HashKey("my-secret-key")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, "my-secret-key", h1)
	assert.NotEqual(t, h1, auth.HashKey("different-key"))
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, auth.ConstantTimeEqual("token-123", "token-123"))
	assert.False(t, auth.ConstantTimeEqual("token-123", "token-456"))
	assert.False(t, auth.ConstantTimeEqual("short", "longer-string"))
}

func TestAuthenticate_RejectsUnknownAndRevokedKeysIdentically(t *testing.T) {
	ks := auth.NewInMemoryKeyStore()
	active := &auth.APIKey{ID: "k1", TenantID: "t1", HashedKey: auth.HashKey("raw-active"), Scopes: []auth.Scope{auth.ScopeRead}, Tier: ratelimit.TierPro}
	revoked := &auth.APIKey{ID: "k2", TenantID: "t1", HashedKey: auth.HashKey("raw-revoked"), Revoked: true}
	ks.Put(active)
	ks.Put(revoked)

	key, err := auth.Authenticate(context.Background(), ks, "raw-active")
	require.NoError(t, err)
	assert.Equal(t, "k1", key.ID)

	_, err = auth.Authenticate(context.Background(), ks, "raw-revoked")
	assert.ErrorIs(t, err, auth.ErrKeyNotFound)

	_, err = auth.Authenticate(context.Background(), ks, "never-issued")
	assert.ErrorIs(t, err, auth.ErrKeyNotFound)

	_, err = auth.Authenticate(context.Background(), ks, "")
	assert.ErrorIs(t, err, auth.ErrKeyNotFound)
}

func TestAPIKey_HasScope(t *testing.T) {
	key := &auth.APIKey{Scopes: []auth.Scope{auth.ScopeRead, auth.ScopeAudit}}
	assert.True(t, key.HasScope(auth.ScopeAudit))
	assert.False(t, key.HasScope(auth.ScopeWrite))
}
