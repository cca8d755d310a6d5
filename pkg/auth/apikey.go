package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/agentlensio/agentlens/pkg/ratelimit"
)

// ErrKeyNotFound is returned by a KeyStore when no key matches the
// presented hash, including a revoked key (callers must not
// distinguish "revoked" from "unknown" in the response, to avoid
// leaking key validity to an attacker).
var ErrKeyNotFound = errors.New("auth: api key not found")

// APIKey is one issued bearer key. Only HashedKey is ever persisted;
// the raw key is shown to the holder once, at issuance, and never
// again (§6's "api_keys (key hash only)").
type APIKey struct {
	ID        string
	TenantID  string
	OrgID     string
	HashedKey string
	Scopes    []Scope
	Tier      ratelimit.Tier
	CreatedAt time.Time
	Revoked   bool
}

// HasScope reports whether the key carries want (or the wildcard).
func (k *APIKey) HasScope(want Scope) bool {
	return HasScope(k.Scopes, want)
}

// HashKey is the one-way transform applied to a raw bearer key before
// storage or lookup. SHA-256 over the raw bytes: fixed-size, no tunable
// parameters needed since the input is already a high-entropy random
// key rather than a user-chosen password.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEqual compares two strings in constant time, for the
// OTLP receiver's optional shared bearer token (§6) where there is no
// per-caller key lookup to hash against.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// KeyStore resolves a hashed API key to the issued key record. The
// concrete backing (Postgres table, in-memory map for tests) lives
// outside this package; auth only needs the lookup contract.
type KeyStore interface {
	Lookup(ctx context.Context, hashedKey string) (*APIKey, error)
}

// Authenticate looks up rawKey (hashing it first) and returns the
// matching key, rejecting unknown or revoked keys identically.
func Authenticate(ctx context.Context, ks KeyStore, rawKey string) (*APIKey, error) {
	if rawKey == "" {
		return nil, ErrKeyNotFound
	}
	key, err := ks.Lookup(ctx, HashKey(rawKey))
	if err != nil {
		return nil, err
	}
	if key == nil || key.Revoked {
		return nil, ErrKeyNotFound
	}
	return key, nil
}
