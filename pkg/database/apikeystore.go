package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentlensio/agentlens/pkg/auth"
	"github.com/agentlensio/agentlens/pkg/ratelimit"
)

// APIKeyStore is the Postgres-backed auth.KeyStore, querying the
// api_keys table created by pkg/store/postgres's embedded migrations.
type APIKeyStore struct {
	pool *pgxpool.Pool
}

// NewAPIKeyStore wraps an already-open pool, normally obtained from
// (*postgres.Store).Pool().
func NewAPIKeyStore(pool *pgxpool.Pool) *APIKeyStore {
	return &APIKeyStore{pool: pool}
}

// Lookup implements auth.KeyStore.
func (s *APIKeyStore) Lookup(ctx context.Context, hashedKey string) (*auth.APIKey, error) {
	var k auth.APIKey
	var scopes []string
	var tier string
	var revokedAt *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, org_id, key_hash, scopes, tier, created_at, revoked_at
		FROM api_keys WHERE key_hash = $1
	`, hashedKey).Scan(&k.ID, &k.TenantID, &k.OrgID, &k.HashedKey, &scopes, &tier, &k.CreatedAt, &revokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, fmt.Errorf("database: lookup api key: %w", err)
	}

	k.Tier = ratelimit.Tier(tier)
	k.Revoked = revokedAt != nil
	k.Scopes = make([]auth.Scope, len(scopes))
	for i, sc := range scopes {
		k.Scopes[i] = auth.Scope(sc)
	}
	return &k, nil
}

// Put inserts or replaces an issued key record. Used by key-issuance
// administration flows, not by the request-time Lookup path.
func (s *APIKeyStore) Put(ctx context.Context, k *auth.APIKey) error {
	scopes := make([]string, len(k.Scopes))
	for i, sc := range k.Scopes {
		scopes[i] = string(sc)
	}
	var revokedAt *time.Time
	if k.Revoked {
		now := time.Now()
		revokedAt = &now
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (id, tenant_id, org_id, key_hash, scopes, tier, created_at, revoked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = $2, org_id = $3, key_hash = $4, scopes = $5, tier = $6, revoked_at = $8
	`, k.ID, k.TenantID, k.OrgID, k.HashedKey, scopes, string(k.Tier), k.CreatedAt, revokedAt)
	if err != nil {
		return fmt.Errorf("database: put api key: %w", err)
	}
	return nil
}

// Revoke marks a key revoked by id. Revocation is permanent; there is
// no un-revoke, matching §6's key lifecycle (issue, use, revoke).
func (s *APIKeyStore) Revoke(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("database: revoke api key: %w", err)
	}
	return nil
}

var _ auth.KeyStore = (*APIKeyStore)(nil)
