package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentlensio/agentlens/pkg/config"
	"github.com/agentlensio/agentlens/pkg/ratelimit"
)

// Generic config_kv keys for the fields of config.TenantOverrides.
// Storing one row per field, rather than one JSON blob, lets a future
// override field land as a migration-free addition here.
const (
	kvKeyTier               = "tier"
	kvKeyEventsDaysOverride = "events_days_override"
	kvKeyAuditDaysOverride  = "audit_days_override"
	kvKeyWebhookURL         = "webhook_url"
	kvKeyWebhookSecretHash  = "webhook_secret_hash"
)

// TenantConfigStore persists config.TenantOverrides in the config_kv
// table behind the `GET/PUT /api/config` surface (§6).
type TenantConfigStore struct {
	pool *pgxpool.Pool
}

// NewTenantConfigStore wraps an already-open pool, normally obtained
// from (*postgres.Store).Pool().
func NewTenantConfigStore(pool *pgxpool.Pool) *TenantConfigStore {
	return &TenantConfigStore{pool: pool}
}

// Get returns the stored overrides for tenantID, or a zero-value
// TenantOverrides if none have ever been set.
func (s *TenantConfigStore) Get(ctx context.Context, tenantID string) (config.TenantOverrides, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM config_kv WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return config.TenantOverrides{}, fmt.Errorf("database: get tenant config: %w", err)
	}
	defer rows.Close()

	var out config.TenantOverrides
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return config.TenantOverrides{}, fmt.Errorf("database: scan tenant config row: %w", err)
		}
		if err := applyConfigValue(&out, key, raw); err != nil {
			return config.TenantOverrides{}, err
		}
	}
	return out, rows.Err()
}

func applyConfigValue(out *config.TenantOverrides, key string, raw []byte) error {
	switch key {
	case kvKeyTier:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("database: decode %s: %w", key, err)
		}
		out.Tier = ratelimit.Tier(v)
	case kvKeyEventsDaysOverride:
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("database: decode %s: %w", key, err)
		}
		out.EventsDaysOverride = &v
	case kvKeyAuditDaysOverride:
		var v int
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("database: decode %s: %w", key, err)
		}
		out.AuditDaysOverride = &v
	case kvKeyWebhookURL:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("database: decode %s: %w", key, err)
		}
		out.WebhookURL = v
	case kvKeyWebhookSecretHash:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("database: decode %s: %w", key, err)
		}
		out.WebhookSecretHash = v
	}
	return nil
}

// Put replaces the stored overrides for tenantID with overrides in a
// single transaction: unset fields are simply absent afterward, so a
// caller clearing EventsDaysOverride by passing nil actually deletes
// the prior override rather than leaving it stuck.
func (s *TenantConfigStore) Put(ctx context.Context, tenantID string, overrides config.TenantOverrides) error {
	type kv struct {
		key      string
		value    any
		isSecret bool
	}
	entries := []kv{{kvKeyTier, string(overrides.Tier), false}}
	if overrides.EventsDaysOverride != nil {
		entries = append(entries, kv{kvKeyEventsDaysOverride, *overrides.EventsDaysOverride, false})
	}
	if overrides.AuditDaysOverride != nil {
		entries = append(entries, kv{kvKeyAuditDaysOverride, *overrides.AuditDaysOverride, false})
	}
	if overrides.WebhookURL != "" {
		entries = append(entries, kv{kvKeyWebhookURL, overrides.WebhookURL, false})
	}
	if overrides.WebhookSecretHash != "" {
		entries = append(entries, kv{kvKeyWebhookSecretHash, overrides.WebhookSecretHash, true})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("database: begin tenant config tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM config_kv WHERE tenant_id=$1`, tenantID); err != nil {
		return fmt.Errorf("database: clear tenant config: %w", err)
	}
	for _, e := range entries {
		raw, err := json.Marshal(e.value)
		if err != nil {
			return fmt.Errorf("database: encode config value %q: %w", e.key, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO config_kv (tenant_id, key, value, is_secret, updated_at)
			VALUES ($1,$2,$3,$4, now())
		`, tenantID, e.key, raw, e.isSecret); err != nil {
			return fmt.Errorf("database: write config value %q: %w", e.key, err)
		}
	}
	return tx.Commit(ctx)
}
