package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agentlensio/agentlens/pkg/store"
)

func (s *Store) UpsertDiscoveryCapability(ctx context.Context, tenantID string, cap *store.DiscoveryCapability) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO discovery_capabilities (tenant_id, id, name, kind, first_seen_at, last_seen_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (tenant_id, kind, name) DO UPDATE SET last_seen_at = $6
	`, tenantID, cap.ID, cap.Name, string(cap.Kind), cap.FirstSeenAt, cap.LastSeenAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert discovery capability: %w", err)
	}
	return nil
}

func (s *Store) ListDiscoveryCapabilities(ctx context.Context, tenantID string) ([]*store.DiscoveryCapability, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, id, name, kind, first_seen_at, last_seen_at FROM discovery_capabilities WHERE tenant_id=$1 ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list discovery capabilities: %w", err)
	}
	defer rows.Close()
	var out []*store.DiscoveryCapability
	for rows.Next() {
		var c store.DiscoveryCapability
		var kind string
		if err := rows.Scan(&c.TenantID, &c.ID, &c.Name, &kind, &c.FirstSeenAt, &c.LastSeenAt); err != nil {
			return nil, err
		}
		c.Kind = store.DiscoveryCapabilityKind(kind)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) GetTrustScore(ctx context.Context, tenantID, agentID string) (*store.TrustScore, error) {
	var t store.TrustScore
	var factorsJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT tenant_id, agent_id, score, updated_at, factors FROM trust_scores WHERE tenant_id=$1 AND agent_id=$2
	`, tenantID, agentID).Scan(&t.TenantID, &t.AgentID, &t.Score, &t.UpdatedAt, &factorsJSON)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get trust score: %w", err)
	}
	if err := json.Unmarshal(factorsJSON, &t.Factors); err != nil {
		return nil, fmt.Errorf("postgres: decode trust score factors: %w", err)
	}
	return &t, nil
}

func (s *Store) PutTrustScore(ctx context.Context, tenantID string, score *store.TrustScore) error {
	factorsJSON, err := json.Marshal(score.Factors)
	if err != nil {
		return fmt.Errorf("postgres: encode trust score factors: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO trust_scores (tenant_id, agent_id, score, updated_at, factors)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (tenant_id, agent_id) DO UPDATE SET score=$3, updated_at=$4, factors=$5
	`, tenantID, score.AgentID, score.Score, score.UpdatedAt, factorsJSON)
	if err != nil {
		return fmt.Errorf("postgres: put trust score: %w", err)
	}
	return nil
}

func (s *Store) ListGuardrailRules(ctx context.Context, tenantID string) ([]*store.GuardrailRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, id, name, kind, "limit", enabled FROM guardrail_rules WHERE tenant_id=$1 ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list guardrail rules: %w", err)
	}
	defer rows.Close()
	var out []*store.GuardrailRule
	for rows.Next() {
		var g store.GuardrailRule
		var kind string
		if err := rows.Scan(&g.TenantID, &g.ID, &g.Name, &kind, &g.Limit, &g.Enabled); err != nil {
			return nil, err
		}
		g.Kind = store.GuardrailRuleKind(kind)
		out = append(out, &g)
	}
	return out, rows.Err()
}

func (s *Store) UpsertGuardrailRule(ctx context.Context, tenantID string, rule *store.GuardrailRule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO guardrail_rules (tenant_id, id, name, kind, "limit", enabled)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (tenant_id, id) DO UPDATE SET name=$3, kind=$4, "limit"=$5, enabled=$6
	`, tenantID, rule.ID, rule.Name, string(rule.Kind), rule.Limit, rule.Enabled)
	if err != nil {
		return fmt.Errorf("postgres: upsert guardrail rule: %w", err)
	}
	return nil
}

func (s *Store) WriteAuditLog(ctx context.Context, tenantID string, entry *store.AuditLogEntry) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("postgres: encode audit log details: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (tenant_id, id, action, actor_key_id, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, tenantID, entry.ID, entry.Action, entry.ActorKeyID, detailsJSON, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: write audit log: %w", err)
	}
	return nil
}

func (s *Store) ListAuditLog(ctx context.Context, tenantID string, from, to time.Time) ([]*store.AuditLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, id, action, actor_key_id, details, created_at
		FROM audit_log WHERE tenant_id=$1 AND created_at >= $2 AND created_at <= $3 ORDER BY created_at DESC
	`, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit log: %w", err)
	}
	defer rows.Close()
	var out []*store.AuditLogEntry
	for rows.Next() {
		var a store.AuditLogEntry
		var detailsJSON []byte
		if err := rows.Scan(&a.TenantID, &a.ID, &a.Action, &a.ActorKeyID, &detailsJSON, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(detailsJSON, &a.Details); err != nil {
			return nil, fmt.Errorf("postgres: decode audit log details: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *Store) ApplyRetention(ctx context.Context, tenantID string, eventsCutoff, auditCutoff time.Time) (int, int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: begin retention tx: %w", err)
	}
	defer tx.Rollback(ctx)

	eventsTag, err := tx.Exec(ctx, `DELETE FROM events WHERE tenant_id=$1 AND timestamp < $2`, tenantID, eventsCutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: purge events: %w", err)
	}
	auditTag, err := tx.Exec(ctx, `DELETE FROM audit_log WHERE tenant_id=$1 AND created_at < $2`, tenantID, auditCutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("postgres: purge audit log: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("postgres: commit retention tx: %w", err)
	}
	return int(eventsTag.RowsAffected()), int(auditTag.RowsAffected()), nil
}

func (s *Store) GetStats(ctx context.Context, tenantID string) (*store.Stats, error) {
	var stats store.Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM events WHERE tenant_id=$1),
			(SELECT count(*) FROM sessions WHERE tenant_id=$1),
			(SELECT count(*) FROM agents WHERE tenant_id=$1)
	`, tenantID).Scan(&stats.TotalEvents, &stats.TotalSessions, &stats.TotalAgents)
	if err != nil {
		return nil, fmt.Errorf("postgres: get stats: %w", err)
	}
	return &stats, nil
}

func (s *Store) ActiveTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id FROM (
			SELECT DISTINCT tenant_id FROM events
			UNION
			SELECT DISTINCT tenant_id FROM sessions
		) t ORDER BY tenant_id
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: active tenant ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, err
		}
		out = append(out, tenantID)
	}
	return out, rows.Err()
}
