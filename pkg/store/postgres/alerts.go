package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

func (s *Store) CreateAlertRule(ctx context.Context, tenantID string, rule *store.AlertRule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_rules (tenant_id, id, name, event_type, severity, threshold_count, window_seconds, enabled, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name=$3, event_type=$4, severity=$5, threshold_count=$6, window_seconds=$7, enabled=$8, updated_at=now()
	`, tenantID, rule.ID, rule.Name, string(rule.EventType), string(rule.Severity), rule.ThresholdCount, rule.WindowSeconds, rule.Enabled)
	if err != nil {
		return fmt.Errorf("postgres: create alert rule: %w", err)
	}
	return nil
}

func scanAlertRule(row rowScanner) (*store.AlertRule, error) {
	var r store.AlertRule
	var eventType, severity string
	if err := row.Scan(&r.TenantID, &r.ID, &r.Name, &eventType, &severity, &r.ThresholdCount, &r.WindowSeconds, &r.Enabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.EventType = eventlog.EventType(eventType)
	r.Severity = eventlog.Severity(severity)
	return &r, nil
}

const alertRuleColumns = `tenant_id, id, name, event_type, severity, threshold_count, window_seconds, enabled, created_at, updated_at`

func (s *Store) ListAlertRules(ctx context.Context, tenantID string) ([]*store.AlertRule, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+alertRuleColumns+` FROM alert_rules WHERE tenant_id=$1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alert rules: %w", err)
	}
	defer rows.Close()
	var rules []*store.AlertRule
	for rows.Next() {
		r, err := scanAlertRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) GetAlertRule(ctx context.Context, tenantID, ruleID string) (*store.AlertRule, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+alertRuleColumns+` FROM alert_rules WHERE tenant_id=$1 AND id=$2`, tenantID, ruleID)
	r, err := scanAlertRule(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get alert rule: %w", err)
	}
	return r, nil
}

func (s *Store) DeleteAlertRule(ctx context.Context, tenantID, ruleID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM alert_rules WHERE tenant_id=$1 AND id=$2`, tenantID, ruleID)
	if err != nil {
		return fmt.Errorf("postgres: delete alert rule: %w", err)
	}
	return nil
}

func (s *Store) RecordAlertHistory(ctx context.Context, tenantID string, history *store.AlertHistory) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alert_history (tenant_id, id, rule_id, fired_at, window_start, window_end, matched_count, resolved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, tenantID, history.ID, history.RuleID, history.FiredAt, history.WindowStart, history.WindowEnd, history.MatchedCount, history.ResolvedAt)
	if err != nil {
		return fmt.Errorf("postgres: record alert history: %w", err)
	}
	return nil
}

func (s *Store) ListAlertHistory(ctx context.Context, tenantID, ruleID string) ([]*store.AlertHistory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT tenant_id, id, rule_id, fired_at, window_start, window_end, matched_count, resolved_at
		FROM alert_history WHERE tenant_id=$1 AND rule_id=$2 ORDER BY fired_at DESC
	`, tenantID, ruleID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alert history: %w", err)
	}
	defer rows.Close()
	var out []*store.AlertHistory
	for rows.Next() {
		var h store.AlertHistory
		if err := rows.Scan(&h.TenantID, &h.ID, &h.RuleID, &h.FiredAt, &h.WindowStart, &h.WindowEnd, &h.MatchedCount, &h.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}
