package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/agentlensio/agentlens/pkg/bus"
	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

// evaluateAlerts checks the tenant's enabled alert rules against the
// batch just inserted: for each rule, count matching events within
// the rule's trailing window and fire an AlertHistory (emitting
// alert_triggered on the bus) the first time the count crosses
// thresholdCount within an still-open window.
func (p *Pipeline) evaluateAlerts(ctx context.Context, tenantID string, now time.Time, events []*eventlog.Event) {
	rules, err := p.store.ListAlertRules(ctx, tenantID)
	if err != nil || len(rules) == 0 {
		return
	}

	for _, rule := range rules {
		if !rule.Enabled || !ruleMatchesAny(rule, events) {
			continue
		}

		windowStart := now.Add(-time.Duration(rule.WindowSeconds) * time.Second)
		filter := store.EventFilter{From: &windowStart, To: &now}
		if rule.EventType != "" {
			filter.EventTypes = []eventlog.EventType{rule.EventType}
		}
		if rule.Severity != "" {
			filter.Severities = []eventlog.Severity{rule.Severity}
		}
		count, err := p.store.CountEvents(ctx, tenantID, filter)
		if err != nil || count < rule.ThresholdCount {
			continue
		}

		if p.alreadyFiring(ctx, tenantID, rule.ID, windowStart, now) {
			continue
		}

		history := &store.AlertHistory{
			ID:           uuid.NewString(),
			RuleID:       rule.ID,
			FiredAt:      now,
			WindowStart:  windowStart,
			WindowEnd:    now,
			MatchedCount: count,
		}
		if err := p.store.RecordAlertHistory(ctx, tenantID, history); err != nil {
			continue
		}
		if p.bus != nil {
			p.bus.Publish(bus.Message{
				Type:         bus.MessageAlertTriggered,
				TenantID:     tenantID,
				Timestamp:    now,
				AlertRule:    rule,
				AlertHistory: history,
			})
		}
	}
}

func ruleMatchesAny(rule *store.AlertRule, events []*eventlog.Event) bool {
	for _, e := range events {
		if rule.EventType != "" && e.EventType != rule.EventType {
			continue
		}
		if rule.Severity != "" && e.Severity != rule.Severity {
			continue
		}
		return true
	}
	return false
}

// alreadyFiring reports whether the rule already has an unresolved
// history entry whose window overlaps [windowStart, now) — a cheap
// de-duplication so a sustained threshold breach does not re-fire on
// every subsequent batch within the same window.
func (p *Pipeline) alreadyFiring(ctx context.Context, tenantID, ruleID string, windowStart, now time.Time) bool {
	history, err := p.store.ListAlertHistory(ctx, tenantID, ruleID)
	if err != nil {
		return false
	}
	for _, h := range history {
		if h.ResolvedAt == nil && h.WindowEnd.After(windowStart) {
			return true
		}
	}
	return false
}
