package ingest

import (
	"context"
	"fmt"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

// evaluateGuardrails checks the batch's events and the post-batch
// session aggregates against the tenant's enabled guardrail rules
// (§3 NEW GuardrailRule), returning one Warning per breach. Guardrails
// share the alert rules' threshold-crossing mechanism but attach a
// warning to the triggering session instead of firing a standalone
// alert.
func (p *Pipeline) evaluateGuardrails(ctx context.Context, tenantID string, events []*eventlog.Event) []Warning {
	rules, err := p.store.ListGuardrailRules(ctx, tenantID)
	if err != nil || len(rules) == 0 {
		return nil
	}

	var warnings []Warning
	checkedSessions := make(map[string]*store.Session)

	for _, e := range events {
		for _, rule := range rules {
			if !rule.Enabled {
				continue
			}
			switch rule.Kind {
			case store.GuardrailBlockedTool:
				if e.EventType != eventlog.EventToolCall {
					continue
				}
				toolName, _ := e.Payload.Get("toolName")
				if name, ok := toolName.(string); ok && name == rule.Name {
					warnings = append(warnings, Warning{
						SessionID: e.SessionID,
						Kind:      string(store.GuardrailBlockedTool),
						Detail:    fmt.Sprintf("blocked tool %q invoked", name),
					})
				}
			case store.GuardrailMaxCostPerSession, store.GuardrailMaxToolCallsPerSession:
				sess, ok := checkedSessions[e.SessionID]
				if !ok {
					sess, err = p.store.GetSession(ctx, tenantID, e.SessionID)
					if err != nil {
						continue
					}
					checkedSessions[e.SessionID] = sess
				}
				if rule.Kind == store.GuardrailMaxCostPerSession && sess.TotalCostUsd > rule.Limit {
					warnings = append(warnings, Warning{
						SessionID: e.SessionID,
						Kind:      string(store.GuardrailMaxCostPerSession),
						Detail:    fmt.Sprintf("session cost %.4f exceeds limit %.4f", sess.TotalCostUsd, rule.Limit),
					})
				}
				if rule.Kind == store.GuardrailMaxToolCallsPerSession && float64(sess.ToolCallCount) > rule.Limit {
					warnings = append(warnings, Warning{
						SessionID: e.SessionID,
						Kind:      string(store.GuardrailMaxToolCallsPerSession),
						Detail:    fmt.Sprintf("session tool call count %d exceeds limit %.0f", sess.ToolCallCount, rule.Limit),
					})
				}
			}
		}
	}
	return warnings
}
