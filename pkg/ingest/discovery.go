package ingest

import (
	"context"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

// upsertDiscoveryCapabilities derives DiscoveryCapability rows from
// distinct tool_call.toolName / llm_call.model values seen in the
// batch, the same way Agent rows are derived from sessions touched
// (§3 NEW).
func (p *Pipeline) upsertDiscoveryCapabilities(ctx context.Context, tenantID string, events []*eventlog.Event) {
	for _, e := range events {
		var name string
		var kind store.DiscoveryCapabilityKind
		switch e.EventType {
		case eventlog.EventToolCall:
			if v, ok := e.Payload.Get("toolName"); ok {
				name, _ = v.(string)
			}
			kind = store.CapabilityKindTool
		case eventlog.EventLLMCall:
			if v, ok := e.Payload.Get("model"); ok {
				name, _ = v.(string)
			}
			kind = store.CapabilityKindModel
		default:
			continue
		}
		if name == "" {
			continue
		}
		_ = p.store.UpsertDiscoveryCapability(ctx, tenantID, &store.DiscoveryCapability{
			ID:          string(kind) + ":" + name,
			Name:        name,
			Kind:        kind,
			FirstSeenAt: e.Timestamp,
			LastSeenAt:  e.Timestamp,
		})
	}
}
