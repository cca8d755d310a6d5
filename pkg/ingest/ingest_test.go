package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlensio/agentlens/pkg/bus"
	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/ratelimit"
	"github.com/agentlensio/agentlens/pkg/store"
	"github.com/agentlensio/agentlens/pkg/store/memstore"
)

const testTenant = "tenant-1"

func toolCallInput(sessionID, agentID, callID, toolName string, ts time.Time) EventInput {
	return EventInput{
		Timestamp: &ts,
		SessionID: sessionID,
		AgentID:   agentID,
		EventType: eventlog.EventToolCall,
		Payload: eventlog.OrderedMapFromMap(map[string]any{
			"toolName":  toolName,
			"callId":    callID,
			"arguments": map[string]any{},
		}),
	}
}

func sessionStartedInput(sessionID, agentID string, ts time.Time) EventInput {
	return EventInput{
		Timestamp: &ts,
		SessionID: sessionID,
		AgentID:   agentID,
		EventType: eventlog.EventSessionStarted,
		Payload:   eventlog.OrderedMapFromMap(map[string]any{"agentName": "test-agent"}),
	}
}

func toolResponseInput(sessionID, agentID, callID string, ts time.Time) EventInput {
	return EventInput{
		Timestamp: &ts,
		SessionID: sessionID,
		AgentID:   agentID,
		EventType: eventlog.EventToolResponse,
		Payload:   eventlog.OrderedMapFromMap(map[string]any{"callId": callID}),
	}
}

// TestIngestBatch_SingleSessionChain grounds the single-session scenario:
// three events land with prevHash null, h0, h1 in arrival order, and the
// session aggregate reflects eventCount=3, toolCallCount=1, status=active.
func TestIngestBatch_SingleSessionChain(t *testing.T) {
	s := memstore.New()
	p := New(s, bus.New(), nil)
	now := time.Now().UTC()

	res, err := p.IngestBatch(context.Background(), now, ratelimit.TierFree, BatchInput{
		TenantID: testTenant,
		OrgID:    "org-1",
		APIKeyID: "key-1",
		Events: []EventInput{
			sessionStartedInput("sess-1", "agent-1", now),
			toolCallInput("sess-1", "agent-1", "call-1", "search", now.Add(time.Second)),
			toolResponseInput("sess-1", "agent-1", "call-1", now.Add(2*time.Second)),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 3)

	assert.Nil(t, res.Events[0].PrevHash)
	require.NotNil(t, res.Events[1].PrevHash)
	assert.Equal(t, res.Events[0].Hash, *res.Events[1].PrevHash)
	require.NotNil(t, res.Events[2].PrevHash)
	assert.Equal(t, res.Events[1].Hash, *res.Events[2].PrevHash)

	sess, err := s.GetSession(context.Background(), testTenant, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 3, sess.EventCount)
	assert.Equal(t, 1, sess.ToolCallCount)
	assert.Equal(t, store.SessionActive, sess.Status)
}

// TestIngestBatch_ValidationFailureWritesNothing covers failure case (a):
// a bad batch is rejected wholesale and nothing lands in the store.
func TestIngestBatch_ValidationFailureWritesNothing(t *testing.T) {
	s := memstore.New()
	p := New(s, bus.New(), nil)
	now := time.Now().UTC()

	_, err := p.IngestBatch(context.Background(), now, ratelimit.TierFree, BatchInput{
		TenantID: testTenant,
		Events: []EventInput{
			sessionStartedInput("sess-1", "agent-1", now),
			{
				Timestamp: &now,
				SessionID: "sess-1",
				AgentID:   "agent-1",
				EventType: "not_a_real_type",
			},
		},
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	_, getErr := s.GetSession(context.Background(), testTenant, "sess-1")
	assert.ErrorIs(t, getErr, store.ErrNotFound)
}

// TestIngestBatch_RateLimitedWritesNothing covers failure case (b).
func TestIngestBatch_RateLimitedWritesNothing(t *testing.T) {
	s := memstore.New()
	limiter := ratelimit.New()
	limiter.SetOverride("key-1", 1)
	p := New(s, bus.New(), limiter)
	now := time.Now().UTC()

	_, err := p.IngestBatch(context.Background(), now, ratelimit.TierFree, BatchInput{
		TenantID: testTenant,
		OrgID:    "org-1",
		APIKeyID: "key-1",
		Events: []EventInput{
			sessionStartedInput("sess-1", "agent-1", now),
			toolCallInput("sess-1", "agent-1", "call-1", "search", now),
		},
	})
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))

	_, getErr := s.GetSession(context.Background(), testTenant, "sess-1")
	assert.ErrorIs(t, getErr, store.ErrNotFound)
}

// TestIngestBatch_ConcurrentWritersSerializePerSession grounds P5:
// N concurrent batches targeting the same session produce a chain whose
// length equals the sum of the batch sizes, with every prevHash/hash link
// intact end to end.
func TestIngestBatch_ConcurrentWritersSerializePerSession(t *testing.T) {
	s := memstore.New()
	p := New(s, bus.New(), nil)
	now := time.Now().UTC()

	const writers = 8
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			ts := now.Add(time.Duration(i) * time.Millisecond)
			_, err := p.IngestBatch(context.Background(), ts, ratelimit.TierFree, BatchInput{
				TenantID: testTenant,
				Events: []EventInput{
					toolCallInput("shared-session", "agent-1", "call", "search", ts),
				},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	sess, err := s.GetSession(context.Background(), testTenant, "shared-session")
	require.NoError(t, err)
	assert.Equal(t, writers, sess.EventCount)

	timeline, err := s.GetSessionTimeline(context.Background(), testTenant, "shared-session")
	require.NoError(t, err)
	require.Len(t, timeline, writers)

	seen := map[string]bool{"": true}
	for _, e := range timeline {
		prev := ""
		if e.PrevHash != nil {
			prev = *e.PrevHash
		}
		assert.True(t, seen[prev], "event %s chains off an unseen hash", e.ID)
		seen[e.Hash] = true
	}
}

// TestIngestBatch_TruncatesOversizedPayload covers the §4.3 payload
// byte cap: oversized payload.data is truncated with a flag, not
// rejected.
func TestIngestBatch_TruncatesOversizedPayload(t *testing.T) {
	s := memstore.New()
	p := New(s, bus.New(), nil)
	p.maxPayloadBytes = 8
	now := time.Now().UTC()

	res, err := p.IngestBatch(context.Background(), now, ratelimit.TierFree, BatchInput{
		TenantID: testTenant,
		Events: []EventInput{
			{
				Timestamp: &now,
				SessionID: "sess-1",
				AgentID:   "agent-1",
				EventType: eventlog.EventCustom,
				Payload:   eventlog.OrderedMapFromMap(map[string]any{"data": "0123456789ABCDEF"}),
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TruncatedPayloads)

	data, _ := res.Events[0].Payload.Get("data")
	assert.Equal(t, "01234567", data)
	truncated, _ := res.Events[0].Payload.Get("truncated")
	assert.Equal(t, true, truncated)
}

// TestIngestBatch_GuardrailBlockedToolWarns grounds the blocked_tool
// guardrail kind: GuardrailRule.Name carries the blocked tool's name.
func TestIngestBatch_GuardrailBlockedToolWarns(t *testing.T) {
	s := memstore.New()
	require.NoError(t, s.UpsertGuardrailRule(context.Background(), testTenant, &store.GuardrailRule{
		ID:      "rule-1",
		Name:    "dangerous_tool",
		Kind:    store.GuardrailBlockedTool,
		Enabled: true,
	}))
	p := New(s, bus.New(), nil)
	now := time.Now().UTC()

	res, err := p.IngestBatch(context.Background(), now, ratelimit.TierFree, BatchInput{
		TenantID: testTenant,
		Events: []EventInput{
			toolCallInput("sess-1", "agent-1", "call-1", "dangerous_tool", now),
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "sess-1", res.Warnings[0].SessionID)
	assert.Equal(t, string(store.GuardrailBlockedTool), res.Warnings[0].Kind)
}

// TestIngestBatch_DerivesDiscoveryCapabilities covers tool_call/llm_call
// capability derivation into the discovery registry.
func TestIngestBatch_DerivesDiscoveryCapabilities(t *testing.T) {
	s := memstore.New()
	p := New(s, bus.New(), nil)
	now := time.Now().UTC()

	_, err := p.IngestBatch(context.Background(), now, ratelimit.TierFree, BatchInput{
		TenantID: testTenant,
		Events: []EventInput{
			toolCallInput("sess-1", "agent-1", "call-1", "search", now),
			{
				Timestamp: &now,
				SessionID: "sess-1",
				AgentID:   "agent-1",
				EventType: eventlog.EventLLMCall,
				Payload: eventlog.OrderedMapFromMap(map[string]any{
					"callId":   "call-2",
					"provider": "openai",
					"model":    "gpt-5",
				}),
			},
		},
	})
	require.NoError(t, err)

	caps, err := s.ListDiscoveryCapabilities(context.Background(), testTenant)
	require.NoError(t, err)
	kinds := map[store.DiscoveryCapabilityKind]string{}
	for _, c := range caps {
		kinds[c.Kind] = c.Name
	}
	assert.Equal(t, "search", kinds[store.CapabilityKindTool])
	assert.Equal(t, "gpt-5", kinds[store.CapabilityKindModel])
}

// TestIngestBatch_AlertFiresOnceThenDeduplicates grounds threshold-
// crossing alert evaluation and the within-window de-duplication that
// keeps a sustained breach from re-firing every batch.
func TestIngestBatch_AlertFiresOnceThenDeduplicates(t *testing.T) {
	s := memstore.New()
	require.NoError(t, s.CreateAlertRule(context.Background(), testTenant, &store.AlertRule{
		ID:             "rule-1",
		EventType:      eventlog.EventToolError,
		ThresholdCount: 2,
		WindowSeconds:  60,
		Enabled:        true,
	}))
	b := bus.New()
	alerts, unsubscribe := b.Subscribe(8)
	defer unsubscribe()

	p := New(s, b, nil)
	now := time.Now().UTC()

	errorInput := func(ts time.Time) EventInput {
		return EventInput{
			Timestamp: &ts,
			SessionID: "sess-1",
			AgentID:   "agent-1",
			EventType: eventlog.EventToolError,
			Payload:   eventlog.OrderedMapFromMap(map[string]any{"callId": "call-x"}),
		}
	}

	_, err := p.IngestBatch(context.Background(), now, ratelimit.TierFree, BatchInput{
		TenantID: testTenant,
		Events:   []EventInput{errorInput(now), errorInput(now.Add(time.Second))},
	})
	require.NoError(t, err)

	_, err = p.IngestBatch(context.Background(), now.Add(2*time.Second), ratelimit.TierFree, BatchInput{
		TenantID: testTenant,
		Events:   []EventInput{errorInput(now.Add(2 * time.Second))},
	})
	require.NoError(t, err)

	history, err := s.ListAlertHistory(context.Background(), testTenant, "rule-1")
	require.NoError(t, err)
	assert.Len(t, history, 1, "a sustained breach within the same window must not re-fire")

	fired := 0
	drain := true
	for drain {
		select {
		case m := <-alerts:
			if m.Type == bus.MessageAlertTriggered {
				fired++
			}
		default:
			drain = false
		}
	}
	assert.Equal(t, 1, fired)
}

// TestIngestBatch_EmitsEventIngestedAndSessionUpdated covers the bus
// emission side effects of a successful batch (§4.5).
func TestIngestBatch_EmitsEventIngestedAndSessionUpdated(t *testing.T) {
	s := memstore.New()
	b := bus.New()
	msgs, unsubscribe := b.Subscribe(8)
	defer unsubscribe()

	p := New(s, b, nil)
	now := time.Now().UTC()

	_, err := p.IngestBatch(context.Background(), now, ratelimit.TierFree, BatchInput{
		TenantID: testTenant,
		Events: []EventInput{
			sessionStartedInput("sess-1", "agent-1", now),
			toolCallInput("sess-1", "agent-1", "call-1", "search", now.Add(time.Second)),
		},
	})
	require.NoError(t, err)

	var ingested, updated int
	drain := true
	for drain {
		select {
		case m := <-msgs:
			switch m.Type {
			case bus.MessageEventIngested:
				ingested++
				assert.Equal(t, testTenant, m.TenantID)
			case bus.MessageSessionUpdated:
				updated++
			}
		default:
			drain = false
		}
	}
	assert.Equal(t, 2, ingested)
	assert.Equal(t, 1, updated)
}
