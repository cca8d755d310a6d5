package replay_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlensio/agentlens/pkg/bus"
	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/ingest"
	"github.com/agentlensio/agentlens/pkg/ratelimit"
	"github.com/agentlensio/agentlens/pkg/replay"
	"github.com/agentlensio/agentlens/pkg/store"
	"github.com/agentlensio/agentlens/pkg/store/memstore"
)

const (
	testTenant = "tenant-1"
	testAgent  = "agent-1"
)

// buildSession ingests a realistic nine-event session through the real
// ingestion pipeline so its hash chain is genuine, rather than hand
// forging hashes in the test.
func buildSession(t *testing.T, extra ...func(now time.Time) ingest.EventInput) (store.Store, time.Time) {
	t.Helper()
	s := memstore.New()
	p := ingest.New(s, bus.New(), nil)
	now := time.Now().UTC()
	at := func(offsetMs int) *time.Time {
		ts := now.Add(time.Duration(offsetMs) * time.Millisecond)
		return &ts
	}

	events := []ingest.EventInput{
		{
			Timestamp: at(0), SessionID: "sess-1", AgentID: testAgent,
			EventType: eventlog.EventSessionStarted,
			Payload:   eventlog.OrderedMapFromMap(map[string]any{"agentName": "test-agent"}),
		},
		{
			Timestamp: at(10), SessionID: "sess-1", AgentID: testAgent,
			EventType: eventlog.EventToolCall,
			Payload: eventlog.OrderedMapFromMap(map[string]any{
				"toolName": "search", "callId": "call-1", "arguments": map[string]any{"q": "x"},
			}),
		},
		{
			Timestamp: at(50_010), SessionID: "sess-1", AgentID: testAgent,
			EventType: eventlog.EventToolResponse,
			Payload:   eventlog.OrderedMapFromMap(map[string]any{"callId": "call-1", "response": "results"}),
		},
		{
			Timestamp: at(50_020), SessionID: "sess-1", AgentID: testAgent,
			EventType: eventlog.EventLLMCall,
			Payload: eventlog.OrderedMapFromMap(map[string]any{
				"callId": "call-2", "provider": "openai", "model": "gpt-5", "messages": "hello",
			}),
		},
		{
			Timestamp: at(50_030), SessionID: "sess-1", AgentID: testAgent,
			EventType: eventlog.EventLLMResponse,
			Payload: eventlog.OrderedMapFromMap(map[string]any{
				"callId": "call-2", "completion": "answer", "costUsd": 0.5, "latencyMs": 120,
			}),
		},
		{
			Timestamp: at(50_040), SessionID: "sess-1", AgentID: testAgent,
			EventType: eventlog.EventCostTracked,
			Payload: eventlog.OrderedMapFromMap(map[string]any{
				"provider": "openai", "model": "gpt-5", "inputTokens": 10, "outputTokens": 20,
				"totalTokens": 30, "costUsd": 0.25,
			}),
		},
		{
			Timestamp: at(50_050), SessionID: "sess-1", AgentID: testAgent,
			EventType: eventlog.EventApprovalRequested,
			Payload:   eventlog.OrderedMapFromMap(map[string]any{"requestId": "req-1"}),
		},
		{
			Timestamp: at(50_060), SessionID: "sess-1", AgentID: testAgent,
			EventType: eventlog.EventApprovalGranted,
			Payload:   eventlog.OrderedMapFromMap(map[string]any{"requestId": "req-1"}),
		},
		{
			Timestamp: at(50_070), SessionID: "sess-1", AgentID: testAgent,
			EventType: eventlog.EventSessionEnded,
			Payload:   eventlog.OrderedMapFromMap(map[string]any{"reason": "completed"}),
		},
	}
	for _, f := range extra {
		events = append(events, f(now))
	}

	_, err := p.IngestBatch(context.Background(), now, ratelimit.TierFree, ingest.BatchInput{
		TenantID: testTenant, Events: events,
	})
	require.NoError(t, err)
	return s, now
}

func TestBuild_SummaryAndChainValidity(t *testing.T) {
	s, _ := buildSession(t)

	state, err := replay.Build(context.Background(), s, testTenant, "sess-1", replay.Options{IncludeContext: true})
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.True(t, state.ChainValid)
	assert.Equal(t, 9, state.FilteredTotal)
	assert.Len(t, state.Steps, 9)
	assert.False(t, state.HasMore)

	assert.InDelta(t, 0.75, state.Summary.TotalCostUsd, 1e-9)
	assert.Equal(t, 1, state.Summary.LLMCallCount)
	assert.Equal(t, 1, state.Summary.ToolCallCount)
	assert.Equal(t, 0, state.Summary.ErrorCount)
	assert.Equal(t, []string{"gpt-5"}, state.Summary.Models)
	assert.Equal(t, []string{"search"}, state.Summary.Tools)
	assert.Equal(t, int64(50_070), state.Summary.TotalDurationMs)
}

func TestBuild_MissingSessionReturnsNil(t *testing.T) {
	s := memstore.New()
	state, err := replay.Build(context.Background(), s, testTenant, "does-not-exist", replay.Options{})
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestBuild_ContextPropagation(t *testing.T) {
	s, _ := buildSession(t)

	state, err := replay.Build(context.Background(), s, testTenant, "sess-1", replay.Options{IncludeContext: true})
	require.NoError(t, err)
	require.NotNil(t, state)

	last := state.Steps[len(state.Steps)-1].Context
	require.Len(t, last.ToolResults, 1)
	assert.True(t, last.ToolResults[0].Completed)
	assert.Equal(t, "results", last.ToolResults[0].Response)

	require.Len(t, last.LLMHistory, 1)
	assert.True(t, last.LLMHistory[0].Completed)
	assert.Equal(t, "answer", last.LLMHistory[0].Response)
	assert.InDelta(t, 0.5, last.LLMHistory[0].CostUsd, 1e-9)

	require.Len(t, last.PendingApprovals, 1)
	assert.Equal(t, "granted", last.PendingApprovals[0].Status)

	assert.InDelta(t, 0.75, last.CumulativeCostUsd, 1e-9)

	// The slow-tool warning fires: call-1's pair duration is 50s.
	found := false
	for _, w := range last.Warnings {
		if w != "" {
			found = true
		}
	}
	assert.True(t, found, "expected at least one propagated warning")
}

func TestBuild_IncludeContextFalseEmitsEmptyContexts(t *testing.T) {
	s, _ := buildSession(t)

	state, err := replay.Build(context.Background(), s, testTenant, "sess-1", replay.Options{IncludeContext: false})
	require.NoError(t, err)
	require.NotNil(t, state)

	for _, step := range state.Steps {
		assert.Empty(t, step.Context.LLMHistory)
		assert.Empty(t, step.Context.ToolResults)
		assert.Empty(t, step.Context.PendingApprovals)
	}
	// The summary is still computed from the full list regardless.
	assert.Equal(t, 1, state.Summary.ToolCallCount)
}

func TestBuild_EventTypeFilterNarrowsStepsNotSummary(t *testing.T) {
	s, _ := buildSession(t)

	state, err := replay.Build(context.Background(), s, testTenant, "sess-1", replay.Options{
		IncludeContext: true,
		EventTypes:     []eventlog.EventType{eventlog.EventToolCall, eventlog.EventToolResponse},
	})
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.Equal(t, 2, state.FilteredTotal)
	assert.Len(t, state.Steps, 2)
	// Summary always reflects the full, unfiltered timeline.
	assert.Equal(t, 1, state.Summary.LLMCallCount)
}

func TestBuild_PaginationHasMore(t *testing.T) {
	s, _ := buildSession(t)

	state, err := replay.Build(context.Background(), s, testTenant, "sess-1", replay.Options{Offset: 0, Limit: 3})
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Len(t, state.Steps, 3)
	assert.True(t, state.HasMore)
	assert.Equal(t, 1, state.Steps[0].EventIndex)
	assert.Equal(t, 3, state.Steps[2].EventIndex)
}

func TestBuild_RedactsMessageContent(t *testing.T) {
	s := memstore.New()
	p := ingest.New(s, bus.New(), nil)
	now := time.Now().UTC()

	_, err := p.IngestBatch(context.Background(), now, ratelimit.TierFree, ingest.BatchInput{
		TenantID: testTenant,
		Events: []ingest.EventInput{
			{
				Timestamp: &now, SessionID: "sess-2", AgentID: testAgent,
				EventType: eventlog.EventLLMCall,
				Payload: eventlog.OrderedMapFromMap(map[string]any{
					"callId": "call-9", "provider": "openai", "model": "gpt-5",
					"messages": "hello there", "redacted": true,
				}),
			},
			{
				Timestamp: &now, SessionID: "sess-2", AgentID: testAgent,
				EventType: eventlog.EventLLMResponse,
				Payload: eventlog.OrderedMapFromMap(map[string]any{
					"callId": "call-9", "completion": "the secret answer", "redacted": true,
				}),
			},
		},
	})
	require.NoError(t, err)

	state, err := replay.Build(context.Background(), s, testTenant, "sess-2", replay.Options{IncludeContext: true})
	require.NoError(t, err)
	require.NotNil(t, state)

	callPayload := state.Steps[0].Event.Payload
	messages, _ := callPayload.Get("messages")
	assert.Equal(t, eventlog.RedactedPlaceholder, messages)

	responsePayload := state.Steps[1].Event.Payload
	completion, _ := responsePayload.Get("completion")
	assert.Equal(t, eventlog.RedactedPlaceholder, completion)

	last := state.Steps[len(state.Steps)-1].Context
	require.Len(t, last.LLMHistory, 1)
	assert.Equal(t, eventlog.RedactedPlaceholder, last.LLMHistory[0].Messages)
	assert.Equal(t, eventlog.RedactedPlaceholder, last.LLMHistory[0].Response)
}

func TestCache_RoundTripAndCaps(t *testing.T) {
	cache := replay.NewCache(10, time.Minute)

	state := &replay.ReplayState{
		TenantID:  testTenant,
		SessionID: "sess-1",
		Steps: []*replay.Step{
			{EventIndex: 1, Event: &eventlog.Event{}, Context: &replay.Context{
				EventCounts: map[eventlog.EventType]int{},
			}},
		},
	}
	for i := 0; i < 60; i++ {
		state.Steps[0].Context.LLMHistory = append(state.Steps[0].Context.LLMHistory, &replay.LLMHistoryEntry{CallID: "c"})
	}

	cache.Put(testTenant, "sess-1", state)
	got, ok := cache.Get(testTenant, "sess-1")
	require.True(t, ok)
	assert.Len(t, got.Steps[0].Context.LLMHistory, 50)

	// The original, uncapped state passed to Put must not be mutated.
	assert.Len(t, state.Steps[0].Context.LLMHistory, 60)

	_, ok = cache.Get(testTenant, "does-not-exist")
	assert.False(t, ok)

	cache.Purge()
	_, ok = cache.Get(testTenant, "sess-1")
	assert.False(t, ok)
}
