// Package storetest is a shared conformance suite run against every
// store.Store backend (memstore, postgres) so tenant-isolation and
// atomicity guarantees are proven once and enforced everywhere.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

func om(t *testing.T, json string) *eventlog.OrderedMap {
	t.Helper()
	m, err := eventlog.OrderedMapFromJSON([]byte(json))
	require.NoError(t, err)
	return m
}

func newEvent(t *testing.T, tenantID, sessionID, agentID string, ts time.Time, prevHash *string) *eventlog.Event {
	t.Helper()
	e := &eventlog.Event{
		ID:        "ev-" + ts.Format(time.RFC3339Nano),
		Timestamp: ts,
		SessionID: sessionID,
		AgentID:   agentID,
		TenantID:  tenantID,
		EventType: eventlog.EventCustom,
		Severity:  eventlog.SeverityInfo,
		Payload:   om(t, `{}`),
		Metadata:  om(t, `{}`),
		PrevHash:  prevHash,
	}
	h, err := eventlog.ComputeHash(e)
	require.NoError(t, err)
	e.Hash = h
	return e
}

// RunConformance exercises every backend's core contract: insert/read
// round trip, tenant isolation (P3), and retention cutoff semantics
// (P9). Call it from each backend's own test file with a fresh Store.
func RunConformance(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("InsertAndQuery", func(t *testing.T) { testInsertAndQuery(t, newStore(t)) })
	t.Run("TenantIsolation", func(t *testing.T) { testTenantIsolation(t, newStore(t)) })
	t.Run("SessionAggregates", func(t *testing.T) { testSessionAggregates(t, newStore(t)) })
	t.Run("RetentionCutoff", func(t *testing.T) { testRetentionCutoff(t, newStore(t)) })
}

func testInsertAndQuery(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e1 := newEvent(t, "t_a", "sess-1", "agent-1", base, nil)
	h := e1.Hash
	e2 := newEvent(t, "t_a", "sess-1", "agent-1", base.Add(time.Second), &h)

	require.NoError(t, s.InsertEvents(ctx, "t_a", []*eventlog.Event{e1, e2}))

	got, err := s.GetEvent(ctx, "t_a", e1.ID)
	require.NoError(t, err)
	require.Equal(t, e1.Hash, got.Hash)

	timeline, err := s.GetSessionTimeline(ctx, "t_a", "sess-1")
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	require.True(t, timeline[0].Timestamp.Before(timeline[1].Timestamp))

	lastHash, err := s.GetLastEventHash(ctx, "t_a", "sess-1")
	require.NoError(t, err)
	require.NotNil(t, lastHash)
	require.Equal(t, e2.Hash, *lastHash)
}

// testTenantIsolation proves P3: tenant A's reads never surface tenant
// B's rows, even for an identical sessionId/agentId pair (scenario 2).
func testTenantIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	eA1 := newEvent(t, "t_a", "shared", "shared", base, nil)
	eA2 := newEvent(t, "t_a", "shared", "shared", base.Add(time.Second), strPtr(eA1.Hash))
	eB1 := newEvent(t, "t_b", "shared", "shared", base, nil)
	eB2 := newEvent(t, "t_b", "shared", "shared", base.Add(time.Second), strPtr(eB1.Hash))

	require.NoError(t, s.InsertEvents(ctx, "t_a", []*eventlog.Event{eA1, eA2}))
	require.NoError(t, s.InsertEvents(ctx, "t_b", []*eventlog.Event{eB1, eB2}))

	timelineA, err := s.GetSessionTimeline(ctx, "t_a", "shared")
	require.NoError(t, err)
	require.Len(t, timelineA, 2)
	for _, e := range timelineA {
		require.Equal(t, "t_a", e.TenantID)
	}

	timelineB, err := s.GetSessionTimeline(ctx, "t_b", "shared")
	require.NoError(t, err)
	require.Len(t, timelineB, 2)

	agentsA, err := s.ListAgents(ctx, "t_a")
	require.NoError(t, err)
	require.Len(t, agentsA, 1)
	require.Equal(t, 1, agentsA[0].SessionCount)

	agentsB, err := s.ListAgents(ctx, "t_b")
	require.NoError(t, err)
	require.Len(t, agentsB, 1)

	_, err = s.GetEvent(ctx, "t_b", eA1.ID)
	require.Error(t, err, "tenant B must not be able to read tenant A's event by id")
}

func testSessionAggregates(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	started := newEvent(t, "t_a", "sess-1", "agent-1", base, nil)
	started.EventType = eventlog.EventSessionStarted

	toolCall := newEvent(t, "t_a", "sess-1", "agent-1", base.Add(time.Second), strPtr(started.Hash))
	toolCall.EventType = eventlog.EventToolCall
	toolCall.Payload = om(t, `{"toolName":"search","callId":"c1","arguments":{}}`)
	h, err := eventlog.ComputeHash(toolCall)
	require.NoError(t, err)
	toolCall.Hash = h

	toolResp := newEvent(t, "t_a", "sess-1", "agent-1", base.Add(2*time.Second), strPtr(toolCall.Hash))
	toolResp.EventType = eventlog.EventToolResponse
	toolResp.Payload = om(t, `{"callId":"c1"}`)
	h2, err := eventlog.ComputeHash(toolResp)
	require.NoError(t, err)
	toolResp.Hash = h2

	require.NoError(t, s.InsertEvents(ctx, "t_a", []*eventlog.Event{started, toolCall, toolResp}))

	sess, err := s.GetSession(ctx, "t_a", "sess-1")
	require.NoError(t, err)
	require.Equal(t, 3, sess.EventCount)
	require.Equal(t, 1, sess.ToolCallCount)
	require.Equal(t, store.SessionActive, sess.Status)
}

// testRetentionCutoff proves P9: after a purge with cutoff c, nothing
// older survives and nothing at-or-after c is removed.
func testRetentionCutoff(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cutoff := base.Add(5 * 24 * time.Hour)

	var events []*eventlog.Event
	var prev *string
	for i := 0; i < 10; i++ {
		e := newEvent(t, "t_a", "sess-1", "agent-1", base.Add(time.Duration(i)*24*time.Hour), prev)
		events = append(events, e)
		h := e.Hash
		prev = &h
	}
	require.NoError(t, s.InsertEvents(ctx, "t_a", events))

	deleted, _, err := s.ApplyRetention(ctx, "t_a", cutoff, cutoff)
	require.NoError(t, err)
	require.Equal(t, 5, deleted)

	remaining, err := s.GetSessionTimeline(ctx, "t_a", "sess-1")
	require.NoError(t, err)
	require.Len(t, remaining, 5)
	for _, e := range remaining {
		require.False(t, e.Timestamp.Before(cutoff))
	}
}

func strPtr(s string) *string { return &s }
