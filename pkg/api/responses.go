package api

import (
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/ingest"
	"github.com/agentlensio/agentlens/pkg/replay"
	"github.com/agentlensio/agentlens/pkg/store"
)

// The store package's domain types carry no JSON tags (they are
// persistence-layer types, not wire types — see pkg/exportimport's
// record wrappers for the established precedent). The view types below
// are this package's wire-level equivalent: tagged camelCase shapes
// the HTTP layer actually returns.

// ingestBatchResponse is `POST /api/events`'s 200 body.
type ingestBatchResponse struct {
	Inserted          int             `json:"inserted"`
	IDs               []string        `json:"ids"`
	TruncatedPayloads int             `json:"truncatedPayloads,omitempty"`
	Warnings          []ingestWarning `json:"warnings,omitempty"`
}

type ingestWarning struct {
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"`
	Detail    string `json:"detail"`
}

func toIngestBatchResponse(r *ingest.BatchResult) ingestBatchResponse {
	ids := make([]string, len(r.Events))
	for i, e := range r.Events {
		ids[i] = e.ID
	}
	warnings := make([]ingestWarning, len(r.Warnings))
	for i, w := range r.Warnings {
		warnings[i] = ingestWarning{SessionID: w.SessionID, Kind: w.Kind, Detail: w.Detail}
	}
	return ingestBatchResponse{
		Inserted:          len(r.Events),
		IDs:               ids,
		TruncatedPayloads: r.TruncatedPayloads,
		Warnings:          warnings,
	}
}

// eventListResponse is `GET /api/events`'s body.
type eventListResponse struct {
	Events  []*eventlog.Event `json:"events"`
	Total   int               `json:"total"`
	HasMore bool              `json:"hasMore"`
}

// timelineResponse is `GET /api/sessions/:id/timeline`'s body.
type timelineResponse struct {
	Events     []*eventlog.Event `json:"events"`
	ChainValid bool              `json:"chainValid"`
}

// sessionView is the tagged wire shape of a store.Session.
type sessionView struct {
	ID                string     `json:"id"`
	AgentID           string     `json:"agentId"`
	AgentName         string     `json:"agentName"`
	StartedAt         time.Time  `json:"startedAt"`
	EndedAt           *time.Time `json:"endedAt,omitempty"`
	Status            string     `json:"status"`
	EventCount        int        `json:"eventCount"`
	ToolCallCount     int        `json:"toolCallCount"`
	ErrorCount        int        `json:"errorCount"`
	LLMCallCount      int        `json:"llmCallCount"`
	TotalInputTokens  int64      `json:"totalInputTokens"`
	TotalOutputTokens int64      `json:"totalOutputTokens"`
	TotalCostUsd      float64    `json:"totalCostUsd"`
	Tags              []string   `json:"tags,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func toSessionView(s *store.Session) sessionView {
	return sessionView{
		ID:                s.ID,
		AgentID:           s.AgentID,
		AgentName:         s.AgentName,
		StartedAt:         s.StartedAt,
		EndedAt:           s.EndedAt,
		Status:            string(s.Status),
		EventCount:        s.EventCount,
		ToolCallCount:     s.ToolCallCount,
		ErrorCount:        s.ErrorCount,
		LLMCallCount:      s.LLMCallCount,
		TotalInputTokens:  s.TotalInputTokens,
		TotalOutputTokens: s.TotalOutputTokens,
		TotalCostUsd:      s.TotalCostUsd,
		Tags:              s.Tags,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

type sessionListResponse struct {
	Sessions []sessionView `json:"sessions"`
	Total    int           `json:"total"`
	HasMore  bool          `json:"hasMore"`
}

func toSessionListResponse(l *store.SessionList) sessionListResponse {
	views := make([]sessionView, len(l.Sessions))
	for i, s := range l.Sessions {
		views[i] = toSessionView(s)
	}
	return sessionListResponse{Sessions: views, Total: l.Total, HasMore: l.HasMore}
}

// statsResponse is `GET /api/stats`'s body.
type statsResponse struct {
	TotalEvents   int `json:"totalEvents"`
	TotalSessions int `json:"totalSessions"`
	TotalAgents   int `json:"totalAgents"`
}

func toStatsResponse(s *store.Stats) statsResponse {
	return statsResponse{TotalEvents: s.TotalEvents, TotalSessions: s.TotalSessions, TotalAgents: s.TotalAgents}
}

// analyticsBucketView and analyticsResponse mirror store.Analytics.
type analyticsBucketView struct {
	BucketStart    time.Time `json:"bucketStart"`
	EventCount     int       `json:"eventCount"`
	ToolCallCount  int       `json:"toolCallCount"`
	ErrorCount     int       `json:"errorCount"`
	AvgLatencyMs   float64   `json:"avgLatencyMs"`
	TotalCostUsd   float64   `json:"totalCostUsd"`
	UniqueSessions int       `json:"uniqueSessions"`
	UniqueAgents   int       `json:"uniqueAgents"`
}

type analyticsResponse struct {
	Buckets        []analyticsBucketView `json:"buckets"`
	TotalEvents    int                   `json:"totalEvents"`
	TotalToolCalls int                   `json:"totalToolCalls"`
	TotalErrors    int                   `json:"totalErrors"`
	TotalCostUsd   float64               `json:"totalCostUsd"`
	UniqueSessions int                   `json:"uniqueSessions"`
	UniqueAgents   int                   `json:"uniqueAgents"`
}

func toAnalyticsResponse(a *store.Analytics) analyticsResponse {
	buckets := make([]analyticsBucketView, len(a.Buckets))
	for i, b := range a.Buckets {
		buckets[i] = analyticsBucketView{
			BucketStart:    b.BucketStart,
			EventCount:     b.EventCount,
			ToolCallCount:  b.ToolCallCount,
			ErrorCount:     b.ErrorCount,
			AvgLatencyMs:   b.AvgLatencyMs,
			TotalCostUsd:   b.TotalCostUsd,
			UniqueSessions: b.UniqueSessions,
			UniqueAgents:   b.UniqueAgents,
		}
	}
	return analyticsResponse{
		Buckets:        buckets,
		TotalEvents:    a.TotalEvents,
		TotalToolCalls: a.TotalToolCalls,
		TotalErrors:    a.TotalErrors,
		TotalCostUsd:   a.TotalCostUsd,
		UniqueSessions: a.UniqueSessions,
		UniqueAgents:   a.UniqueAgents,
	}
}

// Replay wire shapes mirror pkg/replay's untagged result types.
type replayResponse struct {
	SessionID     string       `json:"sessionId"`
	ChainValid    bool         `json:"chainValid"`
	ChainReason   string       `json:"chainReason,omitempty"`
	Summary       replaySummary `json:"summary"`
	Steps         []replayStep `json:"steps"`
	Offset        int          `json:"offset"`
	Limit         int          `json:"limit"`
	FilteredTotal int          `json:"filteredTotal"`
	HasMore       bool         `json:"hasMore"`
}

type replaySummary struct {
	TotalCostUsd    float64  `json:"totalCostUsd"`
	TotalDurationMs int64    `json:"totalDurationMs"`
	LLMCallCount    int      `json:"llmCallCount"`
	ToolCallCount   int      `json:"toolCallCount"`
	ErrorCount      int      `json:"errorCount"`
	Models          []string `json:"models"`
	Tools           []string `json:"tools"`
}

type replayStep struct {
	EventIndex int             `json:"eventIndex"`
	Event      *eventlog.Event `json:"event"`
	Context    *replayContext  `json:"context,omitempty"`
}

type replayContext struct {
	EventIndex        int                          `json:"eventIndex"`
	TotalEvents       int                          `json:"totalEvents"`
	CumulativeCostUsd float64                      `json:"cumulativeCostUsd"`
	ElapsedMs         int64                        `json:"elapsedMs"`
	EventCounts       map[eventlog.EventType]int   `json:"eventCounts"`
	LLMHistory        []*replay.LLMHistoryEntry    `json:"llmHistory,omitempty"`
	ToolResults       []*replay.ToolResult         `json:"toolResults,omitempty"`
	PendingApprovals  []*replay.Approval           `json:"pendingApprovals,omitempty"`
	ErrorCount        int                          `json:"errorCount"`
	Warnings          []string                     `json:"warnings,omitempty"`
}

func toReplayResponse(r *replay.ReplayState) replayResponse {
	steps := make([]replayStep, len(r.Steps))
	for i, st := range r.Steps {
		var ctxView *replayContext
		if st.Context != nil {
			ctxView = &replayContext{
				EventIndex:        st.Context.EventIndex,
				TotalEvents:       st.Context.TotalEvents,
				CumulativeCostUsd: st.Context.CumulativeCostUsd,
				ElapsedMs:         st.Context.ElapsedMs,
				EventCounts:       st.Context.EventCounts,
				LLMHistory:        st.Context.LLMHistory,
				ToolResults:       st.Context.ToolResults,
				PendingApprovals:  st.Context.PendingApprovals,
				ErrorCount:        st.Context.ErrorCount,
				Warnings:          st.Context.Warnings,
			}
		}
		steps[i] = replayStep{EventIndex: st.EventIndex, Event: st.Event, Context: ctxView}
	}
	return replayResponse{
		SessionID:   r.SessionID,
		ChainValid:  r.ChainValid,
		ChainReason: r.ChainReason,
		Summary: replaySummary{
			TotalCostUsd:    r.Summary.TotalCostUsd,
			TotalDurationMs: r.Summary.TotalDurationMs,
			LLMCallCount:    r.Summary.LLMCallCount,
			ToolCallCount:   r.Summary.ToolCallCount,
			ErrorCount:      r.Summary.ErrorCount,
			Models:          r.Summary.Models,
			Tools:           r.Summary.Tools,
		},
		Steps:         steps,
		Offset:        r.Offset,
		Limit:         r.Limit,
		FilteredTotal: r.FilteredTotal,
		HasMore:       r.HasMore,
	}
}
