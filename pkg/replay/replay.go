// Package replay reconstructs a session's cumulative state by walking
// its event timeline once: pairing correlated events (tool calls with
// their responses, LLM calls with their completions, approvals and
// forms with their resolutions), propagating cost/context/tool/
// approval state, and applying redaction on read. It owns no state of
// its own — Build is a pure function over a store.Store snapshot.
package replay

import (
	"context"
	"sort"
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

// Options parameterizes Build; zero value means offset 0, limit 1000,
// no event-type filter, and no context propagation (IncludeContext false).
type Options struct {
	Offset         int
	Limit          int
	EventTypes     []eventlog.EventType
	IncludeContext bool
}

// DefaultLimit is the page size used when Options.Limit is zero.
const DefaultLimit = 1000

// Summary is computed once over the full (unfiltered) timeline.
type Summary struct {
	TotalCostUsd    float64
	TotalDurationMs int64
	LLMCallCount    int
	ToolCallCount   int
	ErrorCount      int
	Models          []string
	Tools           []string
}

// LLMHistoryEntry is one llm_call/llm_response pair's propagated state.
type LLMHistoryEntry struct {
	CallID    string
	Provider  string
	Model     string
	Messages  any
	Response  any
	ToolCalls any
	CostUsd   float64
	LatencyMs int64
	Completed bool
}

// ToolResult is one tool_call/tool_response|tool_error pair's state.
type ToolResult struct {
	CallID    string
	ToolName  string
	Arguments any
	Response  any
	Error     any
	Completed bool
}

// Approval tracks an approval_requested event through its resolution.
type Approval struct {
	RequestID string
	Status    string // pending, granted, denied, expired
}

// Context is the cumulative snapshot carried at one step of the walk.
type Context struct {
	EventIndex        int
	TotalEvents       int
	CumulativeCostUsd float64
	ElapsedMs         int64
	EventCounts       map[eventlog.EventType]int
	LLMHistory        []*LLMHistoryEntry
	ToolResults       []*ToolResult
	PendingApprovals  []*Approval
	ErrorCount        int
	Warnings          []string
}

func newContext() *Context {
	return &Context{EventCounts: make(map[eventlog.EventType]int)}
}

// clone deep-copies a Context so a cached ReplayState cannot be mutated
// out from under a concurrent reader.
func (c *Context) clone() *Context {
	if c == nil {
		return nil
	}
	cp := &Context{
		EventIndex:        c.EventIndex,
		TotalEvents:       c.TotalEvents,
		CumulativeCostUsd: c.CumulativeCostUsd,
		ElapsedMs:         c.ElapsedMs,
		ErrorCount:        c.ErrorCount,
		EventCounts:       make(map[eventlog.EventType]int, len(c.EventCounts)),
	}
	for k, v := range c.EventCounts {
		cp.EventCounts[k] = v
	}
	cp.Warnings = append([]string(nil), c.Warnings...)
	for _, h := range c.LLMHistory {
		hh := *h
		cp.LLMHistory = append(cp.LLMHistory, &hh)
	}
	for _, tr := range c.ToolResults {
		tt := *tr
		cp.ToolResults = append(cp.ToolResults, &tt)
	}
	for _, a := range c.PendingApprovals {
		aa := *a
		cp.PendingApprovals = append(cp.PendingApprovals, &aa)
	}
	return cp
}

// Step is one emitted event with its cumulative context.
type Step struct {
	EventIndex int // 1-based, over the filtered list
	Event      *eventlog.Event
	Context    *Context
}

// ReplayState is Build's full result.
type ReplayState struct {
	TenantID      string
	SessionID     string
	ChainValid    bool
	ChainReason   string
	Summary       Summary
	Steps         []*Step
	Offset        int
	Limit         int
	FilteredTotal int
	HasMore       bool
}

// Clone deep-copies a ReplayState. The HTTP cache clones on every emit
// so a concurrent cache eviction/overwrite cannot race with a response
// being serialized.
func (r *ReplayState) Clone() *ReplayState {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Summary.Models = append([]string(nil), r.Summary.Models...)
	cp.Summary.Tools = append([]string(nil), r.Summary.Tools...)
	cp.Steps = make([]*Step, len(r.Steps))
	for i, s := range r.Steps {
		cp.Steps[i] = &Step{
			EventIndex: s.EventIndex,
			Event:      s.Event.Clone(),
			Context:    s.Context.clone(),
		}
	}
	return &cp
}

// pair tracks one correlation key's initiating and closing events,
// found by a single prepass over the full timeline.
type pair struct {
	start *eventlog.Event
	end   *eventlog.Event
}

func (p *pair) durationMs() (int64, bool) {
	if p == nil || p.start == nil || p.end == nil {
		return 0, false
	}
	return p.end.Timestamp.Sub(p.start.Timestamp).Milliseconds(), true
}

// Build reconstructs a ReplayState for (tenantID, sessionID). It
// returns (nil, nil) when the session does not exist, matching the
// "load session header; if absent, return null" step of the
// algorithm.
func Build(ctx context.Context, s store.Store, tenantID, sessionID string, opts Options) (*ReplayState, error) {
	if _, err := s.GetSession(ctx, tenantID, sessionID); err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}

	timeline, err := s.GetSessionTimeline(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	chain := eventlog.VerifyChain(timeline)

	pairs := buildPairs(timeline)
	summary := buildSummary(timeline)

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	filtered := timeline
	if len(opts.EventTypes) > 0 {
		allow := make(map[eventlog.EventType]bool, len(opts.EventTypes))
		for _, t := range opts.EventTypes {
			allow[t] = true
		}
		filtered = make([]*eventlog.Event, 0, len(timeline))
		for _, e := range timeline {
			if allow[e.EventType] {
				filtered = append(filtered, e)
			}
		}
	}

	var first time.Time
	if len(filtered) > 0 {
		first = filtered[0].Timestamp
	}

	w := newWalker(opts.IncludeContext)
	steps := make([]*Step, 0, limit)
	for i, e := range filtered {
		w.apply(e, first, pairs)

		if i < offset || i >= offset+limit {
			continue
		}

		eventView := e.Clone()
		eventView.Payload = eventlog.Redact(e.EventType, e.Payload)

		var stepCtx *Context
		if opts.IncludeContext {
			stepCtx = w.ctx.clone()
			stepCtx.EventIndex = i + 1
			stepCtx.TotalEvents = len(filtered)
		} else {
			stepCtx = newContext()
			stepCtx.EventIndex = i + 1
			stepCtx.TotalEvents = len(filtered)
		}
		steps = append(steps, &Step{EventIndex: i + 1, Event: eventView, Context: stepCtx})
	}

	return &ReplayState{
		TenantID:      tenantID,
		SessionID:     sessionID,
		ChainValid:    chain.Valid,
		ChainReason:   chain.Reason,
		Summary:       summary,
		Steps:         steps,
		Offset:        offset,
		Limit:         limit,
		FilteredTotal: len(filtered),
		HasMore:       offset+limit < len(filtered),
	}, nil
}

// buildPairs walks the full list once, grouping initiating and closing
// events by their shared correlation field value (§4.4 step 4). callId
// is the correlation field for both tool and LLM calls; producers are
// expected to mint call IDs unique within a session regardless of kind,
// so one flat map is sufficient without a separate namespace per type.
func buildPairs(timeline []*eventlog.Event) map[string]*pair {
	pairs := make(map[string]*pair)
	for _, e := range timeline {
		field, isClosure, ok := eventlog.CorrelationField(e.EventType)
		if !ok {
			continue
		}
		raw, present := e.Payload.Get(field)
		if !present {
			continue
		}
		key, _ := raw.(string)
		if key == "" {
			continue
		}
		p, ok := pairs[key]
		if !ok {
			p = &pair{}
			pairs[key] = p
		}
		if isClosure {
			p.end = e
		} else {
			p.start = e
		}
	}
	return pairs
}

func isErrorEvent(e *eventlog.Event) bool {
	return e.Severity == eventlog.SeverityError || e.Severity == eventlog.SeverityCritical || e.EventType == eventlog.EventToolError
}

func buildSummary(timeline []*eventlog.Event) Summary {
	var s Summary
	models := make(map[string]bool)
	tools := make(map[string]bool)

	var first, last time.Time
	for i, e := range timeline {
		if i == 0 {
			first = e.Timestamp
		}
		last = e.Timestamp

		switch e.EventType {
		case eventlog.EventLLMResponse:
			s.LLMCallCount++
			addCost(&s.TotalCostUsd, e.Payload)
		case eventlog.EventCostTracked:
			addCost(&s.TotalCostUsd, e.Payload)
			if v, ok := e.Payload.Get("model"); ok {
				if name, ok := v.(string); ok && name != "" {
					models[name] = true
				}
			}
		case eventlog.EventLLMCall:
			if v, ok := e.Payload.Get("model"); ok {
				if name, ok := v.(string); ok && name != "" {
					models[name] = true
				}
			}
		case eventlog.EventToolCall:
			s.ToolCallCount++
			if v, ok := e.Payload.Get("toolName"); ok {
				if name, ok := v.(string); ok && name != "" {
					tools[name] = true
				}
			}
		}

		if isErrorEvent(e) {
			s.ErrorCount++
		}
	}
	if len(timeline) > 0 {
		s.TotalDurationMs = last.Sub(first).Milliseconds()
	}
	s.Models = sortedKeys(models)
	s.Tools = sortedKeys(tools)
	return s
}

func addCost(total *float64, payload *eventlog.OrderedMap) {
	v, ok := payload.Get("costUsd")
	if !ok {
		return
	}
	f, ok := toFloat(v)
	if !ok {
		return
	}
	*total += f
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt64(v any) (int64, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
