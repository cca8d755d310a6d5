// Package memstore is an in-memory implementation of store.Store, used
// for unit tests and for running AgentLens without Postgres in a
// dev/demo mode. It enforces the same tenant-scoping contract as the
// Postgres backend so store-level property tests (tenant isolation,
// atomicity) can run against both via a shared test suite.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

// Store is a single process-wide in-memory backend. All state lives
// behind one mutex — simplicity over throughput, since this backend's
// job is correctness-under-test, not production scale.
type Store struct {
	mu sync.Mutex

	events  map[string]map[string]*eventlog.Event // tenantID -> eventID -> event
	sessions map[string]map[string]*store.Session  // tenantID -> sessionID -> session
	agents   map[string]map[string]*store.Agent    // tenantID -> agentID -> agent

	alertRules    map[string]map[string]*store.AlertRule
	alertHistory  map[string][]*store.AlertHistory
	capabilities  map[string]map[string]*store.DiscoveryCapability
	trustScores   map[string]map[string]*store.TrustScore
	guardrails    map[string]map[string]*store.GuardrailRule
	auditLog      map[string][]*store.AuditLogEntry
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		events:       make(map[string]map[string]*eventlog.Event),
		sessions:     make(map[string]map[string]*store.Session),
		agents:       make(map[string]map[string]*store.Agent),
		alertRules:   make(map[string]map[string]*store.AlertRule),
		alertHistory: make(map[string][]*store.AlertHistory),
		capabilities: make(map[string]map[string]*store.DiscoveryCapability),
		trustScores:  make(map[string]map[string]*store.TrustScore),
		guardrails:   make(map[string]map[string]*store.GuardrailRule),
		auditLog:     make(map[string][]*store.AuditLogEntry),
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

func (s *Store) InsertEvents(ctx context.Context, tenantID string, events []*eventlog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.events[tenantID] == nil {
		s.events[tenantID] = make(map[string]*eventlog.Event)
	}
	if s.sessions[tenantID] == nil {
		s.sessions[tenantID] = make(map[string]*store.Session)
	}
	if s.agents[tenantID] == nil {
		s.agents[tenantID] = make(map[string]*store.Agent)
	}

	for _, e := range events {
		stamped := e.Clone()
		stamped.TenantID = tenantID
		s.events[tenantID][stamped.ID] = stamped
		s.applyAggregatesLocked(tenantID, stamped)
	}
	return nil
}

// applyAggregatesLocked updates the session/agent rows touched by one
// event, per §4.2 "Derived aggregates". Caller holds s.mu.
func (s *Store) applyAggregatesLocked(tenantID string, e *eventlog.Event) {
	sess, ok := s.sessions[tenantID][e.SessionID]
	isNewSession := !ok
	if !ok {
		sess = &store.Session{
			ID:        e.SessionID,
			TenantID:  tenantID,
			AgentID:   e.AgentID,
			StartedAt: e.Timestamp,
			Status:    store.SessionActive,
			CreatedAt: e.Timestamp,
		}
	}
	sess.EventCount++
	switch e.EventType {
	case eventlog.EventToolCall:
		sess.ToolCallCount++
	case eventlog.EventLLMCall:
		sess.LLMCallCount++
	}
	// Single increment per event, mirroring replay.isErrorEvent: a
	// tool_error at error severity must not double-count.
	if e.Severity == eventlog.SeverityError || e.Severity == eventlog.SeverityCritical || e.EventType == eventlog.EventToolError {
		sess.ErrorCount++
	}
	if e.EventType == eventlog.EventCostTracked || e.EventType == eventlog.EventLLMResponse {
		if v, ok := e.Payload.Get("costUsd"); ok {
			if f, ok := toFloat(v); ok {
				sess.TotalCostUsd += f
			}
		}
	}
	if e.EventType == eventlog.EventLLMResponse || e.EventType == eventlog.EventCostTracked {
		if v, ok := e.Payload.Get("inputTokens"); ok {
			if f, ok := toFloat(v); ok {
				sess.TotalInputTokens += int64(f)
			}
		}
		if v, ok := e.Payload.Get("outputTokens"); ok {
			if f, ok := toFloat(v); ok {
				sess.TotalOutputTokens += int64(f)
			}
		}
	}
	if e.EventType == eventlog.EventSessionStarted {
		if v, ok := e.Payload.Get("agentName"); ok {
			if name, ok := v.(string); ok {
				sess.AgentName = name
			}
		}
	}
	// Sticky-terminal: once completed/error, status is frozen (§4.3).
	if e.EventType == eventlog.EventSessionEnded && sess.Status == store.SessionActive {
		reason, _ := e.Payload.Get("reason")
		ended := e.Timestamp
		sess.EndedAt = &ended
		if r, ok := reason.(string); ok && r == "error" {
			sess.Status = store.SessionError
		} else {
			sess.Status = store.SessionCompleted
		}
	}
	sess.UpdatedAt = e.Timestamp
	s.sessions[tenantID][e.SessionID] = sess

	agent, ok := s.agents[tenantID][e.AgentID]
	if !ok {
		agent = &store.Agent{
			TenantID:    tenantID,
			ID:          e.AgentID,
			Name:        e.AgentID,
			FirstSeenAt: e.Timestamp,
			CreatedAt:   e.Timestamp,
		}
	}
	agent.LastSeenAt = e.Timestamp
	if isNewSession {
		agent.SessionCount++
	}
	if sess.AgentName != "" {
		agent.Name = sess.AgentName
	}
	agent.UpdatedAt = e.Timestamp
	s.agents[tenantID][e.AgentID] = agent
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

func (s *Store) GetEvent(ctx context.Context, tenantID, id string) (*eventlog.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[tenantID][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e.Clone(), nil
}

func matchesFilter(e *eventlog.Event, f store.EventFilter) bool {
	if f.SessionID != "" && e.SessionID != f.SessionID {
		return false
	}
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if e.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Severities) > 0 {
		found := false
		for _, sev := range f.Severities {
			if e.Severity == sev {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	if f.Search != "" {
		payloadJSON, err := e.Payload.MarshalJSON()
		if err != nil || !strings.Contains(strings.ToLower(string(payloadJSON)), strings.ToLower(f.Search)) {
			return false
		}
	}
	return true
}

func (s *Store) eventsForTenantLocked(tenantID string, filter store.EventFilter) []*eventlog.Event {
	var out []*eventlog.Event
	for _, e := range s.events[tenantID] {
		if matchesFilter(e, filter) {
			out = append(out, e)
		}
	}
	order := filter.Order
	if order == "" {
		order = store.DefaultOrder
	}
	sort.Slice(out, func(i, j int) bool {
		if order == store.OrderAsc {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func (s *Store) QueryEvents(ctx context.Context, tenantID string, filter store.EventFilter) (*store.EventList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.eventsForTenantLocked(tenantID, filter)
	total := len(matched)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	end := offset + limit
	if offset > total {
		offset = total
	}
	if end > total {
		end = total
	}
	page := make([]*eventlog.Event, 0, end-offset)
	for _, e := range matched[offset:end] {
		page = append(page, e.Clone())
	}
	return &store.EventList{Events: page, Total: total, HasMore: end < total}, nil
}

func (s *Store) GetSessionTimeline(ctx context.Context, tenantID, sessionID string) ([]*eventlog.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := s.eventsForTenantLocked(tenantID, store.EventFilter{SessionID: sessionID, Order: store.OrderAsc, Limit: 1 << 30})
	out := make([]*eventlog.Event, 0, len(matched))
	for _, e := range matched {
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *Store) GetLastEventHash(ctx context.Context, tenantID, sessionID string) (*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *eventlog.Event
	for _, e := range s.events[tenantID] {
		if e.SessionID != sessionID {
			continue
		}
		if last == nil || e.Timestamp.After(last.Timestamp) {
			last = e
		}
	}
	if last == nil {
		return nil, nil
	}
	h := last.Hash
	return &h, nil
}

func (s *Store) CountEvents(ctx context.Context, tenantID string, filter store.EventFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.eventsForTenantLocked(tenantID, filter)), nil
}

func (s *Store) CountEventsBatch(ctx context.Context, tenantID string, filter store.EventFilter) (*store.EventCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := s.eventsForTenantLocked(tenantID, filter)
	counts := &store.EventCounts{Total: len(matched)}
	for _, e := range matched {
		if e.Severity == eventlog.SeverityError {
			counts.Error++
		}
		if e.Severity == eventlog.SeverityCritical {
			counts.Critical++
		}
		if e.EventType == eventlog.EventToolError {
			counts.ToolError++
		}
	}
	return counts, nil
}

func (s *Store) UpsertSession(ctx context.Context, tenantID string, session *store.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[tenantID] == nil {
		s.sessions[tenantID] = make(map[string]*store.Session)
	}
	cp := *session
	cp.TenantID = tenantID
	s.sessions[tenantID][session.ID] = &cp
	return nil
}

func (s *Store) QuerySessions(ctx context.Context, tenantID string, filter store.SessionFilter) (*store.SessionList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*store.Session
	for _, sess := range s.sessions[tenantID] {
		if filter.AgentID != "" && sess.AgentID != filter.AgentID {
			continue
		}
		if filter.Status != "" && sess.Status != filter.Status {
			continue
		}
		if filter.From != nil && sess.StartedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && sess.StartedAt.After(*filter.To) {
			continue
		}
		if len(filter.Tags) > 0 && !hasAllTags(sess.Tags, filter.Tags) {
			continue
		}
		matched = append(matched, sess)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].StartedAt.After(matched[j].StartedAt) })

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	end := offset + limit
	if offset > total {
		offset = total
	}
	if end > total {
		end = total
	}
	out := make([]*store.Session, 0, end-offset)
	for _, sess := range matched[offset:end] {
		cp := *sess
		out = append(out, &cp)
	}
	return &store.SessionList{Sessions: out, Total: total, HasMore: end < total}, nil
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, t := range have {
		set[t] = true
	}
	for _, t := range want {
		if !set[t] {
			return false
		}
	}
	return true
}

func (s *Store) GetSession(ctx context.Context, tenantID, sessionID string) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tenantID][sessionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) UpsertAgent(ctx context.Context, tenantID string, agent *store.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agents[tenantID] == nil {
		s.agents[tenantID] = make(map[string]*store.Agent)
	}
	cp := *agent
	cp.TenantID = tenantID
	s.agents[tenantID][agent.ID] = &cp
	return nil
}

func (s *Store) ListAgents(ctx context.Context, tenantID string) ([]*store.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.Agent, 0, len(s.agents[tenantID]))
	for _, a := range s.agents[tenantID] {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetAgent(ctx context.Context, tenantID, agentID string) (*store.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[tenantID][agentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetAnalytics(ctx context.Context, tenantID string, query store.AnalyticsQuery) (*store.Analytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucketDur := 24 * time.Hour
	if query.Granularity == store.GranularityHour {
		bucketDur = time.Hour
	}

	buckets := map[time.Time]*store.AnalyticsBucket{}
	sessionsByBucket := map[time.Time]map[string]bool{}
	agentsByBucket := map[time.Time]map[string]bool{}

	result := &store.Analytics{}
	for _, e := range s.events[tenantID] {
		if query.AgentID != "" && e.AgentID != query.AgentID {
			continue
		}
		if e.Timestamp.Before(query.From) || e.Timestamp.After(query.To) {
			continue
		}
		bucketStart := e.Timestamp.Truncate(bucketDur)
		b, ok := buckets[bucketStart]
		if !ok {
			b = &store.AnalyticsBucket{BucketStart: bucketStart}
			buckets[bucketStart] = b
			sessionsByBucket[bucketStart] = map[string]bool{}
			agentsByBucket[bucketStart] = map[string]bool{}
		}
		b.EventCount++
		result.TotalEvents++
		if e.EventType == eventlog.EventToolCall {
			b.ToolCallCount++
			result.TotalToolCalls++
		}
		if e.Severity == eventlog.SeverityError || e.Severity == eventlog.SeverityCritical {
			b.ErrorCount++
			result.TotalErrors++
		}
		if v, ok := e.Payload.Get("costUsd"); ok {
			if f, ok := toFloat(v); ok {
				b.TotalCostUsd += f
				result.TotalCostUsd += f
			}
		}
		sessionsByBucket[bucketStart][e.SessionID] = true
		agentsByBucket[bucketStart][e.AgentID] = true
	}

	keys := make([]time.Time, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	allSessions := map[string]bool{}
	allAgents := map[string]bool{}
	for _, k := range keys {
		b := buckets[k]
		b.UniqueSessions = len(sessionsByBucket[k])
		b.UniqueAgents = len(agentsByBucket[k])
		for sid := range sessionsByBucket[k] {
			allSessions[sid] = true
		}
		for aid := range agentsByBucket[k] {
			allAgents[aid] = true
		}
		result.Buckets = append(result.Buckets, *b)
	}
	result.UniqueSessions = len(allSessions)
	result.UniqueAgents = len(allAgents)
	return result, nil
}

func (s *Store) CreateAlertRule(ctx context.Context, tenantID string, rule *store.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alertRules[tenantID] == nil {
		s.alertRules[tenantID] = make(map[string]*store.AlertRule)
	}
	cp := *rule
	cp.TenantID = tenantID
	s.alertRules[tenantID][rule.ID] = &cp
	return nil
}

func (s *Store) ListAlertRules(ctx context.Context, tenantID string) ([]*store.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.AlertRule, 0, len(s.alertRules[tenantID]))
	for _, r := range s.alertRules[tenantID] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) GetAlertRule(ctx context.Context, tenantID, ruleID string) (*store.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.alertRules[tenantID][ruleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) DeleteAlertRule(ctx context.Context, tenantID, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.alertRules[tenantID], ruleID)
	return nil
}

func (s *Store) RecordAlertHistory(ctx context.Context, tenantID string, history *store.AlertHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *history
	cp.TenantID = tenantID
	s.alertHistory[tenantID] = append(s.alertHistory[tenantID], &cp)
	return nil
}

func (s *Store) ListAlertHistory(ctx context.Context, tenantID, ruleID string) ([]*store.AlertHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.AlertHistory
	for _, h := range s.alertHistory[tenantID] {
		if h.RuleID == ruleID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) UpsertDiscoveryCapability(ctx context.Context, tenantID string, cap *store.DiscoveryCapability) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capabilities[tenantID] == nil {
		s.capabilities[tenantID] = make(map[string]*store.DiscoveryCapability)
	}
	key := string(cap.Kind) + ":" + cap.Name
	existing, ok := s.capabilities[tenantID][key]
	cp := *cap
	cp.TenantID = tenantID
	if ok {
		cp.FirstSeenAt = existing.FirstSeenAt
	}
	s.capabilities[tenantID][key] = &cp
	return nil
}

func (s *Store) ListDiscoveryCapabilities(ctx context.Context, tenantID string) ([]*store.DiscoveryCapability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.DiscoveryCapability, 0, len(s.capabilities[tenantID]))
	for _, c := range s.capabilities[tenantID] {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) GetTrustScore(ctx context.Context, tenantID, agentID string) (*store.TrustScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trustScores[tenantID][agentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) PutTrustScore(ctx context.Context, tenantID string, score *store.TrustScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trustScores[tenantID] == nil {
		s.trustScores[tenantID] = make(map[string]*store.TrustScore)
	}
	cp := *score
	cp.TenantID = tenantID
	s.trustScores[tenantID][score.AgentID] = &cp
	return nil
}

func (s *Store) ListGuardrailRules(ctx context.Context, tenantID string) ([]*store.GuardrailRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.GuardrailRule, 0, len(s.guardrails[tenantID]))
	for _, g := range s.guardrails[tenantID] {
		cp := *g
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) UpsertGuardrailRule(ctx context.Context, tenantID string, rule *store.GuardrailRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.guardrails[tenantID] == nil {
		s.guardrails[tenantID] = make(map[string]*store.GuardrailRule)
	}
	cp := *rule
	cp.TenantID = tenantID
	s.guardrails[tenantID][rule.ID] = &cp
	return nil
}

func (s *Store) WriteAuditLog(ctx context.Context, tenantID string, entry *store.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	cp.TenantID = tenantID
	s.auditLog[tenantID] = append(s.auditLog[tenantID], &cp)
	return nil
}

func (s *Store) ListAuditLog(ctx context.Context, tenantID string, from, to time.Time) ([]*store.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.AuditLogEntry
	for _, a := range s.auditLog[tenantID] {
		if a.CreatedAt.Before(from) || a.CreatedAt.After(to) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) ApplyRetention(ctx context.Context, tenantID string, eventsCutoff, auditCutoff time.Time) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventsDeleted := 0
	for id, e := range s.events[tenantID] {
		if e.Timestamp.Before(eventsCutoff) {
			delete(s.events[tenantID], id)
			eventsDeleted++
		}
	}

	auditDeleted := 0
	kept := s.auditLog[tenantID][:0]
	for _, a := range s.auditLog[tenantID] {
		if a.CreatedAt.Before(auditCutoff) {
			auditDeleted++
			continue
		}
		kept = append(kept, a)
	}
	s.auditLog[tenantID] = kept

	return eventsDeleted, auditDeleted, nil
}

func (s *Store) GetStats(ctx context.Context, tenantID string) (*store.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &store.Stats{
		TotalEvents:   len(s.events[tenantID]),
		TotalSessions: len(s.sessions[tenantID]),
		TotalAgents:   len(s.agents[tenantID]),
	}, nil
}

func (s *Store) ActiveTenantIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	for t := range s.events {
		seen[t] = true
	}
	for t := range s.sessions {
		seen[t] = true
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

var _ store.Store = (*Store)(nil)
