// Package exportimport implements the NDJSON export/import contract
// from §4.6: a tenant's governance data serialized as one JSON object
// per line, a trailing checksum line, and an idempotent, dependency-
// ordered, conflict-do-nothing importer.
package exportimport

import (
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

// formatVersion is the `_version` stamped on every non-checksum line.
const formatVersion = 1

// Record type discriminants, in the dependency order export emits them
// and import applies them.
const (
	typeAgent         = "agent"
	typeSession       = "session"
	typeEvent         = "event"
	typeHealthScore   = "health_score"
	typeAlertRule     = "alert_rule"
	typeGuardrailRule = "guardrail_rule"
	typeAuditLog      = "audit_log"
	typeChecksum      = "checksum"
)

// recordTypeOrder is the dependency order §4.6 names explicitly
// (agent, session, event) extended to the rest of the governance data
// this module persists, in the order that keeps every foreign
// reference resolvable on import (a session's agentId must already
// exist, an event's sessionId must already exist, and so on).
var recordTypeOrder = []string{
	typeAgent,
	typeSession,
	typeEvent,
	typeHealthScore,
	typeAlertRule,
	typeGuardrailRule,
	typeAuditLog,
}

type envelope struct {
	Type    string `json:"_type"`
	Version int    `json:"_version"`
}

func newEnvelope(recordType string) envelope {
	return envelope{Type: recordType, Version: formatVersion}
}

// agentRecord is store.Agent with tenantId stripped.
type agentRecord struct {
	envelope
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	FirstSeenAt  time.Time `json:"firstSeenAt"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
	SessionCount int       `json:"sessionCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toAgentRecord(a *store.Agent) agentRecord {
	return agentRecord{
		envelope:     newEnvelope(typeAgent),
		ID:           a.ID,
		Name:         a.Name,
		Description:  a.Description,
		FirstSeenAt:  a.FirstSeenAt,
		LastSeenAt:   a.LastSeenAt,
		SessionCount: a.SessionCount,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (r agentRecord) toStoreAgent(tenantID string) *store.Agent {
	return &store.Agent{
		TenantID:     tenantID,
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		FirstSeenAt:  r.FirstSeenAt,
		LastSeenAt:   r.LastSeenAt,
		SessionCount: r.SessionCount,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// sessionRecord is store.Session with tenantId stripped.
type sessionRecord struct {
	envelope
	ID                string             `json:"id"`
	AgentID           string             `json:"agentId"`
	AgentName         string             `json:"agentName"`
	StartedAt         time.Time          `json:"startedAt"`
	EndedAt           *time.Time         `json:"endedAt,omitempty"`
	Status            store.SessionStatus `json:"status"`
	EventCount        int                `json:"eventCount"`
	ToolCallCount     int                `json:"toolCallCount"`
	ErrorCount        int                `json:"errorCount"`
	LLMCallCount      int                `json:"llmCallCount"`
	TotalInputTokens  int64              `json:"totalInputTokens"`
	TotalOutputTokens int64              `json:"totalOutputTokens"`
	TotalCostUsd      float64            `json:"totalCostUsd"`
	Tags              []string           `json:"tags,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

func toSessionRecord(s *store.Session) sessionRecord {
	return sessionRecord{
		envelope:          newEnvelope(typeSession),
		ID:                s.ID,
		AgentID:           s.AgentID,
		AgentName:         s.AgentName,
		StartedAt:         s.StartedAt,
		EndedAt:           s.EndedAt,
		Status:            s.Status,
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

func (r sessionRecord) toStoreSession(tenantID string) *store.Session {
	return &store.Session{
		TenantID:          tenantID,
		ID:                r.ID,
		AgentID:           r.AgentID,
		AgentName:         r.AgentName,
		StartedAt:         r.StartedAt,
		EndedAt:           r.EndedAt,
		Status:            r.Status,
		EventCount:        r.EventCount,
		ToolCallCount:     r.ToolCallCount,
		ErrorCount:        r.ErrorCount,
		LLMCallCount:      r.LLMCallCount,
		TotalInputTokens:  r.TotalInputTokens,
		TotalOutputTokens: r.TotalOutputTokens,
		TotalCostUsd:      r.TotalCostUsd,
		Tags:              r.Tags,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// eventRecord is eventlog.Event with tenantId stripped.
type eventRecord struct {
	envelope
	ID        string              `json:"id"`
	Timestamp time.Time           `json:"timestamp"`
	SessionID string              `json:"sessionId"`
	AgentID   string              `json:"agentId"`
	EventType eventlog.EventType  `json:"eventType"`
	Severity  eventlog.Severity   `json:"severity"`
	Payload   *eventlog.OrderedMap `json:"payload"`
	Metadata  *eventlog.OrderedMap `json:"metadata"`
	PrevHash  *string             `json:"prevHash"`
	Hash      string              `json:"hash"`
}

func toEventRecord(e *eventlog.Event) eventRecord {
	return eventRecord{
		envelope:  newEnvelope(typeEvent),
		ID:        e.ID,
		Timestamp: e.Timestamp,
		SessionID: e.SessionID,
		AgentID:   e.AgentID,
		EventType: e.EventType,
		Severity:  e.Severity,
		Payload:   e.Payload,
		Metadata:  e.Metadata,
		PrevHash:  e.PrevHash,
		Hash:      e.Hash,
	}
}

func (r eventRecord) toEvent(tenantID string) *eventlog.Event {
	return &eventlog.Event{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		SessionID: r.SessionID,
		AgentID:   r.AgentID,
		TenantID:  tenantID,
		EventType: r.EventType,
		Severity:  r.Severity,
		Payload:   r.Payload,
		Metadata:  r.Metadata,
		PrevHash:  r.PrevHash,
		Hash:      r.Hash,
	}
}

// healthScoreRecord is store.TrustScore with tenantId stripped. Named
// health_score on the wire to match §4.6's record list; it is the same
// read-time derived trust score the query API exposes.
type healthScoreRecord struct {
	envelope
	AgentID   string             `json:"agentId"`
	Score     float64            `json:"score"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Factors   map[string]float64 `json:"factors,omitempty"`
}

func toHealthScoreRecord(ts *store.TrustScore) healthScoreRecord {
	return healthScoreRecord{
		envelope:  newEnvelope(typeHealthScore),
		AgentID:   ts.AgentID,
		Score:     ts.Score,
		UpdatedAt: ts.UpdatedAt,
		Factors:   ts.Factors,
	}
}

func (r healthScoreRecord) toTrustScore(tenantID string) *store.TrustScore {
	return &store.TrustScore{
		TenantID:  tenantID,
		AgentID:   r.AgentID,
		Score:     r.Score,
		UpdatedAt: r.UpdatedAt,
		Factors:   r.Factors,
	}
}

// alertRuleRecord is store.AlertRule with tenantId stripped.
type alertRuleRecord struct {
	envelope
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	EventType      eventlog.EventType `json:"eventType"`
	Severity       eventlog.Severity  `json:"severity"`
	ThresholdCount int                `json:"thresholdCount"`
	WindowSeconds  int                `json:"windowSeconds"`
	Enabled        bool               `json:"enabled"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

func toAlertRuleRecord(r *store.AlertRule) alertRuleRecord {
	return alertRuleRecord{
		envelope:       newEnvelope(typeAlertRule),
		ID:             r.ID,
		Name:           r.Name,
		EventType:      r.EventType,
		Severity:       r.Severity,
		ThresholdCount: r.ThresholdCount,
		WindowSeconds:  r.WindowSeconds,
		Enabled:        r.Enabled,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func (r alertRuleRecord) toStoreAlertRule(tenantID string) *store.AlertRule {
	return &store.AlertRule{
		TenantID:       tenantID,
		ID:             r.ID,
		Name:           r.Name,
		EventType:      r.EventType,
		Severity:       r.Severity,
		ThresholdCount: r.ThresholdCount,
		WindowSeconds:  r.WindowSeconds,
		Enabled:        r.Enabled,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// guardrailRuleRecord is store.GuardrailRule with tenantId stripped.
type guardrailRuleRecord struct {
	envelope
	ID      string                    `json:"id"`
	Name    string                    `json:"name"`
	Kind    store.GuardrailRuleKind   `json:"kind"`
	Limit   float64                  `json:"limit"`
	Enabled bool                     `json:"enabled"`
}

func toGuardrailRuleRecord(r *store.GuardrailRule) guardrailRuleRecord {
	return guardrailRuleRecord{
		envelope: newEnvelope(typeGuardrailRule),
		ID:       r.ID,
		Name:     r.Name,
		Kind:     r.Kind,
		Limit:    r.Limit,
		Enabled:  r.Enabled,
	}
}

func (r guardrailRuleRecord) toStoreGuardrailRule(tenantID string) *store.GuardrailRule {
	return &store.GuardrailRule{
		TenantID: tenantID,
		ID:       r.ID,
		Name:     r.Name,
		Kind:     r.Kind,
		Limit:    r.Limit,
		Enabled:  r.Enabled,
	}
}

// auditLogRecord is store.AuditLogEntry with tenantId stripped.
type auditLogRecord struct {
	envelope
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	ActorKeyID string         `json:"actorKeyId"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func toAuditLogRecord(e *store.AuditLogEntry) auditLogRecord {
	return auditLogRecord{
		envelope:   newEnvelope(typeAuditLog),
		ID:         e.ID,
		Action:     e.Action,
		ActorKeyID: e.ActorKeyID,
		Details:    e.Details,
		CreatedAt:  e.CreatedAt,
	}
}

func (r auditLogRecord) toStoreAuditLog(tenantID string) *store.AuditLogEntry {
	return &store.AuditLogEntry{
		TenantID:   tenantID,
		ID:         r.ID,
		Action:     r.Action,
		ActorKeyID: r.ActorKeyID,
		Details:    r.Details,
		CreatedAt:  r.CreatedAt,
	}
}

// checksumRecord is the trailing line export appends. Field names
// match §4.6's literal shape, including the snake_case `exported_at`.
type checksumRecord struct {
	envelope
	SHA256     string         `json:"sha256"`
	Counts     map[string]int `json:"counts"`
	ExportedAt time.Time      `json:"exported_at"`
}
