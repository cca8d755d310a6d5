// Package store defines the multi-tenant persistence contract for
// AgentLens: events, sessions, agents, alerting, and the supporting
// registries consumed by the compliance report. Two backends implement
// Store: postgres (pkg/store/postgres) and an in-memory backend
// (pkg/store/memstore) used for tests and a Postgres-free dev mode.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
)

// ErrNotFound is returned when a single-row lookup has no match.
var ErrNotFound = errors.New("store: not found")

// SessionStatus mirrors §3's closed set for Session.status.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionError     SessionStatus = "error"
)

// Session is the materialized per-session aggregate described in §3.
type Session struct {
	ID               string
	TenantID         string
	AgentID          string
	AgentName        string
	StartedAt        time.Time
	EndedAt          *time.Time
	Status           SessionStatus
	EventCount       int
	ToolCallCount    int
	ErrorCount       int
	LLMCallCount     int
	TotalInputTokens int64
	TotalOutputTokens int64
	TotalCostUsd     float64
	Tags             []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Agent is the materialized per-(tenant,agent) record described in §3.
type Agent struct {
	TenantID     string
	ID           string
	Name         string
	Description  string
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
	SessionCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AlertRule is a tenant-scoped threshold rule evaluated during ingestion.
type AlertRule struct {
	TenantID       string
	ID             string
	Name           string
	EventType      eventlog.EventType
	Severity       eventlog.Severity
	ThresholdCount int
	WindowSeconds  int
	Enabled        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AlertHistory records one firing of an AlertRule.
type AlertHistory struct {
	TenantID     string
	ID           string
	RuleID       string
	FiredAt      time.Time
	WindowStart  time.Time
	WindowEnd    time.Time
	MatchedCount int
	ResolvedAt   *time.Time
}

// DiscoveryCapabilityKind distinguishes what kind of thing was discovered.
type DiscoveryCapabilityKind string

const (
	CapabilityKindTool      DiscoveryCapabilityKind = "tool"
	CapabilityKindModel     DiscoveryCapabilityKind = "model"
	CapabilityKindConnector DiscoveryCapabilityKind = "connector"
)

// DiscoveryCapability is a tool/model/connector a tenant's agents have
// been observed exercising, derived from ingested event payloads.
type DiscoveryCapability struct {
	TenantID    string
	ID          string
	Name        string
	Kind        DiscoveryCapabilityKind
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// TrustScore is a read-time derived view over an agent's session/event
// aggregates, recomputed opportunistically rather than independently
// written.
type TrustScore struct {
	TenantID  string
	AgentID   string
	Score     float64
	UpdatedAt time.Time
	Factors   map[string]float64
}

// GuardrailRuleKind is the closed set of guardrail checks evaluated at
// ingest time alongside alert rules.
type GuardrailRuleKind string

const (
	GuardrailMaxCostPerSession     GuardrailRuleKind = "max_cost_per_session"
	GuardrailMaxToolCallsPerSession GuardrailRuleKind = "max_tool_calls_per_session"
	GuardrailBlockedTool           GuardrailRuleKind = "blocked_tool"
)

// GuardrailRule is a tenant-scoped ingestion-time guardrail.
type GuardrailRule struct {
	TenantID string
	ID       string
	Name     string
	Kind     GuardrailRuleKind
	Limit    float64
	Enabled  bool
}

// AuditLogEntry records a governance-relevant action, independent of the
// event hash chain, purged on its own createdAt-based retention cutoff.
type AuditLogEntry struct {
	TenantID   string
	ID         string
	Action     string
	ActorKeyID string
	Details    map[string]any
	CreatedAt  time.Time
}

// EventFilter narrows queryEvents/countEvents. Zero values mean
// "unconstrained" for that field.
type EventFilter struct {
	SessionID  string
	AgentID    string
	EventTypes []eventlog.EventType
	Severities []eventlog.Severity
	From       *time.Time
	To         *time.Time
	Search     string // substring/full-text match over payload
	Order      SortOrder
	Limit      int
	Offset     int
}

// SortOrder is asc or desc; the zero value means "use the default".
type SortOrder string

const (
	OrderAsc     SortOrder = "asc"
	OrderDesc    SortOrder = "desc"
	DefaultOrder           = OrderDesc
)

// SessionFilter narrows querySessions.
type SessionFilter struct {
	AgentID string
	Status  SessionStatus
	From    *time.Time
	To      *time.Time
	Tags    []string
	Limit   int
	Offset  int
}

// EventCounts is the result of countEventsBatch: total plus the three
// named breakdowns §4.2 requires in one pass.
type EventCounts struct {
	Total      int
	Error      int
	Critical   int
	ToolError  int
}

// AnalyticsGranularity buckets the analytics time series.
type AnalyticsGranularity string

const (
	GranularityHour AnalyticsGranularity = "hour"
	GranularityDay  AnalyticsGranularity = "day"
)

// AnalyticsQuery parameterizes getAnalytics.
type AnalyticsQuery struct {
	From        time.Time
	To          time.Time
	Granularity AnalyticsGranularity
	AgentID     string
}

// AnalyticsBucket is one bucketed point in the analytics series.
type AnalyticsBucket struct {
	BucketStart   time.Time
	EventCount    int
	ToolCallCount int
	ErrorCount    int
	AvgLatencyMs  float64
	TotalCostUsd  float64
	UniqueSessions int
	UniqueAgents   int
}

// Analytics is getAnalytics's full result: the bucketed series plus
// range totals.
type Analytics struct {
	Buckets        []AnalyticsBucket
	TotalEvents    int
	TotalToolCalls int
	TotalErrors    int
	TotalCostUsd   float64
	UniqueSessions int
	UniqueAgents   int
}

// Stats is getStats's tenant-wide totals.
type Stats struct {
	TotalEvents   int
	TotalSessions int
	TotalAgents   int
}

// EventList is a page of events plus pagination metadata.
type EventList struct {
	Events  []*eventlog.Event
	Total   int
	HasMore bool
}

// SessionList is a page of sessions plus pagination metadata.
type SessionList struct {
	Sessions []*Session
	Total    int
	HasMore  bool
}

// Store is the public contract any concrete backend implements — see
// §4.2's operation table. All methods take an explicit tenantId and
// MUST NOT return or mutate rows belonging to a different tenant; the
// only exceptions are the retention/export/import paths, which operate
// by design across or under the tenant boundary. They, like ingestion,
// replay and the compliance report, hold a reference to the raw backend
// rather than the tenant-scoped wrapper.
type Store interface {
	InsertEvents(ctx context.Context, tenantID string, events []*eventlog.Event) error

	GetEvent(ctx context.Context, tenantID, id string) (*eventlog.Event, error)
	QueryEvents(ctx context.Context, tenantID string, filter EventFilter) (*EventList, error)
	GetSessionTimeline(ctx context.Context, tenantID, sessionID string) ([]*eventlog.Event, error)
	GetLastEventHash(ctx context.Context, tenantID, sessionID string) (*string, error)
	CountEvents(ctx context.Context, tenantID string, filter EventFilter) (int, error)
	CountEventsBatch(ctx context.Context, tenantID string, filter EventFilter) (*EventCounts, error)

	UpsertSession(ctx context.Context, tenantID string, session *Session) error
	QuerySessions(ctx context.Context, tenantID string, filter SessionFilter) (*SessionList, error)
	GetSession(ctx context.Context, tenantID, sessionID string) (*Session, error)

	UpsertAgent(ctx context.Context, tenantID string, agent *Agent) error
	ListAgents(ctx context.Context, tenantID string) ([]*Agent, error)
	GetAgent(ctx context.Context, tenantID, agentID string) (*Agent, error)

	GetAnalytics(ctx context.Context, tenantID string, query AnalyticsQuery) (*Analytics, error)

	CreateAlertRule(ctx context.Context, tenantID string, rule *AlertRule) error
	ListAlertRules(ctx context.Context, tenantID string) ([]*AlertRule, error)
	GetAlertRule(ctx context.Context, tenantID, ruleID string) (*AlertRule, error)
	DeleteAlertRule(ctx context.Context, tenantID, ruleID string) error
	RecordAlertHistory(ctx context.Context, tenantID string, history *AlertHistory) error
	ListAlertHistory(ctx context.Context, tenantID, ruleID string) ([]*AlertHistory, error)

	UpsertDiscoveryCapability(ctx context.Context, tenantID string, cap *DiscoveryCapability) error
	ListDiscoveryCapabilities(ctx context.Context, tenantID string) ([]*DiscoveryCapability, error)

	GetTrustScore(ctx context.Context, tenantID, agentID string) (*TrustScore, error)
	PutTrustScore(ctx context.Context, tenantID string, score *TrustScore) error

	ListGuardrailRules(ctx context.Context, tenantID string) ([]*GuardrailRule, error)
	UpsertGuardrailRule(ctx context.Context, tenantID string, rule *GuardrailRule) error

	WriteAuditLog(ctx context.Context, tenantID string, entry *AuditLogEntry) error
	ListAuditLog(ctx context.Context, tenantID string, from, to time.Time) ([]*AuditLogEntry, error)

	ApplyRetention(ctx context.Context, tenantID string, eventsCutoff, auditCutoff time.Time) (eventsDeleted, auditDeleted int, err error)
	GetStats(ctx context.Context, tenantID string) (*Stats, error)

	// ActiveTenantIDs lists every tenant with at least one event or
	// session row — used by the retention scheduler to fan out per-tenant
	// purge work (§4.6) and by the partition monitor.
	ActiveTenantIDs(ctx context.Context) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}
