package store

import (
	"context"
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
)

// Scoped is the tenant-scoped wrapper §4.2 requires every read/write
// path outside ingestion, retention, and export/import to use. It binds
// one tenantId at construction time and forwards to the raw backend,
// so a caller holding a Scoped value has no way to address another
// tenant's rows — there is no tenantId parameter left to get wrong.
type Scoped struct {
	tenantID string
	raw      Store
}

// NewScoped binds a Store to a single tenant.
func NewScoped(raw Store, tenantID string) *Scoped {
	return &Scoped{tenantID: tenantID, raw: raw}
}

// TenantID returns the tenant this wrapper is bound to.
func (s *Scoped) TenantID() string { return s.tenantID }

func (s *Scoped) InsertEvents(ctx context.Context, events []*eventlog.Event) error {
	return s.raw.InsertEvents(ctx, s.tenantID, events)
}

func (s *Scoped) GetEvent(ctx context.Context, id string) (*eventlog.Event, error) {
	return s.raw.GetEvent(ctx, s.tenantID, id)
}

func (s *Scoped) QueryEvents(ctx context.Context, filter EventFilter) (*EventList, error) {
	return s.raw.QueryEvents(ctx, s.tenantID, filter)
}

func (s *Scoped) GetSessionTimeline(ctx context.Context, sessionID string) ([]*eventlog.Event, error) {
	return s.raw.GetSessionTimeline(ctx, s.tenantID, sessionID)
}

func (s *Scoped) GetLastEventHash(ctx context.Context, sessionID string) (*string, error) {
	return s.raw.GetLastEventHash(ctx, s.tenantID, sessionID)
}

func (s *Scoped) CountEvents(ctx context.Context, filter EventFilter) (int, error) {
	return s.raw.CountEvents(ctx, s.tenantID, filter)
}

func (s *Scoped) CountEventsBatch(ctx context.Context, filter EventFilter) (*EventCounts, error) {
	return s.raw.CountEventsBatch(ctx, s.tenantID, filter)
}

func (s *Scoped) UpsertSession(ctx context.Context, session *Session) error {
	session.TenantID = s.tenantID
	return s.raw.UpsertSession(ctx, s.tenantID, session)
}

func (s *Scoped) QuerySessions(ctx context.Context, filter SessionFilter) (*SessionList, error) {
	return s.raw.QuerySessions(ctx, s.tenantID, filter)
}

func (s *Scoped) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return s.raw.GetSession(ctx, s.tenantID, sessionID)
}

func (s *Scoped) UpsertAgent(ctx context.Context, agent *Agent) error {
	agent.TenantID = s.tenantID
	return s.raw.UpsertAgent(ctx, s.tenantID, agent)
}

func (s *Scoped) ListAgents(ctx context.Context) ([]*Agent, error) {
	return s.raw.ListAgents(ctx, s.tenantID)
}

func (s *Scoped) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	return s.raw.GetAgent(ctx, s.tenantID, agentID)
}

func (s *Scoped) GetAnalytics(ctx context.Context, query AnalyticsQuery) (*Analytics, error) {
	return s.raw.GetAnalytics(ctx, s.tenantID, query)
}

func (s *Scoped) CreateAlertRule(ctx context.Context, rule *AlertRule) error {
	rule.TenantID = s.tenantID
	return s.raw.CreateAlertRule(ctx, s.tenantID, rule)
}

func (s *Scoped) ListAlertRules(ctx context.Context) ([]*AlertRule, error) {
	return s.raw.ListAlertRules(ctx, s.tenantID)
}

func (s *Scoped) GetAlertRule(ctx context.Context, ruleID string) (*AlertRule, error) {
	return s.raw.GetAlertRule(ctx, s.tenantID, ruleID)
}

func (s *Scoped) DeleteAlertRule(ctx context.Context, ruleID string) error {
	return s.raw.DeleteAlertRule(ctx, s.tenantID, ruleID)
}

func (s *Scoped) RecordAlertHistory(ctx context.Context, history *AlertHistory) error {
	history.TenantID = s.tenantID
	return s.raw.RecordAlertHistory(ctx, s.tenantID, history)
}

func (s *Scoped) ListAlertHistory(ctx context.Context, ruleID string) ([]*AlertHistory, error) {
	return s.raw.ListAlertHistory(ctx, s.tenantID, ruleID)
}

func (s *Scoped) UpsertDiscoveryCapability(ctx context.Context, cap *DiscoveryCapability) error {
	cap.TenantID = s.tenantID
	return s.raw.UpsertDiscoveryCapability(ctx, s.tenantID, cap)
}

func (s *Scoped) ListDiscoveryCapabilities(ctx context.Context) ([]*DiscoveryCapability, error) {
	return s.raw.ListDiscoveryCapabilities(ctx, s.tenantID)
}

func (s *Scoped) GetTrustScore(ctx context.Context, agentID string) (*TrustScore, error) {
	return s.raw.GetTrustScore(ctx, s.tenantID, agentID)
}

func (s *Scoped) PutTrustScore(ctx context.Context, score *TrustScore) error {
	score.TenantID = s.tenantID
	return s.raw.PutTrustScore(ctx, s.tenantID, score)
}

func (s *Scoped) ListGuardrailRules(ctx context.Context) ([]*GuardrailRule, error) {
	return s.raw.ListGuardrailRules(ctx, s.tenantID)
}

func (s *Scoped) UpsertGuardrailRule(ctx context.Context, rule *GuardrailRule) error {
	rule.TenantID = s.tenantID
	return s.raw.UpsertGuardrailRule(ctx, s.tenantID, rule)
}

func (s *Scoped) WriteAuditLog(ctx context.Context, entry *AuditLogEntry) error {
	entry.TenantID = s.tenantID
	return s.raw.WriteAuditLog(ctx, s.tenantID, entry)
}

func (s *Scoped) ListAuditLog(ctx context.Context, from, to time.Time) ([]*AuditLogEntry, error) {
	return s.raw.ListAuditLog(ctx, s.tenantID, from, to)
}

func (s *Scoped) GetStats(ctx context.Context) (*Stats, error) {
	return s.raw.GetStats(ctx, s.tenantID)
}
