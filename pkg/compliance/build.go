package compliance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
	"github.com/agentlensio/agentlens/pkg/version"
)

// MaxRangeDays is the ≤365-day window §4.7 requires.
const MaxRangeDays = 365

// chainBatchSize is how many events of a session's timeline are fed to
// VerifyChainBatch at a time — a pagination detail, not a correctness
// one, since the full timeline is always read before batching.
const chainBatchSize = 500

var approvalEventTypes = []eventlog.EventType{
	eventlog.EventApprovalRequested,
	eventlog.EventApprovalGranted,
	eventlog.EventApprovalDenied,
	eventlog.EventApprovalExpired,
}

// ErrRangeTooLarge is returned when to-from exceeds MaxRangeDays.
type ErrRangeTooLarge struct {
	Days int
}

func (e *ErrRangeTooLarge) Error() string {
	return fmt.Sprintf("compliance: requested range spans %d days, exceeds the %d-day maximum", e.Days, MaxRangeDays)
}

// Build assembles a Report for tenantID over [from, to], writes a
// compliance_report_generated audit-log entry on success, and signs
// the report if signingKey is non-nil. retentionDays is the tenant's
// resolved audit-log retention window (pkg/retention.ResolveDays),
// threaded in by the caller rather than recomputed here so this
// package does not need to know about plan tiers.
func Build(ctx context.Context, s store.Store, tenantID string, from, to time.Time, signingKey []byte, requesterKeyID string, retentionDays int) (*Report, error) {
	if days := int(to.Sub(from).Hours() / 24); days > MaxRangeDays {
		return nil, &ErrRangeTooLarge{Days: days}
	}

	chainVerification, err := verifyChainInRange(ctx, s, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	humanOversight, err := buildHumanOversight(ctx, s, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	incidents, truncated, err := buildIncidents(ctx, s, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	costUsage, err := buildCostUsage(ctx, s, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	oldestEvent, err := oldestEventInRange(ctx, s, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Version:  ReportVersion,
		TenantID: tenantID,
		From:     from,
		To:       to,
		SystemInfo: SystemInfo{
			ProductName: "AgentLens",
			Version:     version.Full(),
			GeneratedAt: time.Now().UTC(),
		},
		ChainVerification:  chainVerification,
		HumanOversight:     humanOversight,
		Incidents:          incidents,
		IncidentsTruncated: truncated,
		CostUsage:          costUsage,
		Retention: RetentionInfo{
			ChainIntact:   chainVerification.Verified,
			OldestEvent:   oldestEvent,
			RetentionDays: retentionDays,
		},
	}

	if signingKey != nil {
		sig, err := sign(report, signingKey)
		if err != nil {
			return nil, err
		}
		report.Signature = &sig
	}

	if err := s.WriteAuditLog(ctx, tenantID, &store.AuditLogEntry{
		TenantID:   tenantID,
		ID:         auditLogID(tenantID, from, to),
		Action:     "compliance_report_generated",
		ActorKeyID: requesterKeyID,
		Details: map[string]any{
			"from": from,
			"to":   to,
		},
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("compliance: write audit log: %w", err)
	}

	return report, nil
}

func auditLogID(tenantID string, from, to time.Time) string {
	return fmt.Sprintf("compliance-%s-%d-%d", tenantID, from.Unix(), to.Unix())
}

// signingView is Report with the signature field omitted entirely
// (not merely nulled), matching §4.7's "JSON.stringify(reportWithoutSignature)".
type signingView struct {
	Version            int               `json:"version"`
	TenantID           string            `json:"tenantId"`
	From               time.Time         `json:"from"`
	To                 time.Time         `json:"to"`
	SystemInfo         SystemInfo        `json:"systemInfo"`
	ChainVerification  ChainVerification `json:"chainVerification"`
	HumanOversight     HumanOversight    `json:"humanOversight"`
	Incidents          []Incident        `json:"incidents"`
	IncidentsTruncated bool              `json:"incidentsTruncated"`
	CostUsage          CostUsage         `json:"costUsage"`
	Retention          RetentionInfo     `json:"retention"`
}

// sign computes "hmac-sha256:" + hex(HMAC-SHA256(signingKey, json(report)))
// over the report with its signature field omitted, matching §4.7.
func sign(report *Report, signingKey []byte) (string, error) {
	view := signingView{
		Version:            report.Version,
		TenantID:           report.TenantID,
		From:               report.From,
		To:                 report.To,
		SystemInfo:         report.SystemInfo,
		ChainVerification:  report.ChainVerification,
		HumanOversight:     report.HumanOversight,
		Incidents:          report.Incidents,
		IncidentsTruncated: report.IncidentsTruncated,
		CostUsage:          report.CostUsage,
		Retention:          report.Retention,
	}
	body, err := json.Marshal(view)
	if err != nil {
		return "", fmt.Errorf("compliance: marshal report for signing: %w", err)
	}
	mac := hmac.New(sha256.New, signingKey)
	mac.Write(body)
	return "hmac-sha256:" + hex.EncodeToString(mac.Sum(nil)), nil
}

// verifyChainInRange verifies every in-range session's full timeline
// (not clipped to the range, since a hash chain's genesis anchor only
// makes sense over a session's complete event sequence) and counts
// only the in-range events toward TotalEvents. FailedAtIndex is a
// running count across all sessions processed, in session-query order.
func verifyChainInRange(ctx context.Context, s store.Store, tenantID string, from, to time.Time) (ChainVerification, error) {
	sessions, err := allSessionsInRange(ctx, s, tenantID, from, to)
	if err != nil {
		return ChainVerification{}, err
	}

	result := ChainVerification{Verified: true}
	processed := 0

	for _, sess := range sessions {
		timeline, err := s.GetSessionTimeline(ctx, tenantID, sess.ID)
		if err != nil {
			return ChainVerification{}, fmt.Errorf("compliance: get session timeline: %w", err)
		}

		var anchor *string
		for batchStart := 0; batchStart < len(timeline); batchStart += chainBatchSize {
			end := batchStart + chainBatchSize
			if end > len(timeline) {
				end = len(timeline)
			}
			batch := timeline[batchStart:end]
			vr, lastHash := eventlog.VerifyChainBatch(batch, anchor)
			if !vr.Valid {
				failedAt := processed + vr.FailedAtIndex
				result.Verified = false
				result.FailedAtIndex = &failedAt
				result.Reason = vr.Reason
				result.TotalEvents = countInRange(timeline[:batchStart+vr.FailedAtIndex+1], from, to)
				return result, nil
			}
			anchored := lastHash
			anchor = &anchored
			processed += len(batch)
		}

		result.TotalEvents += countInRange(timeline, from, to)
	}

	return result, nil
}

func countInRange(events []*eventlog.Event, from, to time.Time) int {
	n := 0
	for _, e := range events {
		if !e.Timestamp.Before(from) && !e.Timestamp.After(to) {
			n++
		}
	}
	return n
}

func allSessionsInRange(ctx context.Context, s store.Store, tenantID string, from, to time.Time) ([]*store.Session, error) {
	var out []*store.Session
	offset := 0
	for {
		page, err := s.QuerySessions(ctx, tenantID, store.SessionFilter{
			From:   &from,
			To:     &to,
			Limit:  1000,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("compliance: query sessions: %w", err)
		}
		out = append(out, page.Sessions...)
		if !page.HasMore || len(page.Sessions) == 0 {
			return out, nil
		}
		offset += len(page.Sessions)
	}
}

func buildHumanOversight(ctx context.Context, s store.Store, tenantID string, from, to time.Time) (HumanOversight, error) {
	events, err := allEventsInRange(ctx, s, tenantID, store.EventFilter{
		EventTypes: approvalEventTypes,
		Order:      store.OrderAsc,
	}, from, to)
	if err != nil {
		return HumanOversight{}, err
	}

	requested := make(map[string]time.Time)
	var stats ApprovalStats
	var totalResponseMs float64
	var resolvedCount int

	for _, e := range events {
		requestID, _ := stringField(e.Payload, "requestId")
		switch e.EventType {
		case eventlog.EventApprovalRequested:
			stats.Total++
			if requestID != "" {
				requested[requestID] = e.Timestamp
			}
		case eventlog.EventApprovalGranted:
			stats.Granted++
			accumulateResponseTime(requested, requestID, e.Timestamp, &totalResponseMs, &resolvedCount)
		case eventlog.EventApprovalDenied:
			stats.Denied++
			accumulateResponseTime(requested, requestID, e.Timestamp, &totalResponseMs, &resolvedCount)
		case eventlog.EventApprovalExpired:
			stats.Expired++
			accumulateResponseTime(requested, requestID, e.Timestamp, &totalResponseMs, &resolvedCount)
		}
	}

	if resolvedCount > 0 {
		avg := totalResponseMs / float64(resolvedCount)
		stats.AvgResponseTimeMs = &avg
	}

	return HumanOversight{ApprovalRequests: stats}, nil
}

func accumulateResponseTime(requested map[string]time.Time, requestID string, resolvedAt time.Time, total *float64, count *int) {
	if requestID == "" {
		return
	}
	start, ok := requested[requestID]
	if !ok {
		return
	}
	*total += float64(resolvedAt.Sub(start).Milliseconds())
	*count++
}

func buildIncidents(ctx context.Context, s store.Store, tenantID string, from, to time.Time) ([]Incident, bool, error) {
	severe, err := allEventsInRange(ctx, s, tenantID, store.EventFilter{
		Severities: []eventlog.Severity{eventlog.SeverityError, eventlog.SeverityCritical},
		Order:      store.OrderAsc,
	}, from, to)
	if err != nil {
		return nil, false, err
	}
	alerts, err := allEventsInRange(ctx, s, tenantID, store.EventFilter{
		EventTypes: []eventlog.EventType{eventlog.EventAlertTriggered},
		Order:      store.OrderAsc,
	}, from, to)
	if err != nil {
		return nil, false, err
	}

	merged := make([]*eventlog.Event, 0, len(severe)+len(alerts))
	merged = append(merged, severe...)
	merged = append(merged, alerts...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })

	truncated := len(merged) > maxIncidents
	if truncated {
		merged = merged[:maxIncidents]
	}

	incidents := make([]Incident, 0, len(merged))
	for _, e := range merged {
		incidents = append(incidents, Incident{
			EventID:   e.ID,
			SessionID: e.SessionID,
			AgentID:   e.AgentID,
			EventType: string(e.EventType),
			Severity:  string(e.Severity),
			Timestamp: e.Timestamp,
		})
	}
	return incidents, truncated, nil
}

func buildCostUsage(ctx context.Context, s store.Store, tenantID string, from, to time.Time) (CostUsage, error) {
	events, err := allEventsInRange(ctx, s, tenantID, store.EventFilter{
		EventTypes: []eventlog.EventType{eventlog.EventLLMResponse, eventlog.EventCostTracked},
	}, from, to)
	if err != nil {
		return CostUsage{}, err
	}

	usage := CostUsage{ByAgent: make(map[string]float64)}
	for _, e := range events {
		cost := floatField(e.Payload, "costUsd")
		usage.TotalUsd += cost
		usage.ByAgent[e.AgentID] += cost
	}
	return usage, nil
}

func oldestEventInRange(ctx context.Context, s store.Store, tenantID string, from, to time.Time) (*time.Time, error) {
	page, err := s.QueryEvents(ctx, tenantID, store.EventFilter{
		From:   &from,
		To:     &to,
		Order:  store.OrderAsc,
		Limit:  1,
		Offset: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("compliance: query oldest event: %w", err)
	}
	if len(page.Events) == 0 {
		return nil, nil
	}
	ts := page.Events[0].Timestamp
	return &ts, nil
}

func allEventsInRange(ctx context.Context, s store.Store, tenantID string, filter store.EventFilter, from, to time.Time) ([]*eventlog.Event, error) {
	filter.From = &from
	filter.To = &to
	var out []*eventlog.Event
	offset := 0
	for {
		filter.Limit = 1000
		filter.Offset = offset
		page, err := s.QueryEvents(ctx, tenantID, filter)
		if err != nil {
			return nil, fmt.Errorf("compliance: query events: %w", err)
		}
		out = append(out, page.Events...)
		if !page.HasMore || len(page.Events) == 0 {
			return out, nil
		}
		offset += len(page.Events)
	}
}

func stringField(payload *eventlog.OrderedMap, field string) (string, bool) {
	if payload == nil {
		return "", false
	}
	v, ok := payload.Get(field)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func floatField(payload *eventlog.OrderedMap, field string) float64 {
	if payload == nil {
		return 0
	}
	v, ok := payload.Get(field)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
