package exportimport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

// ExportOptions narrows the session, event and audit-log rows an
// export includes. A nil bound is unconstrained. Agents, health
// scores, alert rules, and guardrail rules are exported in full — they
// describe current tenant configuration/state rather than a time
// series, so a date range has no natural meaning for them.
type ExportOptions struct {
	From *time.Time
	To   *time.Time
}

const eventPageSize = 1000

// Export streams tenantID's data as NDJSON lines in dependency order
// (agent, session, event, health_score, alert_rule, guardrail_rule,
// audit_log), strips tenantId from every row, and appends a trailing
// checksum line (§4.6). The returned slice's last element is always
// the checksum line.
func Export(ctx context.Context, s store.Store, tenantID string, opts ExportOptions) ([]string, error) {
	var lines []string
	counts := make(map[string]int)

	agents, err := s.ListAgents(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("exportimport: list agents: %w", err)
	}
	for _, a := range agents {
		line, err := marshalLine(toAgentRecord(a))
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
		counts[typeAgent]++
	}

	sessions, err := listAllSessions(ctx, s, tenantID, opts)
	if err != nil {
		return nil, err
	}
	for _, sess := range sessions {
		line, err := marshalLine(toSessionRecord(sess))
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
		counts[typeSession]++
	}

	events, err := listAllEvents(ctx, s, tenantID, opts)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		line, err := marshalLine(toEventRecord(e))
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
		counts[typeEvent]++
	}

	for _, a := range agents {
		ts, err := s.GetTrustScore(ctx, tenantID, a.ID)
		if err != nil {
			if err == store.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("exportimport: get trust score: %w", err)
		}
		line, err := marshalLine(toHealthScoreRecord(ts))
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
		counts[typeHealthScore]++
	}

	alertRules, err := s.ListAlertRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("exportimport: list alert rules: %w", err)
	}
	for _, r := range alertRules {
		line, err := marshalLine(toAlertRuleRecord(r))
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
		counts[typeAlertRule]++
	}

	guardrailRules, err := s.ListGuardrailRules(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("exportimport: list guardrail rules: %w", err)
	}
	for _, r := range guardrailRules {
		line, err := marshalLine(toGuardrailRuleRecord(r))
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
		counts[typeGuardrailRule]++
	}

	auditFrom, auditTo := auditLogRange(opts)
	auditEntries, err := s.ListAuditLog(ctx, tenantID, auditFrom, auditTo)
	if err != nil {
		return nil, fmt.Errorf("exportimport: list audit log: %w", err)
	}
	for _, e := range auditEntries {
		line, err := marshalLine(toAuditLogRecord(e))
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
		counts[typeAuditLog]++
	}

	checksum := checksumRecord{
		envelope:   newEnvelope(typeChecksum),
		SHA256:     sumLines(lines),
		Counts:     counts,
		ExportedAt: time.Now().UTC(),
	}
	checksumLine, err := marshalLine(checksum)
	if err != nil {
		return nil, err
	}
	lines = append(lines, checksumLine)

	return lines, nil
}

// sumLines is the hex SHA-256 digest of every line concatenated with
// newline separators, matching §4.6's checksum definition exactly.
func sumLines(lines []string) string {
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

func marshalLine(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("exportimport: marshal %T: %w", v, err)
	}
	return string(b), nil
}

func listAllSessions(ctx context.Context, s store.Store, tenantID string, opts ExportOptions) ([]*store.Session, error) {
	var out []*store.Session
	offset := 0
	for {
		page, err := s.QuerySessions(ctx, tenantID, store.SessionFilter{
			From:   opts.From,
			To:     opts.To,
			Limit:  eventPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("exportimport: query sessions: %w", err)
		}
		out = append(out, page.Sessions...)
		if !page.HasMore || len(page.Sessions) == 0 {
			return out, nil
		}
		offset += len(page.Sessions)
	}
}

func listAllEvents(ctx context.Context, s store.Store, tenantID string, opts ExportOptions) ([]*eventlog.Event, error) {
	var out []*eventlog.Event
	offset := 0
	for {
		page, err := s.QueryEvents(ctx, tenantID, store.EventFilter{
			From:   opts.From,
			To:     opts.To,
			Order:  store.OrderAsc,
			Limit:  eventPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("exportimport: query events: %w", err)
		}
		out = append(out, page.Events...)
		if !page.HasMore || len(page.Events) == 0 {
			return out, nil
		}
		offset += len(page.Events)
	}
}

func auditLogRange(opts ExportOptions) (time.Time, time.Time) {
	from := time.Unix(0, 0).UTC()
	if opts.From != nil {
		from = *opts.From
	}
	to := time.Now().UTC().AddDate(1, 0, 0)
	if opts.To != nil {
		to = *opts.To
	}
	return from, to
}
