package exportimport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

// ImportResult is importOrgData's outcome (§4.6).
type ImportResult struct {
	Imported      map[string]int
	Errors        []string
	ChecksumValid *bool // nil = no checksum line present
}

// Import parses lines (one JSON object per line), groups them by
// `_type`, and applies them to tenantID in dependency order. Every row
// is stamped with tenantID regardless of what tenant it was exported
// from, and conflict-do-nothing on the row's primary key makes re-
// importing the same lines a no-op (§4.6 "idempotent re-import").
// Invalid JSON and unknown record types are collected into Errors
// without aborting the rest of the import.
func Import(ctx context.Context, s store.Store, tenantID string, lines []string) (*ImportResult, error) {
	res := &ImportResult{Imported: make(map[string]int)}

	buckets := make(map[string][]json.RawMessage)
	var dataLines []string
	var checksumLine *checksumRecord

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var env envelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: invalid json: %v", i+1, err))
			continue
		}
		if env.Type == typeChecksum {
			var cs checksumRecord
			if err := json.Unmarshal([]byte(line), &cs); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("line %d: invalid checksum record: %v", i+1, err))
				continue
			}
			checksumLine = &cs
			continue
		}
		if _, ok := recordTypeSet()[env.Type]; !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: unknown record type %q", i+1, env.Type))
			continue
		}
		buckets[env.Type] = append(buckets[env.Type], json.RawMessage(line))
		dataLines = append(dataLines, line)
	}

	if checksumLine != nil {
		valid := checksumLine.SHA256 == sumLines(dataLines)
		res.ChecksumValid = &valid
	}

	existingGuardrails, err := existingGuardrailIDs(ctx, s, tenantID)
	if err != nil {
		return nil, err
	}

	for _, recordType := range recordTypeOrder {
		rows := buckets[recordType]
		for _, raw := range rows {
			if err := importOne(ctx, s, tenantID, recordType, raw, existingGuardrails); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", recordType, err))
				continue
			}
			res.Imported[recordType]++
		}
	}

	return res, nil
}

func recordTypeSet() map[string]bool {
	set := make(map[string]bool, len(recordTypeOrder))
	for _, t := range recordTypeOrder {
		set[t] = true
	}
	return set
}

func importOne(ctx context.Context, s store.Store, tenantID, recordType string, raw json.RawMessage, existingGuardrails map[string]bool) error {
	switch recordType {
	case typeAgent:
		var r agentRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		if _, err := s.GetAgent(ctx, tenantID, r.ID); err == nil {
			return nil // conflict: already exists, do nothing
		} else if err != store.ErrNotFound {
			return err
		}
		return s.UpsertAgent(ctx, tenantID, r.toStoreAgent(tenantID))

	case typeSession:
		var r sessionRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		if _, err := s.GetSession(ctx, tenantID, r.ID); err == nil {
			return nil
		} else if err != store.ErrNotFound {
			return err
		}
		return s.UpsertSession(ctx, tenantID, r.toStoreSession(tenantID))

	case typeEvent:
		var r eventRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		if _, err := s.GetEvent(ctx, tenantID, r.ID); err == nil {
			return nil
		} else if err != store.ErrNotFound {
			return err
		}
		return s.InsertEvents(ctx, tenantID, []*eventlog.Event{r.toEvent(tenantID)})

	case typeHealthScore:
		var r healthScoreRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		if _, err := s.GetTrustScore(ctx, tenantID, r.AgentID); err == nil {
			return nil
		} else if err != store.ErrNotFound {
			return err
		}
		return s.PutTrustScore(ctx, tenantID, r.toTrustScore(tenantID))

	case typeAlertRule:
		var r alertRuleRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		if _, err := s.GetAlertRule(ctx, tenantID, r.ID); err == nil {
			return nil
		} else if err != store.ErrNotFound {
			return err
		}
		return s.CreateAlertRule(ctx, tenantID, r.toStoreAlertRule(tenantID))

	case typeGuardrailRule:
		var r guardrailRuleRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		if existingGuardrails[r.ID] {
			return nil
		}
		if err := s.UpsertGuardrailRule(ctx, tenantID, r.toStoreGuardrailRule(tenantID)); err != nil {
			return err
		}
		existingGuardrails[r.ID] = true
		return nil

	case typeAuditLog:
		var r auditLogRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		existing, err := s.ListAuditLog(ctx, tenantID, time.Unix(0, 0).UTC(), time.Now().UTC().AddDate(1, 0, 0))
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.ID == r.ID {
				return nil
			}
		}
		return s.WriteAuditLog(ctx, tenantID, r.toStoreAuditLog(tenantID))

	default:
		return fmt.Errorf("unhandled record type %q", recordType)
	}
}

func existingGuardrailIDs(ctx context.Context, s store.Store, tenantID string) (map[string]bool, error) {
	rules, err := s.ListGuardrailRules(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rules))
	for _, r := range rules {
		out[r.ID] = true
	}
	return out, nil
}
