package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

// InsertEvents writes the batch and updates session/agent aggregates in
// one transaction — §4.2's "all or nothing" guarantee (P4).
func (s *Store) InsertEvents(ctx context.Context, tenantID string, events []*eventlog.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		payloadJSON, err := marshalOrNull(e.Payload)
		if err != nil {
			return fmt.Errorf("postgres: marshal payload: %w", err)
		}
		metadataJSON, err := marshalOrNull(e.Metadata)
		if err != nil {
			return fmt.Errorf("postgres: marshal metadata: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO events (id, tenant_id, timestamp, session_id, agent_id, event_type, severity, payload, metadata, prev_hash, hash)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, e.ID, tenantID, e.Timestamp, e.SessionID, e.AgentID, string(e.EventType), string(e.Severity), payloadJSON, metadataJSON, e.PrevHash, e.Hash)
		if err != nil {
			return fmt.Errorf("postgres: insert event: %w", err)
		}
		if err := applySessionAggregate(ctx, tx, tenantID, e); err != nil {
			return err
		}
		if err := applyAgentAggregate(ctx, tx, tenantID, e); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func marshalOrNull(om *eventlog.OrderedMap) ([]byte, error) {
	if om == nil {
		return []byte("null"), nil
	}
	return om.MarshalJSON()
}

func applySessionAggregate(ctx context.Context, tx pgx.Tx, tenantID string, e *eventlog.Event) error {
	var toolCallInc, errorInc, llmCallInc int
	switch e.EventType {
	case eventlog.EventToolCall:
		toolCallInc = 1
	case eventlog.EventLLMCall:
		llmCallInc = 1
	}
	// Single increment per event, mirroring replay.isErrorEvent: a
	// tool_error at error severity must not double-count.
	if e.Severity == eventlog.SeverityError || e.Severity == eventlog.SeverityCritical || e.EventType == eventlog.EventToolError {
		errorInc = 1
	}

	var costDelta float64
	var inputTokens, outputTokens int64
	if e.EventType == eventlog.EventCostTracked || e.EventType == eventlog.EventLLMResponse {
		if v, ok := e.Payload.Get("costUsd"); ok {
			if f, ok := toFloat(v); ok {
				costDelta = f
			}
		}
		if v, ok := e.Payload.Get("inputTokens"); ok {
			if f, ok := toFloat(v); ok {
				inputTokens = int64(f)
			}
		}
		if v, ok := e.Payload.Get("outputTokens"); ok {
			if f, ok := toFloat(v); ok {
				outputTokens = int64(f)
			}
		}
	}

	agentName := ""
	if e.EventType == eventlog.EventSessionStarted {
		if v, ok := e.Payload.Get("agentName"); ok {
			if n, ok := v.(string); ok {
				agentName = n
			}
		}
	}

	var endedAt *time.Time
	status := ""
	if e.EventType == eventlog.EventSessionEnded {
		ended := e.Timestamp
		endedAt = &ended
		reason, _ := e.Payload.Get("reason")
		if r, ok := reason.(string); ok && r == "error" {
			status = string(store.SessionError)
		} else {
			status = string(store.SessionCompleted)
		}
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO sessions (tenant_id, id, agent_id, agent_name, started_at, status,
			event_count, tool_call_count, error_count, llm_call_count,
			total_input_tokens, total_output_tokens, total_cost_usd, updated_at)
		VALUES ($1,$2,$3,$4,$5, COALESCE(NULLIF($6,''),'active'), 1,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			event_count = sessions.event_count + 1,
			tool_call_count = sessions.tool_call_count + $7,
			error_count = sessions.error_count + $8,
			llm_call_count = sessions.llm_call_count + $9,
			total_input_tokens = sessions.total_input_tokens + $10,
			total_output_tokens = sessions.total_output_tokens + $11,
			total_cost_usd = sessions.total_cost_usd + $12,
			agent_name = CASE WHEN $4 <> '' THEN $4 ELSE sessions.agent_name END,
			ended_at = COALESCE($14, sessions.ended_at),
			-- sticky-terminal: once completed/error, status is frozen (§4.3)
			status = CASE WHEN sessions.status IN ('completed','error') THEN sessions.status
			              WHEN $6 <> '' THEN $6
			              ELSE sessions.status END,
			updated_at = $13
	`, tenantID, e.SessionID, e.AgentID, agentName, e.Timestamp, status,
		toolCallInc, errorInc, llmCallInc, inputTokens, outputTokens, costDelta, e.Timestamp, endedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert session aggregate: %w", err)
	}
	return nil
}

func applyAgentAggregate(ctx context.Context, tx pgx.Tx, tenantID string, e *eventlog.Event) error {
	// A session is "new" (for sessionCount purposes) only the first time
	// we see it; detect via whether the session row existed before this
	// event's own insert above incremented event_count to 1.
	var eventCount int
	if err := tx.QueryRow(ctx, `SELECT event_count FROM sessions WHERE tenant_id=$1 AND id=$2`, tenantID, e.SessionID).Scan(&eventCount); err != nil {
		return fmt.Errorf("postgres: read session for agent aggregate: %w", err)
	}
	sessionIsNew := eventCount == 1

	_, err := tx.Exec(ctx, `
		INSERT INTO agents (tenant_id, id, name, first_seen_at, last_seen_at, session_count)
		VALUES ($1,$2,$2,$3,$3,$4)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			last_seen_at = $3,
			session_count = agents.session_count + $4,
			updated_at = now()
	`, tenantID, e.AgentID, e.Timestamp, boolToInt(sessionIsNew))
	if err != nil {
		return fmt.Errorf("postgres: upsert agent aggregate: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
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
	row := s.pool.QueryRow(ctx, `
		SELECT id, timestamp, session_id, agent_id, tenant_id, event_type, severity, payload, metadata, prev_hash, hash
		FROM events WHERE tenant_id=$1 AND id=$2
	`, tenantID, id)
	e, err := scanEvent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get event: %w", err)
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*eventlog.Event, error) {
	var (
		id, sessionID, agentID, tenantID, eventType, severity, hash string
		prevHash                                                    *string
		payloadBytes, metadataBytes                                 []byte
		ts                                                           time.Time
	)
	if err := row.Scan(&id, &ts, &sessionID, &agentID, &tenantID, &eventType, &severity, &payloadBytes, &metadataBytes, &prevHash, &hash); err != nil {
		return nil, err
	}
	payload, err := eventlog.OrderedMapFromJSON(payloadBytes)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	metadata, err := eventlog.OrderedMapFromJSON(metadataBytes)
	if err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &eventlog.Event{
		ID:        id,
		Timestamp: ts,
		SessionID: sessionID,
		AgentID:   agentID,
		TenantID:  tenantID,
		EventType: eventlog.EventType(eventType),
		Severity:  eventlog.Severity(severity),
		Payload:   payload,
		Metadata:  metadata,
		PrevHash:  prevHash,
		Hash:      hash,
	}, nil
}

// filterClause builds the WHERE predicate (beyond tenant_id) and its
// positional args for an EventFilter, starting arg numbering at argOffset+1.
func filterClause(filter store.EventFilter, argOffset int) (string, []any) {
	var clauses []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", argOffset+len(args))
	}

	if filter.SessionID != "" {
		clauses = append(clauses, "session_id = "+next(filter.SessionID))
	}
	if filter.AgentID != "" {
		clauses = append(clauses, "agent_id = "+next(filter.AgentID))
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		clauses = append(clauses, "event_type = ANY("+next(types)+")")
	}
	if len(filter.Severities) > 0 {
		sevs := make([]string, len(filter.Severities))
		for i, sv := range filter.Severities {
			sevs[i] = string(sv)
		}
		clauses = append(clauses, "severity = ANY("+next(sevs)+")")
	}
	if filter.From != nil {
		clauses = append(clauses, "timestamp >= "+next(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "timestamp <= "+next(*filter.To))
	}
	if filter.Search != "" {
		clauses = append(clauses, "payload::text ILIKE "+next("%"+filter.Search+"%"))
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

func (s *Store) QueryEvents(ctx context.Context, tenantID string, filter store.EventFilter) (*store.EventList, error) {
	where, args := filterClause(filter, 1)
	countArgs := append([]any{tenantID}, args...)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM events WHERE tenant_id=$1`+where, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: count events: %w", err)
	}

	order := "DESC"
	if filter.Order == store.OrderAsc {
		order = "ASC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset

	queryArgs := append(append([]any{}, countArgs...), limit, offset)
	limitIdx := len(queryArgs) - 1
	offsetIdx := len(queryArgs)
	query := fmt.Sprintf(`
		SELECT id, timestamp, session_id, agent_id, tenant_id, event_type, severity, payload, metadata, prev_hash, hash
		FROM events WHERE tenant_id=$1%s ORDER BY timestamp %s LIMIT $%d OFFSET $%d
	`, where, order, limitIdx, offsetIdx)

	rows, err := s.pool.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query events: %w", err)
	}
	defer rows.Close()

	var events []*eventlog.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &store.EventList{Events: events, Total: total, HasMore: offset+len(events) < total}, nil
}

func (s *Store) GetSessionTimeline(ctx context.Context, tenantID, sessionID string) ([]*eventlog.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, timestamp, session_id, agent_id, tenant_id, event_type, severity, payload, metadata, prev_hash, hash
		FROM events WHERE tenant_id=$1 AND session_id=$2 ORDER BY timestamp ASC
	`, tenantID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: session timeline: %w", err)
	}
	defer rows.Close()

	var events []*eventlog.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *Store) GetLastEventHash(ctx context.Context, tenantID, sessionID string) (*string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `
		SELECT hash FROM events WHERE tenant_id=$1 AND session_id=$2 ORDER BY timestamp DESC LIMIT 1
	`, tenantID, sessionID).Scan(&hash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: last event hash: %w", err)
	}
	return &hash, nil
}

func (s *Store) CountEvents(ctx context.Context, tenantID string, filter store.EventFilter) (int, error) {
	where, args := filterClause(filter, 1)
	queryArgs := append([]any{tenantID}, args...)
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM events WHERE tenant_id=$1`+where, queryArgs...).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres: count events: %w", err)
	}
	return total, nil
}

func (s *Store) CountEventsBatch(ctx context.Context, tenantID string, filter store.EventFilter) (*store.EventCounts, error) {
	where, args := filterClause(filter, 1)
	queryArgs := append([]any{tenantID}, args...)
	var counts store.EventCounts
	err := s.pool.QueryRow(ctx, `
		SELECT count(*),
			count(*) FILTER (WHERE severity = 'error'),
			count(*) FILTER (WHERE severity = 'critical'),
			count(*) FILTER (WHERE event_type = 'tool_error')
		FROM events WHERE tenant_id=$1`+where, queryArgs...).
		Scan(&counts.Total, &counts.Error, &counts.Critical, &counts.ToolError)
	if err != nil {
		return nil, fmt.Errorf("postgres: count events batch: %w", err)
	}
	return &counts, nil
}
