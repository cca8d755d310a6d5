package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/agentlensio/agentlens/pkg/store"
)

func (s *Store) UpsertSession(ctx context.Context, tenantID string, session *store.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (tenant_id, id, agent_id, agent_name, started_at, ended_at, status,
			event_count, tool_call_count, error_count, llm_call_count,
			total_input_tokens, total_output_tokens, total_cost_usd, tags, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now())
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			agent_id = $3, agent_name = $4, started_at = $5, ended_at = $6, status = $7,
			event_count = $8, tool_call_count = $9, error_count = $10, llm_call_count = $11,
			total_input_tokens = $12, total_output_tokens = $13, total_cost_usd = $14, tags = $15,
			updated_at = now()
	`, tenantID, session.ID, session.AgentID, session.AgentName, session.StartedAt, session.EndedAt, string(session.Status),
		session.EventCount, session.ToolCallCount, session.ErrorCount, session.LLMCallCount,
		session.TotalInputTokens, session.TotalOutputTokens, session.TotalCostUsd, session.Tags)
	if err != nil {
		return fmt.Errorf("postgres: upsert session: %w", err)
	}
	return nil
}

func scanSession(row rowScanner) (*store.Session, error) {
	var sess store.Session
	var status string
	if err := row.Scan(&sess.TenantID, &sess.ID, &sess.AgentID, &sess.AgentName, &sess.StartedAt, &sess.EndedAt, &status,
		&sess.EventCount, &sess.ToolCallCount, &sess.ErrorCount, &sess.LLMCallCount,
		&sess.TotalInputTokens, &sess.TotalOutputTokens, &sess.TotalCostUsd, &sess.Tags,
		&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	sess.Status = store.SessionStatus(status)
	return &sess, nil
}

const sessionColumns = `tenant_id, id, agent_id, agent_name, started_at, ended_at, status,
	event_count, tool_call_count, error_count, llm_call_count,
	total_input_tokens, total_output_tokens, total_cost_usd, tags, created_at, updated_at`

func (s *Store) QuerySessions(ctx context.Context, tenantID string, filter store.SessionFilter) (*store.SessionList, error) {
	var clauses []string
	args := []any{tenantID}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.AgentID != "" {
		clauses = append(clauses, "agent_id = "+next(filter.AgentID))
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = "+next(string(filter.Status)))
	}
	if filter.From != nil {
		clauses = append(clauses, "started_at >= "+next(*filter.From))
	}
	if filter.To != nil {
		clauses = append(clauses, "started_at <= "+next(*filter.To))
	}
	if len(filter.Tags) > 0 {
		clauses = append(clauses, "tags @> "+next(filter.Tags))
	}
	where := ""
	if len(clauses) > 0 {
		where = " AND " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM sessions WHERE tenant_id=$1`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: count sessions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	queryArgs := append(append([]any{}, args...), limit, offset)

	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE tenant_id=$1%s ORDER BY started_at DESC LIMIT $%d OFFSET $%d`,
		sessionColumns, where, len(queryArgs)-1, len(queryArgs))

	rows, err := s.pool.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*store.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &store.SessionList{Sessions: sessions, Total: total, HasMore: offset+len(sessions) < total}, nil
}

func (s *Store) GetSession(ctx context.Context, tenantID, sessionID string) (*store.Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE tenant_id=$1 AND id=$2`, tenantID, sessionID)
	sess, err := scanSession(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get session: %w", err)
	}
	return sess, nil
}
