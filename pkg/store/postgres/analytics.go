package postgres

import (
	"context"
	"fmt"

	"github.com/agentlensio/agentlens/pkg/store"
)

func (s *Store) GetAnalytics(ctx context.Context, tenantID string, query store.AnalyticsQuery) (*store.Analytics, error) {
	bucketExpr := "date_trunc('day', timestamp)"
	if query.Granularity == store.GranularityHour {
		bucketExpr = "date_trunc('hour', timestamp)"
	}

	args := []any{tenantID, query.From, query.To}
	agentClause := ""
	if query.AgentID != "" {
		args = append(args, query.AgentID)
		agentClause = fmt.Sprintf(" AND agent_id = $%d", len(args))
	}

	sql := fmt.Sprintf(`
		SELECT %s AS bucket,
			count(*) AS event_count,
			count(*) FILTER (WHERE event_type = 'tool_call') AS tool_call_count,
			count(*) FILTER (WHERE severity IN ('error','critical')) AS error_count,
			coalesce(sum((payload->>'costUsd')::double precision), 0) AS total_cost_usd,
			count(DISTINCT session_id) AS unique_sessions,
			count(DISTINCT agent_id) AS unique_agents
		FROM events
		WHERE tenant_id = $1 AND timestamp >= $2 AND timestamp <= $3%s
		GROUP BY bucket ORDER BY bucket
	`, bucketExpr, agentClause)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: analytics query: %w", err)
	}
	defer rows.Close()

	result := &store.Analytics{}
	for rows.Next() {
		var b store.AnalyticsBucket
		if err := rows.Scan(&b.BucketStart, &b.EventCount, &b.ToolCallCount, &b.ErrorCount, &b.TotalCostUsd, &b.UniqueSessions, &b.UniqueAgents); err != nil {
			return nil, fmt.Errorf("postgres: scan analytics bucket: %w", err)
		}
		result.Buckets = append(result.Buckets, b)
		result.TotalEvents += b.EventCount
		result.TotalToolCalls += b.ToolCallCount
		result.TotalErrors += b.ErrorCount
		result.TotalCostUsd += b.TotalCostUsd
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sessionArgs := []any{tenantID, query.From, query.To}
	sessionClause := ""
	if query.AgentID != "" {
		sessionArgs = append(sessionArgs, query.AgentID)
		sessionClause = fmt.Sprintf(" AND agent_id = $%d", len(sessionArgs))
	}
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT count(DISTINCT session_id), count(DISTINCT agent_id) FROM events
		WHERE tenant_id=$1 AND timestamp>=$2 AND timestamp<=$3%s
	`, sessionClause), sessionArgs...)
	if err := row.Scan(&result.UniqueSessions, &result.UniqueAgents); err != nil {
		return nil, fmt.Errorf("postgres: analytics totals: %w", err)
	}
	return result, nil
}
