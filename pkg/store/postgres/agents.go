package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agentlensio/agentlens/pkg/store"
)

func (s *Store) UpsertAgent(ctx context.Context, tenantID string, agent *store.Agent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agents (tenant_id, id, name, description, first_seen_at, last_seen_at, session_count, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = $3, description = $4, first_seen_at = LEAST(agents.first_seen_at, $5),
			last_seen_at = GREATEST(agents.last_seen_at, $6), session_count = $7, updated_at = now()
	`, tenantID, agent.ID, agent.Name, agent.Description, agent.FirstSeenAt, agent.LastSeenAt, agent.SessionCount)
	if err != nil {
		return fmt.Errorf("postgres: upsert agent: %w", err)
	}
	return nil
}

func scanAgent(row rowScanner) (*store.Agent, error) {
	var a store.Agent
	if err := row.Scan(&a.TenantID, &a.ID, &a.Name, &a.Description, &a.FirstSeenAt, &a.LastSeenAt, &a.SessionCount, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

const agentColumns = `tenant_id, id, name, description, first_seen_at, last_seen_at, session_count, created_at, updated_at`

func (s *Store) ListAgents(ctx context.Context, tenantID string) ([]*store.Agent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents WHERE tenant_id=$1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list agents: %w", err)
	}
	defer rows.Close()

	var agents []*store.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *Store) GetAgent(ctx context.Context, tenantID, agentID string) (*store.Agent, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE tenant_id=$1 AND id=$2`, tenantID, agentID)
	a, err := scanAgent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get agent: %w", err)
	}
	return a, nil
}
