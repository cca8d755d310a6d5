package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/agentlensio/agentlens/pkg/store"
	"github.com/agentlensio/agentlens/pkg/store/postgres"
	"github.com/agentlensio/agentlens/pkg/store/storetest"
)

// TestPostgresConformance runs the shared conformance suite against a real,
// disposable Postgres instance provisioned via testcontainers-go — the
// same properties memstore is held to (tenant isolation, atomic
// aggregates, retention cutoff), proving both backends satisfy store.Store
// identically.
func TestPostgresConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in -short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("agentlens"),
		tcpostgres.WithUsername("agentlens"),
		tcpostgres.WithPassword("agentlens"),
		tcpostgres.BasicWaitStrategies(),
		tcpostgres.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	pgStore, err := postgres.New(ctx, postgres.Config{
		Host:     host,
		Port:     port.Int(),
		User:     "agentlens",
		Password: "agentlens",
		Database: "agentlens",
		SSLMode:  "disable",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgStore.Close() })

	// Sanity check the pool-based constructor path too, against the same DSN.
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	alt := postgres.NewFromPool(pool)
	require.NoError(t, alt.Ping(ctx))

	storetest.RunConformance(t, func(t *testing.T) store.Store {
		truncateAll(t, pgStore)
		return pgStore
	})
}

func truncateAll(t *testing.T, s *postgres.Store) {
	t.Helper()
	_, err := s.Pool().Exec(context.Background(), `TRUNCATE events, sessions, agents, alert_history,
		alert_rules, discovery_capabilities, trust_scores, guardrail_rules, audit_log`)
	require.NoError(t, err)
}
