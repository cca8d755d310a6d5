package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthStatus reports database connectivity and pool utilization,
// generalized from the teacher's database/sql-based Health to
// pgxpool's own connection stats.
type HealthStatus struct {
	Status        string        `json:"status"`
	ResponseTime  int64         `json:"responseTimeMs"`
	TotalConns    int32         `json:"totalConns"`
	AcquiredConns int32         `json:"acquiredConns"`
	IdleConns     int32         `json:"idleConns"`
	MaxConns      int32         `json:"maxConns"`
}

// Health pings pool and reports its connection pool statistics.
func Health(ctx context.Context, pool *pgxpool.Pool) (*HealthStatus, error) {
	start := time.Now()
	if err := pool.Ping(ctx); err != nil {
		return &HealthStatus{
			Status:       "unhealthy",
			ResponseTime: time.Since(start).Milliseconds(),
		}, err
	}

	stat := pool.Stat()
	return &HealthStatus{
		Status:        "healthy",
		ResponseTime:  time.Since(start).Milliseconds(),
		TotalConns:    stat.TotalConns(),
		AcquiredConns: stat.AcquiredConns(),
		IdleConns:     stat.IdleConns(),
		MaxConns:      stat.MaxConns(),
	}, nil
}
