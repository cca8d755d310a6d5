package retention

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/agentlensio/agentlens/pkg/store"
)

// PartitionInspector is the backend-specific hook for a month-
// partitioned event store (§4.6 "if the backend partitions by
// month"). month keys are "YYYY-MM".
type PartitionInspector interface {
	ListPartitions(ctx context.Context) ([]string, error)
	EnsurePartition(ctx context.Context, month string) error
	DropPartition(ctx context.Context, month string) error
}

// PartitionStatus is one health check's result.
type PartitionStatus struct {
	CheckedAt            time.Time
	GlobalMinRetentionMo int
	Created              []string // partitions created this check
	Dropped              []string // partitions dropped this check
	MissingFuture        []string // wanted but could not be created
	Gaps                 []string // absent months within the retained window
}

// Monitor periodically reconciles partitions against the union of
// every active tenant's audit-log retention window, the same
// Start/Stop/ticker-loop/status-map shape as the teacher's
// mcp.HealthMonitor, repurposed from "is this MCP server reachable" to
// "does this month have a partition".
type Monitor struct {
	inspector    PartitionInspector
	store        store.Store
	lookup       PolicyLookup
	futureMonths int
	interval     time.Duration

	statusMu sync.RWMutex
	status   *PartitionStatus

	cancel context.CancelFunc
	done   chan struct{}
}

// DefaultFutureMonths is futureMonths' default per §4.6.
const DefaultFutureMonths = 3

// minGlobalRetentionMonths is the floor §4.6 specifies regardless of
// what the active tenants' policies compute to.
const minGlobalRetentionMonths = 12

// NewMonitor builds a Monitor. futureMonths <= 0 uses DefaultFutureMonths.
func NewMonitor(inspector PartitionInspector, s store.Store, lookup PolicyLookup, futureMonths int, interval time.Duration) *Monitor {
	if futureMonths <= 0 {
		futureMonths = DefaultFutureMonths
	}
	return &Monitor{
		inspector:    inspector,
		store:        s,
		lookup:       lookup,
		futureMonths: futureMonths,
		interval:     interval,
	}
}

// Start launches the background reconciliation loop. A no-op if
// already running.
func (m *Monitor) Start(ctx context.Context) {
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx)
}

// Stop signals the loop to exit and waits for it to finish.
func (m *Monitor) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	_, _ = m.CheckNow(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = m.CheckNow(ctx)
		}
	}
}

// Status returns the result of the most recent check, or nil if none
// has run yet.
func (m *Monitor) Status() *PartitionStatus {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// CheckNow runs one reconciliation pass immediately: creates missing
// current/future partitions, drops partitions strictly older than the
// global minimum retention window, and reports missing-future and
// historical gaps.
func (m *Monitor) CheckNow(ctx context.Context) (*PartitionStatus, error) {
	now := time.Now().UTC()
	globalMin, err := m.globalMinRetentionMonths(ctx)
	if err != nil {
		return nil, err
	}

	current := monthKey(now)
	oldestKept := offsetMonth(current, -globalMin)
	newestWanted := offsetMonth(current, m.futureMonths)

	present, err := m.inspector.ListPartitions(ctx)
	if err != nil {
		return nil, err
	}
	presentSet := make(map[string]bool, len(present))
	for _, p := range present {
		presentSet[p] = true
	}

	status := &PartitionStatus{CheckedAt: now, GlobalMinRetentionMo: globalMin}

	for key := current; key <= newestWanted; key = offsetMonth(key, 1) {
		if presentSet[key] {
			continue
		}
		if err := m.inspector.EnsurePartition(ctx, key); err != nil {
			status.MissingFuture = append(status.MissingFuture, key)
			continue
		}
		presentSet[key] = true
		status.Created = append(status.Created, key)
	}

	for _, key := range present {
		if key < oldestKept {
			if err := m.inspector.DropPartition(ctx, key); err == nil {
				delete(presentSet, key)
				status.Dropped = append(status.Dropped, key)
			}
		}
	}

	for key := oldestKept; key <= newestWanted; key = offsetMonth(key, 1) {
		if !presentSet[key] {
			status.Gaps = append(status.Gaps, key)
		}
	}

	m.statusMu.Lock()
	m.status = status
	m.statusMu.Unlock()
	return status, nil
}

// globalMinRetentionMonths is max(plan audit-log retention in months)
// across active tenants, floored at 12 (§4.6).
func (m *Monitor) globalMinRetentionMonths(ctx context.Context) (int, error) {
	tenantIDs, err := m.store.ActiveTenantIDs(ctx)
	if err != nil {
		return 0, err
	}
	maxMonths := minGlobalRetentionMonths
	for _, tenantID := range tenantIDs {
		tp, err := m.lookup.Policy(ctx, tenantID)
		if err != nil {
			continue
		}
		_, auditDays := resolveDays(tp)
		months := int(math.Ceil(float64(auditDays) / 30))
		if months > maxMonths {
			maxMonths = months
		}
	}
	return maxMonths, nil
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

func offsetMonth(key string, n int) string {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return key
	}
	return monthKey(t.AddDate(0, n, 0))
}
