package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentlensio/agentlens/pkg/store"
)

// Summary is one purge pass's outcome across every active tenant.
type Summary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []*PurgeResult
}

// Failed returns the subset of Results whose purge itself errored.
func (s *Summary) Failed() []*PurgeResult {
	var out []*PurgeResult
	for _, r := range s.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Scheduler runs the purge job on an interval, fanning work out across
// a small fixed pool of worker goroutines keyed by tenant rather than
// by alert session — the same isolation shape as the teacher's
// queue.WorkerPool, applied to a different unit of work, so one
// tenant's purge failure can never block or crash another's.
type Scheduler struct {
	store       store.Store
	lookup      PolicyLookup
	workerCount int
	interval    time.Duration
	warningDays int

	mu          sync.Mutex
	lastSummary *Summary

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler builds a Scheduler. workerCount <= 0 is treated as 1;
// interval is how often RunOnce is invoked by Start's background loop.
func NewScheduler(s store.Store, lookup PolicyLookup, workerCount int, interval time.Duration, warningDays int) *Scheduler {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Scheduler{
		store:       s,
		lookup:      lookup,
		workerCount: workerCount,
		interval:    interval,
		warningDays: warningDays,
	}
}

// Start launches the background purge loop. Calling Start on an
// already-running scheduler is a no-op.
func (sch *Scheduler) Start(ctx context.Context) {
	if sch.cancel != nil {
		return
	}
	ctx, sch.cancel = context.WithCancel(ctx)
	sch.done = make(chan struct{})
	go sch.run(ctx)
}

// Stop signals the purge loop to exit and waits for it to finish.
func (sch *Scheduler) Stop() {
	if sch.cancel == nil {
		return
	}
	sch.cancel()
	<-sch.done
	sch.cancel = nil
	sch.done = nil
}

func (sch *Scheduler) run(ctx context.Context) {
	defer close(sch.done)

	sch.runAndLog(ctx)

	ticker := time.NewTicker(sch.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sch.runAndLog(ctx)
		}
	}
}

func (sch *Scheduler) runAndLog(ctx context.Context) {
	summary, err := sch.RunOnce(ctx)
	if err != nil {
		slog.Error("retention: purge pass failed to enumerate tenants", "error", err)
		return
	}
	if failed := summary.Failed(); len(failed) > 0 {
		slog.Warn("retention: purge pass had per-tenant failures",
			"failed_tenants", len(failed), "total_tenants", len(summary.Results))
	}
}

// RunOnce enumerates every active tenant and applies retention to each
// independently, fanning the work out across the worker pool and
// waiting for every tenant to finish before returning.
func (sch *Scheduler) RunOnce(ctx context.Context) (*Summary, error) {
	tenantIDs, err := sch.store.ActiveTenantIDs(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{StartedAt: time.Now().UTC()}
	if len(tenantIDs) == 0 {
		summary.FinishedAt = time.Now().UTC()
		sch.recordSummary(summary)
		return summary, nil
	}

	jobs := make(chan string)
	results := make(chan *PurgeResult, len(tenantIDs))

	var wg sync.WaitGroup
	for i := 0; i < sch.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tenantID := range jobs {
				results <- sch.applyOne(ctx, tenantID)
			}
		}()
	}

	go func() {
		for _, id := range tenantIDs {
			jobs <- id
		}
		close(jobs)
	}()

	wg.Wait()
	close(results)

	for r := range results {
		summary.Results = append(summary.Results, r)
	}
	summary.FinishedAt = time.Now().UTC()
	sch.recordSummary(summary)
	return summary, nil
}

func (sch *Scheduler) applyOne(ctx context.Context, tenantID string) *PurgeResult {
	tp, err := sch.lookup.Policy(ctx, tenantID)
	if err != nil {
		return &PurgeResult{TenantID: tenantID, Err: err}
	}
	return applyTenant(ctx, sch.store, tenantID, tp, time.Now().UTC(), sch.warningDays)
}

func (sch *Scheduler) recordSummary(s *Summary) {
	sch.mu.Lock()
	sch.lastSummary = s
	sch.mu.Unlock()
}

// LastSummary returns the most recently completed purge pass, or nil
// if none has run yet.
func (sch *Scheduler) LastSummary() *Summary {
	sch.mu.Lock()
	defer sch.mu.Unlock()
	return sch.lastSummary
}
