package retention

import (
	"context"
	"sort"
	"sync"
)

// InMemoryPartitionInspector is a dev/test PartitionInspector double:
// it tracks partition existence in a map rather than against a real
// physically-partitioned table. No backend shipped in this repo
// partitions the events table by month yet, so this is the only
// implementation wired into Monitor until one does; production
// wiring for a partitioned Postgres schema would satisfy the same
// interface with DDL instead of a map.
type InMemoryPartitionInspector struct {
	mu    sync.Mutex
	exist map[string]bool
}

// NewInMemoryPartitionInspector builds an inspector seeded with the
// given existing partition keys (e.g. ["2026-06", "2026-07"]).
func NewInMemoryPartitionInspector(seed ...string) *InMemoryPartitionInspector {
	exist := make(map[string]bool, len(seed))
	for _, k := range seed {
		exist[k] = true
	}
	return &InMemoryPartitionInspector{exist: exist}
}

func (p *InMemoryPartitionInspector) ListPartitions(_ context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.exist))
	for k := range p.exist {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (p *InMemoryPartitionInspector) EnsurePartition(_ context.Context, month string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exist[month] = true
	return nil
}

func (p *InMemoryPartitionInspector) DropPartition(_ context.Context, month string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.exist, month)
	return nil
}
