package ingest

import (
	"sort"
	"sync"
)

// sessionLocks is a sharded map of (tenantId, sessionId) -> mutex,
// create-on-miss and delete-on-drain so the map does not grow
// unboundedly over the life of the process. Modeled directly on the
// teacher's session.Manager (map + sync.RWMutex guarding the map
// itself; a per-entry lock, not the map lock, guards the entry).
type sessionLocks struct {
	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	mu       sync.Mutex
	refCount int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{held: make(map[string]*lockEntry)}
}

func key(tenantID, sessionID string) string {
	return tenantID + "\x00" + sessionID
}

// acquire blocks until the lock for (tenantID, sessionID) is held and
// returns a release function. release MUST be called exactly once.
func (l *sessionLocks) acquire(tenantID, sessionID string) (release func()) {
	k := key(tenantID, sessionID)

	l.mu.Lock()
	entry, ok := l.held[k]
	if !ok {
		entry = &lockEntry{}
		l.held[k] = entry
	}
	entry.refCount++
	l.mu.Unlock()

	entry.mu.Lock()

	released := false
	return func() {
		if released {
			return
		}
		released = true
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refCount--
		if entry.refCount == 0 {
			delete(l.held, k)
		}
		l.mu.Unlock()
	}
}

// acquireAll locks every distinct (tenantID, sessionID) pair in
// sessionIDs, always in sorted order, so concurrent batches touching
// overlapping session sets can never deadlock against each other.
func (l *sessionLocks) acquireAll(tenantID string, sessionIDs []string) (release func()) {
	unique := make(map[string]struct{}, len(sessionIDs))
	ordered := make([]string, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		if _, seen := unique[id]; seen {
			continue
		}
		unique[id] = struct{}{}
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	releases := make([]func(), 0, len(ordered))
	for _, sessionID := range ordered {
		releases = append(releases, l.acquire(tenantID, sessionID))
	}
	return func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
}

