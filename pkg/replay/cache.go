package replay

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// maxCachedLLMHistory caps the llmHistory length recorded against a
// cached step's context (§4.4 Caching: "cached entries MUST cap
// llmHistory length at 50 per step to bound memory").
const maxCachedLLMHistory = 50

// cacheKey is (tenantId, sessionId); replay states are never shared
// across tenants.
type cacheKey struct {
	tenantID  string
	sessionID string
}

// Cache is a bounded, TTL-expiring cache of recent ReplayStates,
// keyed by (tenantId, sessionId). It wraps hashicorp/golang-lru/v2's
// expirable LRU — the teacher's own runbook.Cache is a hand-rolled
// map+mutex+TTL with no size bound, which does not satisfy the spec's
// stated size cap, so this swaps in a real bounded LRU instead of
// reimplementing eviction by hand.
type Cache struct {
	inner *lru.LRU[cacheKey, *ReplayState]
}

// NewCache builds a Cache holding at most size entries, each expiring
// ttl after insertion.
func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{inner: lru.NewLRU[cacheKey, *ReplayState](size, nil, ttl)}
}

// Get returns a deep clone of the cached state, if present and fresh,
// so the caller can mutate or serialize it without racing a concurrent
// eviction or overwrite.
func (c *Cache) Get(tenantID, sessionID string) (*ReplayState, bool) {
	v, ok := c.inner.Get(cacheKey{tenantID, sessionID})
	if !ok {
		return nil, false
	}
	return v.Clone(), true
}

// Put stores a capped clone of state. The stored copy's llmHistory
// entries are truncated to maxCachedLLMHistory per step before
// insertion, bounding memory independent of session size.
func (c *Cache) Put(tenantID, sessionID string, state *ReplayState) {
	capped := state.Clone()
	for _, step := range capped.Steps {
		if step.Context == nil {
			continue
		}
		if len(step.Context.LLMHistory) > maxCachedLLMHistory {
			step.Context.LLMHistory = step.Context.LLMHistory[len(step.Context.LLMHistory)-maxCachedLLMHistory:]
		}
	}
	c.inner.Add(cacheKey{tenantID, sessionID}, capped)
}

// Purge evicts every entry — used by tests and by an explicit
// cache-invalidation hook.
func (c *Cache) Purge() {
	c.inner.Purge()
}
