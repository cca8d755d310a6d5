package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// otlpRateLimiter is a per-IP token bucket guarding the OTLP ingress
// (§6: "per-IP fixed-window rate limit, default 1000/min") — a coarser
// edge guard than pkg/ratelimit's per-key/per-org fixed window the
// authenticated /api routes enforce downstream in the ingest pipeline,
// so a single noisy source IP can't exhaust capacity other tenants'
// OTLP traffic shares before it ever reaches per-tenant accounting.
type otlpRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// newOTLPRateLimiter builds a limiter handing out r events/sec per IP
// with burst headroom, lazily creating one bucket per distinct address
// seen.
func newOTLPRateLimiter(r rate.Limit, burst int) *otlpRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &otlpRateLimiter{limiters: make(map[string]*rate.Limiter), rate: r, burst: burst}
}

// Allow reports whether ip may send one more OTLP request right now.
func (l *otlpRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
