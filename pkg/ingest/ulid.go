package ingest

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ulidEntropy wraps ulid's monotonic entropy source behind a mutex:
// the monotonic reader guarantees strictly increasing ULIDs for
// events sharing a millisecond timestamp, which matters because
// ingestion assigns IDs to an entire batch in a tight loop, and the
// monotonic reader itself is not safe for concurrent use.
type ulidEntropy struct {
	mu     sync.Mutex
	source *ulid.MonotonicEntropy
}

func newULIDEntropy() *ulidEntropy {
	return &ulidEntropy{source: ulid.Monotonic(rand.Reader, 0)}
}

// next returns a new, time-sortable ULID for timestamp ts.
func (u *ulidEntropy) next(ts time.Time) ulid.ULID {
	u.mu.Lock()
	defer u.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(ts), u.source)
}
