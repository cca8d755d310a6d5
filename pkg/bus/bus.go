// Package bus is a process-local, non-blocking publish/subscribe bus
// connecting the ingestion, alerting, and retention paths to the live
// HTTP stream. Emission is synchronous with respect to the publisher
// but never blocks on a slow subscriber: a full subscriber channel
// drops the message rather than back-pressuring the caller.
package bus

import (
	"sync"
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

// MessageType is the closed set of bus message kinds (§4.5).
type MessageType string

const (
	MessageEventIngested  MessageType = "event_ingested"
	MessageSessionUpdated MessageType = "session_updated"
	MessageAlertTriggered MessageType = "alert_triggered"
)

// Message is the envelope published on the bus. Exactly one of Event,
// Session, AlertRule/AlertHistory is populated, matching Type.
type Message struct {
	Type      MessageType
	TenantID  string
	Timestamp time.Time

	Event   *eventlog.Event
	Session *store.Session

	AlertRule    *store.AlertRule
	AlertHistory *store.AlertHistory
}

// Bus is a non-blocking broadcast bus, modeled on a map-of-channels
// guarded by an RWMutex: Publish holds the read lock so many
// publishers can fan out concurrently, Subscribe/Unsubscribe hold the
// write lock only for the brief map mutation.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Message]struct{}
}

// New creates a ready-to-use Bus.
func New() *Bus {
	return &Bus{subs: make(map[chan Message]struct{})}
}

// Publish fans m out to every current subscriber. A subscriber whose
// buffer is full has m dropped for it rather than blocking the
// publisher — the documented backpressure policy for this bus.
func (b *Bus) Publish(m Message) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- m:
		default:
		}
	}
}

// Subscribe registers a new subscriber with the given buffer size and
// returns a receive-only channel plus an unsubscribe function. The
// caller must invoke the returned function exactly once to release the
// channel; it is safe to call more than once (subsequent calls are a
// no-op).
func (b *Bus) Subscribe(bufSize int) (<-chan Message, func()) {
	ch := make(chan Message, bufSize)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
			b.mu.Unlock()
		})
	}
	return ch, unsubscribe
}

// SubscriberCount reports the current number of live subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
