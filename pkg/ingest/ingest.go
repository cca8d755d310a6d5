// Package ingest implements the ingestion pipeline (§4.3): per-batch
// validation, ULID assignment, hash-chain linkage, fixed-window rate
// limiting, atomic store insertion, and ordered bus emission. It holds
// a reference to the raw store.Store rather than the tenant-scoped
// wrapper and passes the batch's tenant ID explicitly.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/agentlensio/agentlens/pkg/bus"
	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/ratelimit"
	"github.com/agentlensio/agentlens/pkg/store"
)

// DefaultMaxPayloadBytes is the configured byte cap on a single
// event's encoded payload (§4.3). Oversized payload.data fields are
// truncated with a flag rather than rejected, per the spec's stated
// preference.
const DefaultMaxPayloadBytes = 64 * 1024

// Pipeline orchestrates one tenant's worth of ingestion. It is safe
// for concurrent use by many goroutines; per-session serialization is
// internal (the sharded lock manager).
type Pipeline struct {
	store           store.Store
	bus             *bus.Bus
	limiter         *ratelimit.Limiter
	locks           *sessionLocks
	maxPayloadBytes int
	entropy         *ulidEntropy
}

// New creates a Pipeline over the raw store, publishing ingestion
// events to b and rate-limiting against l.
func New(s store.Store, b *bus.Bus, l *ratelimit.Limiter) *Pipeline {
	return &Pipeline{
		store:           s,
		bus:             b,
		limiter:         l,
		locks:           newSessionLocks(),
		maxPayloadBytes: DefaultMaxPayloadBytes,
		entropy:         newULIDEntropy(),
	}
}

// IngestBatch validates, rate-limits, chains, and durably inserts one
// batch, then emits the ordered bus messages documented in §4.3's
// "Side effects of a successful batch". now is the wall-clock to stamp
// events lacking an explicit timestamp and to evaluate the rate
// limiter against; callers pass time.Now().UTC() in production and a
// fixed clock in tests.
func (p *Pipeline) IngestBatch(ctx context.Context, now time.Time, tier ratelimit.Tier, in BatchInput) (*BatchResult, error) {
	if len(in.Events) == 0 {
		return &BatchResult{}, nil
	}

	events := make([]*eventlog.Event, len(in.Events))
	sessionIDs := make([]string, 0, len(in.Events))
	truncated := 0

	for i, raw := range in.Events {
		ts := now
		if raw.Timestamp != nil {
			ts = *raw.Timestamp
		}
		severity := raw.Severity
		if severity == "" {
			severity = eventlog.SeverityInfo
		}
		payload := raw.Payload
		if payload == nil {
			payload = eventlog.NewOrderedMap()
		}
		metadata := raw.Metadata
		if metadata == nil {
			metadata = eventlog.NewOrderedMap()
		}
		if truncatedHere := truncatePayload(payload, p.maxPayloadBytes); truncatedHere {
			truncated++
		}

		e := &eventlog.Event{
			Timestamp: ts,
			SessionID: raw.SessionID,
			AgentID:   raw.AgentID,
			TenantID:  in.TenantID,
			EventType: raw.EventType,
			Severity:  severity,
			Payload:   payload,
			Metadata:  metadata,
		}
		if err := eventlog.Validate(e); err != nil {
			return nil, &ErrValidation{EventIndex: i, Reason: err.Error()}
		}
		events[i] = e
		sessionIDs = append(sessionIDs, raw.SessionID)
	}

	if p.limiter != nil {
		res := p.limiter.Allow(now, in.OrgID, in.APIKeyID, tier, len(events))
		if !res.Allowed {
			return nil, &ErrRateLimited{RetryAfter: res.RetryAfter}
		}
	}

	release := p.locks.acquireAll(in.TenantID, sessionIDs)
	defer release()

	if err := p.assignIDsAndHashes(ctx, in.TenantID, events); err != nil {
		return nil, &ErrStoreFailure{Cause: err}
	}

	if err := p.store.InsertEvents(ctx, in.TenantID, events); err != nil {
		return nil, &ErrStoreFailure{Cause: err}
	}

	warnings := p.evaluateGuardrails(ctx, in.TenantID, events)
	p.upsertDiscoveryCapabilities(ctx, in.TenantID, events)
	p.emitBusMessages(ctx, in.TenantID, now, events)
	p.evaluateAlerts(ctx, in.TenantID, now, events)

	return &BatchResult{Events: events, TruncatedPayloads: truncated, Warnings: warnings}, nil
}

// assignIDsAndHashes stamps each event with a time-sortable ULID and
// links it into its session's hash chain in arrival order, looking up
// the prior hash from the store only the first time a session is seen
// in this batch (subsequent events in the same session chain off the
// one just assigned in memory).
func (p *Pipeline) assignIDsAndHashes(ctx context.Context, tenantID string, events []*eventlog.Event) error {
	lastHash := make(map[string]*string)

	for _, e := range events {
		e.ID = p.entropy.next(e.Timestamp).String()

		prev, ok := lastHash[e.SessionID]
		if !ok {
			h, err := p.store.GetLastEventHash(ctx, tenantID, e.SessionID)
			if err != nil {
				return fmt.Errorf("look up last event hash: %w", err)
			}
			prev = h
		}
		e.PrevHash = prev

		hash, err := eventlog.ComputeHash(e)
		if err != nil {
			return fmt.Errorf("compute hash: %w", err)
		}
		e.Hash = hash

		committed := hash
		lastHash[e.SessionID] = &committed
	}
	return nil
}

func (p *Pipeline) emitBusMessages(ctx context.Context, tenantID string, now time.Time, events []*eventlog.Event) {
	if p.bus == nil {
		return
	}
	touchedSessions := make(map[string]bool)
	for _, e := range events {
		p.bus.Publish(bus.Message{
			Type:      bus.MessageEventIngested,
			TenantID:  tenantID,
			Timestamp: now,
			Event:     e,
		})
		touchedSessions[e.SessionID] = true
	}
	for sessionID := range touchedSessions {
		sess, err := p.store.GetSession(ctx, tenantID, sessionID)
		if err != nil {
			continue
		}
		p.bus.Publish(bus.Message{
			Type:      bus.MessageSessionUpdated,
			TenantID:  tenantID,
			Timestamp: now,
			Session:   sess,
		})
	}
}
