package ingest

import (
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
)

// EventInput is the producer-supplied shape of one event in a batch:
// every Event field except id, prevHash, and hash, which ingestion
// assigns. Timestamp is optional; an absent value is stamped with
// wall-clock UTC at ingest time (§4.3).
type EventInput struct {
	Timestamp *time.Time
	SessionID string
	AgentID   string
	EventType eventlog.EventType
	Severity  eventlog.Severity
	Payload   *eventlog.OrderedMap
	Metadata  *eventlog.OrderedMap
}

// BatchInput is one POST /v1/events request body.
type BatchInput struct {
	TenantID string
	OrgID    string
	APIKeyID string
	Events   []EventInput
}

// BatchResult is returned on a successful ingest.
type BatchResult struct {
	Events            []*eventlog.Event
	TruncatedPayloads int // count of payloads truncated under the byte cap (§4.3)
	Warnings          []Warning
}

// Warning is attached to a BatchResult for non-fatal, policy-level
// observations — currently only guardrail breaches — that do not
// reject the batch.
type Warning struct {
	SessionID string
	Kind      string
	Detail    string
}
