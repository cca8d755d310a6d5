// Package eventlog defines the canonical Event record, its payload
// taxonomy, and the hash-chain algorithm that links events within a
// session.
package eventlog

import "time"

// EventType is the closed set of event kinds AgentLens understands.
type EventType string

// The 18 event types that make up the taxonomy. Any value outside this
// set fails ingestion validation.
const (
	EventSessionStarted    EventType = "session_started"
	EventSessionEnded      EventType = "session_ended"
	EventToolCall          EventType = "tool_call"
	EventToolResponse      EventType = "tool_response"
	EventToolError         EventType = "tool_error"
	EventApprovalRequested EventType = "approval_requested"
	EventApprovalGranted   EventType = "approval_granted"
	EventApprovalDenied    EventType = "approval_denied"
	EventApprovalExpired   EventType = "approval_expired"
	EventFormSubmitted     EventType = "form_submitted"
	EventFormCompleted     EventType = "form_completed"
	EventFormExpired       EventType = "form_expired"
	EventCostTracked       EventType = "cost_tracked"
	EventLLMCall           EventType = "llm_call"
	EventLLMResponse       EventType = "llm_response"
	EventAlertTriggered    EventType = "alert_triggered"
	EventAlertResolved     EventType = "alert_resolved"
	EventCustom            EventType = "custom"
)

// ValidEventTypes is the closed set used by validation.
var ValidEventTypes = map[EventType]bool{
	EventSessionStarted:    true,
	EventSessionEnded:      true,
	EventToolCall:          true,
	EventToolResponse:      true,
	EventToolError:         true,
	EventApprovalRequested: true,
	EventApprovalGranted:   true,
	EventApprovalDenied:    true,
	EventApprovalExpired:   true,
	EventFormSubmitted:     true,
	EventFormCompleted:     true,
	EventFormExpired:       true,
	EventCostTracked:       true,
	EventLLMCall:           true,
	EventLLMResponse:       true,
	EventAlertTriggered:    true,
	EventAlertResolved:     true,
	EventCustom:            true,
}

// Severity is the event severity level.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ValidSeverities is the closed set used by validation.
var ValidSeverities = map[Severity]bool{
	SeverityDebug:    true,
	SeverityInfo:     true,
	SeverityWarn:     true,
	SeverityError:    true,
	SeverityCritical: true,
}

// HashVersion is embedded in the canonical encoding as `v`. Bump this
// whenever the canonical field ordering or encoding rules change; old
// events keep verifying against the version they were written with.
const HashVersion = 2

// Event is the canonical, immutable record. Hash and PrevHash are
// computed at ingest time and never mutated afterward.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId"`
	AgentID   string    `json:"agentId"`
	TenantID  string    `json:"tenantId"`
	EventType EventType `json:"eventType"`
	Severity  Severity  `json:"severity"`
	Payload   *OrderedMap `json:"payload"`
	Metadata  *OrderedMap `json:"metadata"`
	PrevHash  *string   `json:"prevHash"`
	Hash      string    `json:"hash"`
}

// Clone returns a deep-enough copy for safe concurrent read access
// (payload/metadata maps are copied; scalar fields are copied by value).
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Payload != nil {
		clone.Payload = e.Payload.Clone()
	}
	if e.Metadata != nil {
		clone.Metadata = e.Metadata.Clone()
	}
	if e.PrevHash != nil {
		ph := *e.PrevHash
		clone.PrevHash = &ph
	}
	return &clone
}
