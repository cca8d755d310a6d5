package eventlog

import (
	"fmt"
	"time"
)

// Validate checks structural invariants on e that must hold before it is
// admitted to a session's chain: known event type and severity, required
// identifiers present, a non-zero timestamp, and the payload shape
// required by the event's type.
func Validate(e *Event) error {
	if e.SessionID == "" {
		return fmt.Errorf("eventlog: sessionId is required")
	}
	if e.AgentID == "" {
		return fmt.Errorf("eventlog: agentId is required")
	}
	if e.TenantID == "" {
		return fmt.Errorf("eventlog: tenantId is required")
	}
	if !ValidEventTypes[e.EventType] {
		return fmt.Errorf("eventlog: unknown event type %q", e.EventType)
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	if !ValidSeverities[e.Severity] {
		return fmt.Errorf("eventlog: unknown severity %q", e.Severity)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("eventlog: timestamp is required")
	}
	if e.Timestamp.After(time.Now().UTC().Add(5 * time.Minute)) {
		return fmt.Errorf("eventlog: timestamp too far in the future")
	}
	if err := ValidatePayload(e.EventType, e.Payload); err != nil {
		return err
	}
	return nil
}
