package eventlog

import "fmt"

// RequiredPayloadFields lists the fields that must be present (and
// non-empty, for string fields) in the payload of each event type that
// carries required fields. Types not listed here have no required
// payload fields beyond being a well-formed JSON object.
var RequiredPayloadFields = map[EventType][]string{
	EventToolCall:          {"toolName", "callId", "arguments"},
	EventToolResponse:      {"callId"},
	EventToolError:         {"callId"},
	EventApprovalRequested: {"requestId"},
	EventFormSubmitted:     {"submissionId"},
	EventCostTracked:       {"provider", "model", "inputTokens", "outputTokens", "totalTokens", "costUsd"},
	EventLLMCall:           {"callId", "provider", "model"},
	EventLLMResponse:       {"callId"},
}

// ValidatePayload checks that payload carries the required fields for
// eventType. An empty/nil payload is only valid for types with no
// required fields.
func ValidatePayload(eventType EventType, payload *OrderedMap) error {
	required, ok := RequiredPayloadFields[eventType]
	if !ok {
		return nil
	}
	for _, field := range required {
		val, present := payload.Get(field)
		if !present {
			return fmt.Errorf("payload missing required field %q for event type %q", field, eventType)
		}
		if s, isString := val.(string); isString && s == "" {
			return fmt.Errorf("payload field %q for event type %q must not be empty", field, eventType)
		}
	}
	return nil
}

// CorrelationField returns the payload field name used to pair this
// event type with its counterpart in the replay builder, and whether
// eventType is a "completion/decision/closure" kind that must reference
// an earlier initiating event (I6).
func CorrelationField(eventType EventType) (field string, isClosure bool, ok bool) {
	switch eventType {
	case EventToolCall:
		return "callId", false, true
	case EventToolResponse, EventToolError:
		return "callId", true, true
	case EventLLMCall:
		return "callId", false, true
	case EventLLMResponse:
		return "callId", true, true
	case EventApprovalRequested:
		return "requestId", false, true
	case EventApprovalGranted, EventApprovalDenied, EventApprovalExpired:
		return "requestId", true, true
	case EventFormSubmitted:
		return "submissionId", false, true
	case EventFormCompleted, EventFormExpired:
		return "submissionId", true, true
	default:
		return "", false, false
	}
}

// IsRedacted reports whether a payload declares itself redacted.
func IsRedacted(payload *OrderedMap) bool {
	v, ok := payload.Get("redacted")
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// RedactedPlaceholder is substituted for message/completion content when
// a payload is marked redacted.
const RedactedPlaceholder = "[REDACTED]"

// messageContentFields are the fields in llm_call/llm_response payloads
// that carry free-text model content subject to redaction.
var messageContentFields = map[EventType][]string{
	EventLLMCall:     {"messages"},
	EventLLMResponse: {"completion"},
}

// Redact returns a clone of payload with message content fields replaced
// by RedactedPlaceholder, leaving numeric/identity metadata untouched.
// Redaction happens on read, never at rest.
func Redact(eventType EventType, payload *OrderedMap) *OrderedMap {
	if payload == nil || !IsRedacted(payload) {
		return payload
	}
	clone := payload.Clone()
	fields, ok := messageContentFields[eventType]
	if !ok {
		return clone
	}
	for _, field := range fields {
		val, present := clone.Get(field)
		if !present {
			continue
		}
		switch v := val.(type) {
		case []any:
			for _, item := range v {
				if msg, isMap := item.(*OrderedMap); isMap {
					if _, hasContent := msg.Get("content"); hasContent {
						msg.Set("content", RedactedPlaceholder)
					}
				}
			}
		case string:
			clone.Set(field, RedactedPlaceholder)
		case *OrderedMap:
			if _, hasContent := v.Get("content"); hasContent {
				v.Set("content", RedactedPlaceholder)
			}
		}
	}
	return clone
}
