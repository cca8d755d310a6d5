package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustOrderedMap(t *testing.T, json string) *OrderedMap {
	t.Helper()
	om, err := OrderedMapFromJSON([]byte(json))
	require.NoError(t, err)
	return om
}

func sampleEvent(t *testing.T, payloadJSON, metadataJSON string, prevHash *string) *Event {
	t.Helper()
	return &Event{
		ID:        "01J000000000000000000000",
		Timestamp: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		SessionID: "sess-1",
		AgentID:   "agent-1",
		TenantID:  "tenant-1",
		EventType: EventToolCall,
		Severity:  SeverityInfo,
		Payload:   mustOrderedMap(t, payloadJSON),
		Metadata:  mustOrderedMap(t, metadataJSON),
		PrevHash:  prevHash,
	}
}

// TestCanonicalBytes_RawAndStructMatch proves the struct-based and raw
// encoders produce byte-identical output across payload shapes that
// exercise nesting, empty objects, unicode, and numeric precision.
func TestCanonicalBytes_RawAndStructMatch(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		metadata string
		prevHash *string
	}{
		{"simple", `{"toolName":"search","callId":"c1","arguments":{"q":"go"}}`, `{"env":"prod"}`, nil},
		{"empty objects", `{}`, `{}`, nil},
		{"nested arrays", `{"toolName":"x","callId":"c2","arguments":{"items":[1,2,{"a":"b"}]}}`, `{}`, strPtr("deadbeef")},
		{"unicode", `{"toolName":"x","callId":"c3","arguments":{"text":"héllo 世界 🚀"}}`, `{}`, nil},
		{"large numbers", `{"toolName":"x","callId":"c4","arguments":{"n":9007199254740993}}`, `{}`, nil},
		{"nested order preserved", `{"toolName":"x","callId":"c5","arguments":{"z":1,"a":2,"m":3}}`, `{"b":1,"a":2}`, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := sampleEvent(t, tc.payload, tc.metadata, tc.prevHash)

			structBytes, err := CanonicalBytes(e)
			require.NoError(t, err)

			payloadJSON, err := e.Payload.MarshalJSON()
			require.NoError(t, err)
			metadataJSON, err := e.Metadata.MarshalJSON()
			require.NoError(t, err)
			rawBytes, err := CanonicalBytesRaw(
				e.ID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.SessionID, e.AgentID,
				string(e.EventType), string(e.Severity), payloadJSON, metadataJSON, e.PrevHash,
			)
			require.NoError(t, err)

			require.Equal(t, string(structBytes), string(rawBytes))

			structHash, err := ComputeHash(e)
			require.NoError(t, err)
			rawHash, err := ComputeHashRaw(
				e.ID, e.Timestamp.UTC().Format(time.RFC3339Nano), e.SessionID, e.AgentID,
				string(e.EventType), string(e.Severity), payloadJSON, metadataJSON, e.PrevHash,
			)
			require.NoError(t, err)
			require.Equal(t, structHash, rawHash)
		})
	}
}

// TestComputeHash_Deterministic proves P1: hashing the same logical event
// twice yields the same digest, independent of map construction order.
func TestComputeHash_Deterministic(t *testing.T) {
	e1 := sampleEvent(t, `{"toolName":"x","callId":"c1","arguments":{"a":1,"b":2}}`, `{}`, nil)
	e2 := e1.Clone()

	h1, err := ComputeHash(e1)
	require.NoError(t, err)
	h2, err := ComputeHash(e2)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

// TestComputeHash_SensitiveToFieldChanges proves that altering any
// canonical field changes the digest (tamper detection depends on this).
func TestComputeHash_SensitiveToFieldChanges(t *testing.T) {
	base := sampleEvent(t, `{"toolName":"x","callId":"c1","arguments":{}}`, `{}`, nil)
	baseHash, err := ComputeHash(base)
	require.NoError(t, err)

	mutations := map[string]func(*Event){
		"sessionId":  func(e *Event) { e.SessionID = "other" },
		"agentId":    func(e *Event) { e.AgentID = "other" },
		"eventType":  func(e *Event) { e.EventType = EventCustom },
		"severity":   func(e *Event) { e.Severity = SeverityCritical },
		"timestamp":  func(e *Event) { e.Timestamp = e.Timestamp.Add(time.Second) },
		"payloadKey": func(e *Event) { e.Payload.Set("callId", "different") },
		"prevHash":   func(e *Event) { h := "abc123"; e.PrevHash = &h },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			mutated := base.Clone()
			mutate(mutated)
			h, err := ComputeHash(mutated)
			require.NoError(t, err)
			require.NotEqual(t, baseHash, h, "mutation %q did not change the hash", name)
		})
	}
}

func strPtr(s string) *string { return &s }
