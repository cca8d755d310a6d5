package eventlog

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// The hash input follows a fixed field ordering, per §4.1: {v, id,
// timestamp, sessionId, agentId, eventType, severity, payload,
// metadata, prevHash}.

// CanonicalBytes returns the deterministic JSON-equivalent encoding used
// as the SHA-256 hash input. It builds the object directly (not via
// json.Marshal on a struct) so the field order is guaranteed regardless
// of Go struct tag reordering or future field additions.
func CanonicalBytes(e *Event) ([]byte, error) {
	payloadJSON, err := marshalOrderedOrNull(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("eventlog: marshal payload: %w", err)
	}
	metadataJSON, err := marshalOrderedOrNull(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("eventlog: marshal metadata: %w", err)
	}
	return canonicalBytesRaw(
		e.ID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		e.SessionID,
		e.AgentID,
		string(e.EventType),
		string(e.Severity),
		payloadJSON,
		metadataJSON,
		e.PrevHash,
	)
}

// CanonicalBytesRaw builds the canonical hash input from pre-serialized
// payload/metadata JSON strings, skipping the OrderedMap round trip in
// the ingest hot path. It MUST produce byte-identical output to
// CanonicalBytes for semantically equal inputs — canonical_test.go
// proves this over a table of payload shapes.
func CanonicalBytesRaw(id, timestamp, sessionID, agentID, eventType, severity string, payloadJSON, metadataJSON []byte, prevHash *string) ([]byte, error) {
	return canonicalBytesRaw(id, timestamp, sessionID, agentID, eventType, severity, payloadJSON, metadataJSON, prevHash)
}

func canonicalBytesRaw(id, timestamp, sessionID, agentID, eventType, severity string, payloadJSON, metadataJSON []byte, prevHash *string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	writeField(&buf, "v", true)
	buf.WriteString(fmt.Sprintf("%d", HashVersion))
	buf.WriteByte(',')

	writeStringField(&buf, "id", id, false)
	writeStringField(&buf, "timestamp", timestamp, false)
	writeStringField(&buf, "sessionId", sessionID, false)
	writeStringField(&buf, "agentId", agentID, false)
	writeStringField(&buf, "eventType", eventType, false)
	writeStringField(&buf, "severity", severity, false)

	writeField(&buf, "payload", true)
	if len(payloadJSON) == 0 {
		buf.WriteString("null")
	} else {
		buf.Write(payloadJSON)
	}
	buf.WriteByte(',')

	writeField(&buf, "metadata", true)
	if len(metadataJSON) == 0 {
		buf.WriteString("null")
	} else {
		buf.Write(metadataJSON)
	}
	buf.WriteByte(',')

	writeField(&buf, "prevHash", true)
	if prevHash == nil {
		buf.WriteString("null")
	} else {
		b, err := json.Marshal(*prevHash)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeField(buf *bytes.Buffer, key string, isLast bool) {
	keyBytes, _ := json.Marshal(key)
	buf.Write(keyBytes)
	buf.WriteByte(':')
	_ = isLast
}

func writeStringField(buf *bytes.Buffer, key, value string, last bool) {
	writeField(buf, key, false)
	b, _ := json.Marshal(value)
	buf.Write(b)
	buf.WriteByte(',')
	_ = last
}

func marshalOrderedOrNull(om *OrderedMap) ([]byte, error) {
	if om == nil {
		return []byte("null"), nil
	}
	return om.MarshalJSON()
}

// ComputeHash returns the lowercase hex SHA-256 digest of the event's
// canonical encoding.
func ComputeHash(e *Event) (string, error) {
	canon, err := CanonicalBytes(e)
	if err != nil {
		return "", err
	}
	return hashHex(canon), nil
}

// ComputeHashRaw is the raw-string-input variant used by the ingest hot
// path (§4.1 "raw variant").
func ComputeHashRaw(id, timestamp, sessionID, agentID, eventType, severity string, payloadJSON, metadataJSON []byte, prevHash *string) (string, error) {
	canon, err := CanonicalBytesRaw(id, timestamp, sessionID, agentID, eventType, severity, payloadJSON, metadataJSON, prevHash)
	if err != nil {
		return "", err
	}
	return hashHex(canon), nil
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
