package ingest

import "github.com/agentlensio/agentlens/pkg/eventlog"

// truncatePayload enforces the configured byte cap on payload.data by
// truncating the string and setting payload.truncated = true rather
// than rejecting the event — the spec's stated preference over a hard
// reject for oversized payload.data fields. Returns whether it
// truncated anything.
func truncatePayload(payload *eventlog.OrderedMap, maxBytes int) bool {
	if payload == nil || maxBytes <= 0 {
		return false
	}
	data, ok := payload.Get("data")
	if !ok {
		return false
	}
	s, ok := data.(string)
	if !ok || len(s) <= maxBytes {
		return false
	}
	payload.Set("data", s[:maxBytes])
	payload.Set("truncated", true)
	return true
}
