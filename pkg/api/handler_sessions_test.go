package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentlensio/agentlens/pkg/auth"
	"github.com/agentlensio/agentlens/pkg/replay"
)

// TestSessionReplay_DefaultOptionsServedFromCache plants a fabricated
// ReplayState directly in the server's replay cache and confirms a
// default-options request returns it verbatim rather than rebuilding
// from the (empty) store — proving the cache-first path actually runs.
func TestSessionReplay_DefaultOptionsServedFromCache(t *testing.T) {
	s, ts, keyStore := testServer(t)
	mintKey(keyStore, "replay-key", "tenant-a", auth.ScopeRead)

	fabricated := &replay.ReplayState{
		TenantID:   "tenant-a",
		SessionID:  "sess-cached",
		ChainValid: true,
		Summary:    replay.Summary{TotalCostUsd: 42.5},
		Limit:      replay.DefaultLimit,
	}
	s.replayCache.Put("tenant-a", "sess-cached", fabricated)

	resp := doRequest(t, ts, http.MethodGet, "/api/sessions/sess-cached/replay", "replay-key", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view replayResponse
	decodeJSON(t, resp, &view)
	require.Equal(t, 42.5, view.Summary.TotalCostUsd, "default-options request must be served from cache")
}

// TestSessionReplay_NonDefaultOptionsBypassCache confirms a request
// carrying a non-default limit never consults the cache, even when a
// cached entry exists for the same session — it rebuilds fresh from
// the store and returns the genuinely-empty result (cost 0) instead of
// the fabricated cached value.
func TestSessionReplay_NonDefaultOptionsBypassCache(t *testing.T) {
	s, ts, keyStore := testServer(t)
	mintKey(keyStore, "replay-key-2", "tenant-a", auth.ScopeRead, auth.ScopeWrite)

	// The session must actually exist in the store, or Build returns a
	// nil state (translated to 404) regardless of the cache.
	ingestBody := map[string]any{
		"events": []map[string]any{
			{"sessionId": "sess-cached-2", "agentId": "agent-1", "eventType": "custom", "payload": map[string]any{"message": "hi"}},
		},
	}
	ingestResp := doRequest(t, ts, http.MethodPost, "/api/events", "replay-key-2", ingestBody)
	require.Equal(t, http.StatusOK, ingestResp.StatusCode)
	ingestResp.Body.Close()

	fabricated := &replay.ReplayState{
		TenantID:   "tenant-a",
		SessionID:  "sess-cached-2",
		ChainValid: true,
		Summary:    replay.Summary{TotalCostUsd: 99.0},
		Limit:      replay.DefaultLimit,
	}
	s.replayCache.Put("tenant-a", "sess-cached-2", fabricated)

	resp := doRequest(t, ts, http.MethodGet, "/api/sessions/sess-cached-2/replay?limit=1", "replay-key-2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view replayResponse
	decodeJSON(t, resp, &view)
	require.NotEqual(t, 99.0, view.Summary.TotalCostUsd, "non-default options must bypass the cache")
}
