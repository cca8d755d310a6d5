package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/require"

	"github.com/agentlensio/agentlens/pkg/auth"
	"github.com/agentlensio/agentlens/pkg/bus"
	"github.com/agentlensio/agentlens/pkg/config"
	"github.com/agentlensio/agentlens/pkg/ingest"
	"github.com/agentlensio/agentlens/pkg/ratelimit"
	"github.com/agentlensio/agentlens/pkg/replay"
	"github.com/agentlensio/agentlens/pkg/store/memstore"
)

type fakeKeyStore struct {
	keys map[string]*auth.APIKey // hashed key -> key
}

func newFakeKeyStore() *fakeKeyStore { return &fakeKeyStore{keys: make(map[string]*auth.APIKey)} }

func (f *fakeKeyStore) add(raw string, key *auth.APIKey) {
	key.HashedKey = auth.HashKey(raw)
	f.keys[key.HashedKey] = key
}

func (f *fakeKeyStore) Lookup(ctx context.Context, hashedKey string) (*auth.APIKey, error) {
	if k, ok := f.keys[hashedKey]; ok {
		return k, nil
	}
	return nil, auth.ErrKeyNotFound
}

type fakeConfigStore struct {
	overrides map[string]config.TenantOverrides
}

func newFakeConfigStore() *fakeConfigStore {
	return &fakeConfigStore{overrides: make(map[string]config.TenantOverrides)}
}

func (f *fakeConfigStore) Get(ctx context.Context, tenantID string) (config.TenantOverrides, error) {
	return f.overrides[tenantID], nil
}

func (f *fakeConfigStore) Put(ctx context.Context, tenantID string, overrides config.TenantOverrides) error {
	f.overrides[tenantID] = overrides
	return nil
}

// testServer builds a fully wired Server against an in-memory store and
// starts it behind an httptest.Server, returning the server, the test
// harness, and the key store so individual tests can mint API keys.
func testServer(t *testing.T) (*Server, *httptest.Server, *fakeKeyStore) {
	t.Helper()

	st := memstore.New()
	b := bus.New()
	limiter := ratelimit.New()
	pipeline := ingest.New(st, b, limiter)
	cache := replay.NewCache(64, 0)
	keyStore := newFakeKeyStore()
	configStore := newFakeConfigStore()

	s := NewServer(config.OTLPConfig{}, "", st, pipeline, b, cache, keyStore, configStore)
	require.NoError(t, s.ValidateWiring())

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.setupRoutes()

	ts := httptest.NewServer(s.echo)
	t.Cleanup(ts.Close)
	return s, ts, keyStore
}

func mintKey(ks *fakeKeyStore, raw, tenantID string, scopes ...auth.Scope) {
	ks.add(raw, &auth.APIKey{
		ID:       "key-" + tenantID,
		TenantID: tenantID,
		OrgID:    tenantID,
		Scopes:   scopes,
		Tier:     ratelimit.TierEnterprise,
	})
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, bearer string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthz_NoAuthRequired(t *testing.T) {
	_, ts, _ := testServer(t)
	resp := doRequest(t, ts, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	decodeJSON(t, resp, &body)
	require.Equal(t, "healthy", body["status"])
}

func TestIngestAndQuery_RoundTrip(t *testing.T) {
	_, ts, keyStore := testServer(t)
	mintKey(keyStore, "raw-key-1", "tenant-a", auth.ScopeWrite, auth.ScopeRead)

	ingestBody := map[string]any{
		"events": []map[string]any{
			{
				"sessionId": "sess-1",
				"agentId":   "agent-1",
				"eventType": "tool_call",
				"payload":   map[string]any{"toolName": "search", "callId": "c1", "arguments": "{}"},
			},
		},
	}
	resp := doRequest(t, ts, http.MethodPost, "/api/events", "raw-key-1", ingestBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ingestResp ingestBatchResponse
	decodeJSON(t, resp, &ingestResp)
	require.Equal(t, 1, ingestResp.Inserted)
	require.Len(t, ingestResp.IDs, 1)

	resp = doRequest(t, ts, http.MethodGet, "/api/events?sessionId=sess-1", "raw-key-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listResp eventListResponse
	decodeJSON(t, resp, &listResp)
	require.Len(t, listResp.Events, 1)
	require.Equal(t, "sess-1", listResp.Events[0].SessionID)
}

func TestTenantIsolation_CrossTenantKeyCannotSeeOtherTenantEvents(t *testing.T) {
	_, ts, keyStore := testServer(t)
	mintKey(keyStore, "key-a", "tenant-a", auth.ScopeWrite, auth.ScopeRead)
	mintKey(keyStore, "key-b", "tenant-b", auth.ScopeWrite, auth.ScopeRead)

	ingestBody := map[string]any{
		"events": []map[string]any{
			{"sessionId": "sess-a", "agentId": "agent-a", "eventType": "custom", "payload": map[string]any{"message": "hi"}},
		},
	}
	resp := doRequest(t, ts, http.MethodPost, "/api/events", "key-a", ingestBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/events", "key-b", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listResp eventListResponse
	decodeJSON(t, resp, &listResp)
	require.Empty(t, listResp.Events, "tenant-b must not see tenant-a's events")
}

func TestAuth_MissingBearerRejected(t *testing.T) {
	_, ts, _ := testServer(t)
	resp := doRequest(t, ts, http.MethodGet, "/api/events", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_InsufficientScopeRejected(t *testing.T) {
	_, ts, keyStore := testServer(t)
	mintKey(keyStore, "read-only-key", "tenant-a", auth.ScopeRead)

	resp := doRequest(t, ts, http.MethodPost, "/api/events", "read-only-key", map[string]any{"events": []map[string]any{}})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestConfig_PutThenGetRoundTrip(t *testing.T) {
	_, ts, keyStore := testServer(t)
	mintKey(keyStore, "manage-key", "tenant-a", auth.ScopeManage)

	putBody := map[string]any{"tier": "pro", "webhookUrl": "https://example.com/hook", "webhookSecret": "s3cr3t"}
	resp := doRequest(t, ts, http.MethodPut, "/api/config", "manage-key", putBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/config", "manage-key", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view config.TenantOverridesView
	decodeJSON(t, resp, &view)
	require.Equal(t, "https://example.com/hook", view.WebhookURL)
	require.True(t, view.WebhookSecretSet)
}
