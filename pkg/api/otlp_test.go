package api

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentlensio/agentlens/pkg/config"
)

func TestOTLPTraces_DefaultTenantIngestsSuccessfully(t *testing.T) {
	s, ts, _ := testServer(t)
	s.otlpCfg = config.OTLPConfig{DefaultTenantID: "default-tenant"}

	body := []byte(`{"resourceSpans":[{"scopeSpans":[{"spans":[{"name":"openclaw.tool.invoke","attributes":[{"key":"tool.name","value":{"stringValue":"search"}},{"key":"session.id","value":{"stringValue":"s1"}},{"key":"agent.id","value":{"stringValue":"a1"}}]}]}]}]}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/traces", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestOTLPTraces_NoTenantResolvableRejected(t *testing.T) {
	s, ts, _ := testServer(t)
	s.otlpCfg = config.OTLPConfig{MultiTenant: true}

	body := []byte(`{"resourceSpans":[{"scopeSpans":[{"spans":[{"name":"openclaw.tool.invoke"}]}]}]}`)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/traces", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestOTLPMiddleware_InvalidBearerRejected(t *testing.T) {
	s, ts, _ := testServer(t)
	s.otlpCfg = config.OTLPConfig{DefaultTenantID: "default-tenant"}
	s.otlpToken = "expected-token"

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/traces", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer wrong-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestOTLPMiddleware_CorrectBearerAccepted(t *testing.T) {
	s, ts, _ := testServer(t)
	s.otlpCfg = config.OTLPConfig{DefaultTenantID: "default-tenant"}
	s.otlpToken = "expected-token"

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/traces", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer expected-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
