package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"

	"github.com/agentlensio/agentlens/pkg/auth"
)

func newTestServer(ks auth.KeyStore, requiredScope auth.Scope) *echo.Echo {
	e := echo.New()
	e.Use(auth.Middleware(ks))
	e.GET("/test", func(c *echo.Context) error {
		key, ok := auth.FromContext(c)
		if !ok {
			return c.String(http.StatusInternalServerError, "no key on context")
		}
		return c.String(http.StatusOK, key.TenantID)
	}, auth.RequireScope(requiredScope))
	return e
}

func TestMiddleware_RejectsMissingAuthorizationHeader(t *testing.T) {
	e := newTestServer(auth.NewInMemoryKeyStore(), auth.ScopeRead)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_AcceptsValidBearerTokenAndStoresKeyOnContext(t *testing.T) {
	ks := auth.NewInMemoryKeyStore()
	ks.Put(&auth.APIKey{ID: "k1", TenantID: "tenant-x", HashedKey: auth.HashKey("valid-token"), Scopes: []auth.Scope{auth.ScopeRead}})

	e := newTestServer(ks, auth.ScopeRead)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tenant-x", rec.Body.String())
}

func TestRequireScope_RejectsInsufficientScope(t *testing.T) {
	ks := auth.NewInMemoryKeyStore()
	ks.Put(&auth.APIKey{ID: "k1", TenantID: "tenant-x", HashedKey: auth.HashKey("reader-token"), Scopes: []auth.Scope{auth.ScopeRead}})

	e := newTestServer(ks, auth.ScopeAudit)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer reader-token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
