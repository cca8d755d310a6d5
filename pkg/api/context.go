package api

import (
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agentlensio/agentlens/pkg/apierrors"
	"github.com/agentlensio/agentlens/pkg/auth"
	"github.com/agentlensio/agentlens/pkg/store"
)

// scoped builds a tenant-bound store.Scoped from the authenticated key
// stashed on c by auth.Middleware. The event, session and stats query
// handlers read through this; the compliance export helpers bind their
// own Scoped from the key's tenant ID, and ingestion, replay, the
// compliance report, config and the live stream pass that tenant ID to
// the raw store explicitly.
func (s *Server) scoped(c *echo.Context) *store.Scoped {
	key, _ := auth.FromContext(c)
	return store.NewScoped(s.store, key.TenantID)
}

// requireKey retrieves the authenticated key, returning a KindAuth
// error if auth.Middleware somehow never ran (defensive; every /api
// route is registered under the auth-middleware group).
func requireKey(c *echo.Context) (*auth.APIKey, error) {
	key, ok := auth.FromContext(c)
	if !ok {
		return nil, apierrors.Auth("missing or invalid API key")
	}
	return key, nil
}

// writeError is the single edge-translation point from an internal
// error to the §7 response envelope: classify, set Retry-After when
// present, and write the JSON body.
func writeError(c *echo.Context, err error) error {
	apiErr := apierrors.FromInternal(err)
	if apiErr.RetryAfter > 0 {
		c.Response().Header().Set("Retry-After", formatRetryAfterSeconds(apiErr.RetryAfter))
	}
	return c.JSON(apiErr.Status(), apiErr.Envelope())
}

func formatRetryAfterSeconds(d time.Duration) string {
	secs := int(d.Seconds() + 0.999)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
