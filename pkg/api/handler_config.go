package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentlensio/agentlens/pkg/apierrors"
	"github.com/agentlensio/agentlens/pkg/config"
	"github.com/agentlensio/agentlens/pkg/ratelimit"
)

// handleGetConfig is `GET /api/config`: the redacted view, with a
// boolean flag standing in for any webhook secret.
func (s *Server) handleGetConfig(c *echo.Context) error {
	key, err := requireKey(c)
	if err != nil {
		return writeError(c, err)
	}
	overrides, err := s.configStore.Get(c.Request().Context(), key.TenantID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, overrides.View())
}

// handlePutConfig is `PUT /api/config`: a full replacement — any
// field absent from the request body clears the corresponding
// override, matching TenantConfigStore.Put's documented "unset fields
// are simply absent afterward" semantics. The one exception is the
// webhook secret: when none is given, the stored hash is kept.
func (s *Server) handlePutConfig(c *echo.Context) error {
	key, err := requireKey(c)
	if err != nil {
		return writeError(c, err)
	}

	var req configPutRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.Validation("malformed request body"))
	}

	overrides := config.TenantOverrides{
		Tier:               ratelimit.Tier(req.Tier),
		EventsDaysOverride: req.EventsDaysOverride,
		AuditDaysOverride:  req.AuditDaysOverride,
		WebhookURL:         req.WebhookURL,
	}
	if req.WebhookSecret != "" {
		overrides.SetWebhookSecret(req.WebhookSecret)
	} else {
		existing, err := s.configStore.Get(c.Request().Context(), key.TenantID)
		if err != nil {
			return writeError(c, err)
		}
		overrides.WebhookSecretHash = existing.WebhookSecretHash
	}

	if err := s.configStore.Put(c.Request().Context(), key.TenantID, overrides); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, overrides.View())
}
