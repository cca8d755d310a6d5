package api

import (
	"io"
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agentlensio/agentlens/pkg/apierrors"
	"github.com/agentlensio/agentlens/pkg/auth"
	"github.com/agentlensio/agentlens/pkg/ingest"
	"github.com/agentlensio/agentlens/pkg/otlp"
	"github.com/agentlensio/agentlens/pkg/ratelimit"
)

// otlpDefaultBodyLimitMiB is the body size cap enforced ahead of
// decoding (§6: "body size cap 10 MiB"), overridable via
// config.OTLPConfig.BodySizeLimitMiB.
const otlpDefaultBodyLimitMiB = 10

// otlpTier is the rate-limit tier applied to OTLP-derived ingestion:
// the edge already guards this path with otlpRateLimiter, so the
// domain limiter inside ingest.Pipeline is given the most permissive
// tier rather than double-throttling telemetry a tenant's own
// dashboard config can't adjust per-key.
const otlpTier = ratelimit.TierEnterprise

// otlpMiddleware enforces the body size cap, the optional constant-time
// bearer check, and the per-IP edge rate limit ahead of every OTLP
// handler — none of it touches auth.KeyStore, since OTLP ingress has no
// per-tenant API key by design (§6).
func (s *Server) otlpMiddleware() echo.MiddlewareFunc {
	limitMiB := s.otlpCfg.BodySizeLimitMiB
	if limitMiB <= 0 {
		limitMiB = otlpDefaultBodyLimitMiB
	}
	maxBytes := int64(limitMiB) * 1024 * 1024

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if !s.otlpLimiter.Allow(c.RealIP()) {
				return writeError(c, apierrors.RateLimited("otlp rate limit exceeded", time.Minute))
			}

			if s.otlpToken != "" {
				if !auth.ConstantTimeEqual(otlpBearerFrom(c.Request().Header.Get("Authorization")), s.otlpToken) {
					return writeError(c, apierrors.Auth("invalid bearer token"))
				}
			}

			c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxBytes)
			return next(c)
		}
	}
}

func otlpBearerFrom(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

// resolveOTLPTenant applies §6's precedence: an already-authenticated
// context, then the resource-level tenant the mapper extracted, then
// the configured default — refusing outright in multi-tenant mode once
// every source comes up empty.
func (s *Server) resolveOTLPTenant(c *echo.Context, resourceTenantID string) (string, error) {
	if key, ok := auth.FromContext(c); ok {
		return key.TenantID, nil
	}
	if resourceTenantID != "" {
		return resourceTenantID, nil
	}
	if !s.otlpCfg.MultiTenant && s.otlpCfg.DefaultTenantID != "" {
		return s.otlpCfg.DefaultTenantID, nil
	}
	return "", apierrors.Validation("unable to resolve tenant for OTLP payload: set " + otlp.TenantResourceAttr + " or configure a default tenant")
}

// ingestOTLPBatches runs each mapped batch through the same ingestion
// pipeline /api/events uses, resolving its tenant independently since
// one export can legitimately carry resources for more than one
// tenant.
func (s *Server) ingestOTLPBatches(c *echo.Context, batches []otlp.MappedBatch) error {
	now := time.Now().UTC()
	for _, batch := range batches {
		tenantID, err := s.resolveOTLPTenant(c, batch.TenantID)
		if err != nil {
			return writeError(c, err)
		}
		in := ingest.BatchInput{TenantID: tenantID, OrgID: tenantID, APIKeyID: tenantID, Events: batch.Events}
		if _, err := s.pipeline.IngestBatch(c.Request().Context(), now, otlpTier, in); err != nil {
			return writeError(c, err)
		}
	}
	return nil
}

// handleOTLPTraces is `POST /v1/traces`.
func (s *Server) handleOTLPTraces(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, apierrors.PayloadTooLarge("request body exceeds limit"))
	}
	req, err := otlp.DecodeTraces(c.Request().Header.Get("Content-Type"), body)
	if err != nil {
		return writeError(c, apierrors.Validation(err.Error()))
	}
	batches, _ := otlp.MapTraces(req)
	if err := s.ingestOTLPBatches(c, batches); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{})
}

// handleOTLPMetrics is `POST /v1/metrics`. The openCalls index from a
// same-connection traces export (if any arrived first on this
// middleware chain within the request's lifetime) isn't available
// across independent HTTP requests, so a metrics-only export always
// falls back to standalone cost_tracked events per §6's documented
// fallback — there is no cross-request trace correlation store.
func (s *Server) handleOTLPMetrics(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, apierrors.PayloadTooLarge("request body exceeds limit"))
	}
	req, err := otlp.DecodeMetrics(c.Request().Header.Get("Content-Type"), body)
	if err != nil {
		return writeError(c, apierrors.Validation(err.Error()))
	}
	batches := otlp.MapMetrics(req, map[string]*otlp.OpenCall{})
	if err := s.ingestOTLPBatches(c, batches); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{})
}

// handleOTLPLogs is `POST /v1/logs`.
func (s *Server) handleOTLPLogs(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeError(c, apierrors.PayloadTooLarge("request body exceeds limit"))
	}
	req, err := otlp.DecodeLogs(c.Request().Header.Get("Content-Type"), body)
	if err != nil {
		return writeError(c, apierrors.Validation(err.Error()))
	}
	batches := otlp.MapLogs(req)
	if err := s.ingestOTLPBatches(c, batches); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{})
}
