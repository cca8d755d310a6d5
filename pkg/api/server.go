// Package api wires AgentLens's HTTP surface (§6): ingestion, query,
// live stream, stats/analytics, compliance, config, and the OTLP
// receiver, all behind a single echo/v5 server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"golang.org/x/time/rate"

	"github.com/agentlensio/agentlens/pkg/auth"
	"github.com/agentlensio/agentlens/pkg/bus"
	"github.com/agentlensio/agentlens/pkg/config"
	"github.com/agentlensio/agentlens/pkg/ingest"
	"github.com/agentlensio/agentlens/pkg/replay"
	"github.com/agentlensio/agentlens/pkg/store"
	"github.com/agentlensio/agentlens/pkg/version"
)

// ConfigStore is the narrow contract api needs from a tenant
// configuration backend — shaped to match database.TenantConfigStore
// without importing pkg/database, the same inversion auth.KeyStore and
// alertwebhook.Resolver already use.
type ConfigStore interface {
	Get(ctx context.Context, tenantID string) (config.TenantOverrides, error)
	Put(ctx context.Context, tenantID string, overrides config.TenantOverrides) error
}

// Server assembles the echo/v5 application. Core collaborators are
// supplied at construction time; optional ones (signing key, OTLP
// bearer token) are wired through Set* methods so a caller that does
// not need them never has to pass zero values around.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	store       store.Store
	pipeline    *ingest.Pipeline
	bus         *bus.Bus
	replayCache *replay.Cache
	keyStore    auth.KeyStore
	configStore ConfigStore

	signingKey []byte

	otlpCfg     config.OTLPConfig
	otlpToken   string
	otlpLimiter *otlpRateLimiter
}

// NewServer builds a Server. store, pipeline, bus, cache, keyStore, and
// configStore are all required for ValidateWiring to pass; the OTLP
// bearer token (if any) must be resolved by the caller from
// cfg.OTLP.BearerTokenEnv before construction, since only the caller
// knows the process environment.
func NewServer(
	cfg config.OTLPConfig,
	otlpBearerToken string,
	st store.Store,
	pipeline *ingest.Pipeline,
	b *bus.Bus,
	cache *replay.Cache,
	keyStore auth.KeyStore,
	configStore ConfigStore,
) *Server {
	perMinute := cfg.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 1000
	}
	return &Server{
		store:       st,
		pipeline:    pipeline,
		bus:         b,
		replayCache: cache,
		keyStore:    keyStore,
		configStore: configStore,
		otlpCfg:     cfg,
		otlpToken:   otlpBearerToken,
		otlpLimiter: newOTLPRateLimiter(rate.Limit(float64(perMinute) / 60.0), perMinute),
	}
}

// SetSigningKey wires the HMAC key compliance reports are signed with.
// A nil key (the zero value) leaves reports unsigned.
func (s *Server) SetSigningKey(key []byte) { s.signingKey = key }

// ValidateWiring reports every required collaborator that was never
// set, joined into a single error — checked once at startup so a
// missing wire fails fast instead of surfacing as a nil-pointer panic
// on the first request that needs it.
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.store == nil {
		errs = append(errs, errors.New("api: store is required"))
	}
	if s.pipeline == nil {
		errs = append(errs, errors.New("api: ingest pipeline is required"))
	}
	if s.bus == nil {
		errs = append(errs, errors.New("api: bus is required"))
	}
	if s.replayCache == nil {
		errs = append(errs, errors.New("api: replay cache is required"))
	}
	if s.keyStore == nil {
		errs = append(errs, errors.New("api: key store is required"))
	}
	if s.configStore == nil {
		errs = append(errs, errors.New("api: config store is required"))
	}
	return errors.Join(errs...)
}

// setupRoutes registers every handler behind the appropriate
// middleware chain: security headers on everything, auth+scope on the
// tenant-scoped /api group, nothing (or an optional bearer) on the
// OTLP ingress.
func (s *Server) setupRoutes() {
	e := s.echo
	e.Use(securityHeaders())

	api := e.Group("/api", auth.Middleware(s.keyStore))

	api.POST("/events", s.handleIngestEvents, auth.RequireScope(auth.ScopeWrite))
	api.GET("/events", s.handleQueryEvents, auth.RequireScope(auth.ScopeRead))
	api.GET("/events/:id", s.handleGetEvent, auth.RequireScope(auth.ScopeRead))

	api.GET("/sessions", s.handleQuerySessions, auth.RequireScope(auth.ScopeRead))
	api.GET("/sessions/:id", s.handleGetSession, auth.RequireScope(auth.ScopeRead))
	api.GET("/sessions/:id/timeline", s.handleSessionTimeline, auth.RequireScope(auth.ScopeRead))
	api.GET("/sessions/:id/replay", s.handleSessionReplay, auth.RequireScope(auth.ScopeRead))

	api.GET("/stream", s.handleStream, auth.RequireScope(auth.ScopeRead))

	api.GET("/stats", s.handleStats, auth.RequireScope(auth.ScopeRead))
	api.GET("/stats/overview", s.handleStatsOverview, auth.RequireScope(auth.ScopeRead))
	api.GET("/analytics", s.handleAnalytics, auth.RequireScope(auth.ScopeRead))

	api.GET("/compliance/report", s.handleComplianceReport, auth.RequireScope(auth.ScopeAudit))
	api.GET("/compliance/export/events", s.handleComplianceExport, auth.RequireScope(auth.ScopeAudit))

	api.GET("/config", s.handleGetConfig, auth.RequireScope(auth.ScopeManage))
	api.PUT("/config", s.handlePutConfig, auth.RequireScope(auth.ScopeManage))

	otlp := e.Group("/v1", s.otlpMiddleware())
	otlp.POST("/traces", s.handleOTLPTraces)
	otlp.POST("/metrics", s.handleOTLPMetrics)
	otlp.POST("/logs", s.handleOTLPLogs)

	e.GET("/healthz", s.healthHandler)
}

// Start builds the echo instance, registers routes, and serves on
// addr. Blocks until the server stops or errors.
func (s *Server) Start(addr string) error {
	if err := s.ValidateWiring(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	s.echo = echo.New()
	s.echo.HideBanner = true
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: listen and serve: %w", err)
	}
	return nil
}

// StartWithListener is Start's test-friendly variant: the caller
// supplies an already-bound listener (e.g. one on an ephemeral port),
// so tests never race on a fixed address.
func (s *Server) StartWithListener(l net.Listener) error {
	if err := s.ValidateWiring(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	s.echo = echo.New()
	s.echo.HideBanner = true
	s.setupRoutes()

	s.httpServer = &http.Server{Handler: s.echo}
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler is a minimal liveness/readiness check: it pings the
// store and reports the running version, with none of the worker-pool
// or downstream-service concepts the teacher's richer health handler
// carried — this module has no long-running job pool to report on.
func (s *Server) healthHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	if err := s.store.Ping(ctx); err != nil {
		status = "unhealthy"
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  status,
		"version": version.Full(),
	})
}
