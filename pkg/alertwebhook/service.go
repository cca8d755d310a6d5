package alertwebhook

import (
	"context"
	"log/slog"
	"sync"

	"github.com/agentlensio/agentlens/pkg/bus"
)

// Resolver looks up a tenant's webhook delivery target. Returns
// ok=false when the tenant has no webhook configured, in which case
// the Service silently skips delivery (no endpoint, nothing to fail).
type Resolver interface {
	WebhookFor(ctx context.Context, tenantID string) (url, secret string, ok bool)
}

// Service subscribes to the bus and delivers every alert_triggered
// message to its tenant's webhook. Nil-safe: every method is a no-op
// on a nil *Service, and delivery failures are logged, never
// propagated — matching the teacher's Slack Service's fail-open
// contract, since a dropped webhook notification must never fail the
// ingestion path that triggered it.
type Service struct {
	client   *Client
	resolver Resolver
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService builds a Service. Returns nil if resolver is nil, since
// there would be nowhere to look up delivery targets.
func NewService(client *Client, resolver Resolver) *Service {
	if resolver == nil {
		return nil
	}
	return &Service{
		client:   client,
		resolver: resolver,
		logger:   slog.Default().With("component", "alertwebhook-service"),
	}
}

// Start subscribes to b and delivers alert_triggered messages until
// ctx is cancelled or Stop is called. Safe to call
// more than once; a second call is a no-op while already running.
func (s *Service) Start(ctx context.Context, b *bus.Bus) {
	if s == nil || b == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	msgs, unsubscribe := b.Subscribe(64)
	go func() {
		defer close(s.done)
		defer unsubscribe()
		for {
			select {
			case <-runCtx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				if m.Type != bus.MessageAlertTriggered {
					continue
				}
				s.deliver(runCtx, m)
			}
		}
	}()
}

// Stop cancels delivery and waits for the in-flight consumer loop to
// exit. Idempotent and safe on a Service that was never started.
func (s *Service) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Service) deliver(ctx context.Context, m bus.Message) {
	if m.AlertRule == nil || m.AlertHistory == nil {
		return
	}

	url, secret, ok := s.resolver.WebhookFor(ctx, m.TenantID)
	if !ok || url == "" {
		return
	}

	payload := Payload{
		Type:         "alert_triggered",
		TenantID:     m.TenantID,
		RuleID:       m.AlertRule.ID,
		RuleName:     m.AlertRule.Name,
		EventType:    string(m.AlertRule.EventType),
		Severity:     string(m.AlertRule.Severity),
		FiredAt:      m.AlertHistory.FiredAt,
		WindowStart:  m.AlertHistory.WindowStart,
		WindowEnd:    m.AlertHistory.WindowEnd,
		MatchedCount: m.AlertHistory.MatchedCount,
	}

	if err := s.client.Deliver(ctx, url, secret, payload); err != nil {
		s.logger.ErrorContext(ctx, "alert webhook delivery failed",
			"tenant_id", m.TenantID,
			"rule_id", m.AlertRule.ID,
			"error", err)
	}
}
