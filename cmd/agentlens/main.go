// AgentLens server - ingests, stores, and serves agent observability
// events over HTTP and OTLP.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentlensio/agentlens/pkg/alertwebhook"
	"github.com/agentlensio/agentlens/pkg/api"
	"github.com/agentlensio/agentlens/pkg/bus"
	"github.com/agentlensio/agentlens/pkg/config"
	"github.com/agentlensio/agentlens/pkg/database"
	"github.com/agentlensio/agentlens/pkg/ingest"
	"github.com/agentlensio/agentlens/pkg/ratelimit"
	"github.com/agentlensio/agentlens/pkg/replay"
	"github.com/agentlensio/agentlens/pkg/retention"
	"github.com/agentlensio/agentlens/pkg/store/postgres"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// tenantPolicyLookup adapts the tenant config store to
// retention.PolicyLookup, so the purge scheduler resolves each
// tenant's retention window the same way /api/config and the
// compliance report do.
type tenantPolicyLookup struct {
	store *database.TenantConfigStore
}

func (l tenantPolicyLookup) Policy(ctx context.Context, tenantID string) (retention.TenantPolicy, error) {
	overrides, err := l.store.Get(ctx, tenantID)
	if err != nil {
		return retention.TenantPolicy{}, err
	}
	return overrides.ToRetentionPolicy(), nil
}

// webhookResolver adapts the tenant config store to
// alertwebhook.Resolver. The "secret" handed to the webhook client is
// the stored SHA-256 hash, not the operator's original raw value —
// §6 deliberately never retains the raw secret at rest, so signing
// necessarily keys off its hash instead; an operator verifying
// deliveries must do the same on their receiving end.
type webhookResolver struct {
	store *database.TenantConfigStore
}

func (r webhookResolver) WebhookFor(ctx context.Context, tenantID string) (url, secret string, ok bool) {
	overrides, err := r.store.Get(ctx, tenantID)
	if err != nil || overrides.WebhookURL == "" {
		return "", "", false
	}
	return overrides.WebhookURL, overrides.WebhookSecretHash, true
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
		log.Printf("continuing with existing environment variables...")
	} else {
		log.Printf("loaded environment from %s", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("starting AgentLens")
	log.Printf("config directory: %s", *configDir)

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}

	dsn := os.Getenv(cfg.Database.DSNEnv)
	if dsn == "" {
		log.Fatalf("environment variable %s is required", cfg.Database.DSNEnv)
	}
	st, err := postgres.NewFromDSN(ctx, dsn, cfg.Database.MaxConns, cfg.Database.ConnMaxLifetime.Duration)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("error closing store: %v", err)
		}
	}()
	log.Println("connected to PostgreSQL database")

	keyStore := database.NewAPIKeyStore(st.Pool())
	tenantConfigStore := database.NewTenantConfigStore(st.Pool())

	b := bus.New()
	limiter := ratelimit.New()
	pipeline := ingest.New(st, b, limiter)
	replayCache := replay.NewCache(100, 10*time.Minute)

	webhookClient := alertwebhook.NewClient(cfg.Webhook.Timeout.Duration, cfg.Webhook.MaxRetries)
	webhookService := alertwebhook.NewService(webhookClient, webhookResolver{store: tenantConfigStore})
	if webhookService != nil {
		webhookService.Start(ctx, b)
		defer webhookService.Stop()
		log.Println("alert webhook dispatcher started")
	}

	policyLookup := tenantPolicyLookup{store: tenantConfigStore}
	purgeScheduler := retention.NewScheduler(st, policyLookup, 4, 6*time.Hour, 3)
	purgeScheduler.Start(ctx)
	defer purgeScheduler.Stop()

	partitionMonitor := retention.NewMonitor(
		retention.NewInMemoryPartitionInspector(),
		st, policyLookup, cfg.Retention.FutureMonths, cfg.Retention.CheckInterval.Duration,
	)
	partitionMonitor.Start(ctx)
	defer partitionMonitor.Stop()
	log.Println("retention purge scheduler and partition monitor started")

	otlpBearerToken := ""
	if cfg.OTLP.BearerTokenEnv != "" {
		otlpBearerToken = os.Getenv(cfg.OTLP.BearerTokenEnv)
	}

	server := api.NewServer(cfg.OTLP, otlpBearerToken, st, pipeline, b, replayCache, keyStore, tenantConfigStore)

	if signingKeyHex := os.Getenv("AGENTLENS_SIGNING_KEY"); signingKeyHex != "" {
		server.SetSigningKey([]byte(signingKeyHex))
	} else {
		log.Println("warning: AGENTLENS_SIGNING_KEY not set, compliance reports will be unsigned")
	}

	if err := server.ValidateWiring(); err != nil {
		log.Fatalf("server wiring incomplete: %v", err)
	}

	log.Printf("HTTP server listening on %s", cfg.Server.Addr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		log.Println("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("error during shutdown: %v", err)
		}
	}
}
