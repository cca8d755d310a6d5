package config

import "time"

// Defaults returns the built-in configuration, used as the merge base
// every loaded YAML file is layered on top of.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:             ":8080",
			BodySizeLimitMiB: 10,
		},
		Database: DatabaseConfig{
			DSNEnv:          "AGENTLENS_DATABASE_URL",
			MaxConns:        10,
			ConnMaxLifetime: Duration{30 * time.Minute},
		},
		OTLP: OTLPConfig{
			BearerTokenEnv:     "AGENTLENS_OTLP_BEARER_TOKEN",
			BodySizeLimitMiB:   10,
			RateLimitPerMinute: 1000,
			MultiTenant:        false,
			DefaultTenantID:    "default",
		},
		Retention: RetentionMonitorConfig{
			CheckInterval: Duration{1 * time.Hour},
			FutureMonths:  3,
		},
		Webhook: WebhookConfig{
			Timeout:    Duration{10 * time.Second},
			MaxRetries: 5,
		},
	}
}
