package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it round-trips through YAML as a
// human string ("30m", "1h") instead of a raw nanosecond count —
// yaml.v3 has no built-in time.Duration support, since time.Duration
// implements neither UnmarshalText nor a yaml-aware interface on its
// own.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// ServerConfig is the HTTP server's bind and body-size settings.
type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	BodySizeLimitMiB  int      `yaml:"body_size_limit_mib"`
	AllowedCORSOrigins []string `yaml:"allowed_cors_origins"`
}

// DatabaseConfig is the Postgres connection the store package dials.
type DatabaseConfig struct {
	DSNEnv          string   `yaml:"dsn_env"`
	MaxConns        int32    `yaml:"max_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// OTLPConfig governs the §6 OTLP receiver.
type OTLPConfig struct {
	BearerTokenEnv       string `yaml:"bearer_token_env"`
	BodySizeLimitMiB     int    `yaml:"body_size_limit_mib"`
	RateLimitPerMinute   int    `yaml:"rate_limit_per_minute"`
	MultiTenant          bool   `yaml:"multi_tenant"`
	DefaultTenantID      string `yaml:"default_tenant_id"`
}

// RetentionMonitorConfig governs the background partition monitor from
// §4.6. The purge scheduler's interval is not read from here.
type RetentionMonitorConfig struct {
	CheckInterval Duration `yaml:"check_interval"`
	FutureMonths  int      `yaml:"future_months"`
}

// WebhookConfig is the default alert-webhook delivery tuning; a
// per-tenant URL/secret overrides this via TenantOverrides.
type WebhookConfig struct {
	Timeout    Duration `yaml:"timeout"`
	MaxRetries int      `yaml:"max_retries"`
}

// Config is the umbrella process-level configuration loaded once at
// startup from YAML plus environment-variable expansion.
type Config struct {
	configDir string

	Server    ServerConfig           `yaml:"server"`
	Database  DatabaseConfig         `yaml:"database"`
	OTLP      OTLPConfig             `yaml:"otlp"`
	Retention RetentionMonitorConfig `yaml:"retention"`
	Webhook   WebhookConfig          `yaml:"webhook"`
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }
