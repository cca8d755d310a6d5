package config

import "fmt"

// Validate performs structural validation on a loaded Config. It
// fails fast: the first problem found is returned.
func Validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return NewValidationError("server.addr", fmt.Errorf("must not be empty"))
	}
	if cfg.Server.BodySizeLimitMiB <= 0 {
		return NewValidationError("server.body_size_limit_mib", fmt.Errorf("must be positive"))
	}
	if cfg.Database.DSNEnv == "" {
		return NewValidationError("database.dsn_env", fmt.Errorf("must not be empty"))
	}
	if cfg.Database.MaxConns <= 0 {
		return NewValidationError("database.max_conns", fmt.Errorf("must be positive"))
	}
	if cfg.OTLP.BodySizeLimitMiB <= 0 {
		return NewValidationError("otlp.body_size_limit_mib", fmt.Errorf("must be positive"))
	}
	if cfg.OTLP.RateLimitPerMinute <= 0 {
		return NewValidationError("otlp.rate_limit_per_minute", fmt.Errorf("must be positive"))
	}
	if cfg.OTLP.MultiTenant && cfg.OTLP.DefaultTenantID != "" {
		// A configured default tenant is only meaningful in single-tenant
		// mode; §6 says multi-tenant mode refuses with 400 instead of
		// falling back, so a stray default here would silently never
		// apply and is worth flagging rather than ignoring.
		return NewValidationError("otlp.default_tenant_id", fmt.Errorf("must be empty when otlp.multi_tenant is true"))
	}
	if cfg.Retention.FutureMonths < 0 {
		return NewValidationError("retention.future_months", fmt.Errorf("must not be negative"))
	}
	if cfg.Retention.CheckInterval.Duration <= 0 {
		return NewValidationError("retention.check_interval", fmt.Errorf("must be positive"))
	}
	if cfg.Webhook.MaxRetries < 0 {
		return NewValidationError("webhook.max_retries", fmt.Errorf("must not be negative"))
	}
	return nil
}
