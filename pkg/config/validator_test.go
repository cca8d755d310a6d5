package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_DefaultsPass(t *testing.T) {
	assert.NoError(t, Validate(Defaults()))
}

func TestValidate_EmptyAddrFails(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Addr = ""
	assert.Error(t, Validate(cfg))
}

func TestValidate_NonPositiveBodySizeLimitFails(t *testing.T) {
	cfg := Defaults()
	cfg.Server.BodySizeLimitMiB = 0
	assert.Error(t, Validate(cfg))
}

func TestValidate_MultiTenantWithDefaultTenantIDFails(t *testing.T) {
	cfg := Defaults()
	cfg.OTLP.MultiTenant = true
	assert.Error(t, Validate(cfg))
}

func TestValidate_MultiTenantWithoutDefaultTenantIDPasses(t *testing.T) {
	cfg := Defaults()
	cfg.OTLP.MultiTenant = true
	cfg.OTLP.DefaultTenantID = ""
	assert.NoError(t, Validate(cfg))
}

func TestValidate_NegativeRetentionFutureMonthsFails(t *testing.T) {
	cfg := Defaults()
	cfg.Retention.FutureMonths = -1
	assert.Error(t, Validate(cfg))
}
