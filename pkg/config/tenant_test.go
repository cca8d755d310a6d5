package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlensio/agentlens/pkg/ratelimit"
)

func TestTenantOverrides_SecretHashingAndVerification(t *testing.T) {
	var t1 TenantOverrides
	assert.False(t, t1.VerifyWebhookSecret("anything"))

	t1.SetWebhookSecret("shh-its-secret")
	assert.NotEmpty(t, t1.WebhookSecretHash)
	assert.NotEqual(t, "shh-its-secret", t1.WebhookSecretHash)
	assert.True(t, t1.VerifyWebhookSecret("shh-its-secret"))
	assert.False(t, t1.VerifyWebhookSecret("wrong"))
}

func TestTenantOverrides_ViewRedactsSecret(t *testing.T) {
	overrides := TenantOverrides{Tier: ratelimit.TierPro, WebhookURL: "https://hooks.example.com/x"}
	overrides.SetWebhookSecret("top-secret")

	view := overrides.View()
	assert.Equal(t, ratelimit.TierPro, view.Tier)
	assert.Equal(t, "https://hooks.example.com/x", view.WebhookURL)
	assert.True(t, view.WebhookSecretSet)
}

func TestTenantOverrides_ToRetentionPolicy(t *testing.T) {
	days := 400
	overrides := TenantOverrides{Tier: ratelimit.TierEnterprise, AuditDaysOverride: &days}
	policy := overrides.ToRetentionPolicy()
	assert.Equal(t, ratelimit.TierEnterprise, policy.Tier)
	require.NotNil(t, policy.AuditDaysOverride)
	assert.Equal(t, days, *policy.AuditDaysOverride)
}
