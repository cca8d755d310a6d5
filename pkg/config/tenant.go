package config

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/agentlensio/agentlens/pkg/ratelimit"
	"github.com/agentlensio/agentlens/pkg/retention"
)

// TenantOverrides is the per-tenant key/value configuration exposed by
// `GET/PUT /api/config` (§6): retention overrides, an alert webhook
// URL, and a webhook secret. Secrets are never stored or returned in
// the clear — only their SHA-256 hash, with GET responses reporting a
// boolean "set" flag in place of the secret itself.
type TenantOverrides struct {
	Tier               ratelimit.Tier `json:"tier"`
	EventsDaysOverride *int           `json:"eventsDaysOverride,omitempty"`
	AuditDaysOverride  *int           `json:"auditDaysOverride,omitempty"`
	WebhookURL         string         `json:"webhookUrl,omitempty"`
	WebhookSecretHash  string         `json:"-"`
}

// SetWebhookSecret hashes raw with SHA-256 and stores the hash; raw is
// discarded immediately and never retained.
func (t *TenantOverrides) SetWebhookSecret(raw string) {
	sum := sha256.Sum256([]byte(raw))
	t.WebhookSecretHash = hex.EncodeToString(sum[:])
}

// VerifyWebhookSecret reports whether raw hashes to the stored secret.
// Returns false if no secret has been set.
func (t *TenantOverrides) VerifyWebhookSecret(raw string) bool {
	if t.WebhookSecretHash == "" {
		return false
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:]) == t.WebhookSecretHash
}

// TenantOverridesView is the JSON shape returned by `GET /api/config`:
// identical to TenantOverrides except the secret is collapsed to a
// boolean presence flag, per §6's "GET returns a boolean ...Set flag
// in place of any secret".
type TenantOverridesView struct {
	Tier                  ratelimit.Tier `json:"tier"`
	EventsDaysOverride    *int           `json:"eventsDaysOverride,omitempty"`
	AuditDaysOverride     *int           `json:"auditDaysOverride,omitempty"`
	WebhookURL            string         `json:"webhookUrl,omitempty"`
	WebhookSecretSet      bool           `json:"webhookSecretSet"`
}

// View renders t as the redacted GET response shape.
func (t TenantOverrides) View() TenantOverridesView {
	return TenantOverridesView{
		Tier:               t.Tier,
		EventsDaysOverride: t.EventsDaysOverride,
		AuditDaysOverride:  t.AuditDaysOverride,
		WebhookURL:         t.WebhookURL,
		WebhookSecretSet:   t.WebhookSecretHash != "",
	}
}

// ToRetentionPolicy adapts t into the retention package's TenantPolicy
// shape, so the same stored overrides record both drives the purge
// scheduler and answers the config API without duplicating tier or
// override logic in two places.
func (t TenantOverrides) ToRetentionPolicy() retention.TenantPolicy {
	return retention.TenantPolicy{
		Tier:               t.Tier,
		EventsDaysOverride: t.EventsDaysOverride,
		AuditDaysOverride:  t.AuditDaysOverride,
	}
}
