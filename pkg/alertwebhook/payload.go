// Package alertwebhook delivers alert_triggered bus messages to each
// tenant's configured webhook URL, HMAC-signed with the tenant's
// webhook secret and retried with backoff — the generalized,
// multi-tenant, HTTP-webhook counterpart to the teacher's single
// fixed Slack channel notifier.
package alertwebhook

import "time"

// Payload is the JSON body POSTed to a tenant's webhook URL.
type Payload struct {
	Type         string    `json:"type"`
	TenantID     string    `json:"tenantId"`
	RuleID       string    `json:"ruleId"`
	RuleName     string    `json:"ruleName,omitempty"`
	EventType    string    `json:"eventType,omitempty"`
	Severity     string    `json:"severity,omitempty"`
	FiredAt      time.Time `json:"firedAt"`
	WindowStart  time.Time `json:"windowStart"`
	WindowEnd    time.Time `json:"windowEnd"`
	MatchedCount int       `json:"matchedCount"`
}
