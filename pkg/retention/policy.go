// Package retention implements the tier-based purge job and partition
// health monitor described in §4.6: a per-tenant cutoff policy, a
// worker pool that applies it across every active tenant in isolation,
// and a background monitor that keeps a month-partitioned backend's
// partitions in range.
package retention

import (
	"context"
	"time"

	"github.com/agentlensio/agentlens/pkg/ratelimit"
)

// Policy is one tier's default retention window, in days.
type Policy struct {
	EventsDays int
	AuditDays  int
}

// DefaultPolicies is the tier table from §4.6.
var DefaultPolicies = map[ratelimit.Tier]Policy{
	ratelimit.TierFree:       {EventsDays: 7, AuditDays: 30},
	ratelimit.TierPro:        {EventsDays: 30, AuditDays: 90},
	ratelimit.TierTeam:       {EventsDays: 90, AuditDays: 365},
	ratelimit.TierEnterprise: {EventsDays: 365, AuditDays: 365},
}

// TenantPolicy is one tenant's tier plus any enterprise override. Only
// enterprise tenants may override the tier default (§4.6); overrides
// supplied for any other tier are ignored.
type TenantPolicy struct {
	Tier               ratelimit.Tier
	EventsDaysOverride *int
	AuditDaysOverride  *int
}

// PolicyLookup resolves a tenant's retention policy. Production wiring
// backs this with whatever subsystem owns plan/tier assignment; tests
// and single-tier deployments can use StaticPolicyLookup.
type PolicyLookup interface {
	Policy(ctx context.Context, tenantID string) (TenantPolicy, error)
}

// StaticPolicyLookup resolves every tenant to the same tier — useful
// for a single-plan deployment or as a default until a real tenant/plan
// registry exists.
type StaticPolicyLookup ratelimit.Tier

func (t StaticPolicyLookup) Policy(_ context.Context, _ string) (TenantPolicy, error) {
	return TenantPolicy{Tier: ratelimit.Tier(t)}, nil
}

// ResolveDays is the exported form of resolveDays, for callers outside
// this package that need the resolved windows without going through
// Cutoffs (e.g. the compliance report's retentionDays field).
func ResolveDays(tp TenantPolicy) (eventsDays, auditDays int) {
	return resolveDays(tp)
}

// resolveDays applies the override rule and returns the two retention
// windows in days, before cutoff truncation.
func resolveDays(tp TenantPolicy) (eventsDays, auditDays int) {
	base, ok := DefaultPolicies[tp.Tier]
	if !ok {
		base = DefaultPolicies[ratelimit.TierFree]
	}
	eventsDays, auditDays = base.EventsDays, base.AuditDays
	if tp.Tier != ratelimit.TierEnterprise {
		return
	}
	if tp.EventsDaysOverride != nil {
		eventsDays = *tp.EventsDaysOverride
	}
	if tp.AuditDaysOverride != nil && *tp.AuditDaysOverride > auditDays {
		auditDays = *tp.AuditDaysOverride
	}
	return
}

// Cutoffs computes the events/audit-log cutoff timestamps for tp as of
// now, truncated to UTC midnight (§4.6 "cutoff computation").
func Cutoffs(tp TenantPolicy, now time.Time) (eventsCutoff, auditCutoff time.Time) {
	eventsDays, auditDays := resolveDays(tp)
	now = now.UTC()
	eventsCutoff = truncateToUTCMidnight(now.AddDate(0, 0, -eventsDays))
	auditCutoff = truncateToUTCMidnight(now.AddDate(0, 0, -auditDays))
	return
}

func truncateToUTCMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
