package retention

import (
	"context"
	"time"

	"github.com/agentlensio/agentlens/pkg/store"
)

// Warning is the "approaching_expiry" signal from §4.6: a count of
// events that will cross the cutoff within the next warningDays.
type Warning struct {
	Kind  string
	Count int
}

// PurgeResult is one tenant's outcome from a single purge pass.
// Err is non-nil only when the purge itself failed; a failure for one
// tenant never prevents others from being processed (§4.6 "per-tenant
// failures are isolated").
type PurgeResult struct {
	TenantID      string
	EventsCutoff  time.Time
	AuditCutoff   time.Time
	EventsDeleted int
	AuditDeleted  int
	Warning       *Warning
	Err           error
}

// applyTenant purges one tenant's expired events/audit-log rows and
// computes the approaching-expiry warning, if warningDays > 0.
func applyTenant(ctx context.Context, s store.Store, tenantID string, tp TenantPolicy, now time.Time, warningDays int) *PurgeResult {
	eventsCutoff, auditCutoff := Cutoffs(tp, now)
	res := &PurgeResult{TenantID: tenantID, EventsCutoff: eventsCutoff, AuditCutoff: auditCutoff}

	if warningDays > 0 {
		upcoming := eventsCutoff.AddDate(0, 0, warningDays)
		count, err := s.CountEvents(ctx, tenantID, store.EventFilter{From: &eventsCutoff, To: &upcoming})
		if err == nil && count > 0 {
			res.Warning = &Warning{Kind: "approaching_expiry", Count: count}
		}
	}

	eventsDeleted, auditDeleted, err := s.ApplyRetention(ctx, tenantID, eventsCutoff, auditCutoff)
	if err != nil {
		res.Err = err
		return res
	}
	res.EventsDeleted = eventsDeleted
	res.AuditDeleted = auditDeleted
	return res
}
