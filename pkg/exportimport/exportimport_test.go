package exportimport_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/exportimport"
	"github.com/agentlensio/agentlens/pkg/store"
	"github.com/agentlensio/agentlens/pkg/store/memstore"
)

func seedTenant(t *testing.T, s store.Store, tenantID string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.UpsertAgent(ctx, tenantID, &store.Agent{
		TenantID: tenantID, ID: "agent-1", Name: "agent-1",
		FirstSeenAt: now, LastSeenAt: now, SessionCount: 1,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.UpsertSession(ctx, tenantID, &store.Session{
		TenantID: tenantID, ID: "sess-1", AgentID: "agent-1", AgentName: "agent-1",
		StartedAt: now, Status: store.SessionActive, EventCount: 1,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.InsertEvents(ctx, tenantID, []*eventlog.Event{{
		ID: "evt-1", Timestamp: now, SessionID: "sess-1", AgentID: "agent-1",
		TenantID: tenantID, EventType: eventlog.EventCustom, Severity: eventlog.SeverityInfo,
		Payload: eventlog.NewOrderedMap(), Hash: "h1",
	}}))
	require.NoError(t, s.PutTrustScore(ctx, tenantID, &store.TrustScore{
		TenantID: tenantID, AgentID: "agent-1", Score: 0.9, UpdatedAt: now,
		Factors: map[string]float64{"errorRate": 0.01},
	}))
	require.NoError(t, s.CreateAlertRule(ctx, tenantID, &store.AlertRule{
		TenantID: tenantID, ID: "rule-1", Name: "too many errors",
		EventType: eventlog.EventToolError, Severity: eventlog.SeverityError,
		ThresholdCount: 5, WindowSeconds: 60, Enabled: true,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.UpsertGuardrailRule(ctx, tenantID, &store.GuardrailRule{
		TenantID: tenantID, ID: "guard-1", Name: "block-delete", Kind: store.GuardrailBlockedTool, Limit: 0, Enabled: true,
	}))
	require.NoError(t, s.WriteAuditLog(ctx, tenantID, &store.AuditLogEntry{
		TenantID: tenantID, ID: "audit-1", Action: "api_key_created", ActorKeyID: "key-1", CreatedAt: now,
	}))
}

func TestExport_EmitsDependencyOrderAndChecksum(t *testing.T) {
	s := memstore.New()
	seedTenant(t, s, "tenant-1")

	lines, err := exportimport.Export(context.Background(), s, "tenant-1", exportimport.ExportOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, lines)

	// checksum line must be last.
	last := lines[len(lines)-1]
	assert.Contains(t, last, `"_type":"checksum"`)

	// dependency order: agent before session before event.
	agentIdx, sessionIdx, eventIdx := -1, -1, -1
	for i, l := range lines {
		switch {
		case agentIdx == -1 && containsType(l, "agent"):
			agentIdx = i
		case sessionIdx == -1 && containsType(l, "session"):
			sessionIdx = i
		case eventIdx == -1 && containsType(l, "event"):
			eventIdx = i
		}
	}
	require.NotEqual(t, -1, agentIdx)
	require.NotEqual(t, -1, sessionIdx)
	require.NotEqual(t, -1, eventIdx)
	assert.Less(t, agentIdx, sessionIdx)
	assert.Less(t, sessionIdx, eventIdx)

	// no tenantId/org_id leak onto the wire.
	for _, l := range lines {
		assert.NotContains(t, l, "tenantId")
		assert.NotContains(t, l, "org_id")
	}
}

func containsType(line, typ string) bool {
	return len(line) > 0 && (stringsContains(line, `"_type":"`+typ+`"`))
}

func stringsContains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

func TestExportImport_RoundTripIsIdempotent(t *testing.T) {
	src := memstore.New()
	seedTenant(t, src, "tenant-1")

	lines, err := exportimport.Export(context.Background(), src, "tenant-1", exportimport.ExportOptions{})
	require.NoError(t, err)

	dst := memstore.New()
	res, err := exportimport.Import(context.Background(), dst, "tenant-2", lines)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.NotNil(t, res.ChecksumValid)
	assert.True(t, *res.ChecksumValid)
	assert.Equal(t, 1, res.Imported["agent"])
	assert.Equal(t, 1, res.Imported["session"])
	assert.Equal(t, 1, res.Imported["event"])
	assert.Equal(t, 1, res.Imported["health_score"])
	assert.Equal(t, 1, res.Imported["alert_rule"])
	assert.Equal(t, 1, res.Imported["guardrail_rule"])
	assert.Equal(t, 1, res.Imported["audit_log"])

	// rows land under the target tenant, not the exporting one.
	agent, err := dst.GetAgent(context.Background(), "tenant-2", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-2", agent.TenantID)

	// re-importing the same lines is a no-op (conflict-do-nothing).
	res2, err := exportimport.Import(context.Background(), dst, "tenant-2", lines)
	require.NoError(t, err)
	assert.Equal(t, 0, res2.Imported["agent"])
	assert.Equal(t, 0, res2.Imported["session"])
	assert.Equal(t, 0, res2.Imported["event"])

	stats, err := dst.GetStats(context.Background(), "tenant-2")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEvents)
	assert.Equal(t, 1, stats.TotalAgents)
}

func TestImport_InvalidJSONAndUnknownTypeCollectedWithoutAborting(t *testing.T) {
	dst := memstore.New()
	lines := []string{
		`{not valid json`,
		`{"_type":"unknown_thing","_version":1}`,
		`{"_type":"agent","_version":1,"id":"agent-1","name":"a"}`,
	}
	res, err := exportimport.Import(context.Background(), dst, "tenant-1", lines)
	require.NoError(t, err)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 1, res.Imported["agent"])
	assert.Nil(t, res.ChecksumValid)
}

func TestImport_TamperedChecksumReportsInvalid(t *testing.T) {
	src := memstore.New()
	seedTenant(t, src, "tenant-1")
	lines, err := exportimport.Export(context.Background(), src, "tenant-1", exportimport.ExportOptions{})
	require.NoError(t, err)

	// tamper with a data line after the checksum was computed.
	lines[0] = lines[0][:len(lines[0])-1] + `,"tampered":true}`

	dst := memstore.New()
	res, err := exportimport.Import(context.Background(), dst, "tenant-2", lines)
	require.NoError(t, err)
	require.NotNil(t, res.ChecksumValid)
	assert.False(t, *res.ChecksumValid)
}

func TestExport_DateRangeFiltersSessionsAndEvents(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	old := time.Now().UTC().AddDate(0, 0, -30)
	recent := time.Now().UTC()

	require.NoError(t, s.UpsertAgent(ctx, "tenant-1", &store.Agent{TenantID: "tenant-1", ID: "agent-1", Name: "a", FirstSeenAt: old, LastSeenAt: recent, CreatedAt: old, UpdatedAt: recent}))
	require.NoError(t, s.UpsertSession(ctx, "tenant-1", &store.Session{TenantID: "tenant-1", ID: "sess-old", AgentID: "agent-1", StartedAt: old, Status: store.SessionCompleted, CreatedAt: old, UpdatedAt: old}))
	require.NoError(t, s.UpsertSession(ctx, "tenant-1", &store.Session{TenantID: "tenant-1", ID: "sess-new", AgentID: "agent-1", StartedAt: recent, Status: store.SessionActive, CreatedAt: recent, UpdatedAt: recent}))

	from := recent.AddDate(0, 0, -1)
	lines, err := exportimport.Export(ctx, s, "tenant-1", exportimport.ExportOptions{From: &from})
	require.NoError(t, err)

	foundOld, foundNew := false, false
	for _, l := range lines {
		if containsType(l, "session") {
			if indexOf(l, "sess-old") >= 0 {
				foundOld = true
			}
			if indexOf(l, "sess-new") >= 0 {
				foundNew = true
			}
		}
	}
	assert.False(t, foundOld)
	assert.True(t, foundNew)
}
