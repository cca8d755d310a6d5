package otlp

import (
	"time"

	collogsv1 "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	logsv1 "go.opentelemetry.io/proto/otlp/logs/v1"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/ingest"
)

// MapLogs converts one ExportLogsServiceRequest into per-resource event
// batches: ERROR/FATAL records become tool_error when a tool.name
// attribute ties them to a tool invocation, custom otherwise; every
// other severity is always custom (§6).
func MapLogs(req *collogsv1.ExportLogsServiceRequest) []MappedBatch {
	var batches []MappedBatch

	for _, rl := range req.GetResourceLogs() {
		resourceAttrs := rl.GetResource().GetAttributes()
		tenantID, _ := resourceTenantID(resourceAttrs)
		var events []ingest.EventInput

		for _, sl := range rl.GetScopeLogs() {
			for _, rec := range sl.GetLogRecords() {
				events = append(events, mapLogRecord(rec, resourceAttrs))
			}
		}
		if len(events) > 0 {
			batches = append(batches, MappedBatch{TenantID: tenantID, Events: events})
		}
	}
	return batches
}

func logBody(rec *logsv1.LogRecord) string {
	if v, ok := rec.GetBody().GetValue().(*commonv1.AnyValue_StringValue); ok {
		return v.StringValue
	}
	return ""
}

func mapLogRecord(rec *logsv1.LogRecord, resourceAttrs []*commonv1.KeyValue) ingest.EventInput {
	ts := time.Unix(0, int64(rec.GetTimeUnixNano())).UTC()
	sessionID, agentID := spanIdentity(rec.GetAttributes(), resourceAttrs, rec.GetTraceId())
	sev := rec.GetSeverityText()
	body := logBody(rec)

	isErrorLevel := sev == "ERROR" || sev == "FATAL"
	toolName, hasTool := stringAttr(rec.GetAttributes(), toolNameAttr)

	if isErrorLevel && hasTool {
		callID, _ := stringAttr(rec.GetAttributes(), toolCallIDAttr)
		if callID == "" {
			callID = toolName
		}
		payload := eventlog.NewOrderedMap()
		payload.Set("callId", callID)
		payload.Set("errorMessage", body)
		return ingest.EventInput{
			Timestamp: &ts, SessionID: sessionID, AgentID: agentID,
			EventType: eventlog.EventToolError, Severity: eventlog.SeverityError, Payload: payload,
		}
	}

	payload := eventlog.NewOrderedMap()
	payload.Set("message", body)
	payload.Set("severityText", sev)

	severity := eventlog.SeverityInfo
	switch sev {
	case "ERROR":
		severity = eventlog.SeverityError
	case "FATAL":
		severity = eventlog.SeverityCritical
	case "WARN":
		severity = eventlog.SeverityWarn
	case "DEBUG", "TRACE":
		severity = eventlog.SeverityDebug
	}

	return ingest.EventInput{
		Timestamp: &ts, SessionID: sessionID, AgentID: agentID,
		EventType: eventlog.EventCustom, Severity: severity, Payload: payload,
	}
}
