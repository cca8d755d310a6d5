package otlp

import (
	"encoding/hex"
	"time"

	coltracev1 "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/ingest"
)

// genAICallIDAttr / genAIProviderAttr / genAIModelAttr follow the
// OpenTelemetry GenAI semantic conventions; toolCallIDAttr/toolNameAttr
// follow this module's own openclaw.tool.invoke span shape (§6).
const (
	genAICallIDAttr   = "gen_ai.request.id"
	genAIProviderAttr = "gen_ai.system"
	genAIModelAttr    = "gen_ai.request.model"
	genAIRespModel    = "gen_ai.response.model"
	genAIPromptAttr   = "gen_ai.prompt"
	genAICompletion   = "gen_ai.completion"
	genAICostAttr     = "openclaw.cost.usd"

	toolCallIDAttr = "tool.call_id"
	toolNameAttr   = "tool.name"
	toolArgsAttr   = "tool.arguments"
	toolResultAttr = "tool.result"

	sessionIDAttr = "session.id"
	agentIDAttr   = "agent.id"
	serviceName   = "service.name"

	modelUsageSpanName = "openclaw.model.usage"
	toolInvokeSpanName = "openclaw.tool.invoke"
)

// spanIdentity resolves the session/agent a span belongs to: span
// attributes first, then the resource's, then a trace-wide fallback so
// every span in one trace still lands on the same session even when a
// producer never set session.id explicitly.
func spanIdentity(attrs, resourceAttrs []*commonv1.KeyValue, traceID []byte) (sessionID, agentID string) {
	sessionID, ok := stringAttr(attrs, sessionIDAttr)
	if !ok || sessionID == "" {
		sessionID, ok = stringAttr(resourceAttrs, sessionIDAttr)
	}
	if !ok || sessionID == "" {
		sessionID = "trace-" + hex.EncodeToString(traceID)
	}

	agentID, ok = stringAttr(attrs, agentIDAttr)
	if !ok || agentID == "" {
		agentID, ok = stringAttr(resourceAttrs, agentIDAttr)
	}
	if !ok || agentID == "" {
		agentID, ok = stringAttr(resourceAttrs, serviceName)
	}
	if !ok || agentID == "" {
		agentID = "unknown-agent"
	}
	return sessionID, agentID
}

// MappedBatch is one resource's worth of mapped events plus whatever
// tenant the resource's own attributes named — empty when the
// resource carried no TenantResourceAttr, leaving tenant resolution to
// the caller's auth-context/default-tenant fallback chain.
type MappedBatch struct {
	TenantID string
	Events   []ingest.EventInput
}

// OpenCall is a trace-scoped handle onto an in-flight llm_call/
// llm_response pair's payload, so a later openclaw.tokens.* metric in
// the same export can be merged into it instead of becoming a
// standalone cost_tracked event.
type OpenCall struct {
	CallPayload     *eventlog.OrderedMap
	ResponsePayload *eventlog.OrderedMap
}

// MapTraces converts one ExportTraceServiceRequest into per-resource
// event batches, alongside an index of the LLM calls it just minted
// keyed by their callId — MapMetrics consumes that index to fold
// token-count metrics into the call they describe.
func MapTraces(req *coltracev1.ExportTraceServiceRequest) ([]MappedBatch, map[string]*OpenCall) {
	openCalls := make(map[string]*OpenCall)
	var batches []MappedBatch

	for _, rs := range req.GetResourceSpans() {
		resourceAttrs := rs.GetResource().GetAttributes()
		tenantID, _ := resourceTenantID(resourceAttrs)
		var events []ingest.EventInput

		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				events = append(events, mapSpan(span, resourceAttrs, openCalls)...)
			}
		}
		if len(events) > 0 {
			batches = append(batches, MappedBatch{TenantID: tenantID, Events: events})
		}
	}
	return batches, openCalls
}

func mapSpan(span *tracev1.Span, resourceAttrs []*commonv1.KeyValue, openCalls map[string]*OpenCall) []ingest.EventInput {
	attrs := span.GetAttributes()
	start := time.Unix(0, int64(span.GetStartTimeUnixNano())).UTC()
	end := time.Unix(0, int64(span.GetEndTimeUnixNano())).UTC()
	sessionID, agentID := spanIdentity(attrs, resourceAttrs, span.GetTraceId())

	switch {
	case span.GetName() == modelUsageSpanName || hasAttrPrefix(attrs, "gen_ai."):
		return mapLLMSpan(span, attrs, sessionID, agentID, start, end, openCalls)
	case span.GetName() == toolInvokeSpanName:
		return mapToolSpan(span, attrs, sessionID, agentID, start, end)
	default:
		return nil
	}
}

func spanCallID(attrs []*commonv1.KeyValue, attrKey string, spanID []byte) string {
	if id, ok := stringAttr(attrs, attrKey); ok && id != "" {
		return id
	}
	return hex.EncodeToString(spanID)
}

func mapLLMSpan(span *tracev1.Span, attrs []*commonv1.KeyValue, sessionID, agentID string, start, end time.Time, openCalls map[string]*OpenCall) []ingest.EventInput {
	callID := spanCallID(attrs, genAICallIDAttr, span.GetSpanId())

	provider, ok := stringAttr(attrs, genAIProviderAttr)
	if !ok || provider == "" {
		provider = "unknown"
	}
	model, ok := stringAttr(attrs, genAIModelAttr)
	if !ok || model == "" {
		model, ok = stringAttr(attrs, genAIRespModel)
		if !ok || model == "" {
			model = "unknown"
		}
	}

	callPayload := eventlog.NewOrderedMap()
	callPayload.Set("callId", callID)
	callPayload.Set("provider", provider)
	callPayload.Set("model", model)
	if prompt, ok := stringAttr(attrs, genAIPromptAttr); ok {
		callPayload.Set("messages", prompt)
	}

	responsePayload := eventlog.NewOrderedMap()
	responsePayload.Set("callId", callID)
	if completion, ok := stringAttr(attrs, genAICompletion); ok {
		responsePayload.Set("completion", completion)
	}
	if cost, ok := numberAttr(attrs, genAICostAttr); ok {
		responsePayload.Set("costUsd", cost)
	}
	responsePayload.Set("latencyMs", end.Sub(start).Milliseconds())

	openCalls[callID] = &OpenCall{CallPayload: callPayload, ResponsePayload: responsePayload}

	return []ingest.EventInput{
		{Timestamp: &start, SessionID: sessionID, AgentID: agentID, EventType: eventlog.EventLLMCall, Payload: callPayload},
		{Timestamp: &end, SessionID: sessionID, AgentID: agentID, EventType: eventlog.EventLLMResponse, Payload: responsePayload},
	}
}

func mapToolSpan(span *tracev1.Span, attrs []*commonv1.KeyValue, sessionID, agentID string, start, end time.Time) []ingest.EventInput {
	callID := spanCallID(attrs, toolCallIDAttr, span.GetSpanId())
	toolName, ok := stringAttr(attrs, toolNameAttr)
	if !ok || toolName == "" {
		toolName = span.GetName()
	}
	args, ok := stringAttr(attrs, toolArgsAttr)
	if !ok || args == "" {
		args = "{}"
	}

	callPayload := eventlog.NewOrderedMap()
	callPayload.Set("toolName", toolName)
	callPayload.Set("callId", callID)
	callPayload.Set("arguments", args)

	events := []ingest.EventInput{
		{Timestamp: &start, SessionID: sessionID, AgentID: agentID, EventType: eventlog.EventToolCall, Payload: callPayload},
	}

	if span.GetStatus().GetCode() == tracev1.Status_STATUS_CODE_ERROR {
		errPayload := eventlog.NewOrderedMap()
		errPayload.Set("callId", callID)
		errPayload.Set("errorMessage", span.GetStatus().GetMessage())
		events = append(events, ingest.EventInput{Timestamp: &end, SessionID: sessionID, AgentID: agentID, EventType: eventlog.EventToolError, Severity: eventlog.SeverityError, Payload: errPayload})
		return events
	}

	respPayload := eventlog.NewOrderedMap()
	respPayload.Set("callId", callID)
	if result, ok := stringAttr(attrs, toolResultAttr); ok {
		respPayload.Set("result", result)
	}
	respPayload.Set("durationMs", end.Sub(start).Milliseconds())
	events = append(events, ingest.EventInput{Timestamp: &end, SessionID: sessionID, AgentID: agentID, EventType: eventlog.EventToolResponse, Payload: respPayload})
	return events
}
