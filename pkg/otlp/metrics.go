package otlp

import (
	"strings"
	"time"

	colmetricsv1 "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	metricsv1 "go.opentelemetry.io/proto/otlp/metrics/v1"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/ingest"
)

const (
	costMetricName   = "openclaw.cost.usd"
	tokensMetricPfx  = "openclaw.tokens."
	tokenCallIDAttr  = "call_id"
)

// MapMetrics converts one ExportMetricsServiceRequest into per-resource
// event batches. openCalls is the index MapTraces returned for the
// spans in the same export — a openclaw.tokens.* data point whose
// call_id/gen_ai.request.id attribute matches an open call is folded
// into that call's payload instead of becoming its own event (§6).
func MapMetrics(req *colmetricsv1.ExportMetricsServiceRequest, openCalls map[string]*OpenCall) []MappedBatch {
	var batches []MappedBatch

	for _, rm := range req.GetResourceMetrics() {
		resourceAttrs := rm.GetResource().GetAttributes()
		tenantID, _ := resourceTenantID(resourceAttrs)
		var events []ingest.EventInput

		for _, sm := range rm.GetScopeMetrics() {
			for _, metric := range sm.GetMetrics() {
				events = append(events, mapMetric(metric, resourceAttrs, openCalls)...)
			}
		}
		if len(events) > 0 {
			batches = append(batches, MappedBatch{TenantID: tenantID, Events: events})
		}
	}
	return batches
}

func mapMetric(metric *metricsv1.Metric, resourceAttrs []*commonv1.KeyValue, openCalls map[string]*OpenCall) []ingest.EventInput {
	switch {
	case metric.GetName() == costMetricName:
		return mapCostMetric(metric, resourceAttrs)
	case strings.HasPrefix(metric.GetName(), tokensMetricPfx):
		return mapTokensMetric(metric, resourceAttrs, openCalls)
	default:
		return nil
	}
}

func dataPoints(metric *metricsv1.Metric) []*metricsv1.NumberDataPoint {
	if g := metric.GetGauge(); g != nil {
		return g.GetDataPoints()
	}
	if s := metric.GetSum(); s != nil {
		return s.GetDataPoints()
	}
	return nil
}

func numberDataPointValue(dp *metricsv1.NumberDataPoint) float64 {
	if dp.GetAsDouble() != 0 {
		return dp.GetAsDouble()
	}
	return float64(dp.GetAsInt())
}

func mapCostMetric(metric *metricsv1.Metric, resourceAttrs []*commonv1.KeyValue) []ingest.EventInput {
	var events []ingest.EventInput
	for _, dp := range dataPoints(metric) {
		ts := time.Unix(0, int64(dp.GetTimeUnixNano())).UTC()
		sessionID, agentID := spanIdentity(dp.GetAttributes(), resourceAttrs, nil)

		provider, ok := stringAttr(dp.GetAttributes(), genAIProviderAttr)
		if !ok || provider == "" {
			provider = "unknown"
		}
		model, ok := stringAttr(dp.GetAttributes(), genAIModelAttr)
		if !ok || model == "" {
			model = "unknown"
		}

		payload := eventlog.NewOrderedMap()
		payload.Set("provider", provider)
		payload.Set("model", model)
		payload.Set("inputTokens", 0)
		payload.Set("outputTokens", 0)
		payload.Set("totalTokens", 0)
		payload.Set("costUsd", numberDataPointValue(dp))

		events = append(events, ingest.EventInput{
			Timestamp: &ts, SessionID: sessionID, AgentID: agentID,
			EventType: eventlog.EventCostTracked, Payload: payload,
		})
	}
	return events
}

func mapTokensMetric(metric *metricsv1.Metric, resourceAttrs []*commonv1.KeyValue, openCalls map[string]*OpenCall) []ingest.EventInput {
	kind := strings.TrimPrefix(metric.GetName(), tokensMetricPfx) // "input" | "output" | "total"
	field := kind + "Tokens"

	var events []ingest.EventInput
	for _, dp := range dataPoints(metric) {
		callID, _ := stringAttr(dp.GetAttributes(), tokenCallIDAttr)
		if callID == "" {
			callID, _ = stringAttr(dp.GetAttributes(), genAICallIDAttr)
		}

		if callID != "" {
			if open, ok := openCalls[callID]; ok {
				target := open.ResponsePayload
				if target == nil {
					target = open.CallPayload
				}
				target.Set(field, int64(numberDataPointValue(dp)))
				continue
			}
		}

		// No open call to merge into — stand alone, per §6.
		ts := time.Unix(0, int64(dp.GetTimeUnixNano())).UTC()
		sessionID, agentID := spanIdentity(dp.GetAttributes(), resourceAttrs, nil)
		payload := eventlog.NewOrderedMap()
		payload.Set("provider", "unknown")
		payload.Set("model", "unknown")
		payload.Set("inputTokens", 0)
		payload.Set("outputTokens", 0)
		payload.Set("totalTokens", 0)
		payload.Set(field, int64(numberDataPointValue(dp)))
		payload.Set("costUsd", 0.0)
		events = append(events, ingest.EventInput{
			Timestamp: &ts, SessionID: sessionID, AgentID: agentID,
			EventType: eventlog.EventCostTracked, Payload: payload,
		})
	}
	return events
}
