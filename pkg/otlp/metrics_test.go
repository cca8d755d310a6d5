package otlp

import (
	"testing"

	"github.com/stretchr/testify/require"

	colmetricsv1 "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	metricsv1 "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcev1 "go.opentelemetry.io/proto/otlp/resource/v1"

	"github.com/agentlensio/agentlens/pkg/eventlog"
)

func resourceMetricsWith(resourceAttrs []*commonv1.KeyValue, metrics ...*metricsv1.Metric) *colmetricsv1.ExportMetricsServiceRequest {
	return &colmetricsv1.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricsv1.ResourceMetrics{
			{
				Resource:     &resourcev1.Resource{Attributes: resourceAttrs},
				ScopeMetrics: []*metricsv1.ScopeMetrics{{Metrics: metrics}},
			},
		},
	}
}

func TestMapMetrics_CostMetricBecomesCostTracked(t *testing.T) {
	metric := &metricsv1.Metric{
		Name: costMetricName,
		Data: &metricsv1.Metric_Gauge{Gauge: &metricsv1.Gauge{
			DataPoints: []*metricsv1.NumberDataPoint{
				{
					Value:      &metricsv1.NumberDataPoint_AsDouble{AsDouble: 0.05},
					Attributes: []*commonv1.KeyValue{strAttr(genAIProviderAttr, "anthropic"), strAttr(sessionIDAttr, "s1"), strAttr(agentIDAttr, "a1")},
				},
			},
		}},
	}
	req := resourceMetricsWith(nil, metric)

	batches := MapMetrics(req, map[string]*OpenCall{})
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Events, 1)
	ev := batches[0].Events[0]
	require.Equal(t, eventlog.EventCostTracked, ev.EventType)
	cost, ok := ev.Payload.Get("costUsd")
	require.True(t, ok)
	require.Equal(t, 0.05, cost)
}

func TestMapMetrics_TokensMergeIntoOpenCall(t *testing.T) {
	responsePayload := eventlog.NewOrderedMap()
	responsePayload.Set("callId", "call-1")
	openCalls := map[string]*OpenCall{
		"call-1": {CallPayload: eventlog.NewOrderedMap(), ResponsePayload: responsePayload},
	}

	metric := &metricsv1.Metric{
		Name: tokensMetricPfx + "input",
		Data: &metricsv1.Metric_Sum{Sum: &metricsv1.Sum{
			DataPoints: []*metricsv1.NumberDataPoint{
				{
					Value:      &metricsv1.NumberDataPoint_AsInt{AsInt: 128},
					Attributes: []*commonv1.KeyValue{strAttr(tokenCallIDAttr, "call-1")},
				},
			},
		}},
	}
	req := resourceMetricsWith(nil, metric)

	batches := MapMetrics(req, openCalls)
	require.Empty(t, batches, "merged token counts produce no standalone event")

	inputTokens, ok := responsePayload.Get("inputTokens")
	require.True(t, ok)
	require.Equal(t, int64(128), inputTokens)
}

func TestMapMetrics_TokensWithoutOpenCallBecomeStandalone(t *testing.T) {
	metric := &metricsv1.Metric{
		Name: tokensMetricPfx + "output",
		Data: &metricsv1.Metric_Sum{Sum: &metricsv1.Sum{
			DataPoints: []*metricsv1.NumberDataPoint{
				{
					Value:      &metricsv1.NumberDataPoint_AsInt{AsInt: 64},
					Attributes: []*commonv1.KeyValue{strAttr(tokenCallIDAttr, "unknown-call")},
				},
			},
		}},
	}
	req := resourceMetricsWith(nil, metric)

	batches := MapMetrics(req, map[string]*OpenCall{})
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Events, 1)
	ev := batches[0].Events[0]
	require.Equal(t, eventlog.EventCostTracked, ev.EventType)
	outputTokens, ok := ev.Payload.Get("outputTokens")
	require.True(t, ok)
	require.Equal(t, int64(64), outputTokens)
}

func TestMapMetrics_IgnoresUnrelatedMetrics(t *testing.T) {
	metric := &metricsv1.Metric{Name: "http.server.duration"}
	req := resourceMetricsWith(nil, metric)
	batches := MapMetrics(req, map[string]*OpenCall{})
	require.Empty(t, batches)
}
