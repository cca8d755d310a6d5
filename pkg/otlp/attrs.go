// Package otlp maps OTLP traces, metrics, and logs onto AgentLens's
// event taxonomy (§6's mapping table), so an agent instrumented with a
// stock OpenTelemetry SDK can ship straight to /v1/traces, /v1/metrics,
// and /v1/logs without an AgentLens-specific exporter.
package otlp

import (
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
)

// TenantResourceAttr is the resource attribute a producer sets to
// route telemetry to a tenant when no authenticated context already
// pins one (spec.md §6's tenant resolution precedence).
const TenantResourceAttr = "openclaw.tenant_id"

// stringAttr returns the string value of the named attribute, or
// ("", false) if absent or not a string.
func stringAttr(attrs []*commonv1.KeyValue, key string) (string, bool) {
	for _, kv := range attrs {
		if kv.GetKey() != key {
			continue
		}
		if v, ok := kv.GetValue().GetValue().(*commonv1.AnyValue_StringValue); ok {
			return v.StringValue, true
		}
		return "", false
	}
	return "", false
}

// numberAttr returns the named attribute coerced to float64, from
// whichever numeric oneof variant it was encoded as.
func numberAttr(attrs []*commonv1.KeyValue, key string) (float64, bool) {
	for _, kv := range attrs {
		if kv.GetKey() != key {
			continue
		}
		switch v := kv.GetValue().GetValue().(type) {
		case *commonv1.AnyValue_DoubleValue:
			return v.DoubleValue, true
		case *commonv1.AnyValue_IntValue:
			return float64(v.IntValue), true
		}
		return 0, false
	}
	return 0, false
}

// hasAttrPrefix reports whether any attribute key starts with prefix —
// used to detect the family of gen_ai.* semantic-convention attributes
// without enumerating every one OpenTelemetry's GenAI SIG defines.
func hasAttrPrefix(attrs []*commonv1.KeyValue, prefix string) bool {
	for _, kv := range attrs {
		if len(kv.GetKey()) >= len(prefix) && kv.GetKey()[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// resourceTenantID extracts TenantResourceAttr from a resource's
// attribute set, if the producer set one.
func resourceTenantID(attrs []*commonv1.KeyValue) (string, bool) {
	return stringAttr(attrs, TenantResourceAttr)
}
