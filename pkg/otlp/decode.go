package otlp

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	coltracev1 "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	colmetricsv1 "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	collogsv1 "go.opentelemetry.io/proto/otlp/collector/logs/v1"
)

// unmarshalOptions tolerates fields the wire producer's OTLP proto
// version added after ours and the occasional unknown enum value
// rather than rejecting an otherwise-valid export.
var unmarshalOptions = protojson.UnmarshalOptions{DiscardUnknown: true}

// isJSON reports whether contentType names the JSON encoding this
// receiver accepts; anything else (including an absent header) is
// treated as protobuf, matching the OTLP/HTTP spec's binary default.
func isJSON(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "application/json")
}

// DecodeTraces parses a traces export body per contentType (§6: both
// application/json via protojson and application/x-protobuf).
func DecodeTraces(contentType string, body []byte) (*coltracev1.ExportTraceServiceRequest, error) {
	req := &coltracev1.ExportTraceServiceRequest{}
	if isJSON(contentType) {
		if err := unmarshalOptions.Unmarshal(body, req); err != nil {
			return nil, fmt.Errorf("otlp: decode traces json: %w", err)
		}
		return req, nil
	}
	if err := proto.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("otlp: decode traces protobuf: %w", err)
	}
	return req, nil
}

// DecodeMetrics parses a metrics export body per contentType.
func DecodeMetrics(contentType string, body []byte) (*colmetricsv1.ExportMetricsServiceRequest, error) {
	req := &colmetricsv1.ExportMetricsServiceRequest{}
	if isJSON(contentType) {
		if err := unmarshalOptions.Unmarshal(body, req); err != nil {
			return nil, fmt.Errorf("otlp: decode metrics json: %w", err)
		}
		return req, nil
	}
	if err := proto.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("otlp: decode metrics protobuf: %w", err)
	}
	return req, nil
}

// DecodeLogs parses a logs export body per contentType.
func DecodeLogs(contentType string, body []byte) (*collogsv1.ExportLogsServiceRequest, error) {
	req := &collogsv1.ExportLogsServiceRequest{}
	if isJSON(contentType) {
		if err := unmarshalOptions.Unmarshal(body, req); err != nil {
			return nil, fmt.Errorf("otlp: decode logs json: %w", err)
		}
		return req, nil
	}
	if err := proto.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("otlp: decode logs protobuf: %w", err)
	}
	return req, nil
}
