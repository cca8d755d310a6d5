package api

import (
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/ingest"
)

// ingestEventRequest is the wire shape of one element of `POST
// /api/events`'s `events` array (§6): every eventlog.Event field the
// producer supplies, minus the ones ingestion assigns (id, hash,
// prevHash, tenantId).
type ingestEventRequest struct {
	Timestamp *time.Time          `json:"timestamp,omitempty"`
	SessionID string               `json:"sessionId"`
	AgentID   string               `json:"agentId"`
	EventType eventlog.EventType   `json:"eventType"`
	Severity  eventlog.Severity    `json:"severity,omitempty"`
	Payload   *eventlog.OrderedMap `json:"payload,omitempty"`
	Metadata  *eventlog.OrderedMap `json:"metadata,omitempty"`
}

type ingestBatchRequest struct {
	Events []ingestEventRequest `json:"events"`
}

func (r ingestBatchRequest) toBatchInput(tenantID, orgID, apiKeyID string) ingest.BatchInput {
	events := make([]ingest.EventInput, len(r.Events))
	for i, e := range r.Events {
		events[i] = ingest.EventInput{
			Timestamp: e.Timestamp,
			SessionID: e.SessionID,
			AgentID:   e.AgentID,
			EventType: e.EventType,
			Severity:  e.Severity,
			Payload:   e.Payload,
			Metadata:  e.Metadata,
		}
	}
	return ingest.BatchInput{
		TenantID: tenantID,
		OrgID:    orgID,
		APIKeyID: apiKeyID,
		Events:   events,
	}
}

// configPutRequest is PUT /api/config's body. WebhookSecret is
// write-only: a non-empty value is hashed and stored, an empty value
// leaves any existing secret untouched (there is no way to clear a
// secret except setting a new one — matching §6's hash-only storage).
type configPutRequest struct {
	Tier               string `json:"tier,omitempty"`
	EventsDaysOverride *int   `json:"eventsDaysOverride,omitempty"`
	AuditDaysOverride  *int   `json:"auditDaysOverride,omitempty"`
	WebhookURL         string `json:"webhookUrl,omitempty"`
	WebhookSecret      string `json:"webhookSecret,omitempty"`
}
