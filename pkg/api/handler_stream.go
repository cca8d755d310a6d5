package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agentlensio/agentlens/pkg/bus"
)

// streamSubscriberBuffer is the per-client channel depth passed to
// bus.Subscribe — generous enough to absorb a short burst without the
// bus's documented drop-on-full backpressure kicking in under normal
// load.
const streamSubscriberBuffer = 64

// streamHeartbeatInterval is how often a heartbeat frame is emitted on
// an otherwise-idle connection (§4.5: "every 30 s while the connection
// is alive"), letting clients and intermediaries detect a dead
// connection instead of waiting on bus traffic that may never come.
const streamHeartbeatInterval = 30 * time.Second

// streamFrameNames translates a bus.MessageType to the SSE frame name
// and JSON type string a client is contracted to see (§4.5):
// event_ingested → event, session_updated → session_update,
// alert_triggered → alert.
var streamFrameNames = map[bus.MessageType]string{
	bus.MessageEventIngested:  "event",
	bus.MessageSessionUpdated: "session_update",
	bus.MessageAlertTriggered: "alert",
}

// streamEventView is what's actually framed on the wire — the bus
// Message flattened to whichever payload it carries, since a client
// only ever wants one of {event, session, alert} per frame.
type streamEventView struct {
	Type      string `json:"type"`
	TenantID  string `json:"tenantId"`
	Timestamp string `json:"timestamp"`
	Event     any    `json:"event,omitempty"`
	Session   any    `json:"session,omitempty"`
}

// handleStream is `GET /api/stream?{sessionId?,agentId?,eventTypes?}`
// (§4.5): a text/event-stream of bus messages matching the filter,
// tenant-scoped by construction, closed cleanly on client disconnect.
func (s *Server) handleStream(c *echo.Context) error {
	key, err := requireKey(c)
	if err != nil {
		return writeError(c, err)
	}

	filter := bus.Filter{
		TenantID:  key.TenantID,
		SessionID: c.QueryParam("sessionId"),
		AgentID:   c.QueryParam("agentId"),
	}
	if v := c.QueryParam("eventTypes"); v != "" {
		filter.EventTypes = make(map[string]bool)
		for _, t := range strings.Split(v, ",") {
			filter.EventTypes[strings.TrimSpace(t)] = true
		}
	}

	resp := c.Response()
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	if _, err := resp.Write(formatHeartbeatFrame()); err != nil {
		return nil
	}
	resp.Flush()

	msgs, unsubscribe := s.bus.Subscribe(streamSubscriberBuffer)
	defer unsubscribe()

	heartbeat := time.NewTicker(streamHeartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := resp.Write(formatHeartbeatFrame()); err != nil {
				return nil
			}
			resp.Flush()
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			if !filter.Matches(m) {
				continue
			}
			frame, err := formatSSEFrame(m)
			if err != nil {
				continue
			}
			if _, err := resp.Write(frame); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

func formatSSEFrame(m bus.Message) ([]byte, error) {
	name, ok := streamFrameNames[m.Type]
	if !ok {
		name = string(m.Type)
	}
	view := streamEventView{
		Type:      name,
		TenantID:  m.TenantID,
		Timestamp: m.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if m.Event != nil {
		view.Event = m.Event
	}
	if m.Session != nil {
		view.Session = m.Session
	}
	body, err := json.Marshal(view)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", name, body)), nil
}

// formatHeartbeatFrame builds the §4.5 "heartbeat" frame: no event or
// session payload, just a type/timestamp so a client can tell the
// connection is alive.
func formatHeartbeatFrame() []byte {
	view := streamEventView{
		Type:      "heartbeat",
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	body, err := json.Marshal(view)
	if err != nil {
		return []byte("event: heartbeat\ndata: {}\n\n")
	}
	return []byte(fmt.Sprintf("event: heartbeat\ndata: %s\n\n", body))
}
