package api

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentlensio/agentlens/pkg/auth"
)

// sseFrame is one parsed `event: <name>\ndata: <json>\n\n` frame.
type sseFrame struct {
	event string
	data  string
}

// readSSEFrames pairs consecutive "event: "/"data: " lines off body and
// delivers each completed frame on the returned channel, closing it
// once the body is exhausted or errors.
func readSSEFrames(body io.Reader) <-chan sseFrame {
	out := make(chan sseFrame, 16)
	go func() {
		defer close(out)
		reader := bufio.NewReader(body)
		var cur sseFrame
		for {
			line, err := reader.ReadString('\n')
			switch {
			case strings.HasPrefix(line, "event: "):
				cur.event = strings.TrimSuffix(strings.TrimPrefix(line, "event: "), "\n")
			case strings.HasPrefix(line, "data: "):
				cur.data = strings.TrimSuffix(strings.TrimPrefix(line, "data: "), "\n")
				out <- cur
				cur = sseFrame{}
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// TestStream_EmitsHeartbeatOnConnect asserts the very first frame on a
// freshly opened connection is a heartbeat, per §4.5 ("on connect, emit
// one heartbeat frame immediately").
func TestStream_EmitsHeartbeatOnConnect(t *testing.T) {
	_, ts, keyStore := testServer(t)
	mintKey(keyStore, "heartbeat-key", "tenant-a", auth.ScopeRead)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer heartbeat-key")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	frames := readSSEFrames(resp.Body)
	select {
	case frame, ok := <-frames:
		require.True(t, ok)
		require.Equal(t, "heartbeat", frame.event)
		require.Contains(t, frame.data, `"type":"heartbeat"`)
	case <-time.After(1 * time.Second):
		require.Fail(t, "no initial heartbeat frame received")
	}
}

// TestStream_DeliversMatchingTenantEvent subscribes to /api/stream for
// a single session, ingests an event for that session, and asserts the
// resulting SSE frame is delivered under the §4.5 "event" frame name
// (not the bus's own "event_ingested" message type).
func TestStream_DeliversMatchingTenantEvent(t *testing.T) {
	_, ts, keyStore := testServer(t)
	mintKey(keyStore, "stream-key", "tenant-a", auth.ScopeWrite, auth.ScopeRead)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream?sessionId=sess-1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer stream-key")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := readSSEFrames(resp.Body)

	ingestBody := map[string]any{
		"events": []map[string]any{
			{"sessionId": "sess-1", "agentId": "agent-1", "eventType": "custom", "payload": map[string]any{"message": "hi"}},
		},
	}

	// bus.Subscribe runs after the initial heartbeat is already
	// flushed, so the first publish can race the handler's own
	// subscription; retry the ingest until a frame shows up or the
	// deadline above trips.
	var found bool
	for i := 0; i < 10 && !found; i++ {
		r := doRequest(t, ts, http.MethodPost, "/api/events", "stream-key", ingestBody)
		require.Equal(t, http.StatusOK, r.StatusCode)
		r.Body.Close()

	drain:
		for {
			select {
			case frame, ok := <-frames:
				if !ok {
					break drain
				}
				if frame.event == "heartbeat" {
					continue
				}
				require.Equal(t, "event", frame.event, "must be translated from event_ingested to event")
				require.Contains(t, frame.data, `"sessionId":"sess-1"`)
				found = true
				break drain
			case <-time.After(150 * time.Millisecond):
				break drain
			}
		}
	}
	require.True(t, found, "expected a matching SSE frame for sess-1")
}

// TestStream_FiltersOtherSessions confirms a subscriber scoped to one
// session never receives a non-heartbeat frame for a different session
// on the same tenant.
func TestStream_FiltersOtherSessions(t *testing.T) {
	_, ts, keyStore := testServer(t)
	mintKey(keyStore, "stream-key-2", "tenant-a", auth.ScopeWrite, auth.ScopeRead)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream?sessionId=sess-watched", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer stream-key-2")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	frames := readSSEFrames(resp.Body)

	ingestBody := map[string]any{
		"events": []map[string]any{
			{"sessionId": "sess-other", "agentId": "agent-1", "eventType": "custom", "payload": map[string]any{"message": "hi"}},
		},
	}
	r := doRequest(t, ts, http.MethodPost, "/api/events", "stream-key-2", ingestBody)
	require.Equal(t, http.StatusOK, r.StatusCode)
	r.Body.Close()

	deadline := time.After(300 * time.Millisecond)
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if frame.event == "heartbeat" {
				continue
			}
			require.Fail(t, "unexpected non-heartbeat frame for unrelated session", frame.data)
		case <-deadline:
			return
		}
	}
}
