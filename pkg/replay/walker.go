package replay

import (
	"fmt"
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
)

// slowToolThresholdMs and highCostThreshold are the heuristics behind
// the open-ended "high cost" / "slow tool" warnings (§4.4 step 8);
// there is no spec-mandated number, so these are conservative defaults
// a reviewer can tune per deployment.
const (
	slowToolThresholdMs = 30_000
	highCostThreshold   = 1.0
)

// walker carries the mutable state propagated across one filtered
// walk of the timeline. includeContext=false skips all propagation and
// every apply() call is a no-op, matching "the walk skips state
// propagation and emits empty contexts" (§4.4).
type walker struct {
	includeContext bool
	ctx            *Context
	toolIndex      map[string]int // callId -> index into ctx.ToolResults
	llmIndex       map[string]int // callId -> index into ctx.LLMHistory
	approvalIndex  map[string]int // requestId -> index into ctx.PendingApprovals
}

func newWalker(includeContext bool) *walker {
	return &walker{
		includeContext: includeContext,
		ctx:            newContext(),
		toolIndex:      make(map[string]int),
		llmIndex:       make(map[string]int),
		approvalIndex:  make(map[string]int),
	}
}

// apply folds one event into the walker's context. first is the
// timestamp of the first event in the filtered list, used to compute
// ElapsedMs; pairs is the full-list prepass used to look up a just-
// closed pair's duration for the slow-tool warning.
func (w *walker) apply(e *eventlog.Event, first time.Time, pairs map[string]*pair) {
	if !w.includeContext {
		return
	}

	w.ctx.EventCounts[e.EventType]++
	w.ctx.ElapsedMs = e.Timestamp.Sub(first).Milliseconds()
	if isErrorEvent(e) {
		w.ctx.ErrorCount++
	}

	switch e.EventType {
	case eventlog.EventToolCall:
		callID, _ := stringField(e.Payload, "callId")
		toolName, _ := stringField(e.Payload, "toolName")
		args, _ := e.Payload.Get("arguments")
		tr := &ToolResult{CallID: callID, ToolName: toolName, Arguments: args}
		w.ctx.ToolResults = append(w.ctx.ToolResults, tr)
		if callID != "" {
			w.toolIndex[callID] = len(w.ctx.ToolResults) - 1
		}

	case eventlog.EventToolResponse, eventlog.EventToolError:
		callID, _ := stringField(e.Payload, "callId")
		if idx, ok := w.toolIndex[callID]; ok {
			tr := w.ctx.ToolResults[idx]
			tr.Completed = true
			if e.EventType == eventlog.EventToolError {
				tr.Error, _ = e.Payload.Get("error")
			} else {
				tr.Response, _ = e.Payload.Get("response")
			}
			if d, ok := pairs[callID].durationMs(); ok && d > slowToolThresholdMs {
				w.ctx.Warnings = append(w.ctx.Warnings, fmt.Sprintf("slow tool: %s took %dms", callID, d))
			}
		}

	case eventlog.EventLLMCall:
		callID, _ := stringField(e.Payload, "callId")
		provider, _ := stringField(e.Payload, "provider")
		model, _ := stringField(e.Payload, "model")
		entry := &LLMHistoryEntry{CallID: callID, Provider: provider, Model: model}
		if eventlog.IsRedacted(e.Payload) {
			entry.Messages = eventlog.RedactedPlaceholder
		} else if v, ok := e.Payload.Get("messages"); ok {
			entry.Messages = v
		}
		w.ctx.LLMHistory = append(w.ctx.LLMHistory, entry)
		if callID != "" {
			w.llmIndex[callID] = len(w.ctx.LLMHistory) - 1
		}

	case eventlog.EventLLMResponse:
		callID, _ := stringField(e.Payload, "callId")
		if idx, ok := w.llmIndex[callID]; ok {
			entry := w.ctx.LLMHistory[idx]
			entry.Completed = true
			if eventlog.IsRedacted(e.Payload) {
				entry.Response = eventlog.RedactedPlaceholder
			} else if v, ok := e.Payload.Get("completion"); ok {
				entry.Response = v
			}
			if v, ok := e.Payload.Get("toolCalls"); ok {
				entry.ToolCalls = v
			}
			if v, ok := e.Payload.Get("costUsd"); ok {
				if f, ok := toFloat(v); ok {
					entry.CostUsd = f
					w.ctx.CumulativeCostUsd += f
				}
			}
			if v, ok := e.Payload.Get("latencyMs"); ok {
				if ms, ok := toInt64(v); ok {
					entry.LatencyMs = ms
				}
			}
			if entry.CostUsd > highCostThreshold {
				w.ctx.Warnings = append(w.ctx.Warnings, fmt.Sprintf("high cost: %s cost $%.4f", callID, entry.CostUsd))
			}
		}

	case eventlog.EventCostTracked:
		if v, ok := e.Payload.Get("costUsd"); ok {
			if f, ok := toFloat(v); ok {
				w.ctx.CumulativeCostUsd += f
			}
		}

	case eventlog.EventApprovalRequested:
		requestID, _ := stringField(e.Payload, "requestId")
		a := &Approval{RequestID: requestID, Status: "pending"}
		w.ctx.PendingApprovals = append(w.ctx.PendingApprovals, a)
		if requestID != "" {
			w.approvalIndex[requestID] = len(w.ctx.PendingApprovals) - 1
		}

	case eventlog.EventApprovalGranted, eventlog.EventApprovalDenied, eventlog.EventApprovalExpired:
		requestID, _ := stringField(e.Payload, "requestId")
		if idx, ok := w.approvalIndex[requestID]; ok {
			w.ctx.PendingApprovals[idx].Status = approvalStatus(e.EventType)
		}
	}
}

func approvalStatus(t eventlog.EventType) string {
	switch t {
	case eventlog.EventApprovalGranted:
		return "granted"
	case eventlog.EventApprovalDenied:
		return "denied"
	case eventlog.EventApprovalExpired:
		return "expired"
	default:
		return "pending"
	}
}

func stringField(payload *eventlog.OrderedMap, field string) (string, bool) {
	v, ok := payload.Get(field)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

