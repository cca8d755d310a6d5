package api

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/agentlensio/agentlens/pkg/apierrors"
	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/replay"
	"github.com/agentlensio/agentlens/pkg/store"
)

// handleQuerySessions is `GET /api/sessions`.
func (s *Server) handleQuerySessions(c *echo.Context) error {
	filter := store.SessionFilter{
		AgentID: c.QueryParam("agentId"),
		Status:  store.SessionStatus(c.QueryParam("status")),
	}
	if v := c.QueryParam("tags"); v != "" {
		filter.Tags = strings.Split(v, ",")
	}

	from, err := parseTimeParam(c, "from")
	if err != nil {
		return writeError(c, err)
	}
	filter.From = from

	to, err := parseTimeParam(c, "to")
	if err != nil {
		return writeError(c, err)
	}
	filter.To = to

	limit, offset, err := parsePagination(c)
	if err != nil {
		return writeError(c, err)
	}
	filter.Limit = limit
	filter.Offset = offset

	list, err := s.scoped(c).QuerySessions(c.Request().Context(), filter)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSessionListResponse(list))
}

// handleGetSession is `GET /api/sessions/:id`.
func (s *Server) handleGetSession(c *echo.Context) error {
	sess, err := s.scoped(c).GetSession(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSessionView(sess))
}

// handleSessionTimeline is `GET /api/sessions/:id/timeline`: the raw
// ordered event list plus a chain-verification flag, never a 500 for a
// corrupt chain (§7 — chain integrity is surfaced in-band).
func (s *Server) handleSessionTimeline(c *echo.Context) error {
	events, err := s.scoped(c).GetSessionTimeline(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	result := eventlog.VerifyChain(events)
	return c.JSON(http.StatusOK, timelineResponse{Events: events, ChainValid: result.Valid})
}

// handleSessionReplay is `GET /api/sessions/:id/replay`: cache-then-
// build, translating replay.Build's (nil, nil) "session not found"
// result into a 404. The cache only ever holds the default view
// (offset 0, default limit, no event-type filter, context included) —
// a request with non-default options always walks fresh, since a
// ReplayState's Steps are already windowed to the Options that built
// it and cannot be re-windowed after the fact.
func (s *Server) handleSessionReplay(c *echo.Context) error {
	key, err := requireKey(c)
	if err != nil {
		return writeError(c, err)
	}
	sessionID := c.Param("id")

	opts, err := parseReplayOptions(c)
	if err != nil {
		return writeError(c, err)
	}

	if isDefaultReplayOptions(opts) {
		if cached, ok := s.replayCache.Get(key.TenantID, sessionID); ok {
			return c.JSON(http.StatusOK, toReplayResponse(cached))
		}
	}

	state, err := replay.Build(c.Request().Context(), s.store, key.TenantID, sessionID, opts)
	if err != nil {
		return writeError(c, err)
	}
	if state == nil {
		return writeError(c, apierrors.NotFound("session not found"))
	}
	if isDefaultReplayOptions(opts) {
		s.replayCache.Put(key.TenantID, sessionID, state)
	}
	return c.JSON(http.StatusOK, toReplayResponse(state))
}

func isDefaultReplayOptions(opts replay.Options) bool {
	return opts.Offset == 0 && opts.Limit == 0 && len(opts.EventTypes) == 0 && opts.IncludeContext
}

func parseReplayOptions(c *echo.Context) (replay.Options, error) {
	opts := replay.Options{IncludeContext: true}
	limit, offset, err := parsePagination(c)
	if err != nil {
		return replay.Options{}, err
	}
	opts.Limit = limit
	opts.Offset = offset

	if v := c.QueryParam("eventTypes"); v != "" {
		for _, t := range strings.Split(v, ",") {
			opts.EventTypes = append(opts.EventTypes, eventlog.EventType(strings.TrimSpace(t)))
		}
	}
	if v := c.QueryParam("includeContext"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return replay.Options{}, apierrors.Validation("invalid includeContext")
		}
		opts.IncludeContext = b
	}
	return opts, nil
}
