package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agentlensio/agentlens/pkg/apierrors"
	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

// handleIngestEvents is `POST /api/events` (§6). Ingestion is the one
// handler that does not go through scoped(c): the pipeline already
// holds the raw store and assigns the tenant from the authenticated
// key itself.
func (s *Server) handleIngestEvents(c *echo.Context) error {
	key, err := requireKey(c)
	if err != nil {
		return writeError(c, err)
	}

	var req ingestBatchRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.Validation("malformed request body"))
	}

	in := req.toBatchInput(key.TenantID, key.OrgID, key.ID)
	result, err := s.pipeline.IngestBatch(c.Request().Context(), time.Now().UTC(), key.Tier, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toIngestBatchResponse(result))
}

// handleQueryEvents is `GET /api/events`.
func (s *Server) handleQueryEvents(c *echo.Context) error {
	filter, err := parseEventFilter(c)
	if err != nil {
		return writeError(c, err)
	}
	list, err := s.scoped(c).QueryEvents(c.Request().Context(), filter)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, eventListResponse{Events: list.Events, Total: list.Total, HasMore: list.HasMore})
}

// handleGetEvent is `GET /api/events/:id`.
func (s *Server) handleGetEvent(c *echo.Context) error {
	e, err := s.scoped(c).GetEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func parseEventFilter(c *echo.Context) (store.EventFilter, error) {
	filter := store.EventFilter{
		SessionID: c.QueryParam("sessionId"),
		AgentID:   c.QueryParam("agentId"),
		Search:    c.QueryParam("search"),
	}

	if v := c.QueryParam("eventType"); v != "" {
		for _, t := range strings.Split(v, ",") {
			filter.EventTypes = append(filter.EventTypes, eventlog.EventType(strings.TrimSpace(t)))
		}
	}
	if v := c.QueryParam("severity"); v != "" {
		for _, sv := range strings.Split(v, ",") {
			filter.Severities = append(filter.Severities, eventlog.Severity(strings.TrimSpace(sv)))
		}
	}

	from, err := parseTimeParam(c, "from")
	if err != nil {
		return store.EventFilter{}, err
	}
	filter.From = from

	to, err := parseTimeParam(c, "to")
	if err != nil {
		return store.EventFilter{}, err
	}
	filter.To = to

	switch strings.ToLower(c.QueryParam("order")) {
	case "asc":
		filter.Order = store.OrderAsc
	case "desc":
		filter.Order = store.OrderDesc
	}

	limit, offset, err := parsePagination(c)
	if err != nil {
		return store.EventFilter{}, err
	}
	filter.Limit = limit
	filter.Offset = offset

	return filter, nil
}

func parseTimeParam(c *echo.Context, name string) (*time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apierrors.Validation("invalid " + name + ": must be RFC3339")
	}
	return &t, nil
}

func parsePagination(c *echo.Context) (limit, offset int, err error) {
	if v := c.QueryParam("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return 0, 0, apierrors.Validation("invalid limit")
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, apierrors.Validation("invalid offset")
		}
	}
	return limit, offset, nil
}
