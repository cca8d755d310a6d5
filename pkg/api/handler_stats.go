package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agentlensio/agentlens/pkg/apierrors"
	"github.com/agentlensio/agentlens/pkg/store"
)

// handleStats is `GET /api/stats`.
func (s *Server) handleStats(c *echo.Context) error {
	stats, err := s.scoped(c).GetStats(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toStatsResponse(stats))
}

// handleStatsOverview is `GET /api/stats/overview?{from?,to?}`: the
// same tenant-wide totals, narrowed to an optional range via the
// analytics path so "overview" and "analytics" share one query
// implementation rather than duplicating bucket math.
func (s *Server) handleStatsOverview(c *echo.Context) error {
	from, err := parseTimeParam(c, "from")
	if err != nil {
		return writeError(c, err)
	}
	to, err := parseTimeParam(c, "to")
	if err != nil {
		return writeError(c, err)
	}

	now := time.Now().UTC()
	query := store.AnalyticsQuery{
		From:        orDefaultTime(from, now.AddDate(0, 0, -30)),
		To:          orDefaultTime(to, now),
		Granularity: store.GranularityDay,
	}

	analytics, err := s.scoped(c).GetAnalytics(c.Request().Context(), query)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toAnalyticsResponse(analytics))
}

// handleAnalytics is `GET /api/analytics?{from,to,granularity,agentId?}`.
func (s *Server) handleAnalytics(c *echo.Context) error {
	from, err := parseTimeParam(c, "from")
	if err != nil {
		return writeError(c, err)
	}
	to, err := parseTimeParam(c, "to")
	if err != nil {
		return writeError(c, err)
	}
	if from == nil || to == nil {
		return writeError(c, apierrors.Validation("from and to are required"))
	}

	granularity := store.GranularityDay
	switch c.QueryParam("granularity") {
	case "hour":
		granularity = store.GranularityHour
	case "day", "":
		granularity = store.GranularityDay
	default:
		return writeError(c, apierrors.Validation("invalid granularity"))
	}

	query := store.AnalyticsQuery{
		From:        *from,
		To:          *to,
		Granularity: granularity,
		AgentID:     c.QueryParam("agentId"),
	}

	analytics, err := s.scoped(c).GetAnalytics(c.Request().Context(), query)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toAnalyticsResponse(analytics))
}

func orDefaultTime(v *time.Time, def time.Time) time.Time {
	if v == nil {
		return def
	}
	return *v
}
