package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agentlensio/agentlens/pkg/apierrors"
	"github.com/agentlensio/agentlens/pkg/compliance"
	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/retention"
	"github.com/agentlensio/agentlens/pkg/store"
)

// requireRange parses the required from/to query parameters shared by
// the compliance report and export endpoints.
func requireRange(c *echo.Context) (*time.Time, *time.Time, error) {
	from, err := parseTimeParam(c, "from")
	if err != nil {
		return nil, nil, err
	}
	to, err := parseTimeParam(c, "to")
	if err != nil {
		return nil, nil, err
	}
	if from == nil || to == nil {
		return nil, nil, apierrors.Validation("from and to are required")
	}
	return from, to, nil
}

// handleComplianceReport is `GET /api/compliance/report?{from,to}`: a
// signed JSON report, §4.7.
func (s *Server) handleComplianceReport(c *echo.Context) error {
	key, err := requireKey(c)
	if err != nil {
		return writeError(c, err)
	}
	from, to, err := requireRange(c)
	if err != nil {
		return writeError(c, err)
	}

	retentionDays, err := s.resolveAuditRetentionDays(c, key.TenantID)
	if err != nil {
		return writeError(c, err)
	}

	report, err := compliance.Build(c.Request().Context(), s.store, key.TenantID, *from, *to, s.signingKey, key.ID, retentionDays)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// handleComplianceExport is `GET /api/compliance/export/events?{from,to,format}`.
// CSV is streamed directly to the response body; JSON pages through
// the scoped store the same way handleQueryEvents does.
func (s *Server) handleComplianceExport(c *echo.Context) error {
	key, err := requireKey(c)
	if err != nil {
		return writeError(c, err)
	}
	from, to, err := requireRange(c)
	if err != nil {
		return writeError(c, err)
	}

	format := c.QueryParam("format")
	if format == "" {
		format = "json"
	}

	verification, err := s.verifyRangeChain(c, key.TenantID, *from, *to)
	if err != nil {
		return writeError(c, err)
	}
	c.Response().Header().Set("X-Chain-Verification", compliance.ChainVerificationHeader(verification))

	switch format {
	case "csv":
		c.Response().Header().Set("Content-Type", "text/csv; charset=utf-8")
		c.Response().Header().Set("Content-Disposition", `attachment; filename="events.csv"`)
		c.Response().WriteHeader(http.StatusOK)
		if err := compliance.WriteCSVEvents(c.Request().Context(), c.Response().Writer, s.store, key.TenantID, *from, *to); err != nil {
			return err
		}
		return nil
	case "json":
		events, err := s.allEventsInRangeForExport(c, key.TenantID, *from, *to)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, eventListResponse{Events: events, Total: len(events), HasMore: false})
	default:
		return writeError(c, apierrors.Validation("format must be json or csv"))
	}
}

// verifyRangeChain verifies the hash chain of every in-range session's
// full timeline, reusing the same per-session verification CSV export
// promises in its X-Chain-Verification header.
func (s *Server) verifyRangeChain(c *echo.Context, tenantID string, from, to time.Time) (bool, error) {
	scoped := store.NewScoped(s.store, tenantID)
	offset := 0
	for {
		page, err := scoped.QuerySessions(c.Request().Context(), store.SessionFilter{From: &from, To: &to, Limit: 1000, Offset: offset})
		if err != nil {
			return false, err
		}
		for _, sess := range page.Sessions {
			timeline, err := scoped.GetSessionTimeline(c.Request().Context(), sess.ID)
			if err != nil {
				return false, err
			}
			if !eventlog.VerifyChain(timeline).Valid {
				return false, nil
			}
		}
		if !page.HasMore || len(page.Sessions) == 0 {
			return true, nil
		}
		offset += len(page.Sessions)
	}
}

func (s *Server) allEventsInRangeForExport(c *echo.Context, tenantID string, from, to time.Time) ([]*eventlog.Event, error) {
	scoped := store.NewScoped(s.store, tenantID)
	var out []*eventlog.Event
	offset := 0
	for {
		page, err := scoped.QueryEvents(c.Request().Context(), store.EventFilter{From: &from, To: &to, Order: store.OrderAsc, Limit: 1000, Offset: offset})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Events...)
		if !page.HasMore || len(page.Events) == 0 {
			return out, nil
		}
		offset += len(page.Events)
	}
}

func (s *Server) resolveAuditRetentionDays(c *echo.Context, tenantID string) (int, error) {
	overrides, err := s.configStore.Get(c.Request().Context(), tenantID)
	if err != nil {
		return 0, err
	}
	_, auditDays := retention.ResolveDays(overrides.ToRetentionPolicy())
	return auditDays, nil
}
