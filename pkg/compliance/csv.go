package compliance

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/agentlensio/agentlens/pkg/eventlog"
	"github.com/agentlensio/agentlens/pkg/store"
)

// utf8BOM is written before the CSV header so spreadsheet tools that
// sniff encoding (notably Excel) open the file as UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var csvHeader = []string{"id", "timestamp", "sessionId", "agentId", "eventType", "severity", "hash", "prevHash"}

// WriteCSVEvents streams tenantID's in-range events through a CSV
// transform: UTF-8 BOM, header row, RFC-4180 escaping via the standard
// library's encoding/csv (which already quotes fields containing `,`,
// `"`, or a newline and doubles internal quotes — §4.7 asks for
// exactly that, not a bespoke escaper). Returns the same date-range
// gate Build enforces.
func WriteCSVEvents(ctx context.Context, w io.Writer, s store.Store, tenantID string, from, to time.Time) error {
	if days := int(to.Sub(from).Hours() / 24); days > MaxRangeDays {
		return &ErrRangeTooLarge{Days: days}
	}

	if _, err := w.Write(utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	offset := 0
	for {
		page, err := s.QueryEvents(ctx, tenantID, store.EventFilter{
			From:   &from,
			To:     &to,
			Order:  store.OrderAsc,
			Limit:  1000,
			Offset: offset,
		})
		if err != nil {
			return fmt.Errorf("compliance: query events for csv export: %w", err)
		}
		for _, e := range page.Events {
			if err := cw.Write(csvRow(e)); err != nil {
				return err
			}
		}
		if !page.HasMore || len(page.Events) == 0 {
			break
		}
		offset += len(page.Events)
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(e *eventlog.Event) []string {
	prevHash := ""
	if e.PrevHash != nil {
		prevHash = *e.PrevHash
	}
	return []string{
		e.ID,
		e.Timestamp.Format(time.RFC3339Nano),
		e.SessionID,
		e.AgentID,
		string(e.EventType),
		string(e.Severity),
		e.Hash,
		prevHash,
	}
}

// ChainVerificationHeader is the HTTP layer's X-Chain-Verification
// response header value for a CSV export covering the same range as
// chainVerification.
func ChainVerificationHeader(verified bool) string {
	if verified {
		return "verified"
	}
	return "failed"
}
