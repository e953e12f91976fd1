package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gsheets "google.golang.org/api/sheets/v4"

	"github.com/dukerupert/haccp/internal/metrics"
	"github.com/dukerupert/haccp/internal/syncerr"
)

// Rung names one write strategy of the fallback ladder.
type Rung string

const (
	RungPrimary     Rung = "primary"
	RungQuoted      Rung = "quoted"
	RungFullColumn  Rung = "full_column"
	RungBare        Rung = "bare"
	RungUpdateCells Rung = "update_cells"
)

// Attempt is one rejected write.
type Attempt struct {
	Rung  Rung   `json:"rung"`
	Range string `json:"range"`
	Error string `json:"error"`
}

// WriteResult describes a finished WriteValues call. Attempts holds every
// rung that was rejected before Rung succeeded, or all of them on failure.
type WriteResult struct {
	UpdatedRows  int64     `json:"updatedRows"`
	UpdatedCells int64     `json:"updatedCells"`
	Rung         Rung      `json:"rung,omitempty"`
	Attempts     []Attempt `json:"attempts,omitempty"`
}

type strategy struct {
	rung  Rung
	rng   func(title string, width int) string
	write func(c *Client, ctx context.Context, title, rng string, matrix [][]string) (rows, cells int64, err error)
}

var errNotFirstSheet = errors.New("skipped: an unqualified range would target a different sheet")

// ladder is tried in order until one strategy is accepted.
var ladder = []strategy{
	{RungPrimary, func(t string, _ int) string { return t + "!A1" }, (*Client).updateValues},
	{RungQuoted, func(t string, _ int) string { return quote(t) + "!A1" }, (*Client).updateValues},
	{RungFullColumn, func(t string, w int) string { return quote(t) + "!A:" + ColumnName(w) }, (*Client).updateValues},
	{RungBare, func(string, int) string { return "A1" }, (*Client).updateBare},
	{RungUpdateCells, func(t string, _ int) string { return quote(t) + "!R1C1" }, (*Client).updateCells},
}

// WriteValues writes matrix starting at A1 of the sheet named title. Values
// are user-entered so the sheet interprets dates and numbers. Rejected writes
// fall through the ladder; only when every rung fails is a write_exhausted
// error returned, with the history in the result.
func (c *Client) WriteValues(ctx context.Context, title string, matrix [][]string) (WriteResult, error) {
	var res WriteResult
	if len(matrix) == 0 {
		return res, nil
	}
	width := 0
	for _, row := range matrix {
		width = max(width, len(row))
	}

	for _, s := range ladder {
		if err := ctx.Err(); err != nil {
			return res, classify(err, "write values")
		}

		rng := s.rng(title, width)
		rows, cells, err := s.write(c, ctx, title, rng, matrix)
		if err == nil {
			res.UpdatedRows, res.UpdatedCells, res.Rung = rows, cells, s.rung
			if len(res.Attempts) > 0 {
				c.logger.Info("write succeeded on fallback", "title", title, "rung", s.rung, "rejected", len(res.Attempts))
			}
			recordRung(s.rung)
			return res, nil
		}

		classified := classify(err, "write values")
		res.Attempts = append(res.Attempts, Attempt{Rung: s.rung, Range: rng, Error: err.Error()})
		c.logger.Debug("write rejected", "title", title, "rung", s.rung, "range", rng, "error", err)

		// The spreadsheet itself is gone or forbidden; no range format will help.
		switch syncerr.KindOf(classified) {
		case syncerr.KindSpreadsheetNotFound, syncerr.KindSpreadsheetNotShared, syncerr.KindTimeout, syncerr.KindCanceled:
			return res, classified
		}
	}

	metrics.SheetWriteFailuresTotal.Inc()
	e := syncerr.New(syncerr.KindWriteExhausted, fmt.Sprintf("write to sheet %q rejected by every range format", title), nil)
	e.Detail = summarize(res.Attempts)
	return res, e
}

func (c *Client) updateValues(ctx context.Context, _ string, rng string, matrix [][]string) (int64, int64, error) {
	values := make([][]interface{}, len(matrix))
	for i, row := range matrix {
		values[i] = make([]interface{}, len(row))
		for j, v := range row {
			values[i][j] = v
		}
	}

	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return 0, 0, err
	}
	return resp.UpdatedRows, resp.UpdatedCells, nil
}

// updateBare writes without a sheet qualifier, which the API resolves to the
// first sheet, so it is only attempted when title is that sheet.
func (c *Client) updateBare(ctx context.Context, title, rng string, matrix [][]string) (int64, int64, error) {
	c.mu.Lock()
	first := c.first
	c.mu.Unlock()
	if !strings.EqualFold(first, title) {
		return 0, 0, errNotFirstSheet
	}
	return c.updateValues(ctx, title, rng, matrix)
}

// updateCells is structurally different from the values API: each cell is
// sent as an explicit typed value against the numeric sheet id.
func (c *Client) updateCells(ctx context.Context, title, _ string, matrix [][]string) (int64, int64, error) {
	c.mu.Lock()
	id, ok := c.ids[sheetKey(title)]
	c.mu.Unlock()
	if !ok {
		var err error
		if id, _, err = c.EnsureSheet(ctx, title); err != nil {
			return 0, 0, err
		}
	}

	rows := make([]*gsheets.RowData, len(matrix))
	var cells int64
	for i, row := range matrix {
		data := make([]*gsheets.CellData, len(row))
		for j, v := range row {
			data[j] = &gsheets.CellData{UserEnteredValue: typedValue(v)}
		}
		rows[i] = &gsheets.RowData{Values: data}
		cells += int64(len(row))
	}

	_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			UpdateCells: &gsheets.UpdateCellsRequest{
				Start:  &gsheets.GridCoordinate{SheetId: id},
				Rows:   rows,
				Fields: "userEnteredValue",
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, 0, err
	}
	return int64(len(matrix)), cells, nil
}

func summarize(attempts []Attempt) string {
	parts := make([]string, len(attempts))
	for i, a := range attempts {
		parts[i] = fmt.Sprintf("%s (%s): %s", a.Rung, a.Range, a.Error)
	}
	return strings.Join(parts, "; ")
}
