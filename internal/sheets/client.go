// Package sheets writes value matrices and formatting into Google Sheets.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/dukerupert/haccp/internal/metrics"
	"github.com/dukerupert/haccp/internal/syncerr"
	"github.com/dukerupert/haccp/internal/token"
)

// Sheet is one tab of a spreadsheet.
type Sheet struct {
	Title   string `json:"title"`
	SheetID int64  `json:"sheetId"`
}

// Options configures a Client.
type Options struct {
	// Endpoint overrides the API base URL, e.g. for tests.
	Endpoint string
	// Timeout bounds every individual API call.
	Timeout time.Duration
	// Base is the transport under the bearer-token transport.
	Base   http.RoundTripper
	Logger *slog.Logger
}

// Client talks to a single spreadsheet. Sheet creation and id resolution are
// serialized so concurrent writers to the same spreadsheet never race.
type Client struct {
	svc           *gsheets.Service
	spreadsheetID string
	logger        *slog.Logger

	mu     sync.Mutex
	ids    map[string]int64 // keyed by sheetKey
	first  string
	loaded bool
}

// New returns a Client for spreadsheetID authenticated with tok.
func New(ctx context.Context, spreadsheetID string, tok token.AccessToken, opts Options) (*Client, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	hc := &http.Client{
		Timeout:   opts.Timeout,
		Transport: &oauth2.Transport{Source: tok.TokenSource(), Base: opts.Base},
	}
	clientOpts := []option.ClientOption{option.WithHTTPClient(hc)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	svc, err := gsheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		logger:        opts.Logger.With("spreadsheet_id", spreadsheetID),
		ids:           make(map[string]int64),
	}, nil
}

// SpreadsheetID returns the spreadsheet this client writes to.
func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

// ListSheets returns every sheet in the spreadsheet.
func (c *Client) ListSheets(ctx context.Context) ([]Sheet, error) {
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err, "list sheets")
	}

	out := make([]Sheet, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties == nil {
			continue
		}
		out = append(out, Sheet{Title: s.Properties.Title, SheetID: s.Properties.SheetId})
	}
	return out, nil
}

// sheetKey folds case the way Sheets compares sheet titles.
func sheetKey(title string) string {
	return strings.ToLower(title)
}

// EnsureSheet returns the id of the sheet named title, creating it if it does
// not exist. Titles match case insensitively. created reports whether this
// call added the sheet.
func (c *Client) EnsureSheet(ctx context.Context, title string) (id int64, created bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		existing, err := c.ListSheets(ctx)
		if err != nil {
			return 0, false, err
		}
		for _, s := range existing {
			c.ids[sheetKey(s.Title)] = s.SheetID
		}
		if len(existing) > 0 {
			c.first = existing[0].Title
		}
		c.loaded = true
	}
	if id, ok := c.ids[sheetKey(title)]; ok {
		return id, false, nil
	}

	resp, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheets.Request{{
			AddSheet: &gsheets.AddSheetRequest{
				Properties: &gsheets.SheetProperties{Title: title},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, false, classify(err, "create sheet")
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, false, syncerr.New(syncerr.KindSpreadsheetUnreachable, "create sheet: empty reply", nil)
	}

	id = resp.Replies[0].AddSheet.Properties.SheetId
	c.ids[sheetKey(title)] = id
	c.logger.Info("created sheet", "title", title, "sheet_id", id)
	return id, true, nil
}

// ClearRange clears rng ("" means the whole sheet) on the sheet named title.
// Failures are logged and otherwise ignored; a later write still overwrites
// every cell it reaches.
func (c *Client) ClearRange(ctx context.Context, title, rng string) {
	target := quote(title)
	if rng != "" {
		target += "!" + rng
	}
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, target, &gsheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		c.logger.Warn("clear range failed", "range", target, "error", err)
	}
}

// ReadValues returns the formatted values of the sheet named title.
func (c *Client) ReadValues(ctx context.Context, title string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quote(title)).Context(ctx).Do()
	if err != nil {
		return nil, classify(err, "read values")
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = fmt.Sprint(v)
		}
	}
	return out, nil
}

// ApplyFormatting sends reqs as one batch. Formatting never fails a backup:
// errors are logged and swallowed.
func (c *Client) ApplyFormatting(ctx context.Context, sheetID int64, reqs []*gsheets.Request) {
	if len(reqs) == 0 {
		return
	}
	_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheets.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	if err != nil {
		c.logger.Warn("apply formatting failed", "sheet_id", sheetID, "requests", len(reqs), "error", err)
	}
}

// classify maps a Sheets API failure to an error kind. 404 and 403 are kept
// apart because the operator fixes them differently.
func classify(err error, op string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		var e *syncerr.Error
		switch apiErr.Code {
		case http.StatusNotFound:
			e = syncerr.New(syncerr.KindSpreadsheetNotFound, op+": spreadsheet not found, check the spreadsheet ID", err)
		case http.StatusForbidden:
			e = syncerr.New(syncerr.KindSpreadsheetNotShared, op+": spreadsheet is not shared with the service account", err)
		default:
			e = syncerr.New(syncerr.KindSpreadsheetUnreachable, op+": sheets API error", err)
		}
		e.Status = apiErr.Code
		return e
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return syncerr.New(syncerr.KindTimeout, op+": deadline exceeded", err)
	}
	if errors.Is(err, context.Canceled) {
		return syncerr.New(syncerr.KindCanceled, op+": canceled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return syncerr.New(syncerr.KindTimeout, op+": request timed out", err)
	}
	return syncerr.New(syncerr.KindSpreadsheetUnreachable, op, err)
}

// quote returns title as a quoted A1 sheet reference.
func quote(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// ColumnName returns the A1 column letters for the 1-based column n.
func ColumnName(n int) string {
	if n < 1 {
		n = 1
	}
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

func typedValue(s string) *gsheets.ExtendedValue {
	switch s {
	case "TRUE", "true":
		return &gsheets.ExtendedValue{BoolValue: googleapi.Bool(true)}
	case "FALSE", "false":
		return &gsheets.ExtendedValue{BoolValue: googleapi.Bool(false)}
	}
	// Only numbers that format back to the same text, so "007" stays a string.
	if f, err := strconv.ParseFloat(s, 64); err == nil && strconv.FormatFloat(f, 'f', -1, 64) == s {
		return &gsheets.ExtendedValue{NumberValue: googleapi.Float64(f)}
	}
	return &gsheets.ExtendedValue{StringValue: googleapi.String(s)}
}

func recordRung(r Rung) {
	metrics.SheetWritesTotal.WithLabelValues(string(r)).Inc()
}
