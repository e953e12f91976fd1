package sheets

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	gsheets "google.golang.org/api/sheets/v4"

	"github.com/dukerupert/haccp/internal/token"
)

const testSpreadsheet = "sheet-123"

// fakeSheets is an in-memory Sheets API serving one spreadsheet.
type fakeSheets struct {
	t *testing.T

	mu         sync.Mutex
	nextID     int64
	sheets     []Sheet
	values     map[string][][]string
	addCalls   int
	formatReqs []*gsheets.Request
	cellWrites int
	ranges     []string

	rejectRange   func(rng string) bool
	rejectCells   bool
	rejectFormat  bool
	status        int
	authorization string
}

func newFake(t *testing.T) (*fakeSheets, *httptest.Server) {
	f := &fakeSheets{t: t, nextID: 100, values: make(map[string][][]string)}
	server := httptest.NewServer(f)
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeSheets) client(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := New(t.Context(), testSpreadsheet, token.AccessToken{Value: "test-token"}, Options{
		Endpoint: server.URL + "/",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func (f *fakeSheets) addSheet(title string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sheets = append(f.sheets, Sheet{Title: title, SheetID: f.nextID})
	return f.nextID
}

func apiError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, code, msg)
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorization = r.Header.Get("Authorization")

	if f.status != 0 {
		apiError(w, f.status, http.StatusText(f.status))
		return
	}

	prefix := "/v4/spreadsheets/" + testSpreadsheet
	if !strings.HasPrefix(r.URL.Path, prefix) {
		apiError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)

	switch {
	case rest == "" && r.Method == http.MethodGet:
		var resp gsheets.Spreadsheet
		for _, s := range f.sheets {
			resp.Sheets = append(resp.Sheets, &gsheets.Sheet{
				Properties: &gsheets.SheetProperties{Title: s.Title, SheetId: s.SheetID},
			})
		}
		json.NewEncoder(w).Encode(resp)

	case rest == ":batchUpdate":
		f.batchUpdate(w, r)

	case strings.HasPrefix(rest, "/values/"):
		rng := strings.TrimPrefix(rest, "/values/")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(rng, ":clear"):
			delete(f.values, sheetTitle(strings.TrimSuffix(rng, ":clear"), f.sheets))
			w.Write([]byte(`{}`))
		case r.Method == http.MethodPut:
			f.ranges = append(f.ranges, rng)
			if r.URL.Query().Get("valueInputOption") != "USER_ENTERED" {
				f.t.Errorf("valueInputOption = %q, want USER_ENTERED", r.URL.Query().Get("valueInputOption"))
			}
			if f.rejectRange != nil && f.rejectRange(rng) {
				apiError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
				return
			}
			var vr gsheets.ValueRange
			json.NewDecoder(r.Body).Decode(&vr)
			matrix := make([][]string, len(vr.Values))
			cells := 0
			for i, row := range vr.Values {
				for _, v := range row {
					matrix[i] = append(matrix[i], fmt.Sprint(v))
					cells++
				}
			}
			f.values[sheetTitle(rng, f.sheets)] = matrix
			json.NewEncoder(w).Encode(gsheets.UpdateValuesResponse{
				UpdatedRange: rng, UpdatedRows: int64(len(matrix)), UpdatedCells: int64(cells),
			})
		case r.Method == http.MethodGet:
			raw := make([][]interface{}, 0)
			for _, row := range f.values[sheetTitle(rng, f.sheets)] {
				out := make([]interface{}, len(row))
				for i, v := range row {
					out[i] = v
				}
				raw = append(raw, out)
			}
			json.NewEncoder(w).Encode(gsheets.ValueRange{Range: rng, Values: raw})
		}

	default:
		apiError(w, http.StatusNotFound, "unknown path "+r.URL.Path)
	}
}

func (f *fakeSheets) batchUpdate(w http.ResponseWriter, r *http.Request) {
	var req gsheets.BatchUpdateSpreadsheetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, err.Error())
		return
	}

	var resp gsheets.BatchUpdateSpreadsheetResponse
	for _, rq := range req.Requests {
		switch {
		case rq.AddSheet != nil:
			f.addCalls++
			f.nextID++
			title := rq.AddSheet.Properties.Title
			for _, s := range f.sheets {
				if strings.EqualFold(s.Title, title) {
					apiError(w, http.StatusBadRequest, "A sheet with the name already exists")
					return
				}
			}
			f.sheets = append(f.sheets, Sheet{Title: title, SheetID: f.nextID})
			resp.Replies = append(resp.Replies, &gsheets.Response{
				AddSheet: &gsheets.AddSheetResponse{
					Properties: &gsheets.SheetProperties{Title: title, SheetId: f.nextID},
				},
			})
		case rq.UpdateCells != nil:
			f.cellWrites++
			if f.rejectCells {
				apiError(w, http.StatusBadRequest, "invalid updateCells")
				return
			}
			title := ""
			for _, s := range f.sheets {
				if s.SheetID == rq.UpdateCells.Start.SheetId {
					title = s.Title
				}
			}
			var matrix [][]string
			for _, row := range rq.UpdateCells.Rows {
				var out []string
				for _, c := range row.Values {
					out = append(out, cellText(c.UserEnteredValue))
				}
				matrix = append(matrix, out)
			}
			f.values[title] = matrix
			resp.Replies = append(resp.Replies, &gsheets.Response{})
		default:
			if f.rejectFormat {
				apiError(w, http.StatusBadRequest, "invalid formatting request")
				return
			}
			f.formatReqs = append(f.formatReqs, rq)
			resp.Replies = append(resp.Replies, &gsheets.Response{})
		}
	}
	json.NewEncoder(w).Encode(resp)
}

func cellText(v *gsheets.ExtendedValue) string {
	switch {
	case v == nil:
		return ""
	case v.StringValue != nil:
		return *v.StringValue
	case v.NumberValue != nil:
		return strconv.FormatFloat(*v.NumberValue, 'f', -1, 64)
	case v.BoolValue != nil:
		return strings.ToUpper(strconv.FormatBool(*v.BoolValue))
	}
	return ""
}

// sheetTitle extracts the sheet name from an A1 range. A bare cell range
// targets the first sheet.
func sheetTitle(rng string, sheets []Sheet) string {
	title := rng
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		title = rng[:i]
	} else if !strings.HasPrefix(rng, "'") {
		if len(sheets) == 0 {
			return ""
		}
		return sheets[0].Title
	}
	if strings.HasPrefix(title, "'") && strings.HasSuffix(title, "'") {
		title = strings.ReplaceAll(title[1:len(title)-1], "''", "'")
	}
	return title
}
