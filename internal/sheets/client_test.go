package sheets

import (
	"net/http"
	"strings"
	"testing"

	"github.com/dukerupert/haccp/internal/syncerr"
)

func TestEnsureSheetIdempotent(t *testing.T) {
	f, server := newFake(t)
	f.addSheet("Sheet1")
	c := f.client(t, server)

	id1, created, err := c.EnsureSheet(t.Context(), "OvenA")
	if err != nil {
		t.Fatalf("ensure sheet: %v", err)
	}
	if !created {
		t.Error("first EnsureSheet should create the sheet")
	}
	id2, created, err := c.EnsureSheet(t.Context(), "OvenA")
	if err != nil {
		t.Fatalf("ensure sheet again: %v", err)
	}
	if created {
		t.Error("second EnsureSheet created a sheet")
	}
	if id1 != id2 {
		t.Errorf("ids = %d, %d, want equal", id1, id2)
	}

	// A fresh client sees the existing sheet instead of adding another.
	other := f.client(t, server)
	id3, created, err := other.EnsureSheet(t.Context(), "OvenA")
	if err != nil {
		t.Fatalf("ensure sheet from new client: %v", err)
	}
	if created || id3 != id1 {
		t.Errorf("new client: id = %d created = %v, want %d false", id3, created, id1)
	}

	if f.addCalls != 1 {
		t.Errorf("addSheet calls = %d, want 1", f.addCalls)
	}
	count := 0
	for _, s := range f.sheets {
		if s.Title == "OvenA" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("sheets titled OvenA = %d, want 1", count)
	}
	if f.authorization != "Bearer test-token" {
		t.Errorf("authorization = %q, want bearer token", f.authorization)
	}
}

func TestEnsureSheetMatchesTitleCaseInsensitively(t *testing.T) {
	f, server := newFake(t)
	existing := f.addSheet("Suppliers")
	c := f.client(t, server)

	id, created, err := c.EnsureSheet(t.Context(), "suppliers")
	if err != nil {
		t.Fatalf("ensure sheet: %v", err)
	}
	if created || id != existing {
		t.Errorf("id = %d created = %v, want %d false", id, created, existing)
	}

	// A title created through this client is found under another case too.
	if _, _, err := c.EnsureSheet(t.Context(), "OvenA"); err != nil {
		t.Fatalf("ensure OvenA: %v", err)
	}
	if _, created, err := c.EnsureSheet(t.Context(), "ovena"); err != nil || created {
		t.Errorf("ensure ovena: created = %v err = %v, want existing sheet", created, err)
	}
	if f.addCalls != 1 {
		t.Errorf("addSheet calls = %d, want 1", f.addCalls)
	}
}

func TestListSheets(t *testing.T) {
	f, server := newFake(t)
	id := f.addSheet("Sheet1")
	f.addSheet("Production Log")
	c := f.client(t, server)

	got, err := c.ListSheets(t.Context())
	if err != nil {
		t.Fatalf("list sheets: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Title != "Sheet1" || got[0].SheetID != id {
		t.Errorf("sheet 0 = %+v, want Sheet1/%d", got[0], id)
	}
}

func TestListSheetsClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   syncerr.Kind
	}{
		{http.StatusNotFound, syncerr.KindSpreadsheetNotFound},
		{http.StatusForbidden, syncerr.KindSpreadsheetNotShared},
		{http.StatusInternalServerError, syncerr.KindSpreadsheetUnreachable},
		{http.StatusTooManyRequests, syncerr.KindSpreadsheetUnreachable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			f, server := newFake(t)
			f.status = tt.status
			c := f.client(t, server)

			_, err := c.ListSheets(t.Context())
			if got := syncerr.KindOf(err); got != tt.want {
				t.Errorf("kind = %q, want %q (err %v)", got, tt.want, err)
			}
			if !syncerr.IsUnreachable(err) {
				t.Errorf("IsUnreachable(%v) = false", err)
			}
		})
	}
}

func TestWriteValuesRoundTrip(t *testing.T) {
	f, server := newFake(t)
	f.addSheet("Sheet1")
	c := f.client(t, server)

	if _, _, err := c.EnsureSheet(t.Context(), "Suppliers"); err != nil {
		t.Fatalf("ensure sheet: %v", err)
	}
	matrix := [][]string{
		{"Name", "Phone", "Certified"},
		{"Green Farm", "010-1234-5678", "TRUE"},
		{"Blue Sea", "", "FALSE"},
	}

	res, err := c.WriteValues(t.Context(), "Suppliers", matrix)
	if err != nil {
		t.Fatalf("write values: %v", err)
	}
	if res.Rung != RungPrimary {
		t.Errorf("rung = %q, want %q", res.Rung, RungPrimary)
	}
	if res.UpdatedRows != 3 || res.UpdatedCells != 9 {
		t.Errorf("updated = %d rows %d cells, want 3 and 9", res.UpdatedRows, res.UpdatedCells)
	}
	if len(res.Attempts) != 0 {
		t.Errorf("attempts = %v, want none", res.Attempts)
	}

	got, err := c.ReadValues(t.Context(), "Suppliers")
	if err != nil {
		t.Fatalf("read values: %v", err)
	}
	for i := range matrix {
		for j := range matrix[i] {
			if got[i][j] != matrix[i][j] {
				t.Errorf("cell %d,%d = %q, want %q", i, j, got[i][j], matrix[i][j])
			}
		}
	}
}

func TestWriteValuesFallsBackToQuotedName(t *testing.T) {
	f, server := newFake(t)
	f.addSheet("Sheet1")
	f.rejectRange = func(rng string) bool { return !strings.HasPrefix(rng, "'") }
	c := f.client(t, server)
	c.EnsureSheet(t.Context(), "Oven A")

	res, err := c.WriteValues(t.Context(), "Oven A", [][]string{{"Time", "Temp"}, {"09:00", "75"}})
	if err != nil {
		t.Fatalf("write values: %v", err)
	}
	if res.Rung != RungQuoted {
		t.Errorf("rung = %q, want %q", res.Rung, RungQuoted)
	}
	if len(res.Attempts) != 1 || res.Attempts[0].Rung != RungPrimary {
		t.Fatalf("attempts = %+v, want one primary rejection", res.Attempts)
	}
	if !strings.Contains(res.Attempts[0].Error, "Unable to parse range") {
		t.Errorf("attempt error = %q, want upstream reason", res.Attempts[0].Error)
	}
	if f.values["Oven A"][1][1] != "75" {
		t.Errorf("stored values = %v", f.values["Oven A"])
	}
}

func TestWriteValuesFallsBackToTypedCells(t *testing.T) {
	f, server := newFake(t)
	f.addSheet("Sheet1")
	f.rejectRange = func(string) bool { return true }
	c := f.client(t, server)
	c.EnsureSheet(t.Context(), "CCP")

	res, err := c.WriteValues(t.Context(), "CCP", [][]string{
		{"Process", "Value", "Passed", "Lot"},
		{"OvenA", "75.5", "TRUE", "007"},
	})
	if err != nil {
		t.Fatalf("write values: %v", err)
	}
	if res.Rung != RungUpdateCells {
		t.Errorf("rung = %q, want %q", res.Rung, RungUpdateCells)
	}
	wantRungs := []Rung{RungPrimary, RungQuoted, RungFullColumn, RungBare}
	if len(res.Attempts) != len(wantRungs) {
		t.Fatalf("attempts = %d, want %d", len(res.Attempts), len(wantRungs))
	}
	for i, r := range wantRungs {
		if res.Attempts[i].Rung != r {
			t.Errorf("attempt %d rung = %q, want %q", i, res.Attempts[i].Rung, r)
		}
	}
	if res.Attempts[2].Range != "'CCP'!A:D" {
		t.Errorf("full column range = %q, want 'CCP'!A:D", res.Attempts[2].Range)
	}
	if res.UpdatedCells != 8 {
		t.Errorf("updated cells = %d, want 8", res.UpdatedCells)
	}

	row := f.values["CCP"][1]
	want := []string{"OvenA", "75.5", "TRUE", "007"}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("cell %d = %q, want %q", i, row[i], want[i])
		}
	}
}

func TestWriteValuesBareRangeOnFirstSheet(t *testing.T) {
	f, server := newFake(t)
	f.addSheet("Backup")
	f.rejectRange = func(rng string) bool { return strings.Contains(rng, "!") }
	c := f.client(t, server)
	c.EnsureSheet(t.Context(), "Backup")

	res, err := c.WriteValues(t.Context(), "Backup", [][]string{{"a"}})
	if err != nil {
		t.Fatalf("write values: %v", err)
	}
	if res.Rung != RungBare {
		t.Errorf("rung = %q, want %q", res.Rung, RungBare)
	}
}

func TestWriteValuesExhausted(t *testing.T) {
	f, server := newFake(t)
	f.addSheet("Sheet1")
	f.rejectRange = func(string) bool { return true }
	f.rejectCells = true
	c := f.client(t, server)
	c.EnsureSheet(t.Context(), "Cleaning")

	res, err := c.WriteValues(t.Context(), "Cleaning", [][]string{{"Area"}, {"Kitchen"}})
	if !syncerr.Is(err, syncerr.KindWriteExhausted) {
		t.Fatalf("err = %v, want write_exhausted", err)
	}
	if len(res.Attempts) != len(ladder) {
		t.Errorf("attempts = %d, want %d", len(res.Attempts), len(ladder))
	}
	if res.Rung != "" {
		t.Errorf("rung = %q, want empty", res.Rung)
	}
	if !strings.Contains(err.Error(), string(RungUpdateCells)) {
		t.Errorf("error %q lacks attempt history", err)
	}
}

func TestWriteValuesStopsOnSpreadsheetError(t *testing.T) {
	f, server := newFake(t)
	f.addSheet("Sheet1")
	c := f.client(t, server)
	c.EnsureSheet(t.Context(), "Sheet1")
	f.status = http.StatusForbidden

	res, err := c.WriteValues(t.Context(), "Sheet1", [][]string{{"x"}})
	if !syncerr.Is(err, syncerr.KindSpreadsheetNotShared) {
		t.Fatalf("err = %v, want spreadsheet_not_shared", err)
	}
	if len(res.Attempts) != 1 {
		t.Errorf("attempts = %d, want 1", len(res.Attempts))
	}
}

func TestApplyFormattingSwallowsErrors(t *testing.T) {
	f, server := newFake(t)
	id := f.addSheet("Sheet1")
	f.rejectFormat = true
	c := f.client(t, server)

	reqs := FormatRequests(id, Layout{Rows: 3, Cols: 2, FreezeHeader: true, StatusColumn: -1}, true)
	c.ApplyFormatting(t.Context(), id, reqs)

	if len(f.formatReqs) != 0 {
		t.Errorf("format requests accepted = %d, want 0", len(f.formatReqs))
	}
}

func TestClearRangeIgnoresFailure(t *testing.T) {
	f, server := newFake(t)
	f.addSheet("Sheet1")
	c := f.client(t, server)
	f.status = http.StatusInternalServerError

	c.ClearRange(t.Context(), "Sheet1", "")
}

func TestColumnName(t *testing.T) {
	tests := map[int]string{1: "A", 4: "D", 26: "Z", 27: "AA", 52: "AZ", 703: "AAA"}
	for n, want := range tests {
		if got := ColumnName(n); got != want {
			t.Errorf("ColumnName(%d) = %q, want %q", n, got, want)
		}
	}
}
