package document

import (
	"slices"
	"testing"

	"github.com/dukerupert/haccp/internal/model"
)

func ccpRecord(process string, value float64, createdAt string) model.Record {
	r := model.Record{
		"id":            process + createdAt,
		"ccpType":       "Heating",
		"measuredValue": value,
		"criticalMin":   float64(75),
		"criticalMax":   float64(90),
		"unit":          "°C",
	}
	if process != "" {
		r["process"] = process
	}
	if createdAt != "" {
		r["createdAt"] = createdAt
	}
	return r
}

func TestRowsForWidth(t *testing.T) {
	records := []model.Record{
		{"id": "1", "product": "Kimchi", "batchNo": "B-1", "quantity": float64(40), "createdAt": "2024-03-05T09:30:00.000Z"},
		{"id": "2", "product": "Tofu"},
		{"id": "3"},
	}

	header, err := HeaderFor(TypeProductionLog)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	rows, err := RowsFor(TypeProductionLog, records)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}

	n := 0
	for row := range rows {
		if len(row) != len(header) {
			t.Errorf("row %d has %d columns, want %d", n, len(row), len(header))
		}
		n++
	}
	if n != len(records) {
		t.Errorf("rows = %d, want %d", n, len(records))
	}

	// The sequence restarts when ranged over again.
	again := slices.Collect(rows)
	if len(again) != len(records) {
		t.Errorf("second pass rows = %d, want %d", len(again), len(records))
	}
	first := again[0]
	want := []string{"Kimchi", "B-1", "40", "", "", "2024-03-05", "09:30:00"}
	if !slices.Equal(first, want) {
		t.Errorf("row = %q, want %q", first, want)
	}
	for i, v := range again[2] {
		if v != "" {
			t.Errorf("empty record column %d = %q, want empty", i, v)
		}
	}
}

func TestHeaderForUnknownType(t *testing.T) {
	if _, err := HeaderFor("haccp-plan"); err == nil {
		t.Error("expected error for unknown document type")
	}
}

func TestDateTimeColumns(t *testing.T) {
	header, _ := HeaderFor(TypeCleaningLog)
	n := len(header)
	if header[n-2] != "Recorded Date" || header[n-1] != "Recorded Time" {
		t.Errorf("last columns = %q, %q", header[n-2], header[n-1])
	}
}

func TestSplitTimestamp(t *testing.T) {
	tests := []struct {
		in, date, clock string
	}{
		{"2024-03-05T09:30:00Z", "2024-03-05", "09:30:00"},
		{"2024-03-05T23:59:59.123+09:00", "2024-03-05", "23:59:59"},
		{"2024-03-05 08:00:00", "2024-03-05", "08:00:00"},
		{"2024-03-05", "2024-03-05", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		date, clock := SplitTimestamp(tt.in)
		if date != tt.date || clock != tt.clock {
			t.Errorf("SplitTimestamp(%q) = %q, %q, want %q, %q", tt.in, date, clock, tt.date, tt.clock)
		}
	}
}

func TestCCPStatus(t *testing.T) {
	tests := []struct {
		name string
		r    model.Record
		want string
	}{
		{"within", ccpRecord("OvenA", 80, ""), StatusOK},
		{"at limit", ccpRecord("OvenA", 75, ""), StatusOK},
		{"below", ccpRecord("OvenA", 60, ""), StatusDeviation},
		{"above", ccpRecord("OvenA", 95, ""), StatusDeviation},
		{"string value", model.Record{"measuredValue": "100", "criticalMax": "90"}, StatusDeviation},
		{"no limits", model.Record{"measuredValue": float64(3)}, StatusOK},
		{"no measurement", model.Record{"criticalMin": float64(1)}, ""},
	}
	for _, tt := range tests {
		if got := CCPStatus(tt.r); got != tt.want {
			t.Errorf("%s: status = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestProcessNamePriority(t *testing.T) {
	tests := []struct {
		r    model.Record
		want string
	}{
		{model.Record{"process": "OvenA", "name": "x", "ccpType": "y"}, "OvenA"},
		{model.Record{"process": " ", "name": "Fryer", "ccpType": "y"}, "Fryer"},
		{model.Record{"ccpType": "Metal Detection"}, "Metal Detection"},
		{model.Record{}, OtherProcess},
	}
	for _, tt := range tests {
		if got := ProcessName(tt.r); got != tt.want {
			t.Errorf("ProcessName(%v) = %q, want %q", tt.r, got, tt.want)
		}
	}
}

func TestPlanGroupsByProcess(t *testing.T) {
	var records []model.Record
	for i := 0; i < 3; i++ {
		records = append(records, ccpRecord("OvenA", 80, "2024-01-0"+string(rune('1'+i))+"T10:00:00Z"))
	}
	for i := 0; i < 2; i++ {
		records = append(records, ccpRecord("OvenB", 70, "2024-02-0"+string(rune('1'+i))+"T10:00:00Z"))
	}

	plans, err := Plan(TypeCCP, "", nil, records)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("sheets = %d, want 2", len(plans))
	}

	want := map[string]int{"OvenA": 3, "OvenB": 2}
	header, _ := HeaderFor(TypeCCP)
	for _, p := range plans {
		n, ok := want[p.Title]
		if !ok {
			t.Errorf("unexpected sheet %q", p.Title)
			continue
		}
		// title row + header row + data rows
		if len(p.Matrix) != n+2 {
			t.Errorf("%s: matrix rows = %d, want %d", p.Title, len(p.Matrix), n+2)
		}
		if p.Records != n {
			t.Errorf("%s: records = %d, want %d", p.Title, p.Records, n)
		}
		if !slices.Equal(p.Matrix[1], header) {
			t.Errorf("%s: header = %q", p.Title, p.Matrix[1])
		}
		if !p.Layout.TitleRow || p.Layout.HeaderRow != 1 {
			t.Errorf("%s: layout = %+v, want title row and header at 1", p.Title, p.Layout)
		}
		if p.Layout.StatusColumn != 6 {
			t.Errorf("%s: status column = %d, want 6", p.Title, p.Layout.StatusColumn)
		}
	}

	for _, row := range plans[1].Matrix[2:] {
		if row[6] != StatusDeviation {
			t.Errorf("OvenB status = %q, want %q", row[6], StatusDeviation)
		}
	}
}

func TestGroupForCCPFoldsCase(t *testing.T) {
	records := []model.Record{
		ccpRecord("OvenA", 80, "2024-01-01T10:00:00Z"),
		ccpRecord("ovena", 82, "2024-01-02T10:00:00Z"),
		ccpRecord("OVENA ", 84, "2024-01-03T10:00:00Z"),
		ccpRecord("OvenB", 80, "2024-01-04T10:00:00Z"),
	}

	groups := GroupForCCP(records)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if n := len(groups["OvenA"]); n != 3 {
		t.Errorf("OvenA records = %d, want 3", n)
	}

	plans, err := Plan(TypeCCP, "", nil, records)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plans) != 2 || plans[0].Title != "OvenA" || plans[0].Records != 3 {
		t.Errorf("plans = %d, first %q with %d records, want OvenA with 3", len(plans), plans[0].Title, plans[0].Records)
	}
}

func TestPlanFieldSelection(t *testing.T) {
	records := []model.Record{{"name": "Green Farm", "phone": "010", "certified": true}}

	plans, err := Plan(TypeSupplier, "Vendors", []string{"phone", "name", "bogus", "name"}, records)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	p := plans[0]
	if p.Title != "Vendors" {
		t.Errorf("title = %q, want Vendors", p.Title)
	}
	if !slices.Equal(p.Matrix[0], []string{"Phone", "Name"}) {
		t.Errorf("header = %q, want [Phone Name]", p.Matrix[0])
	}
	if !slices.Equal(p.Matrix[1], []string{"010", "Green Farm"}) {
		t.Errorf("row = %q", p.Matrix[1])
	}
	if p.Layout.StatusColumn != -1 {
		t.Errorf("status column = %d, want -1", p.Layout.StatusColumn)
	}
}

func TestBucketsExcludeMissingCreatedAt(t *testing.T) {
	records := []model.Record{
		ccpRecord("OvenA", 80, "2023-12-31T23:00:00Z"),
		ccpRecord("OvenA", 60, "2024-01-15T08:00:00+09:00"),
		ccpRecord("OvenB", 80, "2024-01-20T08:00:00Z"),
		ccpRecord("OvenB", 80, ""),
		ccpRecord("OvenB", 80, "yesterday"),
	}

	years := YearlyBuckets(records)
	if len(years) != 2 {
		t.Fatalf("years = %+v, want 2 buckets", years)
	}
	total := 0
	for _, y := range years {
		total += y.Records
	}
	if total != 3 {
		t.Errorf("bucketed records = %d, want 3", total)
	}
	if years[1].Year != 2024 || years[1].Records != 2 || years[1].Deviations != 1 {
		t.Errorf("2024 = %+v, want 2 records 1 deviation", years[1])
	}
	if got := years[1].Compliance(); got != 50 {
		t.Errorf("compliance = %v, want 50", got)
	}

	months := MonthlyBuckets(records)
	want := []struct{ month, process string }{
		{"2023-12", "OvenA"}, {"2024-01", "OvenA"}, {"2024-01", "OvenB"},
	}
	if len(months) != len(want) {
		t.Fatalf("months = %+v", months)
	}
	for i, w := range want {
		if months[i].Month != w.month || months[i].Process != w.process {
			t.Errorf("month %d = %s/%s, want %s/%s", i, months[i].Month, months[i].Process, w.month, w.process)
		}
	}
}

func TestDashboardPlan(t *testing.T) {
	records := []model.Record{
		ccpRecord("OvenA", 80, "2024-01-15T08:00:00Z"),
		ccpRecord("OvenA", 95, "2024-01-16T08:00:00Z"),
	}

	plans, err := Plan(TypeCCPDashboard, "", nil, records)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plans) != 1 || plans[0].Title != "CCP Dashboard" {
		t.Fatalf("plans = %+v, want one CCP Dashboard sheet", plans)
	}
	m := plans[0].Matrix
	if !slices.Equal(m[2], []string{"2024", "2", "1", "50.0"}) {
		t.Errorf("yearly row = %q", m[2])
	}
	if !slices.Equal(m[5], []string{"2024-01", "OvenA", "2", "1", "50.0"}) {
		t.Errorf("monthly row = %q", m[5])
	}
}

func TestMissingRequired(t *testing.T) {
	s := MustLookup(TypeTemperatureLog)
	got := s.Missing(model.Record{"location": "Walk-in"})
	if !slices.Equal(got, []string{"temperature"}) {
		t.Errorf("missing = %v, want [temperature]", got)
	}
	if got := s.Missing(model.Record{"location": "Walk-in", "temperature": float64(0)}); len(got) != 0 {
		t.Errorf("missing = %v, want none", got)
	}
}
