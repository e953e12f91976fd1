package document

import (
	"fmt"
	"slices"

	"github.com/dukerupert/haccp/internal/model"
	"github.com/dukerupert/haccp/internal/sheets"
)

// SheetPlan is one sheet to write: its title, the full matrix and how the
// matrix is laid out for formatting.
type SheetPlan struct {
	Title   string
	Matrix  [][]string
	Layout  sheets.Layout
	Records int
}

// Plan computes the sheets docType writes for records. sheetName overrides
// the title of single-sheet types and is ignored when sheets are per process.
func Plan(docType, sheetName string, fields []string, records []model.Record) ([]SheetPlan, error) {
	v, err := NewView(docType, fields)
	if err != nil {
		return nil, err
	}

	title := v.Schema.Title
	if sheetName != "" {
		title = sheetName
	}

	switch v.Schema.Rule {
	case RuleByProcess:
		return processPlans(v, records), nil
	case RuleDashboard:
		return []SheetPlan{dashboardPlan(title, records)}, nil
	case RuleFixed:
		return []SheetPlan{tablePlan(v, title, "", records)}, nil
	}
	return nil, fmt.Errorf("document type %q has no sheet rule", docType)
}

func processPlans(v *View, records []model.Record) []SheetPlan {
	groups := GroupForCCP(records)
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	slices.Sort(names)

	plans := make([]SheetPlan, 0, len(names))
	for _, name := range names {
		plans = append(plans, tablePlan(v, name, fmt.Sprintf("CCP Monitoring Record: %s", name), groups[name]))
	}
	return plans
}

// tablePlan lays out an optional title row, the header and one row per record.
func tablePlan(v *View, title, banner string, records []model.Record) SheetPlan {
	header := v.Header()
	matrix := make([][]string, 0, len(records)+2)
	if banner != "" {
		matrix = append(matrix, []string{banner})
	}
	headerRow := len(matrix)
	matrix = append(matrix, header)
	for row := range v.Rows(records) {
		matrix = append(matrix, row)
	}

	layout := sheets.Layout{
		TitleRow:     banner != "",
		HeaderRow:    headerRow,
		Rows:         len(matrix),
		Cols:         len(header),
		FreezeHeader: true,
		Filter:       v.Schema.Filter,
		StatusColumn: v.StatusColumn(),
	}
	if layout.StatusColumn >= 0 {
		layout.StatusOK = StatusOK
		layout.StatusBad = StatusDeviation
		layout.StatusChoices = []string{StatusOK, StatusDeviation}
	}
	return SheetPlan{Title: title, Matrix: matrix, Layout: layout, Records: len(records)}
}

var (
	yearlyHeader  = []string{"Year", "Records", "Deviations", "Compliance %"}
	monthlyHeader = []string{"Month", "Process", "Records", "Deviations", "Compliance %"}
)

// dashboardPlan writes a yearly table, a blank row, then a monthly table by process.
func dashboardPlan(title string, records []model.Record) SheetPlan {
	matrix := [][]string{{title}, yearlyHeader}
	for _, b := range YearlyBuckets(records) {
		matrix = append(matrix, []string{
			fmt.Sprint(b.Year), fmt.Sprint(b.Records), fmt.Sprint(b.Deviations), percent(b.Compliance()),
		})
	}
	matrix = append(matrix, []string{}, monthlyHeader)
	for _, b := range MonthlyBuckets(records) {
		matrix = append(matrix, []string{
			b.Month, b.Process, fmt.Sprint(b.Records), fmt.Sprint(b.Deviations), percent(b.Compliance()),
		})
	}

	return SheetPlan{
		Title:  title,
		Matrix: matrix,
		Layout: sheets.Layout{
			TitleRow:     true,
			HeaderRow:    1,
			Rows:         len(matrix),
			Cols:         len(monthlyHeader),
			StatusColumn: -1,
		},
		Records: len(records),
	}
}

func percent(f float64) string {
	return fmt.Sprintf("%.1f", f)
}
