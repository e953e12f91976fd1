package sheets

import (
	gsheets "google.golang.org/api/sheets/v4"
)

var (
	headerBackground    = &gsheets.Color{Red: 0.85, Green: 0.89, Blue: 0.95}
	titleBackground     = &gsheets.Color{Red: 0.26, Green: 0.45, Blue: 0.77}
	white               = &gsheets.Color{Red: 1, Green: 1, Blue: 1}
	okBackground        = &gsheets.Color{Red: 0.85, Green: 0.94, Blue: 0.83}
	deviationBackground = &gsheets.Color{Red: 0.96, Green: 0.8, Blue: 0.8}
)

// Layout describes how a written matrix is arranged, so formatting can target it.
type Layout struct {
	// TitleRow means row 0 holds a single title cell merged across Cols.
	TitleRow bool
	// HeaderRow is the 0-based row holding column labels.
	HeaderRow int
	// Rows and Cols are the dimensions of the written matrix.
	Rows int
	Cols int

	FreezeHeader bool
	Filter       bool

	// StatusColumn is the 0-based column holding a status value, or -1.
	StatusColumn int
	// StatusOK and StatusBad are coloured green and red when set.
	StatusOK  string
	StatusBad string
	// StatusChoices, when set, adds a dropdown of allowed values to the column.
	StatusChoices []string
}

// FormatRequests returns the batch requests that format sheetID per l. Rules
// that accumulate on repeated application (conditional colours and dropdown
// validation) are only included when fresh is true.
func FormatRequests(sheetID int64, l Layout, fresh bool) []*gsheets.Request {
	if l.Cols == 0 || l.Rows == 0 {
		return nil
	}
	cols := int64(l.Cols)
	header := int64(l.HeaderRow)
	var reqs []*gsheets.Request

	if l.TitleRow {
		title := &gsheets.GridRange{SheetId: sheetID, StartRowIndex: 0, EndRowIndex: 1, StartColumnIndex: 0, EndColumnIndex: cols}
		if cols > 1 {
			reqs = append(reqs, &gsheets.Request{
				MergeCells: &gsheets.MergeCellsRequest{Range: title, MergeType: "MERGE_ALL"},
			})
		}
		reqs = append(reqs, repeatFormat(title, &gsheets.CellFormat{
			BackgroundColor:     titleBackground,
			HorizontalAlignment: "CENTER",
			TextFormat:          &gsheets.TextFormat{Bold: true, FontSize: 14, ForegroundColor: white},
		}))
	}

	reqs = append(reqs, repeatFormat(
		&gsheets.GridRange{SheetId: sheetID, StartRowIndex: header, EndRowIndex: header + 1, StartColumnIndex: 0, EndColumnIndex: cols},
		&gsheets.CellFormat{
			BackgroundColor:     headerBackground,
			HorizontalAlignment: "CENTER",
			TextFormat:          &gsheets.TextFormat{Bold: true},
		},
	))

	if l.FreezeHeader {
		reqs = append(reqs, &gsheets.Request{
			UpdateSheetProperties: &gsheets.UpdateSheetPropertiesRequest{
				Properties: &gsheets.SheetProperties{
					SheetId:        sheetID,
					GridProperties: &gsheets.GridProperties{FrozenRowCount: header + 1},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		})
	}

	if l.Filter {
		reqs = append(reqs, &gsheets.Request{
			SetBasicFilter: &gsheets.SetBasicFilterRequest{
				Filter: &gsheets.BasicFilter{Range: &gsheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    header,
					EndRowIndex:      int64(l.Rows),
					StartColumnIndex: 0,
					EndColumnIndex:   cols,
				}},
			},
		})
	}

	if fresh && l.StatusColumn >= 0 && l.StatusColumn < l.Cols {
		// Open-ended so rows appended by later runs are covered too.
		status := &gsheets.GridRange{
			SheetId:          sheetID,
			StartRowIndex:    header + 1,
			StartColumnIndex: int64(l.StatusColumn),
			EndColumnIndex:   int64(l.StatusColumn) + 1,
		}
		if l.StatusOK != "" {
			reqs = append(reqs, textEqualRule(status, l.StatusOK, okBackground))
		}
		if l.StatusBad != "" {
			reqs = append(reqs, textEqualRule(status, l.StatusBad, deviationBackground))
		}
		if len(l.StatusChoices) > 0 {
			values := make([]*gsheets.ConditionValue, len(l.StatusChoices))
			for i, v := range l.StatusChoices {
				values[i] = &gsheets.ConditionValue{UserEnteredValue: v}
			}
			reqs = append(reqs, &gsheets.Request{
				SetDataValidation: &gsheets.SetDataValidationRequest{
					Range: status,
					Rule: &gsheets.DataValidationRule{
						Condition:    &gsheets.BooleanCondition{Type: "ONE_OF_LIST", Values: values},
						ShowCustomUi: true,
					},
				},
			})
		}
	}

	reqs = append(reqs, &gsheets.Request{
		AutoResizeDimensions: &gsheets.AutoResizeDimensionsRequest{
			Dimensions: &gsheets.DimensionRange{SheetId: sheetID, Dimension: "COLUMNS", StartIndex: 0, EndIndex: cols},
		},
	})
	return reqs
}

func repeatFormat(r *gsheets.GridRange, f *gsheets.CellFormat) *gsheets.Request {
	return &gsheets.Request{
		RepeatCell: &gsheets.RepeatCellRequest{
			Range:  r,
			Cell:   &gsheets.CellData{UserEnteredFormat: f},
			Fields: "userEnteredFormat(backgroundColor,horizontalAlignment,textFormat)",
		},
	}
}

func textEqualRule(r *gsheets.GridRange, text string, bg *gsheets.Color) *gsheets.Request {
	return &gsheets.Request{
		AddConditionalFormatRule: &gsheets.AddConditionalFormatRuleRequest{
			Rule: &gsheets.ConditionalFormatRule{
				Ranges: []*gsheets.GridRange{r},
				BooleanRule: &gsheets.BooleanRule{
					Condition: &gsheets.BooleanCondition{
						Type:   "TEXT_EQ",
						Values: []*gsheets.ConditionValue{{UserEnteredValue: text}},
					},
					Format: &gsheets.CellFormat{BackgroundColor: bg},
				},
			},
		},
	}
}
