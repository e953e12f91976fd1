package document

import (
	"fmt"
	"iter"
	"strings"

	"github.com/dukerupert/haccp/internal/model"
)

// View is a schema narrowed to the fields a backup structure selected.
type View struct {
	Schema *Schema
	Fields []Field
}

// NewView returns the view of docType limited to fields, in the given order.
// Unknown names are ignored; no usable names means every field.
func NewView(docType string, fields []string) (*View, error) {
	s, ok := Lookup(docType)
	if !ok {
		return nil, fmt.Errorf("unknown document type %q", docType)
	}
	v := &View{Schema: s}
	seen := make(map[string]bool)
	for _, name := range fields {
		f, ok := s.Field(name)
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		v.Fields = append(v.Fields, f)
	}
	if len(v.Fields) == 0 {
		v.Fields = s.Fields
	}
	return v, nil
}

// Header returns the column labels of the view.
func (v *View) Header() []string {
	var out []string
	for _, f := range v.Fields {
		out = append(out, f.Columns()...)
	}
	return out
}

// Row renders r as one value row, len(Header()) wide.
func (v *View) Row(r model.Record) []string {
	out := make([]string, 0, len(v.Fields)+1)
	for _, f := range v.Fields {
		switch f.Kind {
		case KindDateTime:
			date, clock := SplitTimestamp(r.String(f.Name))
			out = append(out, date, clock)
		case KindStatus:
			out = append(out, CCPStatus(r))
		default:
			out = append(out, r.String(f.Name))
		}
	}
	return out
}

// Rows yields one row per record. The sequence can be ranged over again.
func (v *View) Rows(records []model.Record) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		for _, r := range records {
			if !yield(v.Row(r)) {
				return
			}
		}
	}
}

// StatusColumn returns the 0-based column of the status field, or -1.
func (v *View) StatusColumn() int {
	col := 0
	for _, f := range v.Fields {
		if f.Kind == KindStatus {
			return col
		}
		col += len(f.Columns())
	}
	return -1
}

// HeaderFor returns the full column labels of docType.
func HeaderFor(docType string) ([]string, error) {
	v, err := NewView(docType, nil)
	if err != nil {
		return nil, err
	}
	return v.Header(), nil
}

// RowsFor returns the value rows of records as docType.
func RowsFor(docType string, records []model.Record) (iter.Seq[[]string], error) {
	v, err := NewView(docType, nil)
	if err != nil {
		return nil, err
	}
	return v.Rows(records), nil
}

// SplitTimestamp splits an ISO-8601 timestamp into its date and time text.
// Fractional seconds and the zone suffix are dropped; no zone conversion is
// done. A missing timestamp yields two empty strings.
func SplitTimestamp(ts string) (date, clock string) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return "", ""
	}
	i := strings.IndexAny(ts, "T ")
	if i < 0 {
		return ts, ""
	}
	date, clock = ts[:i], ts[i+1:]
	if j := strings.IndexAny(clock, "Z+-."); j >= 0 {
		clock = clock[:j]
	}
	return date, clock
}
