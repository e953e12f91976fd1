package document

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dukerupert/haccp/internal/model"
)

const (
	StatusOK        = "OK"
	StatusDeviation = "Deviation"

	// OtherProcess names the sheet for CCP records without any process key.
	OtherProcess = "기타공정"
)

// ProcessName returns the sheet a CCP record belongs to, by priority
// process, name, ccpType.
func ProcessName(r model.Record) string {
	for _, key := range []string{"process", "name", "ccpType"} {
		if v := strings.TrimSpace(r.String(key)); v != "" {
			return v
		}
	}
	return OtherProcess
}

// GroupForCCP partitions records by ProcessName. Sheet titles are case
// insensitive, so names that differ only in case share a group keyed by the
// first spelling seen. Every record lands in exactly one group; order within
// a group follows the input.
func GroupForCCP(records []model.Record) map[string][]model.Record {
	groups := make(map[string][]model.Record)
	spelling := make(map[string]string)
	for _, r := range records {
		name := ProcessName(r)
		folded := strings.ToLower(name)
		if first, ok := spelling[folded]; ok {
			name = first
		} else {
			spelling[folded] = name
		}
		groups[name] = append(groups[name], r)
	}
	return groups
}

// CCPStatus is OK when the measured value lies within the critical limits
// that are set, Deviation when it lies outside, and "" without a measurement.
func CCPStatus(r model.Record) string {
	v, ok := r.Number("measuredValue")
	if !ok {
		return ""
	}
	if lo, ok := r.Number("criticalMin"); ok && v < lo {
		return StatusDeviation
	}
	if hi, ok := r.Number("criticalMax"); ok && v > hi {
		return StatusDeviation
	}
	return StatusOK
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", time.DateOnly}

// CreatedAt parses the record's createdAt. Offsets are kept, so the
// calendar date is the one the record was written with.
func CreatedAt(r model.Record) (time.Time, bool) {
	s := strings.TrimSpace(r.String("createdAt"))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type Tally struct {
	Records    int `json:"records"`
	Deviations int `json:"deviations"`
}

// Compliance is the percentage of records without a deviation.
func (t Tally) Compliance() float64 {
	if t.Records == 0 {
		return 0
	}
	return float64(t.Records-t.Deviations) / float64(t.Records) * 100
}

func (t *Tally) add(r model.Record) {
	t.Records++
	if CCPStatus(r) == StatusDeviation {
		t.Deviations++
	}
}

type YearBucket struct {
	Year int `json:"year"`
	Tally
}

type MonthBucket struct {
	Month   string `json:"month"` // YYYY-MM
	Process string `json:"process"`
	Tally
}

// YearlyBuckets counts records per calendar year of createdAt. Records
// without a usable createdAt are left out.
func YearlyBuckets(records []model.Record) []YearBucket {
	byYear := make(map[int]*YearBucket)
	for _, r := range records {
		t, ok := CreatedAt(r)
		if !ok {
			continue
		}
		b, ok := byYear[t.Year()]
		if !ok {
			b = &YearBucket{Year: t.Year()}
			byYear[t.Year()] = b
		}
		b.add(r)
	}

	out := make([]YearBucket, 0, len(byYear))
	for _, b := range byYear {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b YearBucket) int { return cmp.Compare(a.Year, b.Year) })
	return out
}

// MonthlyBuckets counts records per month of createdAt and process.
func MonthlyBuckets(records []model.Record) []MonthBucket {
	type key struct{ month, process string }
	byMonth := make(map[key]*MonthBucket)
	for _, r := range records {
		t, ok := CreatedAt(r)
		if !ok {
			continue
		}
		k := key{fmt.Sprintf("%04d-%02d", t.Year(), t.Month()), ProcessName(r)}
		b, ok := byMonth[k]
		if !ok {
			b = &MonthBucket{Month: k.month, Process: k.process}
			byMonth[k] = b
		}
		b.add(r)
	}

	out := make([]MonthBucket, 0, len(byMonth))
	for _, b := range byMonth {
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b MonthBucket) int {
		return cmp.Or(cmp.Compare(a.Month, b.Month), cmp.Compare(a.Process, b.Process))
	})
	return out
}
