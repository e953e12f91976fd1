package model

import (
	"fmt"
	"strconv"
)

// Record is one stored form entry. Values come straight from JSON, so numbers
// are float64 and nested objects are maps.
type Record map[string]any

func (r Record) ID() string {
	return r.String("id")
}

// String returns field as text, or "" when it is absent or null.
func (r Record) String(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return fmt.Sprint(v)
}

// Number returns field as a float and whether it held a usable number.
func (r Record) Number(field string) (float64, bool) {
	switch t := r[field].(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}
