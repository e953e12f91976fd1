// Package document turns stored HACCP records into sheet matrices.
package document

import (
	"fmt"
	"slices"

	"github.com/dukerupert/haccp/internal/model"
)

type Kind string

const (
	KindText     Kind = "text"
	KindNumber   Kind = "number"
	KindBool     Kind = "bool"
	KindDateTime Kind = "datetime"
	KindStatus   Kind = "status"
)

type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Kind     Kind   `json:"kind"`
	Required bool   `json:"required"`
}

// Columns returns the column labels the field occupies. A datetime field
// spans a date and a time column.
func (f Field) Columns() []string {
	if f.Kind == KindDateTime {
		return []string{f.Label + " Date", f.Label + " Time"}
	}
	return []string{f.Label}
}

// SheetRule decides which sheets a document type is written to.
type SheetRule string

const (
	RuleFixed     SheetRule = "fixed"
	RuleByProcess SheetRule = "by_process"
	RuleDashboard SheetRule = "dashboard"
)

type Schema struct {
	Type   string    `json:"type"`
	Prefix string    `json:"prefix"`
	Title  string    `json:"title"`
	Rule   SheetRule `json:"rule"`
	Fields []Field   `json:"fields"`
	// Filter adds a basic filter over the header row.
	Filter bool `json:"-"`
}

// Field returns the schema field called name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Missing returns the required fields r has no value for.
func (s *Schema) Missing(r model.Record) []string {
	var missing []string
	for _, f := range s.Fields {
		if f.Required && r.String(f.Name) == "" {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

const (
	TypeCCP            = "ccp"
	TypeCCPDashboard   = "ccp-dashboard"
	TypeProductionLog  = "production-log"
	TypeTemperatureLog = "temperature-log"
	TypeCleaningLog    = "cleaning-log"
	TypeSupplier       = "supplier"
)

var recorded = Field{Name: "createdAt", Label: "Recorded", Kind: KindDateTime}

var ccpFields = []Field{
	{Name: "process", Label: "Process", Kind: KindText},
	{Name: "ccpType", Label: "CCP Type", Kind: KindText, Required: true},
	{Name: "measuredValue", Label: "Measured Value", Kind: KindNumber},
	{Name: "criticalMin", Label: "Critical Min", Kind: KindNumber},
	{Name: "criticalMax", Label: "Critical Max", Kind: KindNumber},
	{Name: "unit", Label: "Unit", Kind: KindText},
	{Name: "status", Label: "Status", Kind: KindStatus},
	{Name: "correctiveAction", Label: "Corrective Action", Kind: KindText},
	{Name: "inspector", Label: "Inspector", Kind: KindText},
	recorded,
}

var schemas = []*Schema{
	{
		Type:   TypeCCP,
		Prefix: "ccp:",
		Title:  "CCP",
		Rule:   RuleByProcess,
		Fields: ccpFields,
		Filter: true,
	},
	{
		Type:   TypeCCPDashboard,
		Prefix: "ccp:",
		Title:  "CCP Dashboard",
		Rule:   RuleDashboard,
		Fields: ccpFields,
	},
	{
		Type:   TypeProductionLog,
		Prefix: "production_log:",
		Title:  "Production Log",
		Rule:   RuleFixed,
		Filter: true,
		Fields: []Field{
			{Name: "product", Label: "Product", Kind: KindText, Required: true},
			{Name: "batchNo", Label: "Batch No", Kind: KindText},
			{Name: "quantity", Label: "Quantity", Kind: KindNumber},
			{Name: "unit", Label: "Unit", Kind: KindText},
			{Name: "operator", Label: "Operator", Kind: KindText},
			recorded,
		},
	},
	{
		Type:   TypeTemperatureLog,
		Prefix: "temperature_log:",
		Title:  "Temperature Log",
		Rule:   RuleFixed,
		Filter: true,
		Fields: []Field{
			{Name: "location", Label: "Location", Kind: KindText, Required: true},
			{Name: "sensor", Label: "Sensor", Kind: KindText},
			{Name: "temperature", Label: "Temperature", Kind: KindNumber, Required: true},
			{Name: "humidity", Label: "Humidity", Kind: KindNumber},
			{Name: "checkedBy", Label: "Checked By", Kind: KindText},
			recorded,
		},
	},
	{
		Type:   TypeCleaningLog,
		Prefix: "cleaning_log:",
		Title:  "Cleaning Log",
		Rule:   RuleFixed,
		Fields: []Field{
			{Name: "area", Label: "Area", Kind: KindText, Required: true},
			{Name: "task", Label: "Task", Kind: KindText},
			{Name: "completed", Label: "Completed", Kind: KindBool},
			{Name: "cleanedBy", Label: "Cleaned By", Kind: KindText},
			{Name: "verifiedBy", Label: "Verified By", Kind: KindText},
			recorded,
		},
	},
	{
		Type:   TypeSupplier,
		Prefix: "supplier:",
		Title:  "Suppliers",
		Rule:   RuleFixed,
		Filter: true,
		Fields: []Field{
			{Name: "name", Label: "Name", Kind: KindText, Required: true},
			{Name: "contact", Label: "Contact", Kind: KindText},
			{Name: "phone", Label: "Phone", Kind: KindText},
			{Name: "email", Label: "Email", Kind: KindText},
			{Name: "items", Label: "Items", Kind: KindText},
			{Name: "certified", Label: "Certified", Kind: KindBool},
			recorded,
		},
	},
}

// Lookup returns the schema registered for docType.
func Lookup(docType string) (*Schema, bool) {
	for _, s := range schemas {
		if s.Type == docType {
			return s, true
		}
	}
	return nil, false
}

// MustLookup is Lookup for callers that only pass registered types.
func MustLookup(docType string) *Schema {
	s, ok := Lookup(docType)
	if !ok {
		panic(fmt.Sprintf("document: unknown type %q", docType))
	}
	return s
}

// Schemas returns every registered schema in registry order.
func Schemas() []*Schema {
	return slices.Clone(schemas)
}

// Types returns every registered document type in registry order.
func Types() []string {
	out := make([]string, len(schemas))
	for i, s := range schemas {
		out[i] = s.Type
	}
	return out
}
