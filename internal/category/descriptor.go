// Package category describes each household-goods category as plain data:
// search keyword, extraction schema, required fields, unit-price measures,
// and the filter predicates a caller may request.
package category

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/IshaanNene/unitscout/internal/types"
)

// Kind is the value type of an attribute column.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Field declares one attribute the extractor is asked for.
type Field struct {
	Name    string
	Kind    Kind
	Default any
	// Enum restricts string values; empty means any non-empty string.
	Enum []string
}

// Coerce converts a decoded JSON (or stored) value into the field's
// canonical Go type: int64, float64, bool or string.
func (f Field) Coerce(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	switch f.Kind {
	case KindInt:
		n, ok := numeric(v)
		if !ok {
			return nil, false
		}
		return int64(math.Round(n)), true
	case KindFloat:
		n, ok := numeric(v)
		if !ok {
			return nil, false
		}
		return n, true
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b, true
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true", "yes", "1":
				return true, true
			case "false", "no", "0":
				return false, true
			}
			return nil, false
		}
		if n, ok := types.AsFloat(v); ok {
			return n != 0, true
		}
		return nil, false
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		s = strings.TrimSpace(s)
		switch strings.ToLower(s) {
		case "", "null", "none", "unknown", "不明":
			return nil, false
		}
		if len(f.Enum) > 0 {
			s = strings.ToLower(s)
			for _, allowed := range f.Enum {
				if s == allowed {
					return s, true
				}
			}
			return nil, false
		}
		return s, true
	}
	return nil, false
}

// numeric reads numbers and numeric strings such as "72", "1,500" or "2.5kg".
func numeric(v any) (float64, bool) {
	if n, ok := types.AsFloat(v); ok {
		return n, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	return ParseNumber(s)
}

// UnitPrice declares a derived price column: price / Quantity * Scale.
type UnitPrice struct {
	Field    string
	Quantity string
	Scale    float64
}

// Descriptor is the data-only strategy object for one category.
type Descriptor struct {
	Name         string
	Label        string
	Keyword      string
	SearchParams url.Values

	// Primary is the quantity field a record must carry to be persisted.
	Primary string
	// Fields are requested from the extractor, in prompt order.
	Fields []Field
	// Derived are computed by PostProcess and persisted alongside Fields.
	Derived []Field
	// Required must all be populated for a stored record to be reused.
	Required []string

	// Prompt is the extraction instruction; {{listing}} is replaced by the
	// listing text.
	Prompt string

	PostProcess func(types.Attributes)
	// Heuristic fills nil fields from the listing text.
	Heuristic func(text string, attrs types.Attributes)
	// Reject drops listings that belong to a neighbouring product class.
	Reject func(types.Attributes) bool

	// UnitPrices lists derived prices; the first divides by Primary.
	UnitPrices []UnitPrice
	// ScoreField is the unit price used for scoring and sorting.
	ScoreField string

	// FetchDetail enriches listings from their detail page before extraction.
	FetchDetail bool

	Filters map[Filter][]Condition
}

// Table returns the logical table/collection name.
func (d *Descriptor) Table() string { return d.Name + "_products" }

// Field looks up a declared or derived field.
func (d *Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	for _, f := range d.Derived {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// AttributeFields returns declared then derived fields.
func (d *Descriptor) AttributeFields() []Field {
	out := make([]Field, 0, len(d.Fields)+len(d.Derived))
	out = append(out, d.Fields...)
	return append(out, d.Derived...)
}

// ApplyDefaults sets the default for every declared field that is nil.
func (d *Descriptor) ApplyDefaults(attrs types.Attributes) {
	for _, f := range d.Fields {
		if !attrs.Has(f.Name) {
			attrs[f.Name] = f.Default
		}
	}
}

// Coerce converts every declared and derived attribute to its field kind;
// values that cannot be converted become nil.
func (d *Descriptor) Coerce(attrs types.Attributes) {
	for _, f := range d.AttributeFields() {
		v, ok := f.Coerce(attrs[f.Name])
		if !ok {
			v = nil
		}
		attrs[f.Name] = v
	}
}

// Finish runs the category post-processing step on attrs, if any.
func (d *Descriptor) Finish(attrs types.Attributes) {
	if d.PostProcess != nil {
		d.PostProcess(attrs)
	}
}

// HasPrimary reports whether the primary quantity is present and positive.
func (d *Descriptor) HasPrimary(attrs types.Attributes) bool {
	n, ok := attrs.Float(d.Primary)
	return ok && n > 0
}

// MissingRequired lists required fields the attribute set lacks.
func (d *Descriptor) MissingRequired(attrs types.Attributes) []string {
	var missing []string
	for _, name := range d.Required {
		if !attrs.Has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// BuildPrompt renders the extraction prompt for one listing.
func (d *Descriptor) BuildPrompt(title, description string) string {
	text := "商品名: " + title
	if description != "" {
		text += "\n説明: " + description
	}
	return strings.ReplaceAll(d.Prompt, "{{listing}}", text)
}

// Conditions resolves a filter name to its predicate. The empty filter
// matches everything.
func (d *Descriptor) Conditions(f Filter) ([]Condition, error) {
	if f == "" {
		return nil, nil
	}
	if f == FilterSale {
		return []Condition{{Field: types.FieldOnSale, Op: OpEq, Value: true}}, nil
	}
	conds, ok := d.Filters[f]
	if !ok {
		return nil, fmt.Errorf("%w %q for category %s", types.ErrUnknownFilter, f, d.Name)
	}
	return conds, nil
}

// FilterNames lists every filter the category accepts.
func (d *Descriptor) FilterNames() []Filter {
	return append([]Filter{FilterSale}, sortedFilters(d.Filters)...)
}
