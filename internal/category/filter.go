package category

import (
	"sort"

	"github.com/IshaanNene/unitscout/internal/types"
)

// Filter names an enumerated predicate registered on a descriptor.
type Filter string

// FilterSale is accepted by every category.
const FilterSale Filter = "sale"

// Op is a comparison operator understood by every store backend.
type Op string

const (
	OpEq     Op = "eq"
	OpGte    Op = "gte"
	OpLt     Op = "lt"
	OpIsNull Op = "is_null"
)

// Condition compares one record column against a constant.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Match evaluates the condition against a record in memory.
func (c Condition) Match(r *types.CatalogRecord) bool {
	v := r.Value(c.Field)
	switch c.Op {
	case OpIsNull:
		return v == nil
	case OpEq:
		if v == nil {
			return false
		}
		switch want := c.Value.(type) {
		case bool:
			return types.AsBool(v) == want
		case string:
			s, ok := v.(string)
			return ok && s == want
		default:
			a, ok1 := types.AsFloat(v)
			b, ok2 := types.AsFloat(want)
			return ok1 && ok2 && a == b
		}
	case OpGte, OpLt:
		a, ok1 := types.AsFloat(v)
		b, ok2 := types.AsFloat(c.Value)
		if !ok1 || !ok2 {
			return false
		}
		if c.Op == OpGte {
			return a >= b
		}
		return a < b
	}
	return false
}

// MatchAll reports whether every condition holds.
func MatchAll(conds []Condition, r *types.CatalogRecord) bool {
	for _, c := range conds {
		if !c.Match(r) {
			return false
		}
	}
	return true
}

// Apply returns the records matching every condition, preserving order.
func Apply(conds []Condition, records []*types.CatalogRecord) []*types.CatalogRecord {
	if len(conds) == 0 {
		return records
	}
	out := make([]*types.CatalogRecord, 0, len(records))
	for _, r := range records {
		if MatchAll(conds, r) {
			out = append(out, r)
		}
	}
	return out
}

// SortByUnitPrice orders records ascending by field, records without a
// value last. The sort is stable so fetch order breaks ties.
func SortByUnitPrice(records []*types.CatalogRecord, field string) {
	sort.SliceStable(records, func(i, j int) bool {
		a, okA := types.AsFloat(records[i].Value(field))
		b, okB := types.AsFloat(records[j].Value(field))
		switch {
		case okA && okB:
			return a < b
		case okA:
			return true
		default:
			return false
		}
	})
}

func sortedFilters(m map[Filter][]Condition) []Filter {
	out := make([]Filter, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
