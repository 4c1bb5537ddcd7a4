package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/types"
)

type colKind int

const (
	colText colKind = iota
	colReal
	colInt
	colBool
	colTime
)

type column struct {
	name string
	kind colKind
}

var (
	headColumns = []column{
		{types.FieldID, colText},
		{types.FieldTitle, colText},
		{types.FieldDescription, colText},
		{types.FieldBrand, colText},
		{types.FieldImageURL, colText},
		{types.FieldPrice, colReal},
		{types.FieldPriceRegular, colReal},
		{types.FieldDiscountPercent, colInt},
		{types.FieldOnSale, colBool},
		{types.FieldReviewAvg, colReal},
		{types.FieldReviewCount, colInt},
	}
	tailColumns = []column{
		{types.FieldTotalScore, colReal},
		{types.FieldNeedsVerification, colBool},
		{types.FieldCreatedAt, colTime},
		{types.FieldLastFetchedAt, colTime},
	}
)

// tableColumns lists a category's columns: listing fields, attributes, unit
// prices, then bookkeeping.
func tableColumns(d *category.Descriptor) []column {
	cols := append([]column(nil), headColumns...)
	for _, f := range d.AttributeFields() {
		cols = append(cols, column{f.Name, attributeKind(f.Kind)})
	}
	for _, up := range d.UnitPrices {
		cols = append(cols, column{up.Field, colReal})
	}
	return append(cols, tailColumns...)
}

// Columns returns the column names of a category table in order.
func Columns(d *category.Descriptor) []string {
	cols := tableColumns(d)
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

func attributeKind(k category.Kind) colKind {
	switch k {
	case category.KindInt:
		return colInt
	case category.KindFloat:
		return colReal
	case category.KindBool:
		return colBool
	default:
		return colText
	}
}

// dialect renders the SQL shared by the SQLite and Postgres backends.
type dialect struct {
	name        string
	types       map[colKind]string
	placeholder func(n int) string
	timeValue   func(t time.Time) any
}

var sqliteDialect = dialect{
	name: "sqlite",
	types: map[colKind]string{
		colText: "TEXT",
		colReal: "REAL",
		colInt:  "INTEGER",
		colBool: "BOOLEAN",
		colTime: "TIMESTAMP",
	},
	placeholder: func(int) string { return "?" },
	timeValue:   func(t time.Time) any { return t.Format(time.RFC3339Nano) },
}

var postgresDialect = dialect{
	name: "postgres",
	types: map[colKind]string{
		colText: "TEXT",
		colReal: "DOUBLE PRECISION",
		colInt:  "BIGINT",
		colBool: "BOOLEAN",
		colTime: "TIMESTAMPTZ",
	},
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	timeValue:   func(t time.Time) any { return t },
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (dl dialect) createTable(d *category.Descriptor) string {
	cols := tableColumns(d)
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quote(c.name) + " " + dl.types[c.kind]
		if c.name == types.FieldID {
			defs[i] += " PRIMARY KEY"
		}
	}
	return "CREATE TABLE IF NOT EXISTS " + quote(d.Table()) + " (" + strings.Join(defs, ", ") + ")"
}

func (dl dialect) addColumn(table string, c column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(table), quote(c.name), dl.types[c.kind])
}

// missingColumns returns the category columns absent from existing.
func missingColumns(d *category.Descriptor, existing map[string]bool) []column {
	var out []column
	for _, c := range tableColumns(d) {
		if !existing[c.name] {
			out = append(out, c)
		}
	}
	return out
}

// upsert renders an INSERT ... ON CONFLICT statement for rec. created_at is
// only written on insert.
func (dl dialect) upsert(d *category.Descriptor, rec *types.CatalogRecord) (string, []any) {
	cols := tableColumns(d)
	values := rec.ToMap()
	if rec.CreatedAt.IsZero() {
		values[types.FieldCreatedAt] = rec.LastFetchedAt
	}

	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	sets := make([]string, 0, len(cols))
	for i, c := range cols {
		q := quote(c.name)
		names[i] = q
		marks[i] = dl.placeholder(i + 1)
		args[i] = sqlValue(c.kind, values[c.name])
		if t, ok := args[i].(time.Time); ok {
			args[i] = dl.timeValue(t)
		}
		if c.name != types.FieldID && c.name != types.FieldCreatedAt {
			sets = append(sets, q+" = excluded."+q)
		}
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		quote(d.Table()),
		strings.Join(names, ", "),
		strings.Join(marks, ", "),
		quote(types.FieldID),
		strings.Join(sets, ", "),
	)
	return stmt, args
}

// query renders a filtered SELECT sorted by the score field, nulls last.
func (dl dialect) query(d *category.Descriptor, conds []category.Condition) (string, []any, error) {
	known := make(map[string]bool)
	for _, c := range tableColumns(d) {
		known[c.name] = true
	}

	var (
		clauses []string
		args    []any
	)
	for _, c := range conds {
		if !known[c.Field] {
			return "", nil, fmt.Errorf("filter on unknown column %q", c.Field)
		}
		q := quote(c.Field)
		switch c.Op {
		case category.OpIsNull:
			clauses = append(clauses, q+" IS NULL")
			continue
		case category.OpEq:
			clauses = append(clauses, q+" = "+dl.placeholder(len(args)+1))
		case category.OpGte:
			clauses = append(clauses, q+" >= "+dl.placeholder(len(args)+1))
		case category.OpLt:
			clauses = append(clauses, q+" < "+dl.placeholder(len(args)+1))
		default:
			return "", nil, fmt.Errorf("unsupported filter operator %q", c.Op)
		}
		args = append(args, c.Value)
	}

	stmt := "SELECT * FROM " + quote(d.Table())
	if len(clauses) > 0 {
		stmt += " WHERE " + strings.Join(clauses, " AND ")
	}
	if d.ScoreField != "" {
		s := quote(d.ScoreField)
		stmt += fmt.Sprintf(" ORDER BY %s IS NULL, %s ASC", s, s)
	}
	return stmt, args, nil
}

// sqlValue normalizes a record value to the driver type of its column.
func sqlValue(kind colKind, v any) any {
	if v == nil {
		return nil
	}
	switch kind {
	case colReal:
		if f, ok := types.AsFloat(v); ok {
			return f
		}
		return nil
	case colInt:
		if f, ok := types.AsFloat(v); ok {
			return int64(f)
		}
		return nil
	case colBool:
		return types.AsBool(v)
	case colTime:
		t := types.AsTime(v)
		if t.IsZero() {
			return nil
		}
		return t.UTC()
	default:
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
}

// normalizeRow converts driver-specific scan values to the plain types
// RecordFromMap understands.
func normalizeRow(row map[string]any) map[string]any {
	for k, v := range row {
		switch val := v.(type) {
		case []byte:
			row[k] = string(val)
		case int32:
			row[k] = int64(val)
		case int:
			row[k] = int64(val)
		case time.Time:
			row[k] = val.UTC()
		}
	}
	return row
}
