package types

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Catalog column names shared by every category table.
const (
	FieldID                = "asin"
	FieldDiscountPercent   = "discount_percent"
	FieldOnSale            = "on_sale"
	FieldTotalScore        = "total_score"
	FieldNeedsVerification = "needs_verification"
	FieldCreatedAt         = "created_at"
	FieldLastFetchedAt     = "last_fetched_at"

	// UnitPricePrefix marks derived unit-price columns.
	UnitPricePrefix = "price_per_"
)

// Attributes holds category-specific extracted values keyed by field name.
// Values are int64, float64, bool, string or nil.
type Attributes map[string]any

// Get retrieves a value.
func (a Attributes) Get(key string) (any, bool) {
	v, ok := a[key]
	return v, ok
}

// Has reports whether the key holds a non-nil value.
func (a Attributes) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// Float returns the value as a float64 when it is numeric.
func (a Attributes) Float(key string) (float64, bool) {
	return AsFloat(a[key])
}

// FloatPtr returns the numeric value as a pointer, nil when absent.
func (a Attributes) FloatPtr(key string) *float64 {
	if f, ok := a.Float(key); ok {
		return &f
	}
	return nil
}

// Bool returns the value as a bool.
func (a Attributes) Bool(key string) (bool, bool) {
	b, ok := a[key].(bool)
	return b, ok
}

// String returns the value as a string.
func (a Attributes) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Clone returns a shallow copy; values are immutable scalars.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// CatalogRecord is the persisted, reconciled product entry.
type CatalogRecord struct {
	ID                string
	Title             string
	Description       string
	Brand             string
	ImageURL          string
	Price             *float64
	PriceRegular      *float64
	DiscountPercent   *int
	OnSale            bool
	ReviewAvg         *float64
	ReviewCount       *int
	Attributes        Attributes
	UnitPrices        map[string]*float64
	TotalScore        *float64
	NeedsVerification bool
	CreatedAt         time.Time
	LastFetchedAt     time.Time
}

// NewRecordFromListing builds a record carrying the listing's fields.
func NewRecordFromListing(l *RawListing) *CatalogRecord {
	r := &CatalogRecord{
		ID:            l.ID,
		Title:         l.Title,
		Description:   l.Description,
		Brand:         l.Brand,
		ImageURL:      l.ImageURL,
		Attributes:    make(Attributes),
		UnitPrices:    make(map[string]*float64),
		CreatedAt:     l.FetchedAt,
		LastFetchedAt: l.FetchedAt,
	}
	r.AdoptDynamic(l)
	return r
}

// AdoptDynamic copies the fields that change between fetches: price, sale
// state, rating and image.
func (r *CatalogRecord) AdoptDynamic(l *RawListing) {
	r.Price = l.Price
	r.PriceRegular = l.PriceRegular
	r.DiscountPercent = l.DiscountPercent
	r.OnSale = l.OnSale
	r.ReviewAvg = l.ReviewAvg
	r.ReviewCount = l.ReviewCount
	if l.ImageURL != "" {
		r.ImageURL = l.ImageURL
	}
	r.LastFetchedAt = l.FetchedAt
}

// Clone returns a deep copy of the record.
func (r *CatalogRecord) Clone() *CatalogRecord {
	c := *r
	c.Attributes = r.Attributes.Clone()
	c.UnitPrices = make(map[string]*float64, len(r.UnitPrices))
	for k, v := range r.UnitPrices {
		if v != nil {
			c.UnitPrices[k] = Ptr(*v)
		} else {
			c.UnitPrices[k] = nil
		}
	}
	c.Price = clonePtr(r.Price)
	c.PriceRegular = clonePtr(r.PriceRegular)
	c.DiscountPercent = clonePtr(r.DiscountPercent)
	c.ReviewAvg = clonePtr(r.ReviewAvg)
	c.ReviewCount = clonePtr(r.ReviewCount)
	c.TotalScore = clonePtr(r.TotalScore)
	return &c
}

// Value resolves a column name against the record: core fields first, then
// unit prices, then attributes.
func (r *CatalogRecord) Value(field string) any {
	switch field {
	case FieldID:
		return r.ID
	case FieldTitle:
		return r.Title
	case FieldDescription:
		return r.Description
	case FieldBrand:
		return r.Brand
	case FieldImageURL:
		return r.ImageURL
	case FieldPrice:
		return deref(r.Price)
	case FieldPriceRegular:
		return deref(r.PriceRegular)
	case FieldDiscountPercent:
		return deref(r.DiscountPercent)
	case FieldOnSale:
		return r.OnSale
	case FieldReviewAvg:
		return deref(r.ReviewAvg)
	case FieldReviewCount:
		return deref(r.ReviewCount)
	case FieldTotalScore:
		return deref(r.TotalScore)
	case FieldNeedsVerification:
		return r.NeedsVerification
	}
	if v, ok := r.UnitPrices[field]; ok {
		return deref(v)
	}
	if v, ok := r.Attributes[field]; ok {
		return v
	}
	return nil
}

// ToMap flattens the record into column/value pairs.
func (r *CatalogRecord) ToMap() map[string]any {
	m := make(map[string]any, 16+len(r.Attributes)+len(r.UnitPrices))
	m[FieldID] = r.ID
	m[FieldTitle] = r.Title
	m[FieldDescription] = r.Description
	m[FieldBrand] = r.Brand
	m[FieldImageURL] = r.ImageURL
	m[FieldPrice] = deref(r.Price)
	m[FieldPriceRegular] = deref(r.PriceRegular)
	m[FieldDiscountPercent] = deref(r.DiscountPercent)
	m[FieldOnSale] = r.OnSale
	m[FieldReviewAvg] = deref(r.ReviewAvg)
	m[FieldReviewCount] = deref(r.ReviewCount)
	for k, v := range r.Attributes {
		m[k] = v
	}
	for k, v := range r.UnitPrices {
		m[k] = deref(v)
	}
	m[FieldTotalScore] = deref(r.TotalScore)
	m[FieldNeedsVerification] = r.NeedsVerification
	m[FieldCreatedAt] = r.CreatedAt
	m[FieldLastFetchedAt] = r.LastFetchedAt
	return m
}

// ToFlatMap returns string values suitable for CSV export.
func (r *CatalogRecord) ToFlatMap() map[string]string {
	flat := make(map[string]string)
	for k, v := range r.ToMap() {
		switch val := v.(type) {
		case nil:
			flat[k] = ""
		case string:
			flat[k] = val
		case time.Time:
			flat[k] = val.Format(time.RFC3339)
		case float64:
			flat[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			b, _ := json.Marshal(val)
			flat[k] = string(b)
		}
	}
	return flat
}

// MarshalJSON renders the flattened column map.
func (r *CatalogRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToMap())
}

// UnmarshalJSON reads a flattened column map.
func (r *CatalogRecord) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*r = *RecordFromMap(m)
	return nil
}

// RecordFromMap rebuilds a record from column/value pairs. Unknown columns
// starting with UnitPricePrefix become unit prices, the rest attributes.
func RecordFromMap(m map[string]any) *CatalogRecord {
	r := &CatalogRecord{
		Attributes: make(Attributes),
		UnitPrices: make(map[string]*float64),
	}
	for k, v := range m {
		switch k {
		case FieldID, "_id":
			if s, ok := v.(string); ok && r.ID == "" {
				r.ID = s
			}
		case FieldTitle:
			r.Title, _ = v.(string)
		case FieldDescription:
			r.Description, _ = v.(string)
		case FieldBrand:
			r.Brand, _ = v.(string)
		case FieldImageURL:
			r.ImageURL, _ = v.(string)
		case FieldPrice:
			r.Price = floatPtr(v)
		case FieldPriceRegular:
			r.PriceRegular = floatPtr(v)
		case FieldDiscountPercent:
			r.DiscountPercent = intPtr(v)
		case FieldOnSale:
			r.OnSale = AsBool(v)
		case FieldReviewAvg:
			r.ReviewAvg = floatPtr(v)
		case FieldReviewCount:
			r.ReviewCount = intPtr(v)
		case FieldTotalScore:
			r.TotalScore = floatPtr(v)
		case FieldNeedsVerification:
			r.NeedsVerification = AsBool(v)
		case FieldCreatedAt:
			r.CreatedAt = AsTime(v)
		case FieldLastFetchedAt:
			r.LastFetchedAt = AsTime(v)
		default:
			if strings.HasPrefix(k, UnitPricePrefix) {
				r.UnitPrices[k] = floatPtr(v)
			} else {
				r.Attributes[k] = v
			}
		}
	}
	return r
}

// AsFloat converts numeric values of any width to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// AsBool converts stored boolean representations (bool, 0/1) to bool.
func AsBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case int:
		return b != 0
	case int32:
		return b != 0
	case float64:
		return b != 0
	case string:
		return b == "true" || b == "1"
	}
	return false
}

// AsTime converts stored timestamp representations to time.Time.
func AsTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999 -0700 MST", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	case int64:
		return time.Unix(t, 0).UTC()
	}
	return time.Time{}
}

func floatPtr(v any) *float64 {
	if f, ok := AsFloat(v); ok {
		return &f
	}
	return nil
}

func intPtr(v any) *int {
	if f, ok := AsFloat(v); ok {
		i := int(f)
		return &i
	}
	return nil
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
