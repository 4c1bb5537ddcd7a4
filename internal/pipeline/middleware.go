package pipeline

import (
	"strings"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/pricing"
	"github.com/IshaanNene/unitscout/internal/types"
)

// TrimMiddleware trims whitespace from text fields and string attributes.
type TrimMiddleware struct{}

func (m *TrimMiddleware) Name() string { return "trim" }

func (m *TrimMiddleware) Process(rec *types.CatalogRecord) (*types.CatalogRecord, error) {
	rec.Title = strings.TrimSpace(rec.Title)
	rec.Description = strings.TrimSpace(rec.Description)
	rec.Brand = strings.TrimSpace(rec.Brand)
	rec.ImageURL = strings.TrimSpace(rec.ImageURL)
	for k, v := range rec.Attributes {
		if s, ok := v.(string); ok {
			rec.Attributes[k] = strings.TrimSpace(s)
		}
	}
	return rec, nil
}

// SchemaMiddleware coerces attributes to the category's declared kinds so
// values read back from a store (0/1 booleans, float counts) compare like
// freshly extracted ones.
type SchemaMiddleware struct {
	Descriptor *category.Descriptor
}

func (m *SchemaMiddleware) Name() string { return "schema" }

func (m *SchemaMiddleware) Process(rec *types.CatalogRecord) (*types.CatalogRecord, error) {
	if rec.Attributes == nil {
		rec.Attributes = make(types.Attributes)
	}
	m.Descriptor.Coerce(rec.Attributes)
	return rec, nil
}

// PrimaryQuantityMiddleware drops records whose primary quantity is absent
// or not positive.
type PrimaryQuantityMiddleware struct {
	Descriptor *category.Descriptor
}

func (m *PrimaryQuantityMiddleware) Name() string { return "primary_quantity" }

func (m *PrimaryQuantityMiddleware) Process(rec *types.CatalogRecord) (*types.CatalogRecord, error) {
	if !m.Descriptor.HasPrimary(rec.Attributes) {
		return nil, nil
	}
	return rec, nil
}

// RejectMiddleware drops records the category rejects, such as dishwasher
// detergent in the dishwashing liquid category.
type RejectMiddleware struct {
	Descriptor *category.Descriptor
}

func (m *RejectMiddleware) Name() string { return "reject" }

func (m *RejectMiddleware) Process(rec *types.CatalogRecord) (*types.CatalogRecord, error) {
	if m.Descriptor.Reject != nil && m.Descriptor.Reject(rec.Attributes) {
		return nil, nil
	}
	return rec, nil
}

// UnitPriceMiddleware recomputes every unit price from the current price.
type UnitPriceMiddleware struct {
	Descriptor *category.Descriptor
}

func (m *UnitPriceMiddleware) Name() string { return "unit_price" }

func (m *UnitPriceMiddleware) Process(rec *types.CatalogRecord) (*types.CatalogRecord, error) {
	pricing.Apply(m.Descriptor, rec)
	return rec, nil
}
