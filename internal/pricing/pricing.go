// Package pricing derives per-unit prices for catalog records.
package pricing

import (
	"math"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/types"
)

// PerUnit returns price / quantity * scale rounded to two decimals, or nil
// when either input is absent or the quantity is not positive.
func PerUnit(price, quantity *float64, scale float64) *float64 {
	if price == nil || quantity == nil || *quantity <= 0 {
		return nil
	}
	if scale == 0 {
		scale = 1
	}
	v := Round2(*price / *quantity * scale)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Apply recomputes every unit price the category declares on rec.
func Apply(d *category.Descriptor, rec *types.CatalogRecord) {
	if rec.UnitPrices == nil {
		rec.UnitPrices = make(map[string]*float64, len(d.UnitPrices))
	}
	for _, up := range d.UnitPrices {
		rec.UnitPrices[up.Field] = PerUnit(rec.Price, rec.Attributes.FloatPtr(up.Quantity), up.Scale)
	}
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
