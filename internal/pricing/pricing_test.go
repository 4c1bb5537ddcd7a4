package pricing

import (
	"testing"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/types"
)

func TestPerUnit(t *testing.T) {
	tests := []struct {
		name     string
		price    *float64
		quantity *float64
		scale    float64
		want     *float64
	}{
		{"basic", types.Ptr(1000.0), types.Ptr(72.0), 1, types.Ptr(13.89)},
		{"scaled", types.Ptr(498.0), types.Ptr(770.0), 1000, types.Ptr(646.75)},
		{"zero quantity", types.Ptr(1000.0), types.Ptr(0.0), 1, nil},
		{"negative quantity", types.Ptr(1000.0), types.Ptr(-2.0), 1, nil},
		{"nil quantity", types.Ptr(1000.0), nil, 1, nil},
		{"nil price", nil, types.Ptr(12.0), 1, nil},
		{"zero price", types.Ptr(0.0), types.Ptr(12.0), 1, types.Ptr(0.0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PerUnit(tt.price, tt.quantity, tt.scale)
			if !types.SameFloat(got, tt.want) {
				t.Errorf("PerUnit = %v, want %v", deref(got), deref(tt.want))
			}
		})
	}
}

func TestApplyNullTracksPrimary(t *testing.T) {
	d := category.ToiletPaper()
	for _, rolls := range []any{nil, int64(0), int64(-1), int64(12)} {
		rec := &types.CatalogRecord{
			Price:      types.Ptr(600.0),
			Attributes: types.Attributes{"roll_count": rolls, "length_m": 50.0},
		}
		d.Finish(rec.Attributes)
		Apply(d, rec)

		ppr := rec.UnitPrices["price_per_roll"]
		positive := false
		if n, ok := types.AsFloat(rolls); ok && n > 0 {
			positive = true
		}
		if (ppr != nil) != positive {
			t.Errorf("roll_count=%v: price_per_roll=%v, expected null iff quantity null or <= 0", rolls, deref(ppr))
		}
	}

	rec := &types.CatalogRecord{
		Price:      types.Ptr(600.0),
		Attributes: types.Attributes{"roll_count": int64(12), "length_m": 50.0},
	}
	d.Finish(rec.Attributes)
	Apply(d, rec)
	if got := *rec.UnitPrices["price_per_roll"]; got != 50 {
		t.Errorf("price_per_roll = %v, want 50", got)
	}
	if got := *rec.UnitPrices["price_per_m"]; got != 1 {
		t.Errorf("price_per_m = %v, want 1", got)
	}
}

func deref(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
