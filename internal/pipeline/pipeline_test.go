package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestPipelineBasic(t *testing.T) {
	p := New(testLogger)
	p.Use(&TrimMiddleware{})

	rec := &types.CatalogRecord{
		ID:         "B1",
		Title:      "  Hello World  ",
		Attributes: types.Attributes{"rice_type": " コシヒカリ "},
	}

	result, err := p.Process(rec)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if result.Title != "Hello World" {
		t.Errorf("expected trimmed title, got %q", result.Title)
	}
	if result.Attributes.String("rice_type") != "コシヒカリ" {
		t.Errorf("expected trimmed attribute, got %q", result.Attributes.String("rice_type"))
	}
}

func TestForCategoryChain(t *testing.T) {
	p := ForCategory(category.ToiletPaper(), testLogger)
	var stages []string
	for _, mw := range p.middlewares {
		stages = append(stages, mw.Name())
	}
	if got := strings.Join(stages, ","); got != "trim,schema,primary_quantity,reject,unit_price" {
		t.Errorf("stages = %s", got)
	}

	rec := &types.CatalogRecord{
		ID:    "B1",
		Price: types.Ptr(1000.0),
		Attributes: types.Attributes{
			"roll_count":     72.0,
			"length_m":       25.0,
			"is_double":      int64(1),
			"total_length_m": 1800.0,
		},
	}
	out, err := p.Process(rec)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if out.Attributes["roll_count"] != int64(72) {
		t.Errorf("roll_count not coerced: %#v", out.Attributes["roll_count"])
	}
	if out.Attributes["is_double"] != true {
		t.Errorf("stored 0/1 boolean not coerced: %#v", out.Attributes["is_double"])
	}
	if got := out.UnitPrices["price_per_roll"]; got == nil || *got != 13.89 {
		t.Errorf("price_per_roll = %v, want 13.89", got)
	}
	if got := out.UnitPrices["price_per_m"]; got == nil || *got != 0.56 {
		t.Errorf("price_per_m = %v, want 0.56", got)
	}
}

func TestPrimaryQuantityDrop(t *testing.T) {
	p := ForCategory(category.Mask(), testLogger)

	for _, count := range []any{nil, int64(0), int64(-5)} {
		rec := &types.CatalogRecord{
			ID:         "B2",
			Price:      types.Ptr(500.0),
			Attributes: types.Attributes{"mask_count": count},
		}
		out, err := p.Process(rec)
		if out != nil {
			t.Errorf("mask_count=%v: record should be dropped", count)
		}
		if !errors.Is(err, types.ErrValidationDrop) {
			t.Errorf("mask_count=%v: expected ErrValidationDrop, got %v", count, err)
		}
		var pe *types.PipelineError
		if !errors.As(err, &pe) || pe.Stage != "primary_quantity" || pe.ID != "B2" {
			t.Errorf("unexpected drop detail: %+v", pe)
		}
	}
}

func TestRejectMiddleware(t *testing.T) {
	p := ForCategory(category.Dishwashing(), testLogger)

	rec := &types.CatalogRecord{
		ID:         "B3",
		Price:      types.Ptr(698.0),
		Attributes: types.Attributes{"volume_ml": 680.0, "is_refill": false, "is_dishwasher": true},
	}
	_, err := p.Process(rec)
	var pe *types.PipelineError
	if !errors.As(err, &pe) || pe.Stage != "reject" {
		t.Fatalf("expected reject drop, got %v", err)
	}

	rec.Attributes["is_dishwasher"] = false
	out, err := p.Process(rec)
	if err != nil || out == nil {
		t.Fatalf("hand-wash detergent should pass, got %v", err)
	}
	if got := out.UnitPrices["price_per_1000ml"]; got == nil || *got != 1026.47 {
		t.Errorf("price_per_1000ml = %v, want 1026.47", got)
	}
}

func TestUnitPriceNullWithoutPrice(t *testing.T) {
	p := ForCategory(category.Rice(), testLogger)
	rec := &types.CatalogRecord{
		ID:         "B4",
		Attributes: types.Attributes{"weight_kg": 5.0, "is_musenmai": false},
	}
	out, err := p.Process(rec)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if v, ok := out.UnitPrices["price_per_kg"]; !ok || v != nil {
		t.Errorf("price_per_kg should be present and nil, got %v", v)
	}
}
