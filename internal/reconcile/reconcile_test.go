package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/config"
	"github.com/IshaanNene/unitscout/internal/extract"
	"github.com/IshaanNene/unitscout/internal/pipeline"
	"github.com/IshaanNene/unitscout/internal/pricing"
	"github.com/IshaanNene/unitscout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

var (
	day1 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
)

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type fakeDetails struct {
	detail *types.RawDetail
	err    error
	calls  int
}

func (f *fakeDetails) FetchDetail(_ context.Context, id string) (*types.RawDetail, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	d := *f.detail
	d.ID = id
	return &d, nil
}

func newEngine(llm *fakeCompleter, details DetailSource, cfg config.ReconcileConfig) *Engine {
	return New(extract.NewExtractor(llm, nil, testLogger), details, cfg, nil, testLogger)
}

func defaultCfg() config.ReconcileConfig {
	return config.DefaultConfig().Reconcile
}

func toiletPaperRecord() *types.CatalogRecord {
	rec := &types.CatalogRecord{
		ID:          "A1",
		Title:       "トイレットペーパー 12ロール×6パック ダブル",
		Brand:       "スコッティ",
		Description: "やわらかい",
		ImageURL:    "https://img.example/a1.jpg",
		Price:       types.Ptr(1000.0),
		ReviewAvg:   types.Ptr(4.2),
		ReviewCount: types.Ptr(120),
		Attributes: types.Attributes{
			"roll_count":     int64(72),
			"length_m":       25.0,
			"is_double":      true,
			"total_length_m": 1800.0,
		},
		CreatedAt:     day1,
		LastFetchedAt: day1,
	}
	pricing.Apply(category.ToiletPaper(), rec)
	return rec
}

func listingFrom(rec *types.CatalogRecord, fetched time.Time) *types.RawListing {
	return &types.RawListing{
		ID:          rec.ID,
		Title:       rec.Title,
		Brand:       rec.Brand,
		ImageURL:    rec.ImageURL,
		Price:       types.Ptr(*rec.Price),
		ReviewAvg:   rec.ReviewAvg,
		ReviewCount: rec.ReviewCount,
		FetchedAt:   fetched,
	}
}

// --- Decision Tests ---

func TestDecide(t *testing.T) {
	d := category.ToiletPaper()
	complete := toiletPaperRecord()
	incomplete := toiletPaperRecord()
	incomplete.Attributes["length_m"] = nil

	tests := []struct {
		name   string
		stored *types.CatalogRecord
		price  *float64
		want   Action
	}{
		{"not in catalog", nil, types.Ptr(1000.0), ActionCreate},
		{"complete same price", complete, types.Ptr(1000.0), ActionReuse},
		{"complete new price", complete, types.Ptr(1100.0), ActionPriceUpdate},
		{"complete price vanished", complete, nil, ActionPriceUpdate},
		{"missing required same price", incomplete, types.Ptr(1000.0), ActionBackfill},
		{"missing required new price", incomplete, types.Ptr(900.0), ActionBackfill},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &types.RawListing{ID: "A1", Price: tt.price}
			if got := Decide(d, tt.stored, l); got != tt.want {
				t.Errorf("Decide = %s, want %s", got, tt.want)
			}
		})
	}
}

// --- Create Tests ---

func TestCreateExtractsAttributes(t *testing.T) {
	llm := &fakeCompleter{reply: `回答: {"roll_count": 72, "length_m": 25, "is_double": true}`}
	e := newEngine(llm, nil, defaultCfg())

	l := &types.RawListing{
		ID:        "A1",
		Title:     "12-roll pack ×6 packs 12ロール×6パック",
		Price:     types.Ptr(1000.0),
		FetchedAt: day1,
	}
	out, err := e.Reconcile(context.Background(), category.ToiletPaper(), nil, l)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if out.Action != ActionCreate || out.ExtractErr != nil {
		t.Fatalf("unexpected outcome %+v", out)
	}
	rec := out.Record
	if rec.Attributes["roll_count"] != int64(72) {
		t.Errorf("roll_count = %#v, want 72", rec.Attributes["roll_count"])
	}
	if got := rec.UnitPrices["price_per_roll"]; got == nil || *got != 13.89 {
		t.Errorf("price_per_roll = %v, want 13.89", got)
	}
	if !rec.CreatedAt.Equal(day1) || !rec.LastFetchedAt.Equal(day1) {
		t.Errorf("timestamps not taken from listing: %v %v", rec.CreatedAt, rec.LastFetchedAt)
	}
	if len(llm.prompts) != 1 || !strings.Contains(llm.prompts[0], "12ロール×6パック") {
		t.Errorf("expected one prompt carrying the title, got %v", llm.prompts)
	}
}

func TestCreateWithoutPrimaryIsDropped(t *testing.T) {
	d := category.ToiletPaper()
	for _, reply := range []string{`{"roll_count": null}`, `{"roll_count": 0, "length_m": 30}`} {
		e := newEngine(&fakeCompleter{reply: reply}, nil, defaultCfg())
		l := &types.RawListing{ID: "A3", Title: "トイレットペーパー お徳用", Price: types.Ptr(800.0), FetchedAt: day1}

		out, err := e.Reconcile(context.Background(), d, nil, l)
		if err != nil {
			t.Fatalf("Reconcile: %v", err)
		}
		if v := out.Record.UnitPrices["price_per_roll"]; v != nil {
			t.Errorf("%s: unit price must be nil without a roll count, got %v", reply, *v)
		}

		_, err = pipeline.ForCategory(d, testLogger).Process(out.Record)
		if !errors.Is(err, types.ErrValidationDrop) {
			t.Errorf("%s: expected record to be dropped, got %v", reply, err)
		}
	}
}

// --- Reuse Tests ---

func TestReuseIsIdempotent(t *testing.T) {
	llm := &fakeCompleter{err: errors.New("must not be called")}
	e := newEngine(llm, nil, defaultCfg())
	d := category.ToiletPaper()
	stored := toiletPaperRecord()

	first, err := e.Reconcile(context.Background(), d, stored, listingFrom(stored, day2))
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Reconcile(context.Background(), d, stored, listingFrom(stored, day2.Add(time.Hour)))
	if err != nil {
		t.Fatal(err)
	}
	if first.Action != ActionReuse || second.Action != ActionReuse {
		t.Fatalf("actions = %s, %s", first.Action, second.Action)
	}
	if !first.Record.LastFetchedAt.Equal(day2) {
		t.Errorf("fetch timestamp not refreshed: %v", first.Record.LastFetchedAt)
	}

	a, b, s := first.Record.Clone(), second.Record.Clone(), stored.Clone()
	for _, r := range []*types.CatalogRecord{a, b, s} {
		r.LastFetchedAt = time.Time{}
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	js, _ := json.Marshal(s)
	if !bytes.Equal(ja, jb) || !bytes.Equal(ja, js) {
		t.Errorf("reuse output differs beyond the fetch timestamp:\n%s\n%s\n%s", ja, jb, js)
	}
	if len(llm.prompts) != 0 {
		t.Errorf("reuse must not call the extractor, got %d calls", len(llm.prompts))
	}
	if stored.LastFetchedAt != day1 {
		t.Error("stored record was mutated")
	}
}

// --- Price Update Tests ---

func TestPriceUpdateKeepsStaticFields(t *testing.T) {
	llm := &fakeCompleter{err: errors.New("must not be called")}
	e := newEngine(llm, nil, config.ReconcileConfig{})
	d := category.ToiletPaper()
	stored := toiletPaperRecord()

	l := &types.RawListing{
		ID:              "A1",
		Title:           "【大特価】トイレットペーパー 18ロール",
		Brand:           "別ブランド",
		ImageURL:        "https://img.example/a1-new.jpg",
		Price:           types.Ptr(1200.0),
		PriceRegular:    types.Ptr(1500.0),
		DiscountPercent: types.Ptr(20),
		OnSale:          true,
		ReviewAvg:       types.Ptr(4.4),
		ReviewCount:     types.Ptr(130),
		FetchedAt:       day2,
	}
	out, err := e.Reconcile(context.Background(), d, stored, l)
	if err != nil {
		t.Fatal(err)
	}
	rec := out.Record
	if out.Action != ActionPriceUpdate {
		t.Fatalf("action = %s", out.Action)
	}

	if rec.Title != stored.Title || rec.Brand != stored.Brand || rec.Description != stored.Description {
		t.Errorf("static text changed: %q %q %q", rec.Title, rec.Brand, rec.Description)
	}
	if !reflect.DeepEqual(rec.Attributes, stored.Attributes) {
		t.Errorf("attributes changed: %v -> %v", stored.Attributes, rec.Attributes)
	}

	if *rec.Price != 1200 || !rec.OnSale || *rec.DiscountPercent != 20 || *rec.ReviewAvg != 4.4 || *rec.ReviewCount != 130 {
		t.Errorf("dynamic fields not adopted: %+v", rec)
	}
	if rec.ImageURL != l.ImageURL {
		t.Errorf("image = %q", rec.ImageURL)
	}
	if got := rec.UnitPrices["price_per_roll"]; got == nil || *got != 16.67 {
		t.Errorf("price_per_roll = %v, want 16.67", got)
	}
	if !rec.CreatedAt.Equal(day1) || !rec.LastFetchedAt.Equal(day2) {
		t.Errorf("timestamps: created %v fetched %v", rec.CreatedAt, rec.LastFetchedAt)
	}
	if *stored.Price != 1000 {
		t.Error("stored record was mutated")
	}
}

// --- Backfill Tests ---

func TestBackfillKeepsKnownCount(t *testing.T) {
	d := category.Mask()
	stored := &types.CatalogRecord{
		ID:    "A2",
		Title: "不織布マスク 個包装",
		Price: types.Ptr(500.0),
		Attributes: types.Attributes{
			"mask_count": int64(8),
			"mask_size":  nil,
			"mask_color": "white",
		},
		CreatedAt:     day1,
		LastFetchedAt: day1,
	}

	llm := &fakeCompleter{reply: `{"mask_count": 30, "mask_size": null, "mask_color": "black"}`}
	e := newEngine(llm, nil, defaultCfg())

	l := &types.RawListing{ID: "A2", Title: stored.Title, Price: types.Ptr(500.0), FetchedAt: day2}
	out, err := e.Reconcile(context.Background(), d, stored, l)
	if err != nil {
		t.Fatal(err)
	}
	if out.Action != ActionBackfill {
		t.Fatalf("action = %s, want backfill", out.Action)
	}
	if len(llm.prompts) != 1 {
		t.Errorf("size should be re-attempted with one extraction, got %d", len(llm.prompts))
	}

	attrs := out.Record.Attributes
	if attrs["mask_count"] != int64(8) {
		t.Errorf("mask_count = %#v, want 8", attrs["mask_count"])
	}
	if attrs["mask_color"] != "white" {
		t.Errorf("known color overwritten: %#v", attrs["mask_color"])
	}
	if attrs.Has("mask_size") {
		t.Errorf("mask_size = %#v, want still unknown", attrs["mask_size"])
	}
	if got := out.Record.UnitPrices["price_per_mask"]; got == nil || *got != 62.5 {
		t.Errorf("price_per_mask = %v, want 62.5", got)
	}
	if stored.Attributes["mask_count"] != int64(8) || stored.Attributes["mask_color"] != "white" {
		t.Error("stored record was mutated")
	}
}

func TestBackfillFillsMissingFields(t *testing.T) {
	d := category.ToiletPaper()
	stored := toiletPaperRecord()
	stored.Attributes["length_m"] = nil
	stored.Attributes["total_length_m"] = nil

	llm := &fakeCompleter{reply: `{"roll_count": 12, "length_m": 50, "is_double": false}`}
	e := newEngine(llm, nil, defaultCfg())

	out, err := e.Reconcile(context.Background(), d, stored, listingFrom(stored, day2))
	if err != nil {
		t.Fatal(err)
	}
	attrs := out.Record.Attributes
	if attrs["roll_count"] != int64(72) || attrs["is_double"] != true {
		t.Errorf("known fields overwritten: %v", attrs)
	}
	if attrs["length_m"] != 50.0 {
		t.Errorf("length_m = %#v, want 50", attrs["length_m"])
	}
	if attrs["total_length_m"] != 3600.0 {
		t.Errorf("total_length_m = %#v, want 3600", attrs["total_length_m"])
	}
	if got := out.Record.UnitPrices["price_per_m"]; got == nil || *got != 0.28 {
		t.Errorf("price_per_m = %v, want 0.28", got)
	}
}

func TestBackfillExtractionFailure(t *testing.T) {
	d := category.Mask()
	stored := &types.CatalogRecord{
		ID:         "A4",
		Title:      "マスク",
		Price:      types.Ptr(300.0),
		Attributes: types.Attributes{"mask_count": int64(50), "mask_color": "gray"},
	}
	e := newEngine(&fakeCompleter{err: errors.New("connection refused")}, nil, defaultCfg())

	out, err := e.Reconcile(context.Background(), d, stored, &types.RawListing{ID: "A4", Title: "マスク", Price: types.Ptr(300.0)})
	if err != nil {
		t.Fatalf("extraction failure must not be fatal: %v", err)
	}
	if !errors.Is(out.ExtractErr, types.ErrExtractionFailure) {
		t.Errorf("ExtractErr = %v", out.ExtractErr)
	}
	if out.Record.Attributes["mask_count"] != int64(50) || out.Record.Attributes["mask_color"] != "gray" {
		t.Errorf("known fields lost: %v", out.Record.Attributes)
	}
}

// --- Verifier Tests ---

func TestVerifierFlagsLargeSwings(t *testing.T) {
	d := category.ToiletPaper()

	tests := []struct {
		name   string
		cfg    config.ReconcileConfig
		price  float64
		onSale bool
		want   bool
	}{
		{"small change", config.ReconcileConfig{ReverifyThreshold: 0.2}, 1100, false, false},
		{"large rise", config.ReconcileConfig{ReverifyThreshold: 0.2}, 1500, false, true},
		{"large drop", config.ReconcileConfig{ReverifyThreshold: 0.2}, 500, false, true},
		{"on sale exempt", config.ReconcileConfig{ReverifyThreshold: 0.2}, 500, true, false},
		{"on sale checked", config.ReconcileConfig{ReverifyThreshold: 0.2, ReverifyOnSale: true}, 500, true, true},
		{"disabled", config.ReconcileConfig{}, 5000, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(&fakeCompleter{}, nil, tt.cfg)
			stored := toiletPaperRecord()
			l := listingFrom(stored, day2)
			l.Price = types.Ptr(tt.price)
			l.OnSale = tt.onSale

			out, err := e.Reconcile(context.Background(), d, stored, l)
			if err != nil {
				t.Fatal(err)
			}
			if out.Action != ActionPriceUpdate {
				t.Errorf("verifier must not change the action, got %s", out.Action)
			}
			if out.Record.NeedsVerification != tt.want {
				t.Errorf("NeedsVerification = %v, want %v", out.Record.NeedsVerification, tt.want)
			}
		})
	}
}

// --- Detail Enrichment Tests ---

func TestCreateFetchesDetailPage(t *testing.T) {
	d := category.MineralWater()
	details := &fakeDetails{detail: &types.RawDetail{
		Brand:       "サントリー",
		Description: "内容量 550ml×24本",
		Features:    []string{"南アルプスの天然水"},
	}}
	llm := &fakeCompleter{reply: `{"volume_ml": 550, "bottle_count": 24}`}
	e := newEngine(llm, details, defaultCfg())

	l := &types.RawListing{ID: "W1", Title: "天然水 ケース", Price: types.Ptr(1980.0), FetchedAt: day1}
	out, err := e.Reconcile(context.Background(), d, nil, l)
	if err != nil {
		t.Fatal(err)
	}
	if details.calls != 1 {
		t.Errorf("detail calls = %d, want 1", details.calls)
	}
	if len(llm.prompts) != 1 || !strings.Contains(llm.prompts[0], "550ml×24本") {
		t.Errorf("prompt should include detail text: %v", llm.prompts)
	}
	if out.Record.Brand != "サントリー" || !strings.Contains(out.Record.Description, "南アルプス") {
		t.Errorf("detail not merged: brand %q desc %q", out.Record.Brand, out.Record.Description)
	}
	if l.Description != "" {
		t.Error("input listing was mutated")
	}
	if got := out.Record.UnitPrices["price_per_bottle"]; got == nil || *got != 82.5 {
		t.Errorf("price_per_bottle = %v, want 82.5", got)
	}
}

func TestDetailFetchErrors(t *testing.T) {
	d := category.MineralWater()
	l := &types.RawListing{ID: "W2", Title: "天然水 2L×6本", Price: types.Ptr(600.0)}

	blocked := &fakeDetails{err: &types.BlockedError{URL: "https://example/dp/W2", Pattern: "validatecaptcha"}}
	e := newEngine(&fakeCompleter{reply: `{}`}, blocked, defaultCfg())
	if _, err := e.Reconcile(context.Background(), d, nil, l); !errors.Is(err, types.ErrFetchBlocked) {
		t.Errorf("blocked detail fetch should be fatal, got %v", err)
	}

	missing := &fakeDetails{err: &types.FetchError{URL: "https://example/dp/W2", StatusCode: 404, Err: errors.New("not found")}}
	llm := &fakeCompleter{reply: `{"volume_ml": 2000, "bottle_count": 6}`}
	e = newEngine(llm, missing, defaultCfg())
	out, err := e.Reconcile(context.Background(), d, nil, l)
	if err != nil {
		t.Fatalf("missing detail page should not be fatal: %v", err)
	}
	if out.Record.Attributes["bottle_count"] != int64(6) {
		t.Errorf("bottle_count = %#v", out.Record.Attributes["bottle_count"])
	}

	e = newEngine(&fakeCompleter{reply: `{}`}, &fakeDetails{err: errors.New("unused")}, defaultCfg())
	if _, err := e.Reconcile(context.Background(), category.Rice(), nil, &types.RawListing{ID: "R1", Title: "米 5kg"}); err != nil {
		t.Errorf("categories without detail pages must not fetch them: %v", err)
	}
}
