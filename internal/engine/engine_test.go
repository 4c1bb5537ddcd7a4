package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/config"
	"github.com/IshaanNene/unitscout/internal/storage"
	"github.com/IshaanNene/unitscout/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeSource struct {
	listings   []*types.RawListing
	listErr    error
	details    map[string]*types.RawDetail
	detailErrs map[string]error
	keywords   []string
}

func (f *fakeSource) FetchListings(_ context.Context, keyword string, _ url.Values) ([]*types.RawListing, error) {
	f.keywords = append(f.keywords, keyword)
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*types.RawListing, len(f.listings))
	for i, l := range f.listings {
		cp := *l
		out[i] = &cp
	}
	return out, nil
}

func (f *fakeSource) FetchDetail(_ context.Context, id string) (*types.RawDetail, error) {
	if err := f.detailErrs[id]; err != nil {
		return nil, err
	}
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return &types.RawDetail{ID: id}, nil
}

// fakeCompleter returns an empty object so heuristics decide, or err.
type fakeCompleter struct {
	err error
}

func (f *fakeCompleter) Complete(context.Context, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "{}", nil
}

type fakeCache struct {
	entries     map[string][]*types.CatalogRecord
	hits        int
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]*types.CatalogRecord)}
}

func (c *fakeCache) Get(_ context.Context, cat, filter string) ([]*types.CatalogRecord, bool, error) {
	records, ok := c.entries[cat+":"+filter]
	if ok {
		c.hits++
	}
	return records, ok, nil
}

func (c *fakeCache) Set(_ context.Context, cat, filter string, records []*types.CatalogRecord) error {
	c.entries[cat+":"+filter] = records
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, cat string) error {
	c.invalidated = append(c.invalidated, cat)
	for k := range c.entries {
		if strings.HasPrefix(k, cat+":") {
			delete(c.entries, k)
		}
	}
	return nil
}

// failingStore rejects every upsert.
type failingStore struct {
	storage.Store
}

func (s failingStore) Upsert(_ context.Context, _ *category.Descriptor, rec *types.CatalogRecord) error {
	return &types.StorageError{Backend: "test", Op: "upsert", ID: rec.ID, Err: errors.New("disk full")}
}

func newStore(t *testing.T) storage.Store {
	t.Helper()
	s, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"), testLogger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newEngine(store storage.Store, llm *fakeCompleter) *Engine {
	return New(config.DefaultConfig(), category.Default(), store, llm, nil, testLogger)
}

func maskListings(now time.Time) []*types.RawListing {
	return []*types.RawListing{
		{ID: "M1", Title: "不織布マスク 60枚 ふつう", Price: types.Ptr(1200.0), ReviewAvg: types.Ptr(4.1), ReviewCount: types.Ptr(30), FetchedAt: now},
		{ID: "M2", Title: "立体マスク 30枚 小さめ", Price: types.Ptr(300.0), ReviewAvg: types.Ptr(3.9), ReviewCount: types.Ptr(12), FetchedAt: now},
		{ID: "M3", Title: "マスクケース 収納", Price: types.Ptr(500.0), FetchedAt: now},
		{ID: "M4", Title: "", Price: types.Ptr(800.0), FetchedAt: now, Missing: []string{types.FieldTitle}},
	}
}

func ids(records []*types.CatalogRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func unitPrice(t *testing.T, r *types.CatalogRecord, field string) float64 {
	t.Helper()
	p := r.UnitPrices[field]
	if p == nil {
		t.Fatalf("%s: %s is nil", r.ID, field)
	}
	return *p
}

// --- Forced Run Tests ---

func TestForcedRunCreatesAndSorts(t *testing.T) {
	store := newStore(t)
	e := newEngine(store, &fakeCompleter{})
	src := &fakeSource{listings: maskListings(time.Now())}

	res, err := e.Run(context.Background(), src, "mask", RunOptions{Force: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Status != StatusSuccess {
		t.Errorf("status = %s, want success", res.Status)
	}
	if res.New != 2 || res.Updated != 0 || res.Dropped != 2 || res.Incomplete != 1 {
		t.Errorf("counts new=%d updated=%d dropped=%d incomplete=%d", res.New, res.Updated, res.Dropped, res.Incomplete)
	}
	if got := ids(res.Products); strings.Join(got, ",") != "M2,M1" {
		t.Errorf("order = %v, want [M2 M1]", got)
	}
	if res.Count != len(res.Products) {
		t.Errorf("count = %d, products = %d", res.Count, len(res.Products))
	}
	if res.RunID == "" || res.FromCache {
		t.Errorf("run_id=%q from_cache=%v", res.RunID, res.FromCache)
	}
	if src.keywords[0] != "マスク" {
		t.Errorf("keyword = %q, want category default", src.keywords[0])
	}
	if got := unitPrice(t, res.Products[0], "price_per_mask"); got != 10 {
		t.Errorf("M2 price_per_mask = %v, want 10", got)
	}
	for _, r := range res.Products {
		if r.TotalScore == nil {
			t.Errorf("%s not scored", r.ID)
		}
	}

	stored, err := store.Load(context.Background(), category.Mask())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(stored) != 2 || stored["M3"] != nil {
		t.Errorf("stored = %v, want M1 and M2 only", stored)
	}
}

func TestForcedRunToiletPaperUnitPrices(t *testing.T) {
	store := newStore(t)
	e := newEngine(store, &fakeCompleter{})
	now := time.Now()
	src := &fakeSource{listings: []*types.RawListing{
		{ID: "A1", Title: "スコッティ トイレットペーパー 12ロール×6パック 25m ダブル", Price: types.Ptr(1000.0), FetchedAt: now},
		{ID: "B1", Title: "トイレットペーパーホルダー ステンレス", Price: types.Ptr(1500.0), FetchedAt: now},
	}}

	res, err := e.Run(context.Background(), src, "toilet_paper", RunOptions{Force: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Count != 1 || res.Dropped != 1 {
		t.Fatalf("count = %d, dropped = %d", res.Count, res.Dropped)
	}

	a1 := res.Products[0]
	if got, _ := a1.Attributes.Float("roll_count"); got != 72 {
		t.Errorf("roll_count = %v, want 72", got)
	}
	if got := unitPrice(t, a1, "price_per_roll"); got != 13.89 {
		t.Errorf("price_per_roll = %v, want 13.89", got)
	}
	if got := unitPrice(t, a1, "price_per_m"); got != 0.56 {
		t.Errorf("price_per_m = %v, want 0.56", got)
	}

	stored, err := store.Load(context.Background(), category.ToiletPaper())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := stored["B1"]; ok {
		t.Error("dropped listing was persisted")
	}
}

func TestForcedRunReusesAndUpdates(t *testing.T) {
	store := newStore(t)
	e := newEngine(store, &fakeCompleter{})
	ctx := context.Background()

	src := &fakeSource{listings: maskListings(time.Now())}
	if _, err := e.Run(ctx, src, "mask", RunOptions{Force: true}); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	src.listings[0].Price = types.Ptr(1500.0)
	res, err := e.Run(ctx, src, "mask", RunOptions{Force: true, Keyword: "不織布マスク"})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if res.New != 0 || res.Updated != 2 || res.Reused != 1 {
		t.Errorf("counts new=%d updated=%d reused=%d", res.New, res.Updated, res.Reused)
	}
	if src.keywords[1] != "不織布マスク" {
		t.Errorf("keyword override = %q", src.keywords[1])
	}

	var m1 *types.CatalogRecord
	for _, r := range res.Products {
		if r.ID == "M1" {
			m1 = r
		}
	}
	if m1 == nil {
		t.Fatal("M1 missing from products")
	}
	if got := unitPrice(t, m1, "price_per_mask"); got != 25 {
		t.Errorf("M1 price_per_mask = %v, want 25", got)
	}
	if !m1.NeedsVerification {
		t.Error("25% unit price swing should need verification")
	}
}

func TestForcedRunFilters(t *testing.T) {
	store := newStore(t)
	e := newEngine(store, &fakeCompleter{})

	src := &fakeSource{listings: maskListings(time.Now())}
	res, err := e.Run(context.Background(), src, "mask", RunOptions{Force: true, Filter: "large_pack"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := ids(res.Products); len(got) != 1 || got[0] != "M1" {
		t.Errorf("large_pack = %v, want [M1]", got)
	}
	if res.New != 2 {
		t.Errorf("new = %d; filtering must not limit persistence", res.New)
	}
}

// --- Stored Catalog Tests ---

func TestNonForcedRunUsesCacheAndStore(t *testing.T) {
	store := newStore(t)
	cache := newFakeCache()
	e := newEngine(store, &fakeCompleter{})
	e.SetCache(cache)
	ctx := context.Background()

	res, err := e.Run(ctx, nil, "mask", RunOptions{})
	if err != nil {
		t.Fatalf("Run on empty catalog: %v", err)
	}
	if !res.FromCache || res.Count != 0 || res.Products == nil {
		t.Errorf("empty result = %+v", res)
	}

	src := &fakeSource{listings: maskListings(time.Now())}
	if _, err := e.Run(ctx, src, "mask", RunOptions{Force: true}); err != nil {
		t.Fatalf("forced Run: %v", err)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "mask" {
		t.Errorf("invalidated = %v", cache.invalidated)
	}

	res, err = e.Run(ctx, nil, "mask", RunOptions{Filter: "small_pack"})
	if err != nil {
		t.Fatalf("Run small_pack: %v", err)
	}
	if got := ids(res.Products); len(got) != 1 || got[0] != "M2" {
		t.Errorf("small_pack = %v, want [M2]", got)
	}
	if cache.hits != 0 {
		t.Errorf("hits = %d before cache was filled", cache.hits)
	}

	res, err = e.Run(ctx, nil, "mask", RunOptions{Filter: "small_pack"})
	if err != nil {
		t.Fatalf("cached Run: %v", err)
	}
	if cache.hits != 1 || len(res.Products) != 1 {
		t.Errorf("hits = %d, products = %d", cache.hits, len(res.Products))
	}
}

func TestRunRejectsUnknownNames(t *testing.T) {
	e := newEngine(newStore(t), &fakeCompleter{})
	ctx := context.Background()

	if _, err := e.Run(ctx, nil, "bread", RunOptions{}); !errors.Is(err, types.ErrUnknownCategory) {
		t.Errorf("unknown category err = %v", err)
	}
	if _, err := e.Run(ctx, nil, "mask", RunOptions{Filter: "musenmai"}); !errors.Is(err, types.ErrUnknownFilter) {
		t.Errorf("unknown filter err = %v", err)
	}
	if _, err := e.Run(ctx, nil, "mask", RunOptions{Force: true}); err == nil {
		t.Error("forced run without source should fail")
	}
}

func TestRunAll(t *testing.T) {
	e := newEngine(newStore(t), &fakeCompleter{})

	results, err := e.RunAll(context.Background(), nil, RunOptions{})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	want := category.Default().Names()
	if len(results) != len(want) {
		t.Fatalf("results = %d, want %d", len(results), len(want))
	}
	for i, r := range results {
		if r.Category != want[i] {
			t.Errorf("results[%d] = %s, want %s", i, r.Category, want[i])
		}
	}
}

func TestRunAllSkipsCategoriesWithoutFilter(t *testing.T) {
	e := newEngine(newStore(t), &fakeCompleter{})

	results, err := e.RunAll(context.Background(), nil, RunOptions{Filter: "single"})
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != 1 || results[0].Category != "toilet_paper" {
		t.Errorf("results = %+v, want toilet_paper only", results)
	}

	if _, err := e.RunAll(context.Background(), nil, RunOptions{Filter: "bogus"}); !errors.Is(err, types.ErrUnknownFilter) {
		t.Errorf("filter defined nowhere err = %v", err)
	}
}

// --- Failure Tests ---

func TestBlockedListingFetch(t *testing.T) {
	e := newEngine(newStore(t), &fakeCompleter{})
	src := &fakeSource{listErr: &types.BlockedError{URL: "https://example.test/s", Pattern: "captcha"}}

	res, err := e.Run(context.Background(), src, "mask", RunOptions{Force: true})
	if !errors.Is(err, types.ErrFetchBlocked) {
		t.Fatalf("err = %v, want blocked", err)
	}
	if res == nil || res.Status != StatusBlocked || res.Count != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestBlockedDetailKeepsEarlierRecords(t *testing.T) {
	store := newStore(t)
	e := newEngine(store, &fakeCompleter{})
	now := time.Now()
	src := &fakeSource{
		listings: []*types.RawListing{
			{ID: "W1", Title: "天然水", Price: types.Ptr(1980.0), FetchedAt: now},
			{ID: "W2", Title: "天然水 2L×9本", Price: types.Ptr(1000.0), FetchedAt: now},
		},
		details: map[string]*types.RawDetail{
			"W1": {ID: "W1", Description: "500ml×24本"},
		},
		detailErrs: map[string]error{
			"W2": &types.BlockedError{URL: "https://example.test/dp/W2", Pattern: "captcha"},
		},
	}

	res, err := e.Run(context.Background(), src, "mineral_water", RunOptions{Force: true})
	if !errors.Is(err, types.ErrFetchBlocked) {
		t.Fatalf("err = %v, want blocked", err)
	}
	if res.Status != StatusBlocked {
		t.Errorf("status = %s, want blocked", res.Status)
	}

	stored, err := store.Load(context.Background(), category.MineralWater())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(stored) != 1 || stored["W1"] == nil {
		t.Fatalf("stored = %v, want W1 only", stored)
	}
	if got := unitPrice(t, stored["W1"], "price_per_bottle"); got != 82.5 {
		t.Errorf("price_per_bottle = %v, want 82.5", got)
	}
}

func TestExtractionFailureIsPartial(t *testing.T) {
	e := newEngine(newStore(t), &fakeCompleter{err: errors.New("model unavailable")})
	src := &fakeSource{listings: maskListings(time.Now())}

	res, err := e.Run(context.Background(), src, "mask", RunOptions{Force: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusPartial {
		t.Errorf("status = %s, want partial", res.Status)
	}
	if res.ExtractionFailures != 3 {
		t.Errorf("extraction failures = %d, want 3", res.ExtractionFailures)
	}
	if res.Count != 2 {
		t.Errorf("count = %d; heuristics should still yield 2 records", res.Count)
	}
}

func TestPersistFailureIsPartial(t *testing.T) {
	e := newEngine(failingStore{Store: newStore(t)}, &fakeCompleter{})
	src := &fakeSource{listings: maskListings(time.Now())}

	res, err := e.Run(context.Background(), src, "mask", RunOptions{Force: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusPartial || res.PersistFailures != 2 {
		t.Errorf("status = %s, persist failures = %d", res.Status, res.PersistFailures)
	}
	if res.Count != 2 {
		t.Errorf("count = %d; unpersisted records are still reported", res.Count)
	}
}
