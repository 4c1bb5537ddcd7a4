// Package engine drives the per-category workflow: fetch, reconcile,
// process, score, persist, filter and sort.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/config"
	"github.com/IshaanNene/unitscout/internal/extract"
	"github.com/IshaanNene/unitscout/internal/observability"
	"github.com/IshaanNene/unitscout/internal/pipeline"
	"github.com/IshaanNene/unitscout/internal/pricing"
	"github.com/IshaanNene/unitscout/internal/reconcile"
	"github.com/IshaanNene/unitscout/internal/scoring"
	"github.com/IshaanNene/unitscout/internal/storage"
	"github.com/IshaanNene/unitscout/internal/types"
)

// Status summarises how a run ended.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusBlocked Status = "blocked"
)

// Source is the listing source, normally a fetcher.Session.
type Source interface {
	FetchListings(ctx context.Context, keyword string, params url.Values) ([]*types.RawListing, error)
	FetchDetail(ctx context.Context, id string) (*types.RawDetail, error)
}

// Cache holds query results between forced runs.
type Cache interface {
	Get(ctx context.Context, category, filter string) ([]*types.CatalogRecord, bool, error)
	Set(ctx context.Context, category, filter string, records []*types.CatalogRecord) error
	Invalidate(ctx context.Context, category string) error
}

// RunOptions are the workflow trigger parameters.
type RunOptions struct {
	// Force re-scrapes instead of serving the stored catalog.
	Force bool
	// Keyword overrides the category's search keyword.
	Keyword string
	// Filter names a predicate registered on the category.
	Filter category.Filter
}

// Result is the envelope returned for every run, including failed ones.
type Result struct {
	RunID              string                 `json:"run_id"`
	Category           string                 `json:"category"`
	Status             Status                 `json:"status"`
	Count              int                    `json:"count"`
	New                int                    `json:"new"`
	Updated            int                    `json:"updated"`
	Reused             int                    `json:"reused"`
	Backfilled         int                    `json:"backfilled"`
	Dropped            int                    `json:"dropped"`
	Incomplete         int                    `json:"incomplete"`
	ExtractionFailures int                    `json:"extraction_failures"`
	PersistFailures    int                    `json:"persist_failures"`
	Products           []*types.CatalogRecord `json:"products"`
	FromCache          bool                   `json:"from_cache"`
	// Time is the run duration in seconds.
	Time float64 `json:"time"`
}

// Engine runs category workflows against one store.
type Engine struct {
	cfg       *config.Config
	registry  *category.Registry
	store     storage.Store
	cache     Cache
	extractor *extract.Extractor
	scorer    *scoring.Scorer
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// New creates an Engine. llm may be nil, in which case extraction always
// falls back to heuristics and defaults.
func New(cfg *config.Config, registry *category.Registry, store storage.Store, llm extract.Completer, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		registry:  registry,
		store:     store,
		extractor: extract.NewExtractor(llm, metrics, logger),
		scorer:    scoring.New(cfg.Scoring),
		metrics:   metrics,
		logger:    logger.With("component", "engine"),
	}
}

// SetCache enables the result cache.
func (e *Engine) SetCache(c Cache) {
	e.cache = c
}

// Run executes one category workflow. src is only used for forced runs
// and may be nil otherwise. A FetchBlocked error is returned together with
// a result whose status is StatusBlocked.
func (e *Engine) Run(ctx context.Context, src Source, name string, opts RunOptions) (*Result, error) {
	d, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	conds, err := d.Conditions(opts.Filter)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := &Result{
		RunID:    uuid.NewString(),
		Category: d.Name,
		Status:   StatusSuccess,
	}
	logger := e.logger.With("run_id", res.RunID, "category", d.Name)

	if err := e.store.Ensure(ctx, d); err != nil {
		return nil, fmt.Errorf("prepare %s catalog: %w", d.Name, err)
	}

	if !opts.Force {
		products, err := e.cached(ctx, logger, d, conds, opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("query %s catalog: %w", d.Name, err)
		}
		res.Products = products
		res.Count = len(products)
		res.FromCache = true
		e.finish(logger, res, start)
		return res, nil
	}

	if src == nil {
		return nil, errors.New("forced run requires a listing source")
	}
	runErr := e.scrape(ctx, logger, src, d, conds, opts, res)
	e.finish(logger, res, start)
	if runErr != nil {
		return res, fmt.Errorf("%s run: %w", d.Name, runErr)
	}
	return res, nil
}

// RunAll runs every registered category in order, one after another. A
// failed category does not stop the rest unless ctx is done. With a filter
// set, categories that do not define it are skipped; ErrUnknownFilter is
// returned only when no category defines it.
func (e *Engine) RunAll(ctx context.Context, src Source, opts RunOptions) ([]*Result, error) {
	opts.Keyword = ""

	var (
		results []*Result
		errs    []error
		matched bool
	)
	for _, d := range e.registry.All() {
		if _, err := d.Conditions(opts.Filter); err != nil {
			e.logger.Debug("category skipped", "category", d.Name, "filter", opts.Filter)
			continue
		}
		matched = true

		res, err := e.Run(ctx, src, d.Name, opts)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w %q for any category", types.ErrUnknownFilter, opts.Filter)
	}
	return results, errors.Join(errs...)
}

// cached serves a non-forced run from the cache, falling back to the store
// and filling the cache.
func (e *Engine) cached(ctx context.Context, logger *slog.Logger, d *category.Descriptor, conds []category.Condition, filter category.Filter) ([]*types.CatalogRecord, error) {
	if e.cache != nil {
		records, ok, err := e.cache.Get(ctx, d.Name, string(filter))
		switch {
		case err != nil:
			logger.Warn("cache read failed", "error", err)
		case ok:
			for _, r := range records {
				d.Coerce(r.Attributes)
			}
			logger.Debug("served from cache", "filter", filter, "count", len(records))
			return records, nil
		}
	}

	records, err := e.store.Query(ctx, d, conds)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.Set(ctx, d.Name, string(filter), records); err != nil {
			logger.Warn("cache write failed", "error", err)
		}
	}
	return records, nil
}

// scrape performs a forced run and fills res. The returned error is fatal:
// a blocked or failed fetch, a store load failure, or cancellation.
func (e *Engine) scrape(ctx context.Context, logger *slog.Logger, src Source, d *category.Descriptor, conds []category.Condition, opts RunOptions, res *Result) error {
	keyword := opts.Keyword
	if keyword == "" {
		keyword = d.Keyword
	}

	listings, err := src.FetchListings(ctx, keyword, d.SearchParams)
	if err != nil {
		res.Status = statusFor(err)
		return err
	}
	logger.Info("listings fetched", "keyword", keyword, "count", len(listings))

	existing, err := e.store.Load(ctx, d)
	if err != nil {
		res.Status = StatusPartial
		return fmt.Errorf("load catalog: %w", err)
	}

	rec := reconcile.New(e.extractor, src, e.cfg.Reconcile, e.metrics, logger)
	pipe := pipeline.ForCategory(d, logger)

	var (
		records []*types.CatalogRecord
		runErr  error
	)
	for _, l := range listings {
		if err := l.Check(); errors.Is(err, types.ErrParseIncomplete) {
			res.Incomplete++
			logger.Debug("incomplete listing", "error", err)
		}
		if strings.TrimSpace(l.Title) == "" {
			res.Dropped++
			e.metrics.Dropped(d.Name, "no_title")
			continue
		}

		out, err := rec.Reconcile(ctx, d, existing[l.ID], l)
		if err != nil {
			runErr = err
			logger.Error("run aborted", "asin", l.ID, "error", err)
			break
		}
		if out.ExtractErr != nil {
			res.ExtractionFailures++
		}

		r, err := pipe.Process(out.Record)
		if err != nil {
			var pe *types.PipelineError
			stage := "pipeline"
			if errors.As(err, &pe) {
				stage = pe.Stage
			}
			res.Dropped++
			e.metrics.Dropped(d.Name, stage)
			logger.Debug("listing dropped", "asin", l.ID, "stage", stage, "action", out.Action)
			continue
		}

		switch out.Action {
		case reconcile.ActionCreate:
			res.New++
		case reconcile.ActionReuse:
			res.Reused++
			res.Updated++
		case reconcile.ActionPriceUpdate:
			res.Updated++
		case reconcile.ActionBackfill:
			res.Backfilled++
			res.Updated++
		}
		records = append(records, r)
	}

	e.scorer.ScoreBatch(records, d.ScoreField)
	for _, r := range records {
		if err := e.store.Upsert(ctx, d, r); err != nil {
			res.PersistFailures++
			e.metrics.PersistFailed(d.Name)
			logger.Error("persist failed", "asin", r.ID, "error", err)
		}
	}

	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, d.Name); err != nil {
			logger.Warn("cache invalidation failed", "error", err)
		}
	}

	products := category.Apply(conds, records)
	category.SortByUnitPrice(products, d.ScoreField)
	res.Products = products
	res.Count = len(products)

	switch {
	case runErr != nil:
		res.Status = statusFor(runErr)
	case res.PersistFailures > 0 || res.ExtractionFailures > 0:
		res.Status = StatusPartial
	}
	return runErr
}

func (e *Engine) finish(logger *slog.Logger, res *Result, start time.Time) {
	elapsed := time.Since(start)
	res.Time = pricing.Round2(elapsed.Seconds())
	if res.Products == nil {
		res.Products = []*types.CatalogRecord{}
	}
	e.metrics.RunFinished(res.Category, string(res.Status), elapsed)

	logger.Info("run finished",
		"status", res.Status,
		"count", res.Count,
		"new", res.New,
		"updated", res.Updated,
		"dropped", res.Dropped,
		"from_cache", res.FromCache,
		"elapsed", elapsed.Round(time.Millisecond),
	)
}

func statusFor(err error) Status {
	if errors.Is(err, types.ErrFetchBlocked) {
		return StatusBlocked
	}
	return StatusPartial
}
