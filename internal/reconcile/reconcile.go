// Package reconcile merges freshly scraped listings into the stored catalog.
//
// Each listing is matched by identifier against the preloaded catalog and
// resolved to exactly one of four actions:
//
//	CREATE        not in the catalog; extract attributes and build a record
//	REUSE         complete and the price is unchanged; keep the stored record
//	PRICE_UPDATE  complete but repriced; adopt dynamic fields only
//	BACKFILL      a required attribute is missing; extract and fill the gaps
//
// Dropping records without a primary quantity is left to the record pipeline.
package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/config"
	"github.com/IshaanNene/unitscout/internal/extract"
	"github.com/IshaanNene/unitscout/internal/observability"
	"github.com/IshaanNene/unitscout/internal/pricing"
	"github.com/IshaanNene/unitscout/internal/types"
)

// Action is the reconciliation decision for one listing.
type Action string

const (
	ActionCreate      Action = "create"
	ActionReuse       Action = "reuse"
	ActionPriceUpdate Action = "price_update"
	ActionBackfill    Action = "backfill"
)

// Extractor produces attributes for a listing. It never fails outright; a
// failed service call is reported in the result alongside fallback values.
type Extractor interface {
	Extract(ctx context.Context, d *category.Descriptor, l *types.RawListing) extract.Result
}

// DetailSource fetches product detail pages.
type DetailSource interface {
	FetchDetail(ctx context.Context, id string) (*types.RawDetail, error)
}

// Outcome is the result of reconciling one listing.
type Outcome struct {
	Action Action
	Record *types.CatalogRecord
	// ExtractErr is set when CREATE or BACKFILL fell back to defaults.
	ExtractErr error
}

// Engine applies the reconciliation policy.
type Engine struct {
	extractor Extractor
	details   DetailSource
	verifier  *Verifier
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// New creates an Engine. details may be nil when no category needs detail
// pages.
func New(ex Extractor, details DetailSource, cfg config.ReconcileConfig, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		extractor: ex,
		details:   details,
		verifier:  NewVerifier(cfg),
		metrics:   metrics,
		logger:    logger.With("component", "reconcile"),
	}
}

// Decide returns the action for a listing given its stored record, which is
// nil when the identifier is not in the catalog.
func Decide(d *category.Descriptor, stored *types.CatalogRecord, l *types.RawListing) Action {
	switch {
	case stored == nil:
		return ActionCreate
	case len(d.MissingRequired(stored.Attributes)) > 0:
		return ActionBackfill
	case types.SameFloat(stored.Price, l.Price):
		return ActionReuse
	default:
		return ActionPriceUpdate
	}
}

// Reconcile resolves one listing against its stored record. The returned
// error is fatal to the run: a blocked or cancelled detail fetch.
func (e *Engine) Reconcile(ctx context.Context, d *category.Descriptor, stored *types.CatalogRecord, l *types.RawListing) (Outcome, error) {
	action := Decide(d, stored, l)

	var (
		out Outcome
		err error
	)
	switch action {
	case ActionCreate:
		out, err = e.create(ctx, d, l)
	case ActionReuse:
		out = e.reuse(stored, l)
	case ActionPriceUpdate:
		out = e.priceUpdate(d, stored, l)
	case ActionBackfill:
		out, err = e.backfill(ctx, d, stored, l)
	}
	if err != nil {
		return Outcome{Action: action}, err
	}

	out.Action = action
	e.metrics.Reconciled(d.Name, string(action))
	e.logger.Debug("listing reconciled", "category", d.Name, "asin", l.ID, "action", action)
	return out, nil
}

func (e *Engine) create(ctx context.Context, d *category.Descriptor, l *types.RawListing) (Outcome, error) {
	src, err := e.enrich(ctx, d, l)
	if err != nil {
		return Outcome{}, err
	}

	res := e.extractor.Extract(ctx, d, src)
	rec := types.NewRecordFromListing(src)
	rec.Attributes = res.Attributes
	pricing.Apply(d, rec)

	return Outcome{Record: rec, ExtractErr: res.Err}, nil
}

func (e *Engine) reuse(stored *types.CatalogRecord, l *types.RawListing) Outcome {
	rec := stored.Clone()
	rec.LastFetchedAt = l.FetchedAt
	return Outcome{Record: rec}
}

func (e *Engine) priceUpdate(d *category.Descriptor, stored *types.CatalogRecord, l *types.RawListing) Outcome {
	before := stored.Clone()
	pricing.Apply(d, before)

	rec := stored.Clone()
	rec.AdoptDynamic(l)
	pricing.Apply(d, rec)

	swing, flagged := e.verifier.Check(d, before, rec)
	rec.NeedsVerification = flagged
	if flagged {
		e.logger.Warn("large price swing, flagged for verification",
			"category", d.Name,
			"asin", l.ID,
			"field", d.ScoreField,
			"swing", swing,
			"on_sale", l.OnSale,
		)
	}
	return Outcome{Record: rec}
}

func (e *Engine) backfill(ctx context.Context, d *category.Descriptor, stored *types.CatalogRecord, l *types.RawListing) (Outcome, error) {
	src, err := e.enrich(ctx, d, l)
	if err != nil {
		return Outcome{}, err
	}

	res := e.extractor.Extract(ctx, d, src)
	rec := stored.Clone()
	if rec.Attributes == nil {
		rec.Attributes = make(types.Attributes)
	}

	var filled []string
	for _, f := range d.Fields {
		if rec.Attributes.Has(f.Name) || !res.Attributes.Has(f.Name) {
			continue
		}
		rec.Attributes[f.Name] = res.Attributes[f.Name]
		filled = append(filled, f.Name)
	}
	d.Finish(rec.Attributes)

	if rec.Title == "" {
		rec.Title = src.Title
	}
	if rec.Brand == "" {
		rec.Brand = src.Brand
	}
	if rec.Description == "" {
		rec.Description = src.Description
	}
	rec.AdoptDynamic(l)
	pricing.Apply(d, rec)

	e.logger.Debug("backfilled attributes", "category", d.Name, "asin", l.ID, "filled", filled)
	return Outcome{Record: rec, ExtractErr: res.Err}, nil
}

// enrich returns a copy of l extended with its detail page when the
// category asks for one. Detail failures other than blocks and cancellation
// are logged and the listing is used as scraped.
func (e *Engine) enrich(ctx context.Context, d *category.Descriptor, l *types.RawListing) (*types.RawListing, error) {
	cp := *l
	if !d.FetchDetail || e.details == nil {
		return &cp, nil
	}

	detail, err := e.details.FetchDetail(ctx, l.ID)
	if err != nil {
		if errors.Is(err, types.ErrFetchBlocked) || ctx.Err() != nil {
			return nil, err
		}
		e.logger.Warn("detail page unavailable", "category", d.Name, "asin", l.ID, "error", err)
		return &cp, nil
	}
	cp.ApplyDetail(detail)
	return &cp, nil
}
