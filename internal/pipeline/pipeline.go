package pipeline

import (
	"log/slog"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/types"
)

// Middleware processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop the record.
	Process(rec *types.CatalogRecord) (*types.CatalogRecord, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger: logger.With("component", "pipeline"),
	}
}

// ForCategory builds the standard record pipeline for a category: trim,
// schema coercion, primary-quantity drop, category rejection, unit prices.
func ForCategory(d *category.Descriptor, logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&TrimMiddleware{})
	p.Use(&SchemaMiddleware{Descriptor: d})
	p.Use(&PrimaryQuantityMiddleware{Descriptor: d})
	p.Use(&RejectMiddleware{Descriptor: d})
	p.Use(&UnitPriceMiddleware{Descriptor: d})
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order. A dropped record
// yields a *types.PipelineError wrapping types.ErrValidationDrop.
func (p *Pipeline) Process(rec *types.CatalogRecord) (*types.CatalogRecord, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{Stage: mw.Name(), ID: rec.ID, Err: err}
		}
		if result == nil {
			p.logger.Debug("record dropped", "stage", mw.Name(), "asin", rec.ID)
			return nil, &types.PipelineError{Stage: mw.Name(), ID: rec.ID, Err: types.ErrValidationDrop}
		}
		current = result
	}

	return current, nil
}
