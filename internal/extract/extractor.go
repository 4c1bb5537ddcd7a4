// Package extract turns unstructured listing text into the typed attribute
// set a category declares, through a language model with heuristic and
// default fallbacks.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/observability"
	"github.com/IshaanNene/unitscout/internal/types"
)

var errNoObject = errors.New("no JSON object in response")

// Result is the outcome of one extraction. Attributes is never nil; Err is
// a *types.ExtractionError when the service call or its reply failed.
type Result struct {
	Attributes types.Attributes
	Err        error
}

// Extractor maps listings onto category attribute sets.
type Extractor struct {
	llm     Completer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewExtractor creates an extractor over the given completer.
func NewExtractor(llm Completer, metrics *observability.Metrics, logger *slog.Logger) *Extractor {
	return &Extractor{
		llm:     llm,
		metrics: metrics,
		logger:  logger.With("component", "extractor"),
	}
}

// Extract asks the model for the category's fields, fills whatever is still
// missing from the listing text heuristics and then from defaults, and runs
// the category post-processing.
func (e *Extractor) Extract(ctx context.Context, d *category.Descriptor, l *types.RawListing) Result {
	attrs, err := e.ask(ctx, d, l)
	if err != nil {
		err = &types.ExtractionError{Category: d.Name, ID: l.ID, Err: err}
		e.metrics.Extraction(d.Name, "error")
		e.logger.Warn("extraction failed, using fallbacks", "category", d.Name, "asin", l.ID, "error", err)
	} else {
		e.metrics.Extraction(d.Name, "ok")
	}

	if d.Heuristic != nil {
		d.Heuristic(l.Text(), attrs)
	}
	d.ApplyDefaults(attrs)
	d.Finish(attrs)

	return Result{Attributes: attrs, Err: err}
}

// ask returns the coerced declared fields. On error the attribute set holds
// every declared field as nil.
func (e *Extractor) ask(ctx context.Context, d *category.Descriptor, l *types.RawListing) (types.Attributes, error) {
	attrs := make(types.Attributes, len(d.Fields))
	for _, f := range d.Fields {
		attrs[f.Name] = nil
	}
	if e.llm == nil {
		return attrs, errors.New("no extraction service configured")
	}

	reply, err := e.llm.Complete(ctx, d.BuildPrompt(l.Title, l.Description))
	if err != nil {
		return attrs, err
	}

	parsed, err := Decode(reply)
	if err != nil {
		e.logger.Debug("unparseable extraction reply", "asin", l.ID, "reply", truncate(reply, 200))
		return attrs, err
	}

	for _, f := range d.Fields {
		if v, ok := f.Coerce(parsed[f.Name]); ok {
			attrs[f.Name] = v
		}
	}
	return attrs, nil
}

// Decode parses the first JSON object embedded in a model reply.
func Decode(reply string) (map[string]any, error) {
	obj, ok := FirstObject(reply)
	if !ok {
		return nil, errNoObject
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return parsed, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
