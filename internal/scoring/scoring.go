// Package scoring blends review confidence and batch-relative price into a
// single 0-5 ranking value.
package scoring

import (
	"math"

	"github.com/IshaanNene/unitscout/internal/config"
	"github.com/IshaanNene/unitscout/internal/pricing"
	"github.com/IshaanNene/unitscout/internal/types"
)

const (
	MaxScore        = 5.0
	degeneratePrice = 2.5
)

// Scorer holds the scoring parameters.
type Scorer struct {
	// Confidence is the pseudo-count C given to the prior.
	Confidence float64
	// PriorMean is m, the rating assumed for unreviewed items.
	PriorMean    float64
	ReviewWeight float64
	PriceWeight  float64
}

// New creates a Scorer from configuration.
func New(cfg config.ScoringConfig) *Scorer {
	return &Scorer{
		Confidence:   cfg.Confidence,
		PriorMean:    cfg.PriorMean,
		ReviewWeight: cfg.ReviewWeight,
		PriceWeight:  cfg.PriceWeight,
	}
}

// Default returns a Scorer with C=10, m=3.5 and 0.7/0.3 weights.
func Default() *Scorer {
	return New(config.DefaultConfig().Scoring)
}

// AdjustedReview returns (n*avg + C*m) / (n + C), or exactly m when there
// are no reviews or no average.
func (s *Scorer) AdjustedReview(n int, avg *float64) float64 {
	if n <= 0 || avg == nil {
		return s.PriorMean
	}
	fn := float64(n)
	return (fn**avg + s.Confidence*s.PriorMean) / (fn + s.Confidence)
}

// PriceScores maps each price to (max - p) / (max - min) * 5 over the
// positive values. Absent or non-positive prices stay nil so those items
// are scored on reviews alone. When every positive price is equal each
// scores 2.5.
func (s *Scorer) PriceScores(prices []*float64) []*float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range prices {
		if p == nil || *p <= 0 {
			continue
		}
		lo = math.Min(lo, *p)
		hi = math.Max(hi, *p)
	}

	out := make([]*float64, len(prices))
	for i, p := range prices {
		if p == nil || *p <= 0 {
			continue
		}
		v := degeneratePrice
		if hi > lo {
			v = (hi - *p) / (hi - lo) * MaxScore
		}
		out[i] = &v
	}
	return out
}

// Total blends the two scores and clamps to [0, 5]. Without a price score
// the review score stands alone.
func (s *Scorer) Total(adjusted float64, priceScore *float64) float64 {
	if priceScore == nil {
		return clamp(adjusted)
	}
	return clamp(adjusted*s.ReviewWeight + *priceScore*s.PriceWeight)
}

// ScoreBatch sets TotalScore on every record using the batch's spread of
// priceField.
func (s *Scorer) ScoreBatch(records []*types.CatalogRecord, priceField string) {
	prices := make([]*float64, len(records))
	for i, r := range records {
		prices[i] = r.UnitPrices[priceField]
	}
	priceScores := s.PriceScores(prices)

	for i, r := range records {
		reviews := 0
		if r.ReviewCount != nil {
			reviews = *r.ReviewCount
		}
		total := pricing.Round2(s.Total(s.AdjustedReview(reviews, r.ReviewAvg), priceScores[i]))
		r.TotalScore = &total
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(MaxScore, v))
}
