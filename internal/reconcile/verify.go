package reconcile

import (
	"math"

	"github.com/IshaanNene/unitscout/internal/category"
	"github.com/IshaanNene/unitscout/internal/config"
	"github.com/IshaanNene/unitscout/internal/types"
)

// Verifier flags repriced records whose score unit price moved by more than
// a relative threshold. It never changes the reconciliation action.
type Verifier struct {
	// Threshold is the relative change that triggers a flag; 0 disables.
	Threshold float64
	// OnSale also checks listings currently marked on sale.
	OnSale bool
}

// NewVerifier creates a Verifier from config.
func NewVerifier(cfg config.ReconcileConfig) *Verifier {
	return &Verifier{
		Threshold: cfg.ReverifyThreshold,
		OnSale:    cfg.ReverifyOnSale,
	}
}

// Check compares the score unit price before and after a price update and
// returns the relative swing and whether it needs verification.
func (v *Verifier) Check(d *category.Descriptor, before, after *types.CatalogRecord) (float64, bool) {
	if v == nil || v.Threshold <= 0 {
		return 0, false
	}
	if after.OnSale && !v.OnSale {
		return 0, false
	}

	old, okOld := types.AsFloat(before.Value(d.ScoreField))
	cur, okCur := types.AsFloat(after.Value(d.ScoreField))
	if !okOld || !okCur || old <= 0 {
		return 0, false
	}

	swing := math.Abs(cur-old) / old
	return swing, swing >= v.Threshold
}
