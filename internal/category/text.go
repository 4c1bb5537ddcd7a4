package category

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/IshaanNene/unitscout/internal/types"
)

var (
	numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

	// Bundle multiplier such as "×3個", "x 6パック" or "×6 packs".
	bundleRe = regexp.MustCompile(`(?i)[×x*]\s*(\d+)\s*(?:個|本|袋|パック|箱|セット|ケース|packs?)`)

	unitReplacer = strings.NewReplacer(
		"㎏", "kg", "㎖", "ml", "ℓ", "L",
		"✕", "×", "╳", "×", "＊", "*",
	)
)

// Normalize folds full-width ASCII (digits, latin letters, brackets) to
// narrow form and unit ligatures to plain letters, leaving katakana intact.
func Normalize(s string) string {
	return width.Fold.String(unitReplacer.Replace(s))
}

// ParseNumber returns the first number in s after normalisation.
func ParseNumber(s string) (float64, bool) {
	m := numberRe.FindString(strings.ReplaceAll(Normalize(s), ",", ""))
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	return n, err == nil
}

// bundleCount returns the trailing pack multiplier of text, or 1.
func bundleCount(text string) int64 {
	if m := bundleRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.ParseInt(m[1], 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func setIfNil(attrs types.Attributes, key string, v any) {
	if !attrs.Has(key) {
		attrs[key] = v
	}
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return f
}

func atoi(s string) int64 {
	n, _ := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	return n
}

// toMilliliters converts an amount with a volume (or weight) unit to ml.
// Grams are taken as the same number of millilitres.
func toMilliliters(amount float64, unit string) float64 {
	switch strings.ToLower(unit) {
	case "l", "リットル":
		return amount * 1000
	default:
		return amount
	}
}
