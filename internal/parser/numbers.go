package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

var (
	decimalRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
	countRe   = regexp.MustCompile(`\d+(?:\.\d+)?\s*万?`)

	currencyReplacer = strings.NewReplacer(",", "", "￥", "", "¥", "", "円", "", " ", "", " ", "")
)

// cleanText folds full-width characters and collapses whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(width.Fold.String(s)), " ")
}

// parsePrice reads "￥1,280", "1,280" or "¥498.00" as a yen amount.
func parsePrice(s string) *float64 {
	s = currencyReplacer.Replace(width.Fold.String(s))
	m := decimalRe.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseRating reads "5つ星のうち4.3" or "4.3 out of 5 stars".
func parseRating(s string) *float64 {
	s = width.Fold.String(s)
	if i := strings.Index(s, "つ星のうち"); i >= 0 {
		s = s[i+len("つ星のうち"):]
	}
	m := decimalRe.FindString(s)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v < 0 || v > 5 {
		return nil
	}
	return &v
}

// parseCount reads "1,234件の評価", "(1,234)" or "1.2万".
func parseCount(s string) *int {
	s = strings.ReplaceAll(width.Fold.String(s), ",", "")
	m := countRe.FindString(s)
	if m == "" {
		return nil
	}
	mult := 1.0
	if strings.HasSuffix(m, "万") {
		mult = 10000
		m = strings.TrimSpace(strings.TrimSuffix(m, "万"))
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	n := int(math.Round(v * mult))
	return &n
}
