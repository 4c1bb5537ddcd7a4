package types

import (
	"fmt"
	"strings"
	"time"
)

// Listing field names used when recording which fields failed to parse.
const (
	FieldTitle        = "title"
	FieldDescription  = "description"
	FieldBrand        = "brand"
	FieldImageURL     = "image_url"
	FieldPrice        = "price"
	FieldPriceRegular = "price_regular"
	FieldReviewAvg    = "review_avg"
	FieldReviewCount  = "review_count"
)

// RawListing is one search-result entry as scraped. It lives for a single run.
type RawListing struct {
	ID              string
	Title           string
	Description     string
	Brand           string
	ImageURL        string
	Price           *float64
	PriceRegular    *float64
	DiscountPercent *int
	OnSale          bool
	ReviewAvg       *float64
	ReviewCount     *int
	FetchedAt       time.Time

	// Missing lists non-identifying fields that degraded to absent.
	Missing []string
}

// Check returns an error wrapping ErrParseIncomplete when any
// non-identifying field failed to parse.
func (l *RawListing) Check() error {
	if len(l.Missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s lacks %s", ErrParseIncomplete, l.ID, strings.Join(l.Missing, ", "))
}

// Text returns the title and description joined for extraction prompts.
func (l *RawListing) Text() string {
	if l.Description == "" {
		return l.Title
	}
	return l.Title + "\n" + l.Description
}

// ApplyDetail enriches the listing with fields from its detail page. Existing
// non-empty values win except the description, which is extended.
func (l *RawListing) ApplyDetail(d *RawDetail) {
	if d == nil {
		return
	}
	if l.Title == "" {
		l.Title = d.Title
	}
	if l.Brand == "" {
		l.Brand = d.Brand
	}
	if l.ImageURL == "" {
		l.ImageURL = d.ImageURL
	}
	parts := make([]string, 0, 2+len(d.Features))
	if l.Description != "" {
		parts = append(parts, l.Description)
	}
	if d.Description != "" {
		parts = append(parts, d.Description)
	}
	parts = append(parts, d.Features...)
	l.Description = strings.Join(parts, " ")
}

// RawDetail holds the fields scraped from a product detail page.
type RawDetail struct {
	ID          string
	Title       string
	Brand       string
	Description string
	Features    []string
	ImageURL    string
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// SameFloat reports whether two optional values are equal, treating two
// absent values as equal.
func SameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
