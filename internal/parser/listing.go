// Package parser reads search-result and product-detail pages into raw
// listings using CSS selector chains with XPath fallbacks.
package parser

import (
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/unitscout/internal/types"
)

const (
	cardSelector    = `[data-component-type="s-search-result"]`
	descriptionSel  = ".a-size-base, .a-size-base-plus, .s-feature-text, .a-color-secondary"
	minDescRunes    = 5
	saleFloor       = 100.0
	maxDescriptions = 8
)

var (
	titleChain = Chain{
		css("h2 span"),
		css(`[data-cy="title-recipe"] span`),
		css(".s-title-instructions-style span"),
		xpath(".//h2//text()"),
	}
	priceChain = Chain{
		css(".a-price:not(.a-text-price) .a-offscreen"),
		css(".a-price-whole"),
	}
	regularPriceChain = Chain{
		css(".a-text-price .a-offscreen"),
		css(".a-text-price"),
	}
	imageChain = Chain{
		cssAttr(".s-image", "src"),
	}
	ratingChain = Chain{
		css(".a-icon-alt"),
		xpathAttr(`.//*[contains(@aria-label, "つ星のうち")]`, "aria-label"),
	}
	reviewCountChain = Chain{
		cssAttr(`span[aria-label*="件の評価"]`, "aria-label"),
		css(".s-link-style .s-underline-text"),
		css(`[data-cy="reviews-ratings-slot"] span.a-size-base`),
	}
	brandChain = Chain{
		css(".s-line-clamp-1 .a-size-base-plus"),
		css("h5 .a-size-base-plus"),
	}
)

// ListingParser extracts raw listings from search-result pages.
type ListingParser struct {
	logger *slog.Logger
}

// NewListingParser creates a new search-result parser.
func NewListingParser(logger *slog.Logger) *ListingParser {
	return &ListingParser{
		logger: logger.With("component", "listing_parser"),
	}
}

// Parse returns one listing per result card with an identifier, first
// occurrence winning. Fields that fail to parse are left absent and named in
// RawListing.Missing.
func (p *ListingParser) Parse(resp *types.Response) ([]*types.RawListing, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: resp.URL(), Selector: cardSelector, Err: err}
	}

	fetchedAt := resp.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	seen := make(map[string]bool)
	var listings []*types.RawListing

	doc.Find(cardSelector).Each(func(_ int, card *goquery.Selection) {
		id := strings.TrimSpace(card.AttrOr("data-asin", ""))
		if id == "" || seen[id] {
			return
		}
		seen[id] = true

		l := p.parseCard(card, id)
		l.FetchedAt = fetchedAt
		listings = append(listings, l)
	})

	p.logger.Debug("parsed search page", "url", resp.URL(), "listings", len(listings))
	return listings, nil
}

func (p *ListingParser) parseCard(card *goquery.Selection, id string) *types.RawListing {
	l := &types.RawListing{ID: id}

	l.Title = titleChain.First(card, p.logger)
	if l.Title == "" {
		l.Missing = append(l.Missing, types.FieldTitle)
	}

	l.Price = FirstParsed(priceChain, card, p.logger, parsePrice)
	if l.Price == nil {
		l.Missing = append(l.Missing, types.FieldPrice)
	}

	if reg := FirstParsed(regularPriceChain, card, p.logger, parsePrice); reg != nil && *reg > 0 {
		l.PriceRegular = reg
	}
	applySale(l)

	l.ImageURL = imageChain.First(card, p.logger)
	if l.ImageURL == "" {
		l.Missing = append(l.Missing, types.FieldImageURL)
	}

	l.ReviewAvg = FirstParsed(ratingChain, card, p.logger, parseRating)
	if l.ReviewAvg == nil {
		l.Missing = append(l.Missing, types.FieldReviewAvg)
	}
	l.ReviewCount = FirstParsed(reviewCountChain, card, p.logger, parseCount)
	if l.ReviewCount == nil {
		l.Missing = append(l.Missing, types.FieldReviewCount)
	}

	l.Brand = brandChain.First(card, p.logger)
	if l.Brand == l.Title {
		l.Brand = ""
	}
	l.Description = describe(card, l.Title)

	return l
}

// applySale marks the listing on sale when a plausible regular price exceeds
// the current one.
func applySale(l *types.RawListing) {
	if l.Price == nil || l.PriceRegular == nil {
		return
	}
	reg, price := *l.PriceRegular, *l.Price
	if reg > saleFloor && reg > price {
		l.OnSale = true
		l.DiscountPercent = types.Ptr(int((reg - price) / reg * 100))
	}
}

// describe joins the card's secondary texts, skipping short fragments and
// repeats of the title.
func describe(card *goquery.Selection, title string) string {
	seen := map[string]bool{title: true}
	var parts []string
	card.Find(descriptionSel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := cleanText(s.Text())
		if utf8.RuneCountInString(text) <= minDescRunes || seen[text] {
			return true
		}
		seen[text] = true
		parts = append(parts, text)
		return len(parts) < maxDescriptions
	})
	return strings.Join(parts, " ")
}
