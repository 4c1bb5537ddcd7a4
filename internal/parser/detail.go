package parser

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/unitscout/internal/types"
)

var (
	detailTitleChain = Chain{
		css("#productTitle"),
		css(".product-title"),
		css("h1.a-size-large"),
	}
	detailBrandChain = Chain{
		css("#bylineInfo"),
	}
	detailImageChain = Chain{
		cssAttr("#landingImage", "src"),
		cssAttr(".a-dynamic-image", "src"),
		cssAttr("#imgBlkFront", "src"),
	}
)

// DetailParser extracts descriptive text from product detail pages.
type DetailParser struct {
	logger *slog.Logger
}

// NewDetailParser creates a new detail page parser.
func NewDetailParser(logger *slog.Logger) *DetailParser {
	return &DetailParser{
		logger: logger.With("component", "detail_parser"),
	}
}

// Parse reads title, brand, description, feature bullets and image.
func (p *DetailParser) Parse(resp *types.Response, id string) (*types.RawDetail, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: resp.URL(), Selector: "#productTitle", Err: err}
	}
	root := doc.Selection

	d := &types.RawDetail{
		ID:       id,
		Title:    detailTitleChain.First(root, p.logger),
		Brand:    detailBrandChain.First(root, p.logger),
		ImageURL: detailImageChain.First(root, p.logger),
	}

	var desc []string
	for _, sel := range []string{"#productDescription", "#aplus"} {
		section := root.Find(sel).First()
		if section.Length() == 0 {
			continue
		}
		section.Find("script, style").Remove()
		if text := cleanText(section.Text()); text != "" {
			desc = append(desc, text)
		}
	}
	d.Description = strings.Join(desc, "\n\n")

	root.Find("#feature-bullets .a-list-item").Each(func(_ int, s *goquery.Selection) {
		text := cleanText(s.Text())
		if text != "" && !strings.HasPrefix(text, "›") {
			d.Features = append(d.Features, text)
		}
	})

	p.logger.Debug("parsed detail page", "asin", id, "features", len(d.Features), "description_len", len(d.Description))
	return d, nil
}
