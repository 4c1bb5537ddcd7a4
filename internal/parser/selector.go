package parser

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Selector is one step of a fallback chain. Exactly one of CSS or XPath is
// set; Attr reads an attribute instead of the element text.
type Selector struct {
	CSS   string
	XPath string
	Attr  string
}

func css(q string) Selector { return Selector{CSS: q} }

func cssAttr(q, attr string) Selector { return Selector{CSS: q, Attr: attr} }

func xpath(q string) Selector { return Selector{XPath: q} }

func xpathAttr(q, attr string) Selector { return Selector{XPath: q, Attr: attr} }

// Chain tries selectors in order and returns the first non-empty value.
type Chain []Selector

// First evaluates the chain against the scope.
func (c Chain) First(scope *goquery.Selection, logger *slog.Logger) string {
	for _, s := range c {
		if v := s.eval(scope, logger); v != "" {
			return v
		}
	}
	return ""
}

// FirstParsed returns the first value for which parse succeeds.
func FirstParsed[T any](c Chain, scope *goquery.Selection, logger *slog.Logger, parse func(string) *T) *T {
	for _, s := range c {
		if v := s.eval(scope, logger); v != "" {
			if out := parse(v); out != nil {
				return out
			}
		}
	}
	return nil
}

func (s Selector) eval(scope *goquery.Selection, logger *slog.Logger) string {
	if s.XPath != "" {
		return s.evalXPath(scope, logger)
	}
	el := scope.Find(s.CSS).First()
	if el.Length() == 0 {
		return ""
	}
	if s.Attr != "" {
		v, _ := el.Attr(s.Attr)
		return strings.TrimSpace(v)
	}
	return cleanText(el.Text())
}

// evalXPath runs the expression against the scope's underlying html.Node.
func (s Selector) evalXPath(scope *goquery.Selection, logger *slog.Logger) string {
	for _, root := range scope.Nodes {
		nodes, err := htmlquery.QueryAll(root, s.XPath)
		if err != nil {
			logger.Warn("invalid xpath", "selector", s.XPath, "error", err)
			return ""
		}
		if len(nodes) > 0 && nodes[0].Type == html.TextNode {
			// text() steps split one logical string across nodes.
			var b strings.Builder
			for _, n := range nodes {
				b.WriteString(n.Data)
			}
			if v := cleanText(b.String()); v != "" {
				return v
			}
			continue
		}
		for _, n := range nodes {
			if v := nodeValue(n, s.Attr); v != "" {
				return v
			}
		}
	}
	return ""
}

func nodeValue(n *html.Node, attr string) string {
	if attr != "" {
		return strings.TrimSpace(htmlquery.SelectAttr(n, attr))
	}
	return cleanText(htmlquery.InnerText(n))
}
