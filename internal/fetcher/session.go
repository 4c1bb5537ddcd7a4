package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/unitscout/internal/config"
	"github.com/IshaanNene/unitscout/internal/observability"
	"github.com/IshaanNene/unitscout/internal/parser"
	"github.com/IshaanNene/unitscout/internal/types"
)

// Session is a rate-limited, block-aware scope over one transport. Requests
// are serialized; each waits until MinInterval has passed since the previous
// request completed.
type Session struct {
	fetcher  Fetcher
	cfg      config.FetcherConfig
	detector *BlockDetector
	listings *parser.ListingParser
	details  *parser.DetailParser
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	lastDone time.Time
}

// NewSession wraps a transport.
func NewSession(f Fetcher, cfg config.FetcherConfig, metrics *observability.Metrics, logger *slog.Logger) *Session {
	return &Session{
		fetcher:  f,
		cfg:      cfg,
		detector: NewBlockDetector(cfg.BlockPatterns),
		listings: parser.NewListingParser(logger),
		details:  parser.NewDetailParser(logger),
		metrics:  metrics,
		logger:   logger.With("component", "session", "transport", f.Type()),
	}
}

// WithSession opens the configured transport, runs fn and always closes the
// transport afterwards.
func WithSession(ctx context.Context, cfg config.FetcherConfig, metrics *observability.Metrics, logger *slog.Logger, fn func(context.Context, *Session) error) error {
	f, err := New(cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s fetcher: %w", cfg.Type, err)
	}
	return Run(ctx, NewSession(f, cfg, metrics, logger), fn)
}

// Run calls fn with s and closes s afterwards, including when fn panics.
func Run(ctx context.Context, s *Session, fn func(context.Context, *Session) error) error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Warn("closing transport", "error", err)
		}
	}()
	return fn(ctx, s)
}

// Close releases the transport.
func (s *Session) Close() error {
	return s.fetcher.Close()
}

// SearchURL builds the search-results URL for a keyword. Browse parameters
// that carry their own "keywords" key receive the keyword there.
func (s *Session) SearchURL(keyword string, params url.Values, page int) string {
	q := url.Values{}
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}
	if _, ok := q["keywords"]; ok {
		q.Set("keywords", keyword)
	} else {
		q.Set("k", keyword)
	}
	q.Set("language", "ja_JP")
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	return s.base() + "/s?" + q.Encode()
}

// DetailURL builds the product page URL for an identifier.
func (s *Session) DetailURL(id string) string {
	return s.base() + "/dp/" + url.PathEscape(id) + "?language=ja_JP"
}

func (s *Session) base() string {
	return strings.TrimRight(s.cfg.BaseURL, "/")
}

// FetchListings walks up to MaxPages result pages, stopping at the first
// empty page. Listings are deduplicated across pages, first seen wins.
func (s *Session) FetchListings(ctx context.Context, keyword string, params url.Values) ([]*types.RawListing, error) {
	maxPages := s.cfg.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	seen := make(map[string]bool)
	var all []*types.RawListing

	for page := 1; page <= maxPages; page++ {
		resp, err := s.fetch(ctx, s.SearchURL(keyword, params, page), types.TagSearch)
		if err != nil {
			return all, err
		}

		listings, err := s.listings.Parse(resp)
		if err != nil {
			return all, err
		}
		if len(listings) == 0 {
			s.logger.Debug("empty result page, stopping", "keyword", keyword, "page", page)
			break
		}

		added := 0
		for _, l := range listings {
			if seen[l.ID] {
				continue
			}
			seen[l.ID] = true
			all = append(all, l)
			added++
		}
		s.logger.Info("search page fetched", "keyword", keyword, "page", page, "listings", len(listings), "new", added)
	}

	return all, nil
}

// FetchDetail fetches and parses a product detail page.
func (s *Session) FetchDetail(ctx context.Context, id string) (*types.RawDetail, error) {
	resp, err := s.fetch(ctx, s.DetailURL(id), types.TagDetail)
	if err != nil {
		return nil, err
	}
	return s.details.Parse(resp, id)
}

// fetch performs one rate-limited request and classifies the response.
func (s *Session) fetch(ctx context.Context, rawURL, tag string) (*types.Response, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	req.Tag = tag

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.fetcher.Fetch(ctx, req)
	s.lastDone = time.Now()
	if err != nil {
		s.metrics.Fetch(tag, "error")
		return nil, err
	}

	if err := s.detector.Check(resp); err != nil {
		s.metrics.Fetch(tag, "blocked")
		s.logger.Warn("blocked by listing source", "url", rawURL, "error", err)
		return nil, err
	}
	if !resp.IsSuccess() {
		s.metrics.Fetch(tag, "error")
		return nil, &types.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	s.metrics.Fetch(tag, "ok")
	return resp, nil
}

// wait blocks until the minimum interval since the last completion elapses.
func (s *Session) wait(ctx context.Context) error {
	if s.lastDone.IsZero() || s.cfg.MinInterval <= 0 {
		return ctx.Err()
	}
	remaining := s.cfg.MinInterval - time.Since(s.lastDone)
	if remaining <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
