package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/unitscout/internal/config"
	"github.com/IshaanNene/unitscout/internal/types"
)

// Fetcher is the interface for all request fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// New creates the transport named by cfg.Type.
func New(cfg config.FetcherConfig, logger *slog.Logger) (Fetcher, error) {
	switch cfg.Type {
	case "http":
		return NewHTTPFetcher(cfg, logger)
	case "browser", "":
		return NewBrowserFetcher(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown fetcher type %q", cfg.Type)
	}
}
