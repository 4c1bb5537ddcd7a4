package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Fetcher.Type != "http" && cfg.Fetcher.Type != "browser" {
		return fmt.Errorf("fetcher.type must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}
	if err := ValidateURL(cfg.Fetcher.BaseURL); err != nil {
		return fmt.Errorf("fetcher.base_url: %w", err)
	}
	if cfg.Fetcher.MinInterval < 0 {
		return fmt.Errorf("fetcher.min_interval must be >= 0")
	}
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxPages < 1 {
		return fmt.Errorf("fetcher.max_pages must be >= 1, got %d", cfg.Fetcher.MaxPages)
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}

	if cfg.LLM.Provider != "openai" && cfg.LLM.Provider != "ollama" {
		return fmt.Errorf("llm.provider must be 'openai' or 'ollama', got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model must not be empty")
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2], got %v", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm.max_tokens must be >= 1, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.Endpoint != "" {
		if err := ValidateURL(cfg.LLM.Endpoint); err != nil {
			return fmt.Errorf("llm.endpoint: %w", err)
		}
	}

	if cfg.Reconcile.ReverifyThreshold < 0 {
		return fmt.Errorf("reconcile.reverify_threshold must be >= 0, got %v", cfg.Reconcile.ReverifyThreshold)
	}

	if cfg.Scoring.Confidence < 0 {
		return fmt.Errorf("scoring.confidence must be >= 0, got %v", cfg.Scoring.Confidence)
	}
	if cfg.Scoring.PriorMean < 0 || cfg.Scoring.PriorMean > 5 {
		return fmt.Errorf("scoring.prior_mean must be within [0, 5], got %v", cfg.Scoring.PriorMean)
	}
	if cfg.Scoring.ReviewWeight < 0 || cfg.Scoring.PriceWeight < 0 {
		return fmt.Errorf("scoring weights must be >= 0")
	}

	validStorageTypes := map[string]bool{
		"sqlite": true, "postgres": true, "mongodb": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: sqlite, postgres, mongodb)", cfg.Storage.Type)
	}
	if cfg.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn must not be empty")
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.Addr == "" {
			return fmt.Errorf("cache.addr must not be empty when cache is enabled")
		}
		if cfg.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be > 0")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks that a URL is absolute http(s).
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
