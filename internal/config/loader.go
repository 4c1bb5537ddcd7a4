package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from .env, file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("UNITSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("llm.api_key", "UNITSCOUT_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("storage.dsn", "UNITSCOUT_STORAGE_DSN", "DATABASE_URL")
	_ = v.BindEnv("cache.addr", "UNITSCOUT_CACHE_ADDR", "REDIS_ADDR")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("unitscout")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".unitscout"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides apply to
// keys that never appear in a config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("fetcher.type", cfg.Fetcher.Type)
	v.SetDefault("fetcher.base_url", cfg.Fetcher.BaseURL)
	v.SetDefault("fetcher.min_interval", cfg.Fetcher.MinInterval)
	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.max_pages", cfg.Fetcher.MaxPages)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)
	v.SetDefault("fetcher.headless", cfg.Fetcher.Headless)
	v.SetDefault("fetcher.stealth", cfg.Fetcher.Stealth)
	v.SetDefault("fetcher.browser_bin", cfg.Fetcher.BrowserBin)
	v.SetDefault("fetcher.window_size", cfg.Fetcher.WindowSize)
	v.SetDefault("fetcher.block_patterns", cfg.Fetcher.BlockPatterns)

	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.endpoint", cfg.LLM.Endpoint)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.temperature", cfg.LLM.Temperature)
	v.SetDefault("llm.max_tokens", cfg.LLM.MaxTokens)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)

	v.SetDefault("reconcile.reverify_threshold", cfg.Reconcile.ReverifyThreshold)
	v.SetDefault("reconcile.reverify_on_sale", cfg.Reconcile.ReverifyOnSale)

	v.SetDefault("scoring.confidence", cfg.Scoring.Confidence)
	v.SetDefault("scoring.prior_mean", cfg.Scoring.PriorMean)
	v.SetDefault("scoring.review_weight", cfg.Scoring.ReviewWeight)
	v.SetDefault("scoring.price_weight", cfg.Scoring.PriceWeight)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.dsn", cfg.Storage.DSN)
	v.SetDefault("storage.database", cfg.Storage.Database)
	v.SetDefault("storage.export_path", cfg.Storage.ExportPath)

	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.addr", cfg.Cache.Addr)
	v.SetDefault("cache.password", cfg.Cache.Password)
	v.SetDefault("cache.db", cfg.Cache.DB)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
