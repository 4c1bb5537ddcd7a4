package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for unitscout.
type Config struct {
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	LLM       LLMConfig       `mapstructure:"llm"       yaml:"llm"`
	Reconcile ReconcileConfig `mapstructure:"reconcile" yaml:"reconcile"`
	Scoring   ScoringConfig   `mapstructure:"scoring"   yaml:"scoring"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	Cache     CacheConfig     `mapstructure:"cache"     yaml:"cache"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
}

// FetcherConfig controls the listing-source session.
type FetcherConfig struct {
	Type           string        `mapstructure:"type"            yaml:"type"` // browser, http
	BaseURL        string        `mapstructure:"base_url"        yaml:"base_url"`
	MinInterval    time.Duration `mapstructure:"min_interval"    yaml:"min_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxPages       int           `mapstructure:"max_pages"       yaml:"max_pages"`
	MaxBodySize    int64         `mapstructure:"max_body_size"   yaml:"max_body_size"`
	UserAgents     []string      `mapstructure:"user_agents"     yaml:"user_agents"`
	Headless       bool          `mapstructure:"headless"        yaml:"headless"`
	Stealth        bool          `mapstructure:"stealth"         yaml:"stealth"`
	BrowserBin     string        `mapstructure:"browser_bin"     yaml:"browser_bin"`
	WindowSize     string        `mapstructure:"window_size"     yaml:"window_size"`
	BlockPatterns  []string      `mapstructure:"block_patterns"  yaml:"block_patterns"`
}

// LLMConfig controls the attribute-extraction service.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"    yaml:"provider"` // openai, ollama
	Endpoint    string        `mapstructure:"endpoint"    yaml:"endpoint"`
	Model       string        `mapstructure:"model"       yaml:"model"`
	APIKey      string        `mapstructure:"api_key"     yaml:"api_key"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"  yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"     yaml:"timeout"`
}

// ReconcileConfig controls the price-swing verifier.
type ReconcileConfig struct {
	ReverifyThreshold float64 `mapstructure:"reverify_threshold" yaml:"reverify_threshold"`
	ReverifyOnSale    bool    `mapstructure:"reverify_on_sale"   yaml:"reverify_on_sale"`
}

// ScoringConfig controls the composite scorer.
type ScoringConfig struct {
	Confidence   float64 `mapstructure:"confidence"    yaml:"confidence"`
	PriorMean    float64 `mapstructure:"prior_mean"    yaml:"prior_mean"`
	ReviewWeight float64 `mapstructure:"review_weight" yaml:"review_weight"`
	PriceWeight  float64 `mapstructure:"price_weight"  yaml:"price_weight"`
}

// StorageConfig selects the catalog store backend.
type StorageConfig struct {
	Type       string `mapstructure:"type"        yaml:"type"` // sqlite, postgres, mongodb
	DSN        string `mapstructure:"dsn"         yaml:"dsn"`
	Database   string `mapstructure:"database"    yaml:"database"`
	ExportPath string `mapstructure:"export_path" yaml:"export_path"`
}

// CacheConfig controls the Redis result cache.
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"  yaml:"enabled"`
	Addr     string        `mapstructure:"addr"     yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db"       yaml:"db"`
	TTL      time.Duration `mapstructure:"ttl"      yaml:"ttl"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Fetcher: FetcherConfig{
			Type:           "browser",
			BaseURL:        "https://www.amazon.co.jp",
			MinInterval:    3 * time.Second,
			RequestTimeout: 30 * time.Second,
			MaxPages:       1,
			MaxBodySize:    10 * 1024 * 1024, // 10MB
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			Headless:   true,
			Stealth:    true,
			WindowSize: "1920,1080",
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			MaxTokens:   200,
			Timeout:     30 * time.Second,
		},
		Reconcile: ReconcileConfig{
			ReverifyThreshold: 0.20,
		},
		Scoring: ScoringConfig{
			Confidence:   10,
			PriorMean:    3.5,
			ReviewWeight: 0.7,
			PriceWeight:  0.3,
		},
		Storage: StorageConfig{
			Type:       "sqlite",
			DSN:        "./unitscout.db",
			Database:   "unitscout",
			ExportPath: "./output",
		},
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			TTL:     time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
