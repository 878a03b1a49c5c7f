package config

import (
	"time"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for ShelfStalk.
type Config struct {
	Crawl     CrawlConfig     `mapstructure:"crawl"     yaml:"crawl"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	Browser   BrowserConfig   `mapstructure:"browser"   yaml:"browser"`
	LLM       LLMConfig       `mapstructure:"llm"       yaml:"llm"`
	Selectors types.Selectors `mapstructure:"selectors" yaml:"selectors"`
	Cache     CacheConfig     `mapstructure:"cache"     yaml:"cache"`
	Events    EventsConfig    `mapstructure:"events"    yaml:"events"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
}

// CrawlConfig controls a single crawl run.
type CrawlConfig struct {
	MaxPages        int               `mapstructure:"max_pages"        yaml:"max_pages"`
	MinProducts     int               `mapstructure:"min_products"     yaml:"min_products"`
	RequestTimeout  time.Duration     `mapstructure:"request_timeout"  yaml:"request_timeout"`
	PolitenessDelay time.Duration     `mapstructure:"politeness_delay" yaml:"politeness_delay"`
	UserAgent       string            `mapstructure:"user_agent"       yaml:"user_agent"`
	FetchRetry      types.RetryPolicy `mapstructure:"fetch_retry"      yaml:"fetch_retry"`
}

// FetcherConfig controls the HTTP fetcher.
type FetcherConfig struct {
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
}

// BrowserConfig controls the optional headless renderer.
type BrowserConfig struct {
	Enabled           bool          `mapstructure:"enabled"            yaml:"enabled"`
	Headless          bool          `mapstructure:"headless"           yaml:"headless"`
	Stealth           bool          `mapstructure:"stealth"            yaml:"stealth"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ScrollCount       int           `mapstructure:"scroll_count"       yaml:"scroll_count"`
	ScrollInterval    time.Duration `mapstructure:"scroll_interval"    yaml:"scroll_interval"`
	WaitAfterLoad     time.Duration `mapstructure:"wait_after_load"    yaml:"wait_after_load"`
	WindowSize        string        `mapstructure:"window_size"        yaml:"window_size"`
	MaxPages          int           `mapstructure:"max_pages"          yaml:"max_pages"`
}

// LLMConfig selects and configures the LLM provider.
type LLMConfig struct {
	Provider     string        `mapstructure:"provider"       yaml:"provider"`
	Endpoint     string        `mapstructure:"endpoint"       yaml:"endpoint"`
	Model        string        `mapstructure:"model"          yaml:"model"`
	APIKey       string        `mapstructure:"api_key"        yaml:"api_key"`
	Temperature  float64       `mapstructure:"temperature"    yaml:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"     yaml:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"        yaml:"timeout"`
	MaxHTMLChars int           `mapstructure:"max_html_chars" yaml:"max_html_chars"`
}

// HasCredentials reports whether enough is configured to call a provider.
// Cloud providers need an API key; local providers need an endpoint.
func (c LLMConfig) HasCredentials() bool {
	switch c.Provider {
	case "":
		return false
	case "ollama", "openai-compatible":
		return c.Endpoint != "" && c.Model != ""
	default:
		return c.APIKey != ""
	}
}

// CacheConfig controls the shared advisory cache.
type CacheConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Size    int  `mapstructure:"size"    yaml:"size"`
}

// EventsConfig controls lifecycle event delivery.
type EventsConfig struct {
	Log            bool          `mapstructure:"log"             yaml:"log"`
	WebhookURL     string        `mapstructure:"webhook_url"     yaml:"webhook_url"`
	WebhookSecret  string        `mapstructure:"webhook_secret"  yaml:"webhook_secret"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout" yaml:"webhook_timeout"`
}

// StorageConfig controls where the CLI persists run results.
type StorageConfig struct {
	Type       string `mapstructure:"type"        yaml:"type"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`
	MongoURI   string `mapstructure:"mongo_uri"   yaml:"mongo_uri"`
	Database   string `mapstructure:"database"    yaml:"database"`
	Collection string `mapstructure:"collection"  yaml:"collection"`
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
		Crawl: CrawlConfig{
			MaxPages:        10,
			MinProducts:     0,
			RequestTimeout:  30 * time.Second,
			PolitenessDelay: 500 * time.Millisecond,
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			FetchRetry: types.RetryPolicy{
				MaxAttempts: 1,
				Strategy:    types.BackoffExponential,
				BaseDelayMs: 500,
			},
		},
		Fetcher: FetcherConfig{
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    20,
		},
		Browser: BrowserConfig{
			Enabled:           false,
			Headless:          true,
			Stealth:           true,
			NavigationTimeout: 45 * time.Second,
			ScrollCount:       5,
			ScrollInterval:    800 * time.Millisecond,
			WaitAfterLoad:     1500 * time.Millisecond,
			WindowSize:        "1366,768",
			MaxPages:          2,
		},
		LLM: LLMConfig{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			Temperature:  0.1,
			MaxTokens:    4096,
			Timeout:      60 * time.Second,
			MaxHTMLChars: 80_000,
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    1024,
		},
		Events: EventsConfig{
			Log:            true,
			WebhookTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Type:       "json",
			OutputPath: "./output",
			Database:   "shelfstalk",
			Collection: "products",
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
