package config

import (
	"fmt"
	"net/url"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// Page budget bounds for a single run.
const (
	MinPageBudget = 1
	MaxPageBudget = 50
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Crawl.MaxPages < MinPageBudget || cfg.Crawl.MaxPages > MaxPageBudget {
		return fmt.Errorf("crawl.max_pages must be %d-%d, got %d", MinPageBudget, MaxPageBudget, cfg.Crawl.MaxPages)
	}
	if cfg.Crawl.MinProducts < 0 {
		return fmt.Errorf("crawl.min_products must be >= 0, got %d", cfg.Crawl.MinProducts)
	}
	if cfg.Crawl.RequestTimeout <= 0 {
		return fmt.Errorf("crawl.request_timeout must be > 0")
	}
	if cfg.Crawl.PolitenessDelay < 0 {
		return fmt.Errorf("crawl.politeness_delay must be >= 0")
	}
	if cfg.Crawl.FetchRetry.MaxAttempts < 0 {
		return fmt.Errorf("crawl.fetch_retry.max_attempts must be >= 0, got %d", cfg.Crawl.FetchRetry.MaxAttempts)
	}
	switch cfg.Crawl.FetchRetry.Strategy {
	case "", types.BackoffExponential, types.BackoffJitter:
	default:
		return fmt.Errorf("crawl.fetch_retry.strategy must be EXPONENTIAL or JITTER, got %q", cfg.Crawl.FetchRetry.Strategy)
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Browser.Enabled {
		if cfg.Browser.NavigationTimeout <= 0 {
			return fmt.Errorf("browser.navigation_timeout must be > 0")
		}
		if cfg.Browser.ScrollCount < 0 {
			return fmt.Errorf("browser.scroll_count must be >= 0")
		}
		if cfg.Browser.MaxPages < 1 {
			return fmt.Errorf("browser.max_pages must be >= 1")
		}
	}

	validProviders := map[string]bool{
		"": true, "openai": true, "ollama": true, "openai-compatible": true,
	}
	if !validProviders[cfg.LLM.Provider] {
		return fmt.Errorf("llm.provider %q is not supported (valid: openai, ollama, openai-compatible)", cfg.LLM.Provider)
	}
	if cfg.LLM.Endpoint != "" {
		if _, err := url.Parse(cfg.LLM.Endpoint); err != nil {
			return fmt.Errorf("invalid llm.endpoint %q: %w", cfg.LLM.Endpoint, err)
		}
	}
	if cfg.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be > 0")
	}
	if cfg.LLM.MaxHTMLChars < 1000 {
		return fmt.Errorf("llm.max_html_chars must be >= 1000, got %d", cfg.LLM.MaxHTMLChars)
	}

	if cfg.Cache.Enabled && cfg.Cache.Size < 1 {
		return fmt.Errorf("cache.size must be >= 1 when the cache is enabled")
	}

	if cfg.Events.WebhookURL != "" {
		if err := ValidateURL(cfg.Events.WebhookURL); err != nil {
			return fmt.Errorf("events.webhook_url: %w", err)
		}
	}

	switch cfg.Storage.Type {
	case "json", "jsonl":
	case "mongo":
		if cfg.Storage.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri is required for mongo storage")
		}
	default:
		return fmt.Errorf("storage.type %q is not supported (valid: json, jsonl, mongo)", cfg.Storage.Type)
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

// ValidateURL checks if a URL string is valid for crawling.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", types.ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: URL must have a host", types.ErrInvalidURL)
	}
	return nil
}
