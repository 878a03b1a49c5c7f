// Package shelfstalk provides a public SDK for embedding ShelfStalk as a
// library.
//
// Example usage:
//
//	client, err := shelfstalk.New(
//	    shelfstalk.WithProvider("openai", "gpt-4o-mini", os.Getenv("OPENAI_API_KEY")),
//	    shelfstalk.WithMaxPages(5),
//	    shelfstalk.WithMinProducts(40),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.Run(ctx, "https://shop.example/shoes", "running shoes under $100")
//	for _, p := range res.Products {
//	    fmt.Println(p.Title, p.Price, p.URL)
//	}
package shelfstalk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/IshaanNene/ShelfStalk/internal/ai"
	"github.com/IshaanNene/ShelfStalk/internal/cache"
	"github.com/IshaanNene/ShelfStalk/internal/config"
	"github.com/IshaanNene/ShelfStalk/internal/engine"
	"github.com/IshaanNene/ShelfStalk/internal/events"
	"github.com/IshaanNene/ShelfStalk/internal/fetcher"
	"github.com/IshaanNene/ShelfStalk/internal/observability"
	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// Re-exported data types.
type (
	Product     = types.Product
	RunSummary  = types.RunSummary
	Selectors   = types.Selectors
	Result      = engine.Result
	Job         = engine.Job
	BatchResult = engine.BatchResult
	RunOptions  = engine.RunOptions
	Event       = events.Event
)

// Option configures a Client.
type Option func(*settings)

type settings struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	sinks      []events.Sink
	verbose    bool
}

// WithConfigFile loads configuration from a YAML file before other options
// are applied.
func WithConfigFile(path string) Option {
	return func(s *settings) { s.configPath = path }
}

// WithProvider selects the LLM provider (openai, ollama, openai-compatible).
func WithProvider(name, model, apiKey string) Option {
	return func(s *settings) {
		s.cfg.LLM.Provider = name
		s.cfg.LLM.Model = model
		s.cfg.LLM.APIKey = apiKey
	}
}

// WithEndpoint sets the provider base URL, required for local models.
func WithEndpoint(url string) Option {
	return func(s *settings) { s.cfg.LLM.Endpoint = url }
}

// WithMaxPages sets the page budget per run.
func WithMaxPages(n int) Option {
	return func(s *settings) { s.cfg.Crawl.MaxPages = n }
}

// WithMinProducts stops a run once n unique products are collected.
func WithMinProducts(n int) Option {
	return func(s *settings) { s.cfg.Crawl.MinProducts = n }
}

// WithSelectors supplies CSS selectors tried before anything the model
// proposes. With selectors set, no LLM provider is required.
func WithSelectors(sel Selectors) Option {
	return func(s *settings) { s.cfg.Selectors = sel }
}

// WithBrowser enables the headless browser renderer.
func WithBrowser(enabled bool) Option {
	return func(s *settings) { s.cfg.Browser.Enabled = enabled }
}

// WithDelay sets the politeness delay between page fetches.
func WithDelay(d time.Duration) Option {
	return func(s *settings) { s.cfg.Crawl.PolitenessDelay = d }
}

// WithRequestTimeout bounds each page fetch.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *settings) { s.cfg.Crawl.RequestTimeout = d }
}

// WithFetchRetry retries transient fetch failures up to attempts times.
func WithFetchRetry(attempts int, baseDelay time.Duration, jitter bool) Option {
	return func(s *settings) {
		s.cfg.Crawl.FetchRetry = types.RetryPolicy{
			MaxAttempts: attempts,
			Strategy:    types.BackoffExponential,
			BaseDelayMs: int(baseDelay.Milliseconds()),
		}
		if jitter {
			s.cfg.Crawl.FetchRetry.Strategy = types.BackoffJitter
		}
	}
}

// WithUserAgent sets a custom User-Agent.
func WithUserAgent(ua string) Option {
	return func(s *settings) { s.cfg.Crawl.UserAgent = ua }
}

// WithCache sizes the shared decision cache; zero disables it.
func WithCache(size int) Option {
	return func(s *settings) {
		s.cfg.Cache.Enabled = size > 0
		s.cfg.Cache.Size = size
	}
}

// WithWebhook posts every lifecycle event to url, signed with secret.
func WithWebhook(url, secret string) Option {
	return func(s *settings) {
		s.cfg.Events.WebhookURL = url
		s.cfg.Events.WebhookSecret = secret
	}
}

// WithEventHandler receives every lifecycle event synchronously. A panicking
// handler is recovered.
func WithEventHandler(fn func(Event)) Option {
	return func(s *settings) { s.sinks = append(s.sinks, events.FuncSink(fn)) }
}

// WithLogger replaces the default stderr logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(s *settings) {
		s.verbose = true
		s.cfg.Logging.Level = "debug"
	}
}

// Client runs crawls. It is safe for concurrent use.
type Client struct {
	cfg      *config.Config
	engine   *engine.Engine
	opts     engine.RunOptions
	metrics  *observability.Metrics
	webhook  *events.WebhookSink
	fetcher  *fetcher.HTTPFetcher
	renderer *fetcher.BrowserRenderer
	logger   *slog.Logger
}

// New creates a Client with the given options.
func New(opts ...Option) (*Client, error) {
	// A first pass finds the config file so that the remaining options
	// override what it sets.
	pre := &settings{cfg: config.DefaultConfig()}
	for _, opt := range opts {
		opt(pre)
	}
	cfg := config.DefaultConfig()
	if pre.configPath != "" {
		loaded, err := config.Load(pre.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	s := &settings{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		level := slog.LevelInfo
		if s.verbose {
			level = slog.LevelDebug
		}
		s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return NewFromConfig(s.cfg, s.logger, s.sinks...)
}

// NewFromConfig wires a Client from a loaded configuration. extra sinks
// receive events alongside the configured ones.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, extra ...events.Sink) (*Client, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		opts:    engine.RunOptionsFromConfig(cfg),
		metrics: observability.NewMetrics(logger),
		logger:  logger,
	}
	deps := engine.Deps{Metrics: c.metrics, Logger: logger}

	hf, err := fetcher.NewHTTPFetcher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	c.fetcher = hf
	deps.Fetcher = hf

	provider, err := ai.NewProvider(cfg.LLM, logger)
	switch {
	case err == nil:
		var decisionOpts []ai.DecisionOption
		decisionOpts = append(decisionOpts, ai.WithMaxHTMLChars(cfg.LLM.MaxHTMLChars))
		if cfg.Cache.Enabled {
			decisionOpts = append(decisionOpts, ai.WithDecisionCache(cache.New[*types.Decision](cfg.Cache.Size, 0)))
		}
		deps.Decider = ai.NewDecisionEngine(provider, logger, decisionOpts...)
		deps.Extractor = ai.NewDirectExtractor(provider, cfg.LLM.MaxHTMLChars, logger)
	case cfg.Selectors.IsEmpty():
		hf.Close()
		return nil, fmt.Errorf("llm provider: %w", err)
	default:
		logger.Warn("no LLM provider, extracting with custom selectors only", "reason", err)
	}

	if cfg.Browser.Enabled {
		br, err := fetcher.NewBrowserRenderer(cfg, logger)
		if err != nil {
			logger.Warn("browser renderer unavailable, continuing over HTTP only", "error", err)
		} else {
			c.renderer = br
			deps.Renderer = br
		}
	}

	var sinks []events.Sink
	if cfg.Events.Log {
		sinks = append(sinks, events.NewLogSink(logger))
	}
	if cfg.Events.WebhookURL != "" {
		c.webhook = events.NewWebhookSink(cfg.Events.WebhookURL, cfg.Events.WebhookSecret, cfg.Events.WebhookTimeout, logger)
		sinks = append(sinks, c.webhook)
	}
	sinks = append(sinks, extra...)
	deps.Sink = events.NewMultiSink(logger, sinks...)

	c.engine = engine.New(deps)
	return c, nil
}

// Run crawls from url collecting products that match goal.
func (c *Client) Run(ctx context.Context, url, goal string) (*Result, error) {
	return c.engine.Run(ctx, url, goal, c.opts)
}

// RunBatch runs independent jobs with at most concurrency in flight. Jobs
// without options use the client's.
func (c *Client) RunBatch(ctx context.Context, jobs []Job, concurrency int) []BatchResult {
	prepared := make([]Job, len(jobs))
	for i, job := range jobs {
		if job.Options == (engine.RunOptions{}) {
			job.Options = c.opts
		}
		prepared[i] = job
	}
	return c.engine.RunBatch(ctx, prepared, concurrency)
}

// RunOptions returns a copy of the options applied to each run.
func (c *Client) RunOptions() RunOptions {
	return c.opts
}

// Metrics returns a snapshot of the client's counters.
func (c *Client) Metrics() map[string]int64 {
	return c.metrics.Snapshot()
}

// MetricsRegistry exposes the live counters, e.g. for a Prometheus endpoint.
func (c *Client) MetricsRegistry() *observability.Metrics {
	return c.metrics
}

// Close flushes the webhook queue and releases the fetcher and browser.
func (c *Client) Close() error {
	var errs []error
	if c.webhook != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.webhook.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush webhook: %w", err))
		}
		cancel()
	}
	if c.renderer != nil {
		if err := c.renderer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.fetcher != nil {
		if err := c.fetcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
