package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ShelfStalk/internal/config"
	"github.com/IshaanNene/ShelfStalk/internal/storage"
	"github.com/IshaanNene/ShelfStalk/internal/types"
	"github.com/IshaanNene/ShelfStalk/pkg/shelfstalk"
)

var (
	cfgFile string
	verbose bool
)

// runFlags holds the per-run overrides of the run command.
var runFlags struct {
	goal        string
	maxPages    int
	minProducts int
	provider    string
	model       string
	endpoint    string
	apiKey      string
	browser     bool
	delay       time.Duration
	output      string
	format      string
	webhook     string
	metrics     bool
	selectors   types.Selectors
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "shelfstalk",
		Short: "ShelfStalk: LLM-guided product extraction crawler",
		Long: `ShelfStalk crawls a product listing, asks an LLM how to read each page,
and extracts deduplicated product records.

Features:
  • JSON-LD, CSS and XPath extraction with an LLM fallback
  • Deterministic fallback strategy when the model misbehaves
  • Link pagination with a hard page budget and product threshold
  • Optional headless browser for JS-rendered listings
  • JSON, JSONL and MongoDB output
  • Signed webhook events and a Prometheus metrics endpoint`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runCmd creates the "run" subcommand.
func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [url]",
		Short: "Extract products starting from a listing URL",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}

	f := cmd.Flags()
	f.StringVarP(&runFlags.goal, "goal", "g", "", "what to extract, e.g. \"running shoes under $100\" (required)")
	f.IntVarP(&runFlags.maxPages, "max-pages", "m", 0, "page budget (1-50)")
	f.IntVar(&runFlags.minProducts, "min-products", 0, "stop once this many products are found")
	f.StringVar(&runFlags.provider, "provider", "", "LLM provider: openai, ollama, openai-compatible")
	f.StringVar(&runFlags.model, "model", "", "LLM model name")
	f.StringVar(&runFlags.endpoint, "endpoint", "", "LLM base URL")
	f.StringVar(&runFlags.apiKey, "api-key", "", "LLM API key (prefer SHELFSTALK_LLM_API_KEY)")
	f.BoolVar(&runFlags.browser, "browser", false, "enable the headless browser renderer")
	f.DurationVar(&runFlags.delay, "delay", 0, "politeness delay between page fetches")
	f.StringVarP(&runFlags.output, "output", "o", "", "output directory")
	f.StringVarP(&runFlags.format, "format", "f", "", "output format: json, jsonl, mongo")
	f.StringVar(&runFlags.webhook, "webhook", "", "POST lifecycle events to this URL")
	f.BoolVar(&runFlags.metrics, "metrics", false, "serve Prometheus metrics while running")
	f.StringVar(&runFlags.selectors.Item, "item-selector", "", "CSS selector for one product element")
	f.StringVar(&runFlags.selectors.Link, "link-selector", "", "CSS selector for the product link, relative to the item")
	f.StringVar(&runFlags.selectors.Title, "title-selector", "", "CSS selector for the product title, relative to the item")
	f.StringVar(&runFlags.selectors.Price, "price-selector", "", "CSS selector for the price, relative to the item")
	f.StringVar(&runFlags.selectors.Image, "image-selector", "", "CSS selector for the image, relative to the item")
	_ = cmd.MarkFlagRequired("goal")

	return cmd
}

// runExtract executes the run command.
func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, store, err := setup(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()
	defer store.Close()

	logger.Info("starting run",
		"url", args[0],
		"goal", runFlags.goal,
		"max_pages", cfg.Crawl.MaxPages,
		"provider", cfg.LLM.Provider,
		"output", cfg.Storage.OutputPath,
		"format", cfg.Storage.Type,
	)

	res, err := client.Run(ctx, args[0], runFlags.goal)
	if err != nil {
		return err
	}
	if err := save(store, args[0], runFlags.goal, res); err != nil {
		logger.Error("failed to store run", "error", err)
	}

	printSummary(res, cfg)
	return nil
}

// batchFile is the layout of a batch jobs file.
type batchFile struct {
	Concurrency int        `mapstructure:"concurrency"`
	Jobs        []batchJob `mapstructure:"jobs"`
}

type batchJob struct {
	Name        string          `mapstructure:"name"`
	URL         string          `mapstructure:"url"`
	Goal        string          `mapstructure:"goal"`
	MaxPages    int             `mapstructure:"max_pages"`
	MinProducts int             `mapstructure:"min_products"`
	Selectors   types.Selectors `mapstructure:"selectors"`
}

// batchCmd creates the "batch" subcommand.
func batchCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "batch [jobs.yaml]",
		Short: "Run independent extraction jobs concurrently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg)

			file, err := loadBatchFile(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") || file.Concurrency == 0 {
				file.Concurrency = concurrency
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, store, err := setup(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()
			defer store.Close()

			jobs := batchJobs(file.Jobs, client.RunOptions())
			logger.Info("starting batch", "jobs", len(jobs), "concurrency", file.Concurrency)

			failed := 0
			for _, r := range client.RunBatch(ctx, jobs, file.Concurrency) {
				if r.Err != nil {
					failed++
					fmt.Printf("❌ %s: %v\n", r.Job.Name, r.Err)
					continue
				}
				if err := save(store, r.Job.URL, r.Job.Goal, r.Result); err != nil {
					logger.Error("failed to store run", "job", r.Job.Name, "error", err)
				}
				s := r.Result.Summary
				fmt.Printf("✅ %s: %d products, %d pages, %s\n", r.Job.Name, s.TotalProducts, s.PagesProcessed, s.StopReason)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d jobs could not start", failed, len(jobs))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 2, "jobs to run at once")
	return cmd
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ShelfStalk %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Crawl:\n")
			fmt.Printf("  Max Pages:         %d\n", cfg.Crawl.MaxPages)
			fmt.Printf("  Min Products:      %d\n", cfg.Crawl.MinProducts)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Crawl.RequestTimeout)
			fmt.Printf("  Politeness Delay:  %s\n", cfg.Crawl.PolitenessDelay)
			fmt.Printf("  Fetch Attempts:    %d (%s)\n", cfg.Crawl.FetchRetry.Attempts(), cfg.Crawl.FetchRetry.Strategy)
			fmt.Printf("\nLLM:\n")
			fmt.Printf("  Provider:          %s\n", cfg.LLM.Provider)
			fmt.Printf("  Model:             %s\n", cfg.LLM.Model)
			fmt.Printf("  Endpoint:          %s\n", cfg.LLM.Endpoint)
			fmt.Printf("  Credentials:       %v\n", cfg.LLM.HasCredentials())
			fmt.Printf("\nBrowser:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Browser.Enabled)
			fmt.Printf("  Stealth:           %v\n", cfg.Browser.Stealth)
			fmt.Printf("\nSelectors:\n")
			if cfg.Selectors.IsEmpty() {
				fmt.Printf("  (none)\n")
			}
			for name, sel := range cfg.Selectors.Fields() {
				fmt.Printf("  %-18s %s\n", name+":", sel)
			}
			fmt.Printf("\nCache:\n")
			fmt.Printf("  Enabled:           %v (size %d)\n", cfg.Cache.Enabled, cfg.Cache.Size)
			fmt.Printf("\nEvents:\n")
			fmt.Printf("  Log:               %v\n", cfg.Events.Log)
			fmt.Printf("  Webhook:           %s\n", cfg.Events.WebhookURL)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Type:              %s\n", cfg.Storage.Type)
			fmt.Printf("  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// loadConfig loads the config file, applies flag overrides and validates.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cmd, cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setup wires the client, the storage backend and the metrics server.
func setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*shelfstalk.Client, storage.Storage, error) {
	client, err := shelfstalk.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("create storage: %w", err)
	}
	if cfg.Metrics.Enabled {
		if err := client.MetricsRegistry().StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}
	return client, store, nil
}

// save persists a run. It uses a fresh context so that a cancelled run is
// still stored.
func save(store storage.Storage, url, goal string, res *shelfstalk.Result) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return store.SaveRun(ctx, &storage.RunRecord{
		RunID:    res.RunID,
		StartURL: url,
		Goal:     goal,
		Products: res.Products,
		Summary:  res.Summary,
	})
}

func batchJobs(in []batchJob, base shelfstalk.RunOptions) []shelfstalk.Job {
	jobs := make([]shelfstalk.Job, len(in))
	for i, j := range in {
		opts := base
		if j.MaxPages > 0 {
			opts.MaxPages = j.MaxPages
		}
		if j.MinProducts > 0 {
			opts.MinProducts = j.MinProducts
		}
		if !j.Selectors.IsEmpty() {
			opts.CustomSelectors = j.Selectors
		}
		name := j.Name
		if name == "" {
			name = fmt.Sprintf("job-%d", i+1)
		}
		jobs[i] = shelfstalk.Job{Name: name, URL: j.URL, Goal: j.Goal, Options: opts}
	}
	return jobs
}

func printSummary(res *shelfstalk.Result, cfg *config.Config) {
	s := res.Summary
	c := s.FailureCounters
	icon := "✅"
	if s.StopReason == types.StopCancelled {
		icon = "⏹"
	}
	fmt.Printf("\n%s Run %s complete in %s\n", icon, s.RunID, (time.Duration(s.DurationMs) * time.Millisecond).Round(time.Millisecond))
	fmt.Printf("   Products:  %d\n", s.TotalProducts)
	fmt.Printf("   Pages:     %d (stop: %s)\n", s.PagesProcessed, s.StopReason)
	fmt.Printf("   Failures:  http=%d no_html=%d llm=%d parsing=%d empty=%d\n",
		c.HTTPErrors, c.NoHTML, c.LLMErrors, c.ParsingErrors, c.EmptyResults)
	fmt.Printf("   Success:   %.0f%%\n", s.SuccessRate*100)
	fmt.Printf("   Output:    %s (%s)\n", cfg.Storage.OutputPath, cfg.Storage.Type)

	if s.TotalProducts == 0 {
		fmt.Println("\n💡 No products were extracted.")
		switch {
		case c.HTTPErrors+c.NoHTML == c.TotalPages:
			fmt.Println("   Every page failed to load. The site may be blocking crawlers; try --browser.")
		case c.LLMErrors > 0:
			fmt.Println("   The LLM was unavailable. Check --provider and credentials, or pass --item-selector.")
		default:
			fmt.Println("   Try a more specific --goal or supply selectors with --item-selector.")
		}
	}
}

// setupLogger creates a structured logger.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// applyCLIOverrides applies flags the user set explicitly to the config.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("max-pages") {
		cfg.Crawl.MaxPages = runFlags.maxPages
	}
	if changed("min-products") {
		cfg.Crawl.MinProducts = runFlags.minProducts
	}
	if changed("provider") {
		cfg.LLM.Provider = strings.ToLower(runFlags.provider)
	}
	if changed("model") {
		cfg.LLM.Model = runFlags.model
	}
	if changed("endpoint") {
		cfg.LLM.Endpoint = runFlags.endpoint
	}
	if changed("api-key") {
		cfg.LLM.APIKey = runFlags.apiKey
	}
	if changed("browser") {
		cfg.Browser.Enabled = runFlags.browser
	}
	if changed("delay") {
		cfg.Crawl.PolitenessDelay = runFlags.delay
	}
	if changed("output") {
		cfg.Storage.OutputPath = runFlags.output
	}
	if changed("format") {
		cfg.Storage.Type = strings.ToLower(runFlags.format)
	}
	if changed("webhook") {
		cfg.Events.WebhookURL = runFlags.webhook
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = runFlags.metrics
	}
	if !runFlags.selectors.IsEmpty() {
		cfg.Selectors = runFlags.selectors
	}
}
