package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/ShelfStalk/internal/config"
	"github.com/IshaanNene/ShelfStalk/internal/events"
	"github.com/IshaanNene/ShelfStalk/internal/fetcher"
	"github.com/IshaanNene/ShelfStalk/internal/observability"
	"github.com/IshaanNene/ShelfStalk/internal/parser"
	"github.com/IshaanNene/ShelfStalk/internal/pipeline"
	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// ErrNoFetcher is returned by Run when the engine was built without a fetcher.
var ErrNoFetcher = errors.New("no fetcher configured")

// Fetcher retrieves a page over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*types.PageObservation, error)
}

// Renderer retrieves a page through a browser.
type Renderer interface {
	Render(ctx context.Context, url string, opts fetcher.RenderOptions) (*types.PageObservation, error)
}

// Decider proposes extraction strategies for a page. It returns an error
// only when it cannot operate at all.
type Decider interface {
	Decide(ctx context.Context, obs *types.PageObservation, goal string) (*types.Decision, error)
}

// DirectExtractor reads products straight from page HTML with a model.
type DirectExtractor interface {
	Extract(ctx context.Context, html, baseURL, goal string) ([]types.Product, error)
}

// Deps are the collaborators of an Engine. Only Fetcher is required; leave
// an optional capability as a nil interface to disable it.
type Deps struct {
	Fetcher   Fetcher
	Renderer  Renderer
	Decider   Decider
	Extractor DirectExtractor
	Pipeline  *pipeline.Pipeline
	Sink      events.Sink
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// RunOptions bound a single run.
type RunOptions struct {
	// MaxPages is the page budget, clamped to [1, 50]. Zero means 10.
	MaxPages int

	// MinProducts stops the run once this many unique products are held.
	// Zero defers to the decision's stop criteria.
	MinProducts int

	// CustomSelectors are tried before anything the decision proposes.
	CustomSelectors types.Selectors

	FetchRetry      types.RetryPolicy
	PolitenessDelay time.Duration
	RequestTimeout  time.Duration
	RenderTimeout   time.Duration
	Render          fetcher.RenderOptions
}

const (
	defaultMaxPages       = 10
	defaultRequestTimeout = 30 * time.Second
	defaultRenderTimeout  = 90 * time.Second
)

// DefaultRunOptions returns the options used when nothing is configured.
func DefaultRunOptions() RunOptions {
	return RunOptionsFromConfig(config.DefaultConfig())
}

// RunOptionsFromConfig maps the crawl, browser and selectors sections.
func RunOptionsFromConfig(cfg *config.Config) RunOptions {
	return RunOptions{
		MaxPages:        cfg.Crawl.MaxPages,
		MinProducts:     cfg.Crawl.MinProducts,
		CustomSelectors: cfg.Selectors,
		FetchRetry:      cfg.Crawl.FetchRetry,
		PolitenessDelay: cfg.Crawl.PolitenessDelay,
		RequestTimeout:  cfg.Crawl.RequestTimeout,
		RenderTimeout:   cfg.Browser.NavigationTimeout * 2,
		Render: fetcher.RenderOptions{
			ScrollCount:    cfg.Browser.ScrollCount,
			ScrollInterval: cfg.Browser.ScrollInterval,
			WaitAfterLoad:  cfg.Browser.WaitAfterLoad,
		},
	}
}

func (o RunOptions) normalized() RunOptions {
	if o.MaxPages == 0 {
		o.MaxPages = defaultMaxPages
	}
	o.MaxPages = min(max(o.MaxPages, config.MinPageBudget), config.MaxPageBudget)
	o.MinProducts = max(o.MinProducts, 0)
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	if o.RenderTimeout <= 0 {
		o.RenderTimeout = defaultRenderTimeout
	}
	o.PolitenessDelay = max(o.PolitenessDelay, 0)
	return o
}

// Result is what a run returns: the unique products and the summary.
type Result struct {
	RunID    string
	Products []types.Product
	Summary  types.RunSummary
}

// Engine runs crawls. It holds no per-run state, so one Engine may serve
// concurrent runs.
type Engine struct {
	fetcher  Fetcher
	renderer Renderer
	decider  Decider
	chain    *Chain
	sink     events.Sink
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// New creates an Engine from deps.
func New(deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")

	pl := deps.Pipeline
	if pl == nil {
		pl = pipeline.Default(logger)
	}
	sink := deps.Sink
	if sink == nil {
		sink = events.NopSink{}
	}

	return &Engine{
		fetcher:  deps.Fetcher,
		renderer: deps.Renderer,
		decider:  deps.Decider,
		chain:    NewChain(deps.Extractor, pl, logger),
		sink:     sink,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// Run crawls from startURL until a stop condition holds. Only configuration
// problems are returned as errors; every other failure is counted in the
// summary.
func (e *Engine) Run(ctx context.Context, startURL, goal string, opts RunOptions) (*Result, error) {
	startURL = strings.TrimSpace(startURL)
	if err := config.ValidateURL(startURL); err != nil {
		return nil, err
	}
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, types.ErrEmptyGoal
	}
	if e.fetcher == nil {
		return nil, ErrNoFetcher
	}
	if e.decider == nil && opts.CustomSelectors.IsEmpty() {
		return nil, fmt.Errorf("%w: supply custom selectors or configure an LLM provider", types.ErrNoProvider)
	}

	opts = opts.normalized()
	id := uuid.NewString()
	r := &run{
		e:        e,
		id:       id,
		startURL: startURL,
		goal:     goal,
		opts:     opts,
		budget:   opts.MaxPages,
		frontier: NewFrontier(),
		visited:  NewVisited(),
		acc:      NewAccumulator(),
		limiter:  newLimiter(opts.PolitenessDelay),
		logger:   e.logger.With("run_id", id),
		started:  time.Now(),
	}
	r.frontier.Push(startURL)
	return r.execute(ctx), nil
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// run is the mutable state of one crawl. It is confined to one goroutine.
type run struct {
	e        *Engine
	id       string
	startURL string
	goal     string
	opts     RunOptions
	budget   int
	frontier *Frontier
	visited  *Visited
	acc      *Accumulator
	counters types.FailureCounters
	limiter  *rate.Limiter
	logger   *slog.Logger
	started  time.Time
}

func (r *run) execute(ctx context.Context) *Result {
	r.logger.Info("run started", "url", r.startURL, "goal", r.goal, "max_pages", r.budget)
	r.incr(func(m *observability.Metrics) *atomic.Int64 { return &m.RunsStarted })
	r.emit(events.RunStarted{
		Meta:     events.NewMeta(r.id),
		StartURL: r.startURL,
		Goal:     r.goal,
		MaxPages: r.budget,
	})

	for {
		if ctx.Err() != nil {
			return r.finish(types.StopCancelled)
		}
		url, ok := r.next()
		if !ok {
			return r.finish(types.StopNoMorePages)
		}
		if r.counters.TotalPages >= r.budget {
			return r.finish(types.StopMaxPages)
		}
		if !r.wait(ctx) {
			return r.finish(types.StopCancelled)
		}
		if r.processPage(ctx, url) {
			return r.finish(types.StopMinProducts)
		}
	}
}

// next pops the oldest URL that has not been visited yet.
func (r *run) next() (string, bool) {
	for {
		url, ok := r.frontier.Pop()
		if !ok {
			return "", false
		}
		if !r.visited.Has(url) {
			return url, true
		}
	}
}

// processPage fetches, decides, extracts and paginates one URL. It reports
// whether the product threshold was reached.
func (r *run) processPage(ctx context.Context, url string) bool {
	r.visited.Mark(url)
	r.counters.TotalPages++
	r.e.metrics.SetQueueDepth(r.frontier.Len())
	logger := r.logger.With("url", url)

	obs, err := r.fetch(ctx, url)
	r.emitFetched(url, types.ModeHTTP, obs, err)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return false
		}
		r.counters.HTTPErrors++
		logger.Warn("fetch failed", "error", err)
		return false
	case obs == nil || !obs.HasHTML():
		r.counters.NoHTML++
		logger.Warn("page returned no HTML", "status", statusOf(obs))
		return false
	case obs.Status >= 400:
		r.counters.HTTPErrors++
		logger.Warn("page returned error status", "status", obs.Status)
		return false
	}
	if obs.URL != "" {
		r.visited.Mark(obs.URL)
	} else {
		obs.URL = url
	}
	r.e.metrics.ObserveFetch(obs)

	actions, ok := r.decide(ctx, obs, logger)
	if !ok {
		return false
	}

	extracted, added := false, 0
	defer func() {
		if extracted && added == 0 {
			r.counters.EmptyResults++
		}
	}()

	for _, action := range actions {
		page := obs
		if action != nil && action.Mode == types.ModeBrowser && r.e.renderer != nil {
			rendered, ok := r.render(ctx, url, action, logger)
			if !ok {
				r.counters.NoHTML++
				continue
			}
			page = rendered
		}

		added += r.extract(ctx, page, action)
		extracted = true
		r.paginate(page, action)

		if action != nil && action.Pagination.MaxPages > 0 && action.Pagination.MaxPages < r.budget {
			r.budget = action.Pagination.MaxPages
		}
		if threshold := r.threshold(action); threshold > 0 && r.acc.Len() >= threshold {
			logger.Info("product threshold reached", "products", r.acc.Len(), "threshold", threshold)
			return true
		}
	}
	return false
}

// fetch performs the HTTP fetch under the run-wide retry policy.
func (r *run) fetch(ctx context.Context, url string) (*types.PageObservation, error) {
	return withRetry(ctx, r.opts.FetchRetry, r.logger, r.onRetry, func(ctx context.Context) (*types.PageObservation, error) {
		fctx, cancel := context.WithTimeout(ctx, r.opts.RequestTimeout)
		defer cancel()
		return r.e.fetcher.Fetch(fctx, url)
	})
}

// render re-fetches url through the browser under the action's retry policy.
func (r *run) render(ctx context.Context, url string, action *types.ExtractionStrategy, logger *slog.Logger) (*types.PageObservation, bool) {
	if !r.wait(ctx) {
		return nil, false
	}
	opts := renderOptions(r.opts.Render, action.AntiLazy)
	if action.Pagination.Type == types.PaginationButton && action.Pagination.Selector != "" {
		opts.LoadMoreSelector = action.Pagination.Selector
		opts.LoadMoreClicks = max(opts.ScrollCount, 1)
	}
	obs, err := withRetry(ctx, action.Retry, r.logger, r.onRetry, func(ctx context.Context) (*types.PageObservation, error) {
		rctx, cancel := context.WithTimeout(ctx, r.opts.RenderTimeout)
		defer cancel()
		return r.e.renderer.Render(rctx, url, opts)
	})
	r.emitFetched(url, types.ModeBrowser, obs, err)
	if err != nil || obs == nil || !obs.HasHTML() {
		logger.Warn("browser render produced no HTML", "error", err)
		return nil, false
	}
	if obs.URL == "" {
		obs.URL = url
	}
	r.e.metrics.ObserveFetch(obs)
	return obs, true
}

// renderOptions applies an action's anti-lazy hints over the run defaults.
func renderOptions(base fetcher.RenderOptions, al types.AntiLazy) fetcher.RenderOptions {
	opts := base
	switch {
	case !al.Scroll:
		opts.ScrollCount = 0
	case al.MaxScrolls > 0:
		opts.ScrollCount = al.MaxScrolls
	}
	if w := al.Wait(); w > 0 {
		opts.WaitAfterLoad = w
	}
	return opts
}

// decide returns the actions to try for obs. A nil action stands for a
// custom-selector-only pass after the decider failed; ok is false when the
// page must be abandoned.
func (r *run) decide(ctx context.Context, obs *types.PageObservation, logger *slog.Logger) (actions []*types.ExtractionStrategy, ok bool) {
	var (
		decision *types.Decision
		err      error
	)
	if r.e.decider == nil {
		err = types.ErrNoProvider
	} else {
		r.incr(func(m *observability.Metrics) *atomic.Int64 { return &m.LLMCalls })
		decision, err = r.e.decider.Decide(ctx, obs, r.goal)
		if err == nil && (decision == nil || len(decision.Actions) == 0) {
			err = fmt.Errorf("%w: decision has no actions", types.ErrInvalidStrategy)
		}
	}

	if err != nil {
		r.counters.LLMErrors++
		r.emit(events.PageDecided{Meta: events.NewMeta(r.id), URL: obs.URL, Error: err.Error()})
		if r.opts.CustomSelectors.IsEmpty() {
			logger.Warn("decision failed, skipping page", "error", err)
			return nil, false
		}
		logger.Warn("decision failed, trying custom selectors", "error", err)
		return []*types.ExtractionStrategy{nil}, true
	}

	if decision.Fallback {
		r.incr(func(m *observability.Metrics) *atomic.Int64 { return &m.DecisionFallbacks })
	}
	first := decision.Actions[0]
	r.emit(events.PageDecided{
		Meta:          events.NewMeta(r.id),
		URL:           obs.URL,
		Actions:       len(decision.Actions),
		Mode:          first.Mode,
		ParseStrategy: first.ParseStrategy,
		Fallback:      decision.Fallback,
		Reason:        decision.Reason,
	})
	logger.Debug("decision ready", "actions", len(decision.Actions), "fallback", decision.Fallback, "parse_strategy", first.ParseStrategy)

	actions = make([]*types.ExtractionStrategy, len(decision.Actions))
	for i := range decision.Actions {
		actions[i] = &decision.Actions[i]
	}
	return actions, true
}

// extract runs the chain for one action, merges the survivors and returns
// how many were new.
func (r *run) extract(ctx context.Context, page *types.PageObservation, action *types.ExtractionStrategy) int {
	res := r.e.chain.Extract(ctx, &ExtractInput{
		HTML:    page.HTML,
		BaseURL: page.URL,
		Goal:    r.goal,
		Action:  action,
		Custom:  r.opts.CustomSelectors,
	})
	r.counters.ParsingErrors += res.Errors
	if r.e.metrics != nil {
		r.e.metrics.ProductsDropped.Add(int64(res.Dropped))
	}

	added := r.acc.Merge(res.Candidates)
	r.emit(events.PageExtracted{
		Meta:       events.NewMeta(r.id),
		URL:        page.URL,
		Extractor:  res.Extractor,
		Candidates: len(res.Candidates),
		Added:      added,
		Total:      r.acc.Len(),
	})
	r.logger.Debug("page extracted", "url", page.URL, "extractor", res.Extractor, "added", added, "total", r.acc.Len())
	return added
}

// paginate queues unvisited next-page links found on page.
func (r *run) paginate(page *types.PageObservation, action *types.ExtractionStrategy) {
	selector := ""
	if action != nil {
		selector = action.Pagination.Selector
	}
	links := parser.FindNextLinks(page.HTML, page.URL, selector)
	if len(links) == 0 {
		return
	}
	enqueued := 0
	for _, link := range links {
		if r.visited.Has(link) {
			continue
		}
		if r.frontier.Push(link) {
			enqueued++
		}
	}
	r.e.metrics.SetQueueDepth(r.frontier.Len())
	r.emit(events.PaginationFound{
		Meta:     events.NewMeta(r.id),
		URL:      page.URL,
		Links:    links,
		Enqueued: enqueued,
	})
}

// threshold is the run's product target, or the action's when the run sets
// none. Zero disables early stopping.
func (r *run) threshold(action *types.ExtractionStrategy) int {
	if r.opts.MinProducts > 0 {
		return r.opts.MinProducts
	}
	if action != nil {
		return action.StopCriteria.MinProducts
	}
	return 0
}

func (r *run) finish(reason types.StopReason) *Result {
	summary := types.RunSummary{
		RunID:           r.id,
		DurationMs:      time.Since(r.started).Milliseconds(),
		TotalProducts:   r.acc.Len(),
		PagesProcessed:  r.counters.TotalPages,
		StopReason:      reason,
		FailureCounters: r.counters,
		SuccessRate:     r.counters.SuccessRate(),
		StartedAt:       r.started,
	}
	r.logger.Info("run completed",
		"stop_reason", reason,
		"products", summary.TotalProducts,
		"pages", summary.PagesProcessed,
		"visited", r.visited.Len(),
		"http_errors", r.counters.HTTPErrors,
		"no_html", r.counters.NoHTML,
		"llm_errors", r.counters.LLMErrors,
		"parsing_errors", r.counters.ParsingErrors,
		"empty_results", r.counters.EmptyResults,
		"duration_ms", summary.DurationMs,
	)
	r.e.metrics.ObserveRun(&summary)
	r.e.metrics.SetQueueDepth(0)
	r.emit(events.RunCompleted{Meta: events.NewMeta(r.id), Summary: summary})
	return &Result{RunID: r.id, Products: r.acc.Products(), Summary: summary}
}

// wait applies the politeness delay. A limiter error caused by a deadline
// shorter than the delay does not stop the run; cancellation does.
func (r *run) wait(ctx context.Context) bool {
	if err := r.limiter.Wait(ctx); err != nil {
		return ctx.Err() == nil
	}
	return true
}

func (r *run) onRetry() {
	r.incr(func(m *observability.Metrics) *atomic.Int64 { return &m.FetchRetries })
}

func (r *run) incr(counter func(*observability.Metrics) *atomic.Int64) {
	r.e.metrics.Inc(counter)
}

func (r *run) emit(ev events.Event) {
	events.SafeEmit(r.logger, r.e.sink, ev)
}

func (r *run) emitFetched(url string, mode types.FetchMode, obs *types.PageObservation, err error) {
	ev := events.PageFetched{Meta: events.NewMeta(r.id), URL: url, Mode: mode}
	if obs != nil {
		ev.FinalURL = obs.URL
		ev.Status = obs.Status
		ev.Bytes = len(obs.HTML)
		ev.DurationMs = obs.FetchDuration.Milliseconds()
	}
	if err != nil {
		ev.Error = err.Error()
	}
	r.emit(ev)
}

func statusOf(obs *types.PageObservation) int {
	if obs == nil {
		return 0
	}
	return obs.Status
}
