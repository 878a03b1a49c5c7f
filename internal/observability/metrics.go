package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

// Metrics tracks operational counters across runs. All fields are safe for
// concurrent use; a nil *Metrics ignores every call.
type Metrics struct {
	// Run metrics
	RunsStarted   atomic.Int64
	RunsCompleted atomic.Int64
	RunsCancelled atomic.Int64

	// Page metrics
	PagesFetched  atomic.Int64
	PagesRendered atomic.Int64
	FetchRetries  atomic.Int64
	HTTPErrors    atomic.Int64
	NoHTML        atomic.Int64

	// Decision metrics
	LLMCalls          atomic.Int64
	LLMErrors         atomic.Int64
	DecisionFallbacks atomic.Int64

	// Extraction metrics
	ParsingErrors     atomic.Int64
	EmptyResults      atomic.Int64
	ProductsExtracted atomic.Int64
	ProductsDropped   atomic.Int64

	BytesDownloaded atomic.Int64
	QueueDepth      atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

// ObserveFetch records one fetched page.
func (m *Metrics) ObserveFetch(obs *types.PageObservation) {
	if m == nil || obs == nil {
		return
	}
	if obs.Mode == types.ModeBrowser {
		m.PagesRendered.Add(1)
	} else {
		m.PagesFetched.Add(1)
	}
	m.BytesDownloaded.Add(int64(len(obs.HTML)))
}

// ObserveRun records a finished run's summary.
func (m *Metrics) ObserveRun(s *types.RunSummary) {
	if m == nil || s == nil {
		return
	}
	if s.StopReason == types.StopCancelled {
		m.RunsCancelled.Add(1)
	} else {
		m.RunsCompleted.Add(1)
	}
	c := s.FailureCounters
	m.HTTPErrors.Add(int64(c.HTTPErrors))
	m.NoHTML.Add(int64(c.NoHTML))
	m.LLMErrors.Add(int64(c.LLMErrors))
	m.ParsingErrors.Add(int64(c.ParsingErrors))
	m.EmptyResults.Add(int64(c.EmptyResults))
	m.ProductsExtracted.Add(int64(s.TotalProducts))
}

// Inc adds one to c when m is non-nil.
func (m *Metrics) Inc(c func(*Metrics) *atomic.Int64) {
	if m == nil {
		return
	}
	c(m).Add(1)
}

// SetQueueDepth records the pending URL count of the most recent run update.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Store(int64(n))
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		kind  string
		value int64
	}{
		{"shelfstalk_runs_started_total", "Total crawl runs started", "counter", m.RunsStarted.Load()},
		{"shelfstalk_runs_completed_total", "Total crawl runs completed", "counter", m.RunsCompleted.Load()},
		{"shelfstalk_runs_cancelled_total", "Total crawl runs cancelled", "counter", m.RunsCancelled.Load()},
		{"shelfstalk_pages_fetched_total", "Total pages fetched over HTTP", "counter", m.PagesFetched.Load()},
		{"shelfstalk_pages_rendered_total", "Total pages rendered in the browser", "counter", m.PagesRendered.Load()},
		{"shelfstalk_fetch_retries_total", "Total fetch retries", "counter", m.FetchRetries.Load()},
		{"shelfstalk_http_errors_total", "Total pages lost to transport or HTTP errors", "counter", m.HTTPErrors.Load()},
		{"shelfstalk_no_html_total", "Total pages without usable HTML", "counter", m.NoHTML.Load()},
		{"shelfstalk_llm_calls_total", "Total decision engine calls", "counter", m.LLMCalls.Load()},
		{"shelfstalk_llm_errors_total", "Total decision engine failures", "counter", m.LLMErrors.Load()},
		{"shelfstalk_decision_fallbacks_total", "Total fallback decisions", "counter", m.DecisionFallbacks.Load()},
		{"shelfstalk_parsing_errors_total", "Total extractor failures", "counter", m.ParsingErrors.Load()},
		{"shelfstalk_empty_results_total", "Total extraction passes that added nothing", "counter", m.EmptyResults.Load()},
		{"shelfstalk_products_extracted_total", "Total unique products extracted", "counter", m.ProductsExtracted.Load()},
		{"shelfstalk_products_dropped_total", "Total candidates dropped by validation", "counter", m.ProductsDropped.Load()},
		{"shelfstalk_bytes_downloaded_total", "Total HTML bytes downloaded", "counter", m.BytesDownloaded.Load()},
		{"shelfstalk_queue_depth", "Pending URLs in the most recently updated run", "gauge", m.QueueDepth.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", metric.name, metric.kind)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}
}

// Handler returns a mux serving metrics at path and a /health check.
func (m *Metrics) Handler(path string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	return mux
}

// StartServer serves metrics on port until ctx is cancelled.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return nil
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"runs_started":       m.RunsStarted.Load(),
		"runs_completed":     m.RunsCompleted.Load(),
		"runs_cancelled":     m.RunsCancelled.Load(),
		"pages_fetched":      m.PagesFetched.Load(),
		"pages_rendered":     m.PagesRendered.Load(),
		"fetch_retries":      m.FetchRetries.Load(),
		"http_errors":        m.HTTPErrors.Load(),
		"no_html":            m.NoHTML.Load(),
		"llm_calls":          m.LLMCalls.Load(),
		"llm_errors":         m.LLMErrors.Load(),
		"decision_fallbacks": m.DecisionFallbacks.Load(),
		"parsing_errors":     m.ParsingErrors.Load(),
		"empty_results":      m.EmptyResults.Load(),
		"products_extracted": m.ProductsExtracted.Load(),
		"products_dropped":   m.ProductsDropped.Load(),
		"bytes_downloaded":   m.BytesDownloaded.Load(),
		"queue_depth":        m.QueueDepth.Load(),
	}
}
