package observability

import (
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFetch(&types.PageObservation{HTML: "x"})
	m.ObserveRun(&types.RunSummary{})
	m.Inc(func(m *Metrics) *atomic.Int64 { return &m.LLMCalls })
}

func TestObserveRun(t *testing.T) {
	m := NewMetrics(testLogger)
	m.ObserveFetch(&types.PageObservation{HTML: "abcd", Mode: types.ModeHTTP})
	m.ObserveFetch(&types.PageObservation{HTML: "ab", Mode: types.ModeBrowser})
	m.ObserveRun(&types.RunSummary{
		TotalProducts:   7,
		StopReason:      types.StopNoMorePages,
		FailureCounters: types.FailureCounters{HTTPErrors: 2, EmptyResults: 1},
	})
	m.ObserveRun(&types.RunSummary{StopReason: types.StopCancelled})

	snap := m.Snapshot()
	if snap["pages_fetched"] != 1 || snap["pages_rendered"] != 1 || snap["bytes_downloaded"] != 6 {
		t.Errorf("unexpected page metrics: %v", snap)
	}
	if snap["runs_completed"] != 1 || snap["runs_cancelled"] != 1 {
		t.Errorf("unexpected run metrics: %v", snap)
	}
	if snap["http_errors"] != 2 || snap["products_extracted"] != 7 {
		t.Errorf("unexpected failure metrics: %v", snap)
	}
}

func TestHandlerExposition(t *testing.T) {
	m := NewMetrics(testLogger)
	m.Inc(func(m *Metrics) *atomic.Int64 { return &m.DecisionFallbacks })

	rec := httptest.NewRecorder()
	m.Handler("/metrics").ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "shelfstalk_decision_fallbacks_total 1") {
		t.Errorf("missing counter in exposition:\n%s", body)
	}
	if !strings.Contains(body, "# TYPE shelfstalk_queue_depth gauge") {
		t.Error("queue depth should be a gauge")
	}

	rec = httptest.NewRecorder()
	m.Handler("/metrics").ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Body.String() != "ok" {
		t.Errorf("unexpected health body %q", rec.Body.String())
	}
}
