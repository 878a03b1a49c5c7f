package events

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestEventKinds(t *testing.T) {
	meta := NewMeta("run-1")
	all := []Event{
		RunStarted{Meta: meta},
		PageFetched{Meta: meta},
		PageDecided{Meta: meta},
		PageExtracted{Meta: meta},
		PaginationFound{Meta: meta},
		RunCompleted{Meta: meta},
	}
	seen := map[Kind]bool{}
	for _, e := range all {
		assert.Equal(t, "run-1", e.Base().RunID)
		seen[e.Kind()] = true
	}
	assert.Len(t, seen, len(all))
}

func TestMultiSinkSurvivesPanics(t *testing.T) {
	var got []Kind
	panicky := FuncSink(func(Event) { panic("boom") })
	recorder := FuncSink(func(e Event) { got = append(got, e.Kind()) })

	m := NewMultiSink(testLogger, panicky, nil, recorder)
	assert.NotPanics(t, func() {
		m.Emit(RunStarted{Meta: NewMeta("r")})
		m.Emit(RunCompleted{Meta: NewMeta("r")})
	})
	assert.Equal(t, []Kind{KindRunStarted, KindRunCompleted}, got)
}

func TestSafeEmitNilSink(t *testing.T) {
	assert.NotPanics(t, func() { SafeEmit(testLogger, nil, RunStarted{}) })
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	s := NewLogSink(logger)

	s.Emit(RunCompleted{Meta: NewMeta("abc"), Summary: types.RunSummary{StopReason: types.StopNoMorePages, TotalProducts: 3}})
	s.Emit(PageExtracted{Meta: NewMeta("abc"), URL: "https://x.test"})

	out := buf.String()
	assert.Contains(t, out, "run_id=abc")
	assert.Contains(t, out, "stop_reason=no_more_pages")
	assert.NotContains(t, out, "page extracted", "page events log at debug")
}

func TestWebhookSinkDeliversSigned(t *testing.T) {
	var mu sync.Mutex
	var bodies [][]byte
	var sigs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, b)
		sigs = append(sigs, r.Header.Get(SignatureHeader))
		mu.Unlock()
	}))
	defer srv.Close()

	w := NewWebhookSink(srv.URL, "s3cret", time.Second, testLogger)
	w.Emit(RunStarted{Meta: NewMeta("run-9"), StartURL: "https://shop.test", Goal: "shoes"})
	w.Emit(RunCompleted{Meta: NewMeta("run-9")})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Close(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Equal(t, "sha256="+Sign("s3cret", bodies[0]), sigs[0])

	var env struct {
		Type  Kind           `json:"type"`
		RunID string         `json:"runId"`
		Data  map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(bodies[0], &env))
	assert.Equal(t, KindRunStarted, env.Type)
	assert.Equal(t, "run-9", env.RunID)
	assert.Equal(t, "shoes", env.Data["goal"])

	// Emitting after Close drops instead of panicking.
	assert.NotPanics(t, func() { w.Emit(RunStarted{}) })
	assert.Equal(t, int64(1), w.Dropped())
}

func TestWebhookSinkRetriesAndCountsFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhookSink(srv.URL, "", time.Second, testLogger, WithRetryDelays(time.Millisecond, time.Millisecond))
	w.Emit(RunStarted{Meta: NewMeta("r")})
	require.NoError(t, w.Close(context.Background()))

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(1), w.Failed())
}

func TestWebhookSinkDropsOnFullQueue(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()

	w := NewWebhookSink(srv.URL, "", 5*time.Second, testLogger, WithQueueSize(1), WithRetryDelays())
	for i := 0; i < 20; i++ {
		w.Emit(PageFetched{Meta: NewMeta("r")})
	}
	assert.Greater(t, w.Dropped(), int64(0))

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Close(ctx))
}
