package shelfstalk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/IshaanNene/ShelfStalk/internal/events"
	"github.com/IshaanNene/ShelfStalk/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var cardSelectors = Selectors{Item: ".card", Link: "a", Title: "h2", Price: ".price"}

func shopServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<div class="card"><a href="/p/1"><h2>Trail Runner</h2></a><span class="price">$89.00</span></div>
			<div class="card"><a href="/p/2"><h2>Road Racer</h2></a><span class="price">$119.00</span></div>
		</body></html>`)
	}))
}

func TestClientRunWithSelectorsOnly(t *testing.T) {
	srv := shopServer()
	defer srv.Close()

	var (
		mu    sync.Mutex
		kinds []events.Kind
	)
	client, err := New(
		WithLogger(testLogger),
		WithSelectors(cardSelectors),
		WithDelay(0),
		WithMaxPages(3),
		WithEventHandler(func(e Event) {
			mu.Lock()
			kinds = append(kinds, e.Kind())
			mu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer client.Close()

	res, err := client.Run(context.Background(), srv.URL+"/shoes", "running shoes")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(res.Products))
	}
	if res.Products[0].Currency != "USD" {
		t.Errorf("expected currency detection, got %q", res.Products[0].Currency)
	}
	if res.Summary.FailureCounters.LLMErrors != 1 {
		t.Errorf("a run without a provider counts the missing decision, got %+v", res.Summary.FailureCounters)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) == 0 || kinds[0] != events.KindRunStarted || kinds[len(kinds)-1] != events.KindRunCompleted {
		t.Errorf("unexpected event sequence %v", kinds)
	}
	if got := client.Metrics()["runs_started"]; got != 1 {
		t.Errorf("runs_started = %d", got)
	}
}

func TestClientRequiresProviderOrSelectors(t *testing.T) {
	_, err := New(WithLogger(testLogger), WithProvider("openai", "gpt-4o-mini", ""))
	if !errors.Is(err, types.ErrNoCredentials) {
		t.Errorf("expected ErrNoCredentials, got %v", err)
	}
}

func TestClientRejectsInvalidConfig(t *testing.T) {
	_, err := New(WithLogger(testLogger), WithSelectors(cardSelectors), WithMaxPages(500))
	if err == nil {
		t.Error("expected page budget validation error")
	}
}

func TestClientRunBatchUsesClientOptions(t *testing.T) {
	srv := shopServer()
	defer srv.Close()

	client, err := New(WithLogger(testLogger), WithSelectors(cardSelectors), WithDelay(0))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	results := client.RunBatch(context.Background(), []Job{
		{Name: "a", URL: srv.URL + "/a", Goal: "shoes"},
		{Name: "b", URL: srv.URL + "/b", Goal: "shoes"},
	}, 2)
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("%s: %v", r.Job.Name, r.Err)
		}
		if len(r.Result.Products) != 2 {
			t.Errorf("%s: expected 2 products, got %d", r.Job.Name, len(r.Result.Products))
		}
	}
}
