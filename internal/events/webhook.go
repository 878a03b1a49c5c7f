package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// SignatureHeader carries the HMAC-SHA256 of the request body when a
// secret is configured, formatted as "sha256=<hex>".
const SignatureHeader = "X-ShelfStalk-Signature"

// envelope is the webhook wire format.
type envelope struct {
	Type  Kind   `json:"type"`
	RunID string `json:"runId"`
	Time  int64  `json:"timestamp"`
	Data  Event  `json:"data"`
}

// WebhookSink POSTs events as JSON from a background worker. Emit never
// blocks: when the queue is full the event is dropped and counted.
type WebhookSink struct {
	url     string
	secret  string
	client  *http.Client
	retries []time.Duration
	queue   chan Event
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	failed  atomic.Int64
	logger  *slog.Logger
}

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithQueueSize sets the number of buffered events.
func WithQueueSize(n int) WebhookOption {
	return func(w *WebhookSink) {
		if n > 0 {
			w.queue = make(chan Event, n)
		}
	}
}

// WithRetryDelays sets the waits before each redelivery attempt.
func WithRetryDelays(d ...time.Duration) WebhookOption {
	return func(w *WebhookSink) { w.retries = d }
}

// NewWebhookSink starts a webhook sink. Call Close to flush it.
func NewWebhookSink(url, secret string, timeout time.Duration, logger *slog.Logger, opts ...WebhookOption) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &WebhookSink{
		url:     url,
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
		retries: []time.Duration{time.Second},
		queue:   make(chan Event, 256),
		done:    make(chan struct{}),
		logger:  logger.With("component", "webhook_sink"),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.loop()
	return w
}

func (w *WebhookSink) Emit(e Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return
	}
	select {
	case w.queue <- e:
	default:
		w.dropped.Add(1)
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to end.
func (w *WebhookSink) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many events were discarded on a full queue.
func (w *WebhookSink) Dropped() int64 { return w.dropped.Load() }

// Failed returns how many events exhausted their delivery attempts.
func (w *WebhookSink) Failed() int64 { return w.failed.Load() }

func (w *WebhookSink) loop() {
	defer close(w.done)
	for e := range w.queue {
		w.deliverWithRetry(e)
	}
}

func (w *WebhookSink) deliverWithRetry(e Event) {
	delays := append([]time.Duration{0}, w.retries...)
	for attempt, delay := range delays {
		if delay > 0 {
			time.Sleep(delay)
		}
		err := w.deliver(context.Background(), e)
		if err == nil {
			return
		}
		w.logger.Warn("webhook delivery failed", "event", e.Kind(), "attempt", attempt+1, "error", err)
	}
	w.failed.Add(1)
}

func (w *WebhookSink) deliver(ctx context.Context, e Event) error {
	meta := e.Base()
	body, err := json.Marshal(envelope{Type: e.Kind(), RunID: meta.RunID, Time: meta.Time.UnixMilli(), Data: e})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ShelfStalk-Webhook/1.0")
	if w.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
