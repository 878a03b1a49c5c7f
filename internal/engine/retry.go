package engine

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

const (
	defaultRetryBase = 500 * time.Millisecond
	maxRetryAfter    = time.Minute
)

// fetchFunc performs one fetch attempt.
type fetchFunc func(ctx context.Context) (*types.PageObservation, error)

// withRetry runs fn up to policy.Attempts() times. Only retryable transport
// errors and throttling statuses (429, 503) are retried; the last outcome is
// returned either way. onRetry, when set, is called before each re-attempt.
func withRetry(ctx context.Context, policy types.RetryPolicy, logger *slog.Logger, onRetry func(), fn fetchFunc) (*types.PageObservation, error) {
	attempts := policy.Attempts()
	var (
		obs *types.PageObservation
		err error
	)
	for attempt := 1; ; attempt++ {
		obs, err = fn(ctx)
		if attempt >= attempts || !shouldRetry(obs, err) {
			return obs, err
		}

		delay := backoff(policy, attempt)
		if obs != nil && obs.RetryAfter > delay {
			delay = min(obs.RetryAfter, maxRetryAfter)
		}
		logger.Debug("retrying fetch", "attempt", attempt+1, "max_attempts", attempts, "delay", delay, "error", err)
		if onRetry != nil {
			onRetry()
		}
		if !sleepCtx(ctx, delay) {
			return obs, err
		}
	}
}

func shouldRetry(obs *types.PageObservation, err error) bool {
	if err != nil {
		var fe *types.FetchError
		return errors.As(err, &fe) && fe.IsRetryable()
	}
	return obs != nil && (obs.Status == http.StatusTooManyRequests || obs.Status == http.StatusServiceUnavailable)
}

// backoff returns the delay before attempt+1. Exponential doubles the base
// per attempt; jitter draws uniformly from [0, exponential].
func backoff(policy types.RetryPolicy, attempt int) time.Duration {
	base := time.Duration(policy.BaseDelayMs) * time.Millisecond
	if base <= 0 {
		base = defaultRetryBase
	}
	d := base << (attempt - 1)
	if policy.Strategy == types.BackoffJitter {
		d = time.Duration(rand.Int64N(int64(d) + 1))
	}
	return d
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
