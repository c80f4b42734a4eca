package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

const defaultRetryMaxDelay = 10 * time.Second

// RetryPolicy runs an operation with bounded exponential backoff. The delay
// starts at BaseDelay and doubles per attempt up to MaxDelay.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Sleeper replaces the timer-based wait (useful for tests).
	Sleeper func(time.Duration)
	// ShouldRetry overrides Retryable as the retry predicate.
	ShouldRetry func(error) bool
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent or ctx ends. fn receives the 1-based attempt number.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(attempt int) error) error {
	attempts := max(p.Attempts, 1)
	retryable := p.ShouldRetry
	if retryable == nil {
		retryable = Retryable
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == attempts || !retryable(err) || ctx.Err() != nil {
			break
		}
		if err := p.sleep(ctx, p.Backoff(attempt)); err != nil {
			return err
		}
	}
	if attempts > 1 && retryable(lastErr) {
		return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
	}
	return lastErr
}

// Backoff returns the wait after the given 1-based failed attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	delay := p.BaseDelay
	if delay <= 0 {
		return 0
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			return maxDelay
		}
		delay *= 2
	}
	return min(delay, maxDelay)
}

func (p RetryPolicy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if p.Sleeper != nil {
		p.Sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ClassifyHTTP maps a transport failure or HTTP status to an error marker.
// Network errors, 408, 429 and 5xx are ErrProviderUnavailable; other 4xx
// statuses and request construction failures are ErrConfiguration. A nil
// result means the status is a success.
func ClassifyHTTP(stage string, status int, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return Wrap(ErrProviderUnavailable, stage, "request", "network error", err)
		}
		return Wrap(ErrConfiguration, stage, "request", "request failed", err)
	}
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return Wrap(ErrProviderUnavailable, stage, "request", fmt.Sprintf("http %d", status), nil)
	case status >= http.StatusBadRequest:
		return Wrap(ErrConfiguration, stage, "request", fmt.Sprintf("http %d", status), nil)
	}
	return nil
}
