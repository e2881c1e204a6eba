// Package backoff provides exponential backoff and a bounded retry helper.
package backoff

import (
	"context"
	"errors"
	"math"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 500ms
	Max     time.Duration // default: 10s
}

func (c *Config) bounds() (initial, maxBackoff time.Duration) {
	initial = 500 * time.Millisecond
	maxBackoff = 10 * time.Second
	if c != nil {
		if c.Initial > 0 {
			initial = c.Initial
		}
		if c.Max > 0 {
			maxBackoff = c.Max
		}
	}
	return initial, maxBackoff
}

// Exponential calculates the delay before retry number attempt.
// Attempt 1 returns initial, attempt 2 returns initial*2, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial, maxBackoff := cfg.bounds()
	if attempt < 1 {
		return initial
	}
	d := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if d > float64(maxBackoff) {
		d = float64(maxBackoff)
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, retries are exhausted, or the error is
// not retryable. It makes at most retries+1 calls and returns the last error.
// A nil retryable treats every error as retryable. If ctx ends while waiting,
// the result matches both ctx.Err() and the last error.
func Retry(ctx context.Context, retries int, cfg *Config, retryable func(error) bool, fn func(attempt int) error) error {
	var lastErr error
	for attempt := range retries + 1 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), lastErr)
			case <-time.After(Exponential(attempt, cfg)):
			}
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
