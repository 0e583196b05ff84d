package errors

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig controls how many times an upstream call is attempted and how
// long to wait in between.
type RetryConfig struct {
	// MaxAttempts counts the first attempt. Values below 1 mean 1.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps every wait, including one requested by the upstream
	// through Retry-After. Zero means no cap.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the wait after each retry. Values below 1
	// keep the wait constant.
	BackoffFactor float64

	// Jitter spreads each wait by up to +/- this fraction (0.0-1.0).
	Jitter float64

	// RetryableFunc replaces IsRetryable when set.
	RetryableFunc func(error) bool
}

// DefaultRetry suits interactive upstream fetches: a browser is waiting, so
// waits stay short.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 250 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry makes exactly one attempt.
var NoRetry = RetryConfig{
	MaxAttempts: 1,
}

// RetryResult is the outcome of WithRetry and WithRetryContext.
type RetryResult[T any] struct {
	// Value is set when an attempt succeeded.
	Value T

	// Err is a *CategorizedError wrapping the error that ended the loop.
	Err error

	// Attempts is how many times fn ran.
	Attempts int

	// Duration covers all attempts and waits.
	Duration time.Duration
}

// WithRetry is WithRetryContext with a background context.
func WithRetry[T any](cfg RetryConfig, fn func() (T, error)) RetryResult[T] {
	return WithRetryContext(context.Background(), cfg, func(_ context.Context) (T, error) {
		return fn()
	})
}

// WithRetryContext calls fn until it succeeds, returns a non-retryable error,
// runs out of attempts, or ctx is done. Between attempts it waits for the
// larger of the computed backoff and any Retry-After the error carries,
// capped at MaxBackoff.
func WithRetryContext[T any](
	ctx context.Context,
	cfg RetryConfig,
	fn func(context.Context) (T, error),
) RetryResult[T] {
	start := time.Now()
	maxAttempts := max(cfg.MaxAttempts, 1)
	isRetryable := cfg.retryable()
	backoff := cfg.InitialBackoff

	fail := func(err error, attempts int, reason string) RetryResult[T] {
		return RetryResult[T]{
			Err: &CategorizedError{
				Err:      err,
				Category: Categorize(err),
				Retries:  attempts,
				Context:  reason,
			},
			Attempts: attempts,
			Duration: time.Since(start),
		}
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fail(err, attempt-1, "context cancelled")
		}

		value, err := fn(ctx)
		if err == nil {
			return RetryResult[T]{Value: value, Attempts: attempt, Duration: time.Since(start)}
		}
		if !isRetryable(err) {
			return fail(err, attempt, "")
		}
		if attempt >= maxAttempts {
			return fail(err, attempt, "max retries exceeded")
		}

		wait := cfg.capped(max(calculateBackoff(backoff, cfg.Jitter), retryAfter(err)))
		if !sleep(ctx, wait) {
			return fail(ctx.Err(), attempt, "context cancelled during backoff")
		}
		backoff = cfg.capped(cfg.next(backoff))
	}
}

// retryable returns the configured retryability check, or IsRetryable.
func (cfg RetryConfig) retryable() func(error) bool {
	if cfg.RetryableFunc != nil {
		return cfg.RetryableFunc
	}
	return IsRetryable
}

func (cfg RetryConfig) next(d time.Duration) time.Duration {
	if cfg.BackoffFactor < 1 {
		return d
	}
	return time.Duration(float64(d) * cfg.BackoffFactor)
}

func (cfg RetryConfig) capped(d time.Duration) time.Duration {
	if cfg.MaxBackoff > 0 && d > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return d
}

// retryAfter extracts an upstream-requested delay from err.
func retryAfter(err error) time.Duration {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.RetryAfter
	}
	return 0
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// calculateBackoff returns base spread by +/- base*jitter.
func calculateBackoff(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	spread := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + spread)
}

// RetryOption configures a RetryConfig built by NewRetryConfig.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the number of attempts, counting the first.
func WithMaxAttempts(n int) RetryOption {
	return func(cfg *RetryConfig) { cfg.MaxAttempts = n }
}

// WithInitialBackoff sets the wait before the second attempt.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(cfg *RetryConfig) { cfg.InitialBackoff = d }
}

// WithMaxBackoff caps every wait.
func WithMaxBackoff(d time.Duration) RetryOption {
	return func(cfg *RetryConfig) { cfg.MaxBackoff = d }
}

// WithBackoffFactor sets the backoff multiplier.
func WithBackoffFactor(f float64) RetryOption {
	return func(cfg *RetryConfig) { cfg.BackoffFactor = f }
}

// WithJitter sets the jitter fraction.
func WithJitter(j float64) RetryOption {
	return func(cfg *RetryConfig) { cfg.Jitter = j }
}

// WithRetryableFunc replaces the retryability check.
func WithRetryableFunc(fn func(error) bool) RetryOption {
	return func(cfg *RetryConfig) { cfg.RetryableFunc = fn }
}

// NewRetryConfig starts from DefaultRetry and applies opts.
//
// Example:
//
//	cfg := errors.NewRetryConfig(errors.WithMaxAttempts(5), errors.WithJitter(0))
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := DefaultRetry
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
