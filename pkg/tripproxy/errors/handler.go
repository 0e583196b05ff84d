package errors

import (
	"context"
	"log/slog"
	"time"
)

// Handler coordinates retries for upstream calls and reports what happened.
type Handler struct {
	retry       RetryConfig
	logger      *slog.Logger
	onRetry     func(attempt int, err error)
	onExhausted func(err error)
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// NewHandler creates a new error handler with the given options.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		retry:  DefaultRetry,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) HandlerOption {
	return func(h *Handler) {
		h.retry = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithOnRetry sets a callback invoked after each failed attempt that will be
// retried. attempt is 1-based.
func WithOnRetry(fn func(attempt int, err error)) HandlerOption {
	return func(h *Handler) {
		h.onRetry = fn
	}
}

// WithOnExhausted sets a callback for when an execution ends in failure.
func WithOnExhausted(fn func(err error)) HandlerOption {
	return func(h *Handler) {
		h.onExhausted = fn
	}
}

// RetryConfig returns the handler's retry configuration.
func (h *Handler) RetryConfig() RetryConfig {
	return h.retry
}

// ExecuteResult contains the result of a handled execution.
type ExecuteResult[T any] struct {
	// Value is the result if successful.
	Value T

	// Err is the error if failed.
	Err error

	// Attempts is the total number of attempts made.
	Attempts int

	// Duration is the total time spent, including backoff.
	Duration time.Duration
}

// Execute runs fn, retrying transient failures and discarding the value.
func (h *Handler) Execute(ctx context.Context, fn func(ctx context.Context) error) ExecuteResult[struct{}] {
	return Execute(ctx, h, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

// Execute runs fn with the handler's retry policy and returns its value.
func Execute[T any](
	ctx context.Context,
	h *Handler,
	fn func(ctx context.Context) (T, error),
) ExecuteResult[T] {
	isRetryable := h.retry.retryable()
	attempt := 0

	result := WithRetryContext(ctx, h.retry, func(ctx context.Context) (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && isRetryable(err) && attempt < h.retry.MaxAttempts {
			h.logger.Warn("retrying after transient failure",
				"attempt", attempt,
				"max_attempts", h.retry.MaxAttempts,
				"error", err,
			)
			if h.onRetry != nil {
				h.onRetry(attempt, err)
			}
		}
		return v, err
	})

	if result.Err != nil {
		h.logger.Debug("execution failed",
			"attempts", result.Attempts,
			"category", Categorize(result.Err),
			"error", result.Err,
		)
		if h.onExhausted != nil {
			h.onExhausted(result.Err)
		}
	}

	return ExecuteResult[T]{
		Value:    result.Value,
		Err:      result.Err,
		Attempts: result.Attempts,
		Duration: result.Duration,
	}
}
