// Package observability provides logging, metrics, and tracing helpers for
// the trip proxy.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"net/url"
	"time"
)

// EnrichLogger adds request context to a logger.
//
// Example:
//
//	logger = EnrichLogger(logger, requestID)
//	logger.Info("fetching upstream") // includes request_id
func EnrichLogger(logger *slog.Logger, requestID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("request_id", requestID))
}

// RedactURL strips the query, fragment and user info from a URL so resolved
// secrets never reach the logs. Unparseable input is replaced entirely.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.Fragment = ""
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}

// LogFetchStart logs the start of an upstream fetch.
func LogFetchStart(logger *slog.Logger, method, target string) {
	if logger == nil {
		return
	}
	logger.Debug("upstream fetch starting",
		slog.String("method", method),
		slog.String("url", RedactURL(target)),
	)
}

// LogFetchComplete logs an upstream response, whatever its status.
func LogFetchComplete(logger *slog.Logger, method, target string, status int, durationMs float64, attempts int) {
	if logger == nil {
		return
	}
	logger.Info("upstream fetch completed",
		slog.String("method", method),
		slog.String("url", RedactURL(target)),
		slog.Int("status", status),
		slog.Float64("duration_ms", durationMs),
		slog.Int("attempts", attempts),
	)
}

// LogFetchError logs an upstream fetch that produced no response.
func LogFetchError(logger *slog.Logger, method, target string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("upstream fetch failed",
		slog.String("method", method),
		slog.String("url", RedactURL(target)),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogResolveError logs a template that could not be resolved.
func LogResolveError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Warn("template resolution failed",
		slog.String("error", err.Error()),
	)
}

// LogCacheHit logs a response served from the cache.
func LogCacheHit(logger *slog.Logger, key string, age time.Duration) {
	if logger == nil {
		return
	}
	logger.Debug("cache hit",
		slog.String("key", key),
		slog.Duration("age", age),
	)
}

// LogCacheError logs cache failure (non-fatal).
func LogCacheError(logger *slog.Logger, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("cache operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
