package observability

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records proxy metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordResolve records one template resolution and whether it failed.
	RecordResolve(ctx context.Context, duration time.Duration, err error)

	// RecordFetch records an upstream fetch. status is 0 when no response
	// was received.
	RecordFetch(ctx context.Context, method string, status int, duration time.Duration, err error)

	// RecordCache records a cache lookup.
	RecordCache(ctx context.Context, hit bool)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	resolves       metric.Int64Counter
	resolveErrors  metric.Int64Counter
	resolveLatency metric.Float64Histogram
	fetches        metric.Int64Counter
	fetchErrors    metric.Int64Counter
	fetchLatency   metric.Float64Histogram
	cacheLookups   metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("tripproxy")

	resolves, err := meter.Int64Counter("tripproxy.resolve.count",
		metric.WithDescription("Number of template resolutions"),
	)
	if err != nil {
		return nil, err
	}

	resolveErrors, err := meter.Int64Counter("tripproxy.resolve.errors",
		metric.WithDescription("Number of failed template resolutions"),
	)
	if err != nil {
		return nil, err
	}

	resolveLatency, err := meter.Float64Histogram("tripproxy.resolve.latency_ms",
		metric.WithDescription("Template resolution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	fetches, err := meter.Int64Counter("tripproxy.fetch.requests",
		metric.WithDescription("Number of upstream fetches"),
	)
	if err != nil {
		return nil, err
	}

	fetchErrors, err := meter.Int64Counter("tripproxy.fetch.errors",
		metric.WithDescription("Number of upstream fetches without a response"),
	)
	if err != nil {
		return nil, err
	}

	fetchLatency, err := meter.Float64Histogram("tripproxy.fetch.latency_ms",
		metric.WithDescription("Upstream fetch latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter("tripproxy.cache.lookups",
		metric.WithDescription("Number of response cache lookups"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		resolves:       resolves,
		resolveErrors:  resolveErrors,
		resolveLatency: resolveLatency,
		fetches:        fetches,
		fetchErrors:    fetchErrors,
		fetchLatency:   fetchLatency,
		cacheLookups:   cacheLookups,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordResolve records a template resolution.
func (m *otelMetrics) RecordResolve(ctx context.Context, duration time.Duration, err error) {
	m.resolves.Add(ctx, 1)
	m.resolveLatency.Record(ctx, float64(duration.Microseconds())/1000)
	if err != nil {
		m.resolveErrors.Add(ctx, 1)
	}
}

// RecordFetch records an upstream fetch.
func (m *otelMetrics) RecordFetch(ctx context.Context, method string, status int, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.status_class", statusClass(status)),
	}

	m.fetches.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.fetchLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.fetchErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordCache records a cache lookup.
func (m *otelMetrics) RecordCache(ctx context.Context, hit bool) {
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

// statusClass buckets a status code ("2xx", "4xx") to keep cardinality low.
func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "none"
	}
	return strconv.Itoa(status/100) + "xx"
}
