package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics discards every measurement. It is the server default.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordResolve does nothing.
func (NoopMetrics) RecordResolve(_ context.Context, _ time.Duration, _ error) {}

// RecordFetch does nothing.
func (NoopMetrics) RecordFetch(_ context.Context, _ string, _ int, _ time.Duration, _ error) {}

// RecordCache does nothing.
func (NoopMetrics) RecordCache(_ context.Context, _ bool) {}

// NoopSpanManager starts no spans; contexts pass through unchanged.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is returned so callers never have to nil-check a span.
var noopSpan = noop.Span{}

// StartRequestSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartRequestSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartFetchSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartFetchSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndFetchSpan does nothing.
func (NoopSpanManager) EndFetchSpan(_ trace.Span, _, _ int, _ error) {}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
