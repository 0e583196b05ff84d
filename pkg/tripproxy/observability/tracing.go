package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrRoute      = attribute.Key("http.route")
	AttrRequestID  = attribute.Key("request.id")
	AttrMethod     = attribute.Key("http.method")
	AttrHost       = attribute.Key("server.address")
	AttrStatusCode = attribute.Key("http.response.status_code")
	AttrAttempts   = attribute.Key("tripproxy.attempts")
)

// tracer reads the global provider, so it follows otel.SetTracerProvider.
var tracer = otel.Tracer("tripproxy")

// SpanManager opens and closes the proxy's spans: one server span per
// request and one client span per upstream fetch beneath it.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	StartRequestSpan(ctx context.Context, route, requestID string) (context.Context, trace.Span)
	StartFetchSpan(ctx context.Context, method, host string) (context.Context, trace.Span)

	// EndFetchSpan records the upstream outcome on a fetch span and ends it.
	// status is 0 when no response arrived.
	EndFetchSpan(span trace.Span, status, attempts int, err error)

	EndSpanWithError(span trace.Span, err error)
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// NewSpanManager returns a SpanManager backed by the global OTel tracer
// provider. Install the provider first:
//
//	otel.SetTracerProvider(tp)
//	srv := tripproxy.NewServer(tripproxy.WithSpanManager(observability.NewSpanManager()))
func NewSpanManager() SpanManager {
	return otelSpanManager{}
}

type otelSpanManager struct{}

func (otelSpanManager) StartRequestSpan(ctx context.Context, route, requestID string) (context.Context, trace.Span) {
	return StartRequestSpan(ctx, route, requestID)
}

func (otelSpanManager) StartFetchSpan(ctx context.Context, method, host string) (context.Context, trace.Span) {
	return StartFetchSpan(ctx, method, host)
}

func (otelSpanManager) EndFetchSpan(span trace.Span, status, attempts int, err error) {
	EndFetchSpan(span, status, attempts, err)
}

func (otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartRequestSpan starts a server span for an incoming request.
func StartRequestSpan(ctx context.Context, route, requestID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "tripproxy.request",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(AttrRoute.String(route), AttrRequestID.String(requestID)),
	)
}

// StartFetchSpan starts a client span for an upstream call. Only the host is
// recorded; the resolved URL may carry secrets.
func StartFetchSpan(ctx context.Context, method, host string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "tripproxy.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrMethod.String(method), AttrHost.String(host)),
	)
}

// EndFetchSpan sets the status code and attempt count on a fetch span and
// ends it. A 4xx or 5xx response marks the client span as failed even though
// it is relayed to the browser unchanged.
func EndFetchSpan(span trace.Span, status, attempts int, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(AttrAttempts.Int(attempts))
	if status > 0 {
		span.SetAttributes(AttrStatusCode.Int(status))
	}
	if err == nil && status >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		span.End()
		return
	}
	EndSpanWithError(span, err)
}

// EndSpanWithError ends span, recording err when it is non-nil.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the recording span in ctx, if any.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
