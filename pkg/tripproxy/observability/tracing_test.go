package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTracingTest creates a test tracer provider with an in-memory span recorder.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	// Update the package-level tracer
	tracer = otel.Tracer("tripproxy")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}

	return exporter, cleanup
}

func attrString(attrs []attribute.KeyValue, key string) string {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.AsString()
		}
	}
	return ""
}

func TestStartRequestSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	ctx, span := StartRequestSpan(context.Background(), "/fetch", "req-123")
	require.NotNil(t, span)
	assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	s := spans[0]
	assert.Equal(t, "tripproxy.request", s.Name)
	assert.Equal(t, trace.SpanKindServer, s.SpanKind)
	assert.Equal(t, "/fetch", attrString(s.Attributes, "http.route"))
	assert.Equal(t, "req-123", attrString(s.Attributes, "request.id"))
}

func TestStartFetchSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("records method and host", func(t *testing.T) {
		_, span := StartFetchSpan(context.Background(), "POST", "otp.test")
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "tripproxy.fetch", spans[0].Name)
		assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind)
		assert.Equal(t, "POST", attrString(spans[0].Attributes, "http.method"))
		assert.Equal(t, "otp.test", attrString(spans[0].Attributes, "server.address"))
	})

	t.Run("is a child of the request span", func(t *testing.T) {
		exporter.Reset()

		ctx, reqSpan := StartRequestSpan(context.Background(), "/fetch", "req-1")
		_, fetchSpan := StartFetchSpan(ctx, "GET", "api.test")
		fetchSpan.End()
		reqSpan.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 2)

		var fetch *tracetest.SpanStub
		for i := range spans {
			if spans[i].Name == "tripproxy.fetch" {
				fetch = &spans[i]
			}
		}
		require.NotNil(t, fetch)
		assert.True(t, fetch.Parent.IsValid())
		assert.Equal(t, reqSpan.SpanContext().SpanID(), fetch.Parent.SpanID())
	})
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("sets OK status for nil error", func(t *testing.T) {
		_, span := StartRequestSpan(context.Background(), "/fetch", "r1")
		EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
	})

	t.Run("sets Error status and records error", func(t *testing.T) {
		exporter.Reset()

		_, span := StartFetchSpan(context.Background(), "GET", "api.test")
		EndSpanWithError(span, errors.New("connection refused"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, codes.Error, s.Status.Code)
		assert.Equal(t, "connection refused", s.Status.Description)

		found := false
		for _, event := range s.Events {
			if event.Name == "exception" {
				found = true
			}
		}
		assert.True(t, found, "Expected exception event")
	})

	t.Run("nil span does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			EndSpanWithError(nil, errors.New("test"))
		})
	})
}

func TestEndFetchSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	tests := []struct {
		name       string
		status     int
		err        error
		wantCode   codes.Code
		wantStatus bool
	}{
		{"success", 200, nil, codes.Ok, true},
		{"relayed 404", 404, nil, codes.Error, true},
		{"relayed 503", 503, nil, codes.Error, true},
		{"no response", 0, errors.New("connection refused"), codes.Error, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			_, span := StartFetchSpan(context.Background(), "GET", "api.test")
			EndFetchSpan(span, tt.status, 2, tt.err)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			s := spans[0]
			assert.Equal(t, tt.wantCode, s.Status.Code)

			var gotStatus, gotAttempts bool
			for _, kv := range s.Attributes {
				switch kv.Key {
				case AttrStatusCode:
					gotStatus = true
					assert.Equal(t, int64(tt.status), kv.Value.AsInt64())
				case AttrAttempts:
					gotAttempts = true
					assert.Equal(t, int64(2), kv.Value.AsInt64())
				}
			}
			assert.Equal(t, tt.wantStatus, gotStatus)
			assert.True(t, gotAttempts)
		})
	}

	assert.NotPanics(t, func() { EndFetchSpan(nil, 200, 1, nil) })
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	ctx, span := StartRequestSpan(context.Background(), "/fetch", "r1")
	AddSpanEvent(ctx, "cache_hit", attribute.String("cache.key", "abc"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "cache_hit", spans[0].Events[0].Name)
	assert.Equal(t, "abc", attrString(spans[0].Events[0].Attributes, "cache.key"))

	assert.NotPanics(t, func() {
		AddSpanEvent(context.Background(), "orphan_event")
	})
}

func TestSpanManager_Interface(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()
	require.NotNil(t, sm)

	ctx, reqSpan := sm.StartRequestSpan(context.Background(), "/fetch", "req-if")
	ctx, fetchSpan := sm.StartFetchSpan(ctx, "GET", "api.test")
	sm.AddSpanEvent(ctx, "retry", attribute.Int("attempt", 1))
	sm.EndSpanWithError(fetchSpan, nil)
	sm.EndSpanWithError(reqSpan, errors.New("upstream failed"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "tripproxy.fetch", spans[0].Name)
	require.NotEmpty(t, spans[0].Events)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
}
