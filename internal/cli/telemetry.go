package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/randalmurphal/tripproxy/pkg/tripproxy/config"
	"github.com/randalmurphal/tripproxy/pkg/tripproxy/observability"
)

// metricsInterval is how often metric totals are written to the log.
const metricsInterval = time.Minute

type telemetry struct {
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	shutdown func(context.Context) error
}

// setupTelemetry installs global OTel providers when telemetry is enabled.
// Spans and periodic metric totals are exported to logger.
func setupTelemetry(cfg config.TelemetrySettings, logger *slog.Logger) (telemetry, error) {
	if !cfg.Enabled {
		return telemetry{
			metrics:  observability.NoopMetrics{},
			spans:    observability.NoopSpanManager{},
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	res := resource.NewSchemaless(attribute.String("service.name", "tripproxy"))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(&logSpanExporter{logger: logger}),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			&logMetricExporter{logger: logger},
			sdkmetric.WithInterval(metricsInterval),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return telemetry{
		metrics: observability.NewMetricsRecorder(),
		spans:   observability.NewSpanManager(),
		shutdown: func(ctx context.Context) error {
			return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
		},
	}, nil
}

// logSpanExporter writes finished spans to a logger at debug level.
type logSpanExporter struct {
	logger *slog.Logger
}

func (e *logSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := []slog.Attr{
			slog.String("span", s.Name()),
			slog.String("trace_id", s.SpanContext().TraceID().String()),
			slog.String("span_id", s.SpanContext().SpanID().String()),
			slog.Float64("duration_ms", float64(s.EndTime().Sub(s.StartTime()).Microseconds())/1000),
			slog.String("status", s.Status().Code.String()),
		}
		if s.Parent().IsValid() {
			attrs = append(attrs, slog.String("parent_span_id", s.Parent().SpanID().String()))
		}
		for _, kv := range s.Attributes() {
			attrs = append(attrs, slog.String(string(kv.Key), kv.Value.Emit()))
		}
		e.logger.LogAttrs(ctx, slog.LevelDebug, "span finished", attrs...)
	}
	return nil
}

func (e *logSpanExporter) Shutdown(context.Context) error { return nil }

// logMetricExporter writes cumulative counter and histogram totals to a
// logger at info level.
type logMetricExporter struct {
	logger *slog.Logger
}

func (e *logMetricExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *logMetricExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *logMetricExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	attrs := make([]slog.Attr, 0)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				attrs = append(attrs, slog.Int64(m.Name, total))
			case metricdata.Histogram[float64]:
				var count uint64
				var sum float64
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				if count > 0 {
					attrs = append(attrs, slog.Float64(m.Name+".avg", sum/float64(count)))
				}
			}
		}
	}
	if len(attrs) > 0 {
		e.logger.LogAttrs(ctx, slog.LevelInfo, "metrics", attrs...)
	}
	return nil
}

func (e *logMetricExporter) ForceFlush(context.Context) error { return nil }

func (e *logMetricExporter) Shutdown(context.Context) error { return nil }
