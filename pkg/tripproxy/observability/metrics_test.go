package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest creates a test meter provider and returns a function to collect metrics.
func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, func()) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	// Save the original provider
	originalProvider := otel.GetMeterProvider()

	// Set test provider
	otel.SetMeterProvider(provider)

	// Return cleanup function
	cleanup := func() {
		otel.SetMeterProvider(originalProvider)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	}

	return reader, cleanup
}

// collectMetrics collects all metrics from the reader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)
	return &rm
}

// findMetric finds a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// dataPointFor returns the int64 sum datapoint whose attribute key has value.
func dataPointFor(t *testing.T, m *metricdata.Metrics, key string, value attribute.Value) (metricdata.DataPoint[int64], bool) {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "Expected Sum type")
	for _, dp := range sum.DataPoints {
		if v, found := dp.Attributes.Value(attribute.Key(key)); found && v == value {
			return dp, true
		}
	}
	return metricdata.DataPoint[int64]{}, false
}

func TestNewMetricsRecorder(t *testing.T) {
	_, cleanup := setupMetricsTest(t)
	defer cleanup()

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestRecordResolve(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordResolve(ctx, 2*time.Millisecond, nil)
	m.RecordResolve(ctx, time.Millisecond, errors.New("bad template"))

	rm := collectMetrics(t, reader)

	count := findMetric(rm, "tripproxy.resolve.count")
	require.NotNil(t, count)
	sum, ok := count.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)

	errs := findMetric(rm, "tripproxy.resolve.errors")
	require.NotNil(t, errs)
	sum, ok = errs.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)

	latency := findMetric(rm, "tripproxy.resolve.latency_ms")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "Expected Histogram type")
	require.NotEmpty(t, hist.DataPoints)
	assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
}

func TestRecordFetch(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("records by status class", func(t *testing.T) {
		m.RecordFetch(ctx, "GET", 200, 50*time.Millisecond, nil)
		m.RecordFetch(ctx, "GET", 204, 50*time.Millisecond, nil)
		m.RecordFetch(ctx, "GET", 404, 10*time.Millisecond, nil)

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "tripproxy.fetch.requests")
		require.NotNil(t, metric)

		dp, found := dataPointFor(t, metric, "http.status_class", attribute.StringValue("2xx"))
		require.True(t, found)
		assert.Equal(t, int64(2), dp.Value)

		dp, found = dataPointFor(t, metric, "http.status_class", attribute.StringValue("4xx"))
		require.True(t, found)
		assert.Equal(t, int64(1), dp.Value)
	})

	t.Run("records errors without a response", func(t *testing.T) {
		m.RecordFetch(ctx, "POST", 0, 12*time.Second, errors.New("timeout"))

		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "tripproxy.fetch.errors")
		require.NotNil(t, metric)

		dp, found := dataPointFor(t, metric, "http.status_class", attribute.StringValue("none"))
		require.True(t, found)
		assert.Equal(t, int64(1), dp.Value)
	})

	t.Run("records latency", func(t *testing.T) {
		rm := collectMetrics(t, reader)
		metric := findMetric(rm, "tripproxy.fetch.latency_ms")
		require.NotNil(t, metric)

		hist, ok := metric.Data.(metricdata.Histogram[float64])
		require.True(t, ok, "Expected Histogram type")
		require.NotEmpty(t, hist.DataPoints)
	})
}

func TestRecordCache(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordCache(ctx, true)
	m.RecordCache(ctx, false)
	m.RecordCache(ctx, false)

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "tripproxy.cache.lookups")
	require.NotNil(t, metric)

	dp, found := dataPointFor(t, metric, "hit", attribute.BoolValue(true))
	require.True(t, found)
	assert.Equal(t, int64(1), dp.Value)

	dp, found = dataPointFor(t, metric, "hit", attribute.BoolValue(false))
	require.True(t, found)
	assert.Equal(t, int64(2), dp.Value)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(200))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "1xx", statusClass(101))
	assert.Equal(t, "none", statusClass(0))
	assert.Equal(t, "none", statusClass(999))
}
