package observability_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/stochgrid/pkg/observability"
)

func newReaderMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()

	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func counterTotal(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestBuildMetrics_RecordBuild(t *testing.T) {
	t.Parallel()

	mp, reader := newReaderMeter(t)

	bm, err := observability.NewBuildMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	bm.RecordBuild(ctx, observability.StatusOK, "", 21, time.Millisecond)
	bm.RecordBuild(ctx, observability.StatusError, "configuration", 0, time.Microsecond)
	bm.RecordCacheLookup(ctx, true)
	bm.RecordCacheLookup(ctx, false)
	bm.RecordCacheLookup(ctx, false)

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(2), counterTotal(t, findMetric(rm, "stochgrid.builds.total")))
	assert.Equal(t, int64(3), counterTotal(t, findMetric(rm, "stochgrid.cache.lookups.total")))

	points := findMetric(rm, "stochgrid.grid.points")
	require.NotNil(t, points)

	hist, ok := points.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 21, hist.DataPoints[0].Sum, 0)
}

func TestREDMetrics(t *testing.T) {
	t.Parallel()

	mp, reader := newReaderMeter(t)

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	done := red.TrackInflight(ctx, "POST /v1/plans")
	red.RecordRequest(ctx, "POST /v1/plans", observability.StatusOK, 10*time.Millisecond)
	red.RecordRequest(ctx, "POST /v1/plans", observability.StatusError, time.Millisecond)
	done()

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(2), counterTotal(t, findMetric(rm, "stochgrid.requests.total")))
	assert.Equal(t, int64(1), counterTotal(t, findMetric(rm, "stochgrid.errors.total")))
	assert.Equal(t, int64(0), counterTotal(t, findMetric(rm, "stochgrid.inflight.requests")))
}

func TestPrometheusHandler_ServesRecordedMetrics(t *testing.T) {
	t.Parallel()

	mp, handler, err := observability.PrometheusHandler()
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, mp.Shutdown(context.Background())) })

	bm, err := observability.NewBuildMetrics(mp.Meter("test"))
	require.NoError(t, err)

	bm.RecordBuild(context.Background(), observability.StatusOK, "", 7, time.Millisecond)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "stochgrid_builds")
	assert.Contains(t, string(body), "go_goroutines")
}
