package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricBuildsTotal   = "stochgrid.builds.total"
	metricBuildDuration = "stochgrid.build.duration.seconds"
	metricGridPoints    = "stochgrid.grid.points"
	metricCacheLookups  = "stochgrid.cache.lookups.total"

	metricRequestsTotal    = "stochgrid.requests.total"
	metricRequestDuration  = "stochgrid.request.duration.seconds"
	metricErrorsTotal      = "stochgrid.errors.total"
	metricInflightRequests = "stochgrid.inflight.requests"

	attrOp       = "op"
	attrStatus   = "status"
	attrResult   = "result"
	attrCategory = "category"

	// StatusOK and StatusError label completed operations.
	StatusOK    = "ok"
	StatusError = "error"
)

// buildBucketBoundaries spans microsecond builds of tiny trees to multi-second
// builds near the resource limits.
var buildBucketBoundaries = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

// pointBucketBoundaries are powers of four up to the default point limit.
var pointBucketBoundaries = []float64{16, 64, 256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216}

var requestBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// BuildMetrics records plan construction.
type BuildMetrics struct {
	buildsTotal   metric.Int64Counter
	buildDuration metric.Float64Histogram
	gridPoints    metric.Float64Histogram
	cacheLookups  metric.Int64Counter
}

// NewBuildMetrics creates the plan instruments from mt.
func NewBuildMetrics(mt metric.Meter) (*BuildMetrics, error) {
	b := newMetricBuilder(mt)

	bm := &BuildMetrics{
		buildsTotal:   b.counter(metricBuildsTotal, "Plan builds by outcome", "{build}"),
		buildDuration: b.histogram(metricBuildDuration, "Plan build duration in seconds", "s", buildBucketBoundaries...),
		gridPoints:    b.histogram(metricGridPoints, "FullSet size of built plans", "{point}", pointBucketBoundaries...),
		cacheLookups:  b.counter(metricCacheLookups, "Plan cache lookups by result", "{lookup}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return bm, nil
}

// RecordBuild records one finished build. category names the error
// category on failure and is ignored on success.
func (bm *BuildMetrics) RecordBuild(ctx context.Context, status, category string, points int, duration time.Duration) {
	attrs := []attribute.KeyValue{attribute.String(attrStatus, status)}
	if status == StatusError {
		attrs = append(attrs, attribute.String(attrCategory, category))
	}

	bm.buildsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	bm.buildDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(attrStatus, status)))

	if status == StatusOK {
		bm.gridPoints.Record(ctx, float64(points))
	}
}

// RecordCacheLookup records a cache hit or miss.
func (bm *BuildMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	bm.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// REDMetrics holds the Rate, Error, Duration instruments of the HTTP API.
type REDMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
}

// NewREDMetrics creates RED instruments from mt.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	b := newMetricBuilder(mt)

	rm := &REDMetrics{
		requestsTotal:    b.counter(metricRequestsTotal, "Total number of requests", "{request}"),
		requestDuration:  b.histogram(metricRequestDuration, "Request duration in seconds", "s", requestBucketBoundaries...),
		errorsTotal:      b.counter(metricErrorsTotal, "Total number of errors", "{error}"),
		inflightRequests: b.upDownCounter(metricInflightRequests, "Number of in-flight requests", "{request}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return rm, nil
}

// RecordRequest records a completed request.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	rm.requestsTotal.Add(ctx, 1, attrs)
	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)

	if status == StatusError {
		rm.errorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOp, op)))
	}
}

// TrackInflight increments the in-flight counter and returns its decrement.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflightRequests.Add(ctx, 1, attrs)

	return func() {
		rm.inflightRequests.Add(ctx, -1, attrs)
	}
}
