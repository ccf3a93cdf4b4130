// Package observe provides application-wide observability primitives for
// PeaceMusic: OpenTelemetry metrics, tracing, structured logging helpers,
// and HTTP middleware for the ops endpoints.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all PeaceMusic metrics.
const meterName = "github.com/Akinara666/PeaceMusic"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ModelDuration tracks model generation latency.
	ModelDuration metric.Float64Histogram

	// ModelRequests counts model API calls. Use with attribute:
	//   attribute.String("status", ...) — "ok", "overloaded", "rejected", "error"
	ModelRequests metric.Int64Counter

	// ModelRetries counts generation attempts repeated after a transient
	// model failure.
	ModelRetries metric.Int64Counter

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// TracksPlayed counts tracks whose playback actually started.
	TracksPlayed metric.Int64Counter

	// PlaybackStalls counts stall episodes that triggered a stream restart.
	PlaybackStalls metric.Int64Counter

	// QueueDepth tracks the number of queued tracks across all guilds.
	QueueDepth metric.Int64UpDownCounter

	// HTTPRequestDuration tracks ops endpoint request time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// model round-trips, which routinely take several seconds.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ModelDuration, err = m.Float64Histogram("peacemusic.model.duration",
		metric.WithDescription("Latency of model generation calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelRequests, err = m.Int64Counter("peacemusic.model.requests",
		metric.WithDescription("Total model API requests by status."),
	); err != nil {
		return nil, err
	}
	if met.ModelRetries, err = m.Int64Counter("peacemusic.model.retries",
		metric.WithDescription("Total generation attempts retried after transient failures."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("peacemusic.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.TracksPlayed, err = m.Int64Counter("peacemusic.tracks.played",
		metric.WithDescription("Total tracks whose playback started."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackStalls, err = m.Int64Counter("peacemusic.playback.stalls",
		metric.WithDescription("Total stall episodes that triggered a stream restart."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("peacemusic.queue.depth",
		metric.WithDescription("Number of queued tracks across all guilds."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("peacemusic.http.request.duration",
		metric.WithDescription("Ops endpoint request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordModelRequest records a model request counter increment with its
// outcome status.
func (m *Metrics) RecordModelRequest(ctx context.Context, status string) {
	m.ModelRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordToolCall records a tool call counter increment with the standard
// attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}
