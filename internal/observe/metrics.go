// Package observe provides observability primitives for ellie-call:
// OpenTelemetry metrics, a Prometheus exporter bridge, and HTTP middleware
// for the debug server.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [Setup] so that metrics can be
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

// meterName is the instrumentation scope name used for all ellie-call
// metrics.
const meterName = "github.com/andrifran123/ellie-call"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ConnectDuration tracks how long the connect flow takes, from the
	// start-call request until the channel reaches connected (or fails).
	// Use with attribute.String("status", "ok"|"error"|"timeout").
	ConnectDuration metric.Float64Histogram

	// ChunkDuration tracks the audio length in seconds of each inbound
	// playback chunk.
	ChunkDuration metric.Float64Histogram

	// --- Counters ---

	// FramesSent counts capture frames transmitted upstream.
	FramesSent metric.Int64Counter

	// FramesDropped counts capture frames discarded because the signaling
	// channel was not open. Use with attribute.String("reason", ...).
	FramesDropped metric.Int64Counter

	// ChunksPlayed counts inbound chunks played to completion.
	ChunksPlayed metric.Int64Counter

	// ChunksFailed counts inbound chunks skipped after a playback error.
	ChunksFailed metric.Int64Counter

	// Pings counts keepalives written to the channel.
	Pings metric.Int64Counter

	// ServerErrors counts non-fatal error events received from the server.
	ServerErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live calls. For this client it is 0
	// or 1, but the instrument shape matches the server-side convention.
	ActiveCalls metric.Int64UpDownCounter

	// QueueDepth tracks the number of chunks waiting in the playback queue.
	QueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks debug-server request processing time. Use
	// with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// a connect flow bounded by a 15 second dial timeout.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15,
}

// chunkBuckets covers typical synthesized-reply chunk lengths.
var chunkBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ConnectDuration, err = m.Float64Histogram("elliecall.connect.duration",
		metric.WithDescription("Latency of the call connect flow by status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChunkDuration, err = m.Float64Histogram("elliecall.playback.chunk_duration",
		metric.WithDescription("Audio length of inbound playback chunks."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(chunkBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesSent, err = m.Int64Counter("elliecall.capture.frames_sent",
		metric.WithDescription("Total capture frames transmitted upstream."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("elliecall.capture.frames_dropped",
		metric.WithDescription("Total capture frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.ChunksPlayed, err = m.Int64Counter("elliecall.playback.chunks_played",
		metric.WithDescription("Total inbound chunks played to completion."),
	); err != nil {
		return nil, err
	}
	if met.ChunksFailed, err = m.Int64Counter("elliecall.playback.chunks_failed",
		metric.WithDescription("Total inbound chunks skipped after a playback error."),
	); err != nil {
		return nil, err
	}
	if met.Pings, err = m.Int64Counter("elliecall.signaling.pings",
		metric.WithDescription("Total keepalive pings written to the channel."),
	); err != nil {
		return nil, err
	}
	if met.ServerErrors, err = m.Int64Counter("elliecall.signaling.server_errors",
		metric.WithDescription("Total non-fatal error events received from the server."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("elliecall.active_calls",
		metric.WithDescription("Number of live calls."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("elliecall.playback.queue_depth",
		metric.WithDescription("Number of chunks waiting in the playback queue."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("elliecall.http.request.duration",
		metric.WithDescription("Debug-server HTTP request latency by method and path."),
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

// RecordConnect records one connect-flow outcome.
func (m *Metrics) RecordConnect(ctx context.Context, seconds float64, status string) {
	m.ConnectDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("status", status)))
}

// RecordFrameDropped records one dropped capture frame with its reason.
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}
