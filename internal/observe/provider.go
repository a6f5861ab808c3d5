package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// defaultService is the service name reported in telemetry when none is set.
const defaultService = "ellie-call"

// Telemetry owns the process-wide OpenTelemetry providers. Metrics go through
// a Prometheus exporter bridge so the debug server's /metrics endpoint can be
// scraped; spans stay in-process unless a span exporter is supplied.
type Telemetry struct {
	meters *sdkmetric.MeterProvider
	traces *sdktrace.TracerProvider
}

// TelemetryOption configures [Setup].
type TelemetryOption func(*telemetryConfig)

type telemetryConfig struct {
	service string
	version string
	spans   sdktrace.SpanExporter
}

// WithService overrides the reported service name and version.
func WithService(name, version string) TelemetryOption {
	return func(c *telemetryConfig) {
		c.service = name
		c.version = version
	}
}

// WithSpanExporter enables span export through the given exporter.
func WithSpanExporter(exp sdktrace.SpanExporter) TelemetryOption {
	return func(c *telemetryConfig) { c.spans = exp }
}

// Setup builds the meter and tracer providers and registers them as the
// OTel globals. Call [Telemetry.Shutdown] from main before exiting so the
// exporters flush.
func Setup(opts ...TelemetryOption) (*Telemetry, error) {
	cfg := telemetryConfig{service: defaultService}
	for _, opt := range opts {
		opt(&cfg)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.service),
			semconv.ServiceVersion(cfg.version),
		),
	)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}

	t := &Telemetry{
		meters: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(promExp),
		),
	}
	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.spans != nil {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(cfg.spans))
	}
	t.traces = sdktrace.NewTracerProvider(traceOpts...)

	otel.SetMeterProvider(t.meters)
	otel.SetTracerProvider(t.traces)
	return t, nil
}

// Shutdown flushes and closes both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.meters.Shutdown(ctx), t.traces.Shutdown(ctx))
}
