// Package otel wires OpenTelemetry traces and metrics for jump-ssh runs.
//
// Each CLI invocation is one short-lived process, so providers are owned by
// the returned Telemetry rather than installed globally, and Shutdown flushes
// whatever the run recorded. Without an endpoint nothing is exported.
package otel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "jump-ssh"

// Version is reported as service.version. cmd sets it from the build.
var Version = "dev"

// OTELConfig is the exporter configuration taken from the config file or
// the OTEL_EXPORTER_OTLP_* variables.
type OTELConfig struct {
	Endpoint string // OTLP/HTTP base URL, e.g. "http://collector:4318"
	Headers  string // "key=value,key2=value2"
}

// Telemetry carries the tracer and instruments handed to the session runner.
type Telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	Tracer  trace.Tracer
	Metrics *Metrics
}

// collector is an OTLP/HTTP endpoint split the way the exporters want it.
type collector struct {
	host     string
	basePath string
	insecure bool
	headers  map[string]string
}

func parseCollector(endpoint, headers string) (collector, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return collector{}, fmt.Errorf("invalid endpoint URL %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return collector{}, fmt.Errorf("endpoint %q must start with http:// or https://", endpoint)
	}
	if u.Host == "" {
		return collector{}, fmt.Errorf("endpoint %q has no host", endpoint)
	}
	return collector{
		host:     u.Host,
		basePath: strings.TrimRight(u.Path, "/"),
		insecure: u.Scheme == "http",
		headers:  parseHeaders(headers),
	}, nil
}

// parseHeaders reads the OTEL_EXPORTER_OTLP_HEADERS format. Pairs without a
// key are skipped.
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(val)
	}
	return headers
}

func (c collector) tracerProvider(ctx context.Context, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(c.host),
		otlptracehttp.WithURLPath(c.basePath + "/v1/traces"),
	}
	if c.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(c.headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(c.headers))
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

func (c collector) meterProvider(ctx context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(c.host),
		otlpmetrichttp.WithURLPath(c.basePath + "/v1/metrics"),
	}
	if c.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(c.headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(c.headers))
	}
	exp, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	// Runs rarely last long enough for a periodic export; Shutdown flushes.
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second))
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	), nil
}

// Init builds exporting providers when cfg.Endpoint is set and a no-op
// Telemetry otherwise.
func Init(ctx context.Context, cfg OTELConfig) (*Telemetry, error) {
	if cfg.Endpoint == "" {
		return Noop(), nil
	}
	c, err := parseCollector(cfg.Endpoint, cfg.Headers)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(Version),
		),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	t := &Telemetry{}
	if t.tp, err = c.tracerProvider(ctx, res); err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	if t.mp, err = c.meterProvider(ctx, res); err != nil {
		t.Shutdown(ctx)
		return nil, fmt.Errorf("otel: %w", err)
	}

	t.Tracer = t.tp.Tracer(serviceName)
	if t.Metrics, err = NewMetrics(t.mp.Meter(meterName)); err != nil {
		t.Shutdown(ctx)
		return nil, fmt.Errorf("otel metrics: %w", err)
	}
	return t, nil
}

// Noop returns a Telemetry whose spans and measurements go nowhere.
func Noop() *Telemetry {
	m, _ := NewMetrics(metricnoop.NewMeterProvider().Meter(meterName))
	return &Telemetry{
		Tracer:  tracenoop.NewTracerProvider().Tracer(serviceName),
		Metrics: m,
	}
}

// Shutdown flushes pending spans and measurements. Errors are dropped: a
// collector outage must not change the command's result.
func (t *Telemetry) Shutdown(ctx context.Context) {
	if t == nil {
		return
	}
	if t.tp != nil {
		_ = t.tp.Shutdown(ctx)
	}
	if t.mp != nil {
		_ = t.mp.Shutdown(ctx)
	}
}
