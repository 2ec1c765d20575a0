package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	meterName  = "github.com/wolfeidau/sitepack"
	tracerName = "github.com/wolfeidau/sitepack"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Compose metrics
	ComposeTotal       metric.Int64Counter
	ComposeErrorsTotal metric.Int64Counter

	// Build metrics
	BuildsTotal      metric.Int64Counter
	BuildErrorsTotal metric.Int64Counter
	BuildDuration    metric.Float64Histogram
	OutputBytes      metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Tracer returns the tracer used for compose and bundle spans.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.ComposeTotal, _ = meter.Int64Counter(
		"sitepack.compose.total",
		metric.WithDescription("Total number of configurations composed"),
		metric.WithUnit("{config}"),
	)

	m.ComposeErrorsTotal, _ = meter.Int64Counter(
		"sitepack.compose.errors.total",
		metric.WithDescription("Total number of failed compositions"),
		metric.WithUnit("{error}"),
	)

	m.BuildsTotal, _ = meter.Int64Counter(
		"sitepack.builds.total",
		metric.WithDescription("Total number of bundler runs"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"sitepack.builds.errors.total",
		metric.WithDescription("Total number of failed bundler runs"),
		metric.WithUnit("{error}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"sitepack.builds.duration",
		metric.WithDescription("Duration of bundler runs"),
		metric.WithUnit("ms"),
	)

	m.OutputBytes, _ = meter.Int64Counter(
		"sitepack.builds.output.bytes",
		metric.WithDescription("Total bytes of build output written"),
		metric.WithUnit("By"),
	)

	return m
}
