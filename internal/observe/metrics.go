// Package observe provides application-wide observability primitives for the
// Sage voice biomarker service: OpenTelemetry metrics, distributed tracing,
// structured logging helpers, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all service metrics.
const meterName = "github.com/PoisonIvory/sagevoice"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per analysis phase ---

	// LocalAnalysisDuration tracks the local estimate phase latency.
	LocalAnalysisDuration metric.Float64Histogram

	// CloudAnalysisDuration tracks upload-to-result latency of the external
	// engine phase.
	CloudAnalysisDuration metric.Float64Histogram

	// --- Counters ---

	// AnalysisSubmissions counts recording submissions. Use with attribute:
	//   attribute.String("status", "accepted"|"duplicate")
	AnalysisSubmissions metric.Int64Counter

	// AnalysisOutcomes counts terminal states. Use with attributes:
	//   attribute.String("outcome", "complete"|"error"|"cancelled"),
	//   attribute.String("reason", ...)
	AnalysisOutcomes metric.Int64Counter

	// QualityGateOutcomes counts gate decisions. Use with attributes:
	//   attribute.String("outcome", ...), attribute.String("context", ...)
	QualityGateOutcomes metric.Int64Counter

	// UploadRetries counts retried engine uploads.
	UploadRetries metric.Int64Counter

	// ValidationOutcomes counts baseline validation results. Use with
	// attribute: attribute.String("status", "accepted"|"rejected")
	ValidationOutcomes metric.Int64Counter

	// ValidationCheckFailures counts individual failed clinical checks. Use
	// with attribute: attribute.String("check", ...)
	ValidationCheckFailures metric.Int64Counter

	// BaselineReplacements counts archive-then-install operations.
	BaselineReplacements metric.Int64Counter

	// --- Error counters ---

	// EngineErrors counts external-engine failures. Use with attribute:
	//   attribute.String("kind", "transport"|"processing"|"timeout")
	EngineErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveAnalyses tracks the number of in-flight recording analyses.
	ActiveAnalyses metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). The upper
// buckets cover the cloud phase, which can take tens of seconds.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LocalAnalysisDuration, err = m.Float64Histogram("sagevoice.analysis.local.duration",
		metric.WithDescription("Latency of the local estimate phase."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CloudAnalysisDuration, err = m.Float64Histogram("sagevoice.analysis.cloud.duration",
		metric.WithDescription("Upload-to-result latency of the external engine phase."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AnalysisSubmissions, err = m.Int64Counter("sagevoice.analysis.submissions",
		metric.WithDescription("Total recording submissions by status."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisOutcomes, err = m.Int64Counter("sagevoice.analysis.outcomes",
		metric.WithDescription("Terminal analysis states by outcome and reason."),
	); err != nil {
		return nil, err
	}
	if met.QualityGateOutcomes, err = m.Int64Counter("sagevoice.quality_gate.outcomes",
		metric.WithDescription("Quality gate decisions by outcome and capture context."),
	); err != nil {
		return nil, err
	}
	if met.UploadRetries, err = m.Int64Counter("sagevoice.engine.upload_retries",
		metric.WithDescription("Retried uploads to the external engine."),
	); err != nil {
		return nil, err
	}
	if met.ValidationOutcomes, err = m.Int64Counter("sagevoice.validation.outcomes",
		metric.WithDescription("Baseline validation results by status."),
	); err != nil {
		return nil, err
	}
	if met.ValidationCheckFailures, err = m.Int64Counter("sagevoice.validation.check_failures",
		metric.WithDescription("Individual failed clinical checks by check name."),
	); err != nil {
		return nil, err
	}
	if met.BaselineReplacements, err = m.Int64Counter("sagevoice.baseline.replacements",
		metric.WithDescription("Baseline archive-then-install operations."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.EngineErrors, err = m.Int64Counter("sagevoice.engine.errors",
		metric.WithDescription("External engine failures by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveAnalyses, err = m.Int64UpDownCounter("sagevoice.analysis.active",
		metric.WithDescription("Number of in-flight recording analyses."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("sagevoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
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
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordGateOutcome is a convenience helper for counting a quality-gate
// decision with its capture context.
func (m *Metrics) RecordGateOutcome(ctx context.Context, outcome, captureContext string) {
	m.QualityGateOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("context", captureContext),
	))
}
