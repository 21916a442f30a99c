// Package observe provides application-wide observability primitives for
// callorder: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all callorder metrics.
const meterName = "github.com/MrWong99/callorder"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use: the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// LLMDuration tracks extraction fallback latency per provider call.
	LLMDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Pipeline counters ---

	// Orders counts dialog outcomes. Use with attribute:
	//   attribute.String("outcome", ...): pending, empty, confirmed,
	//   cancelled, abandoned, session_lost, rejected, store_error.
	Orders metric.Int64Counter

	// MatchStages counts which matcher produced a non-empty result. Use with
	// attribute: attribute.String("stage", ...): exact, phonetic, exact+phonetic,
	// extraction, none.
	MatchStages metric.Int64Counter

	// Extractions counts extraction fallback outcomes. Use with attributes:
	//   attribute.String("outcome", ...), attribute.Bool("cached", ...)
	Extractions metric.Int64Counter

	// Confirmations counts classifier results. Use with attribute:
	//   attribute.String("result", ...): yes, no, unrecognized.
	Confirmations metric.Int64Counter

	// Notifications counts kitchen notification attempts. Use with attributes:
	//   attribute.String("notifier", ...), attribute.String("status", ...)
	Notifications metric.Int64Counter

	// --- Provider counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of calls awaiting confirmation.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// webhook round trips and language-model calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LLMDuration, err = m.Float64Histogram("callorder.llm.duration",
		metric.WithDescription("Latency of extraction fallback LLM calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("callorder.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Pipeline counters.
	if met.Orders, err = m.Int64Counter("callorder.orders",
		metric.WithDescription("Dialog outcomes by outcome."),
	); err != nil {
		return nil, err
	}
	if met.MatchStages, err = m.Int64Counter("callorder.match.stages",
		metric.WithDescription("Utterances resolved per matcher stage."),
	); err != nil {
		return nil, err
	}
	if met.Extractions, err = m.Int64Counter("callorder.extractions",
		metric.WithDescription("Extraction fallback outcomes by outcome and cache use."),
	); err != nil {
		return nil, err
	}
	if met.Confirmations, err = m.Int64Counter("callorder.confirmations",
		metric.WithDescription("Confirmation classifier results."),
	); err != nil {
		return nil, err
	}
	if met.Notifications, err = m.Int64Counter("callorder.notifications",
		metric.WithDescription("Kitchen notification attempts by notifier and status."),
	); err != nil {
		return nil, err
	}

	// Provider counters.
	if met.ProviderRequests, err = m.Int64Counter("callorder.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("callorder.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("callorder.active_sessions",
		metric.WithDescription("Number of calls awaiting confirmation."),
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

// RecordOrder records one dialog outcome.
func (m *Metrics) RecordOrder(ctx context.Context, outcome string) {
	m.Orders.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordMatchStage records which matcher stage resolved an utterance. Use
// "none" when every stage came back empty.
func (m *Metrics) RecordMatchStage(ctx context.Context, stage string) {
	if stage == "" {
		stage = "none"
	}
	m.MatchStages.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordExtraction records one extraction fallback outcome.
func (m *Metrics) RecordExtraction(ctx context.Context, outcome string, cached bool) {
	m.Extractions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.Bool("cached", cached),
		),
	)
}

// RecordConfirmation records one confirmation classifier result.
func (m *Metrics) RecordConfirmation(ctx context.Context, result string) {
	m.Confirmations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordNotification records one notification attempt.
func (m *Metrics) RecordNotification(ctx context.Context, notifier, status string) {
	m.Notifications.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("notifier", notifier),
			attribute.String("status", status),
		),
	)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
