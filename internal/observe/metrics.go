// Package observe provides application-wide observability primitives for
// Skybridge: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all Skybridge metrics.
const meterName = "github.com/natfields/skybridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ToolInvocationDuration tracks tool invocation latency, shaping
	// included. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolInvocationDuration metric.Float64Histogram

	// ResourceReads counts widget markup reads. Use with attributes:
	//   attribute.String("uri", ...), attribute.String("status", ...)
	ResourceReads metric.Int64Counter

	// NotificationsDispatched counts global announcements fanned out to
	// attached documents. Use with attribute:
	//   attribute.String("key", ...)
	NotificationsDispatched metric.Int64Counter

	// ListenerPanics counts recovered panics in global listeners.
	ListenerPanics metric.Int64Counter

	// WidgetStateWrites counts widget state persistence operations. Use with
	// attributes:
	//   attribute.String("widget", ...), attribute.String("status", ...)
	WidgetStateWrites metric.Int64Counter

	// DisplayModeRequests counts display-mode negotiations. Use with
	// attributes:
	//   attribute.String("requested", ...), attribute.String("granted", ...)
	DisplayModeRequests metric.Int64Counter

	// ActiveSyncSessions tracks the number of live sync channel connections.
	ActiveSyncSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// tool calls that may reach upstream catalogs and model APIs.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolInvocationDuration, err = m.Float64Histogram("skybridge.tool.duration",
		metric.WithDescription("Latency of tool invocations by tool name and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ResourceReads, err = m.Int64Counter("skybridge.resource.reads",
		metric.WithDescription("Total widget markup reads by URI and status."),
	); err != nil {
		return nil, err
	}
	if met.NotificationsDispatched, err = m.Int64Counter("skybridge.notifications.dispatched",
		metric.WithDescription("Total global announcements fanned out, by key."),
	); err != nil {
		return nil, err
	}
	if met.ListenerPanics, err = m.Int64Counter("skybridge.listener.panics",
		metric.WithDescription("Total recovered panics in global listeners."),
	); err != nil {
		return nil, err
	}
	if met.WidgetStateWrites, err = m.Int64Counter("skybridge.widget_state.writes",
		metric.WithDescription("Total widget state writes by widget and status."),
	); err != nil {
		return nil, err
	}
	if met.DisplayModeRequests, err = m.Int64Counter("skybridge.display_mode.requests",
		metric.WithDescription("Total display-mode negotiations by requested and granted mode."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSyncSessions, err = m.Int64UpDownCounter("skybridge.sync.active_sessions",
		metric.WithDescription("Number of live sync channel connections."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("skybridge.http.request.duration",
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

// RecordToolInvocation records one tool invocation with its latency in
// seconds and outcome status ("ok", "domain_error" or "invalid").
func (m *Metrics) RecordToolInvocation(ctx context.Context, tool, status string, seconds float64) {
	m.ToolInvocationDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}

// RecordResourceRead records one widget markup read.
func (m *Metrics) RecordResourceRead(ctx context.Context, uri, status string) {
	m.ResourceReads.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("uri", uri),
			attribute.String("status", status),
		),
	)
}

// RecordWidgetStateWrite records one widget state persistence attempt.
func (m *Metrics) RecordWidgetStateWrite(ctx context.Context, widgetID, status string) {
	m.WidgetStateWrites.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("widget", widgetID),
			attribute.String("status", status),
		),
	)
}

// RecordDisplayModeRequest records one display-mode negotiation.
func (m *Metrics) RecordDisplayModeRequest(ctx context.Context, requested, granted string) {
	m.DisplayModeRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("requested", requested),
			attribute.String("granted", granted),
		),
	)
}
