package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the run metrics:
// - Latency: Tower API round trips and total job duration
// - Traffic: requests, polls and emitted events
// - Errors: non-2xx responses and transport failures
type Metrics struct {
	meter    metric.Meter
	registry *prometheus.Registry

	// Tower API metrics
	APIRequestDuration metric.Float64Histogram
	APIRequestsTotal   metric.Int64Counter
	APIErrorsTotal     metric.Int64Counter

	// Polling metrics
	PollsTotal    metric.Int64Counter
	EventsEmitted metric.Int64Counter
	JobDuration   metric.Float64Histogram
}

// NewMetrics creates all metrics on a dedicated Prometheus registry.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("towerrunner")
	m := &Metrics{meter: meter, registry: registry}

	m.APIRequestDuration, err = meter.Float64Histogram(
		"tower_api_request_duration_seconds",
		metric.WithDescription("Tower API request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, nil, err
	}

	m.APIRequestsTotal, err = meter.Int64Counter(
		"tower_api_requests_total",
		metric.WithDescription("Total number of Tower API requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.APIErrorsTotal, err = meter.Int64Counter(
		"tower_api_errors_total",
		metric.WithDescription("Total number of failed Tower API requests (non-2xx or no response)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollsTotal, err = meter.Int64Counter(
		"tower_polls_total",
		metric.WithDescription("Total number of job status polls"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.EventsEmitted, err = meter.Int64Counter(
		"tower_events_emitted_total",
		metric.WithDescription("Total number of job events written to the output"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobDuration, err = meter.Float64Histogram(
		"tower_job_duration_seconds",
		metric.WithDescription("Time from launch to terminal status in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(10, 30, 60, 120, 300, 600, 900, 1800, 3600),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// RecordAPIRequest records one Tower API round trip.
// statusCode is 0 when no response was received.
func (m *Metrics) RecordAPIRequest(ctx context.Context, method, uri string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		endpointAttr(uri),
		statusAttr(statusCode),
	)

	m.APIRequestDuration.Record(ctx, durationSeconds, attrs)
	m.APIRequestsTotal.Add(ctx, 1, attrs)

	if statusCode == 0 || statusCode >= 300 {
		m.APIErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordPoll records one status query result.
func (m *Metrics) RecordPoll(ctx context.Context, status string) {
	m.PollsTotal.Add(ctx, 1, WithJobStatus(status))
}

// RecordEventsEmitted records events written to the sink.
func (m *Metrics) RecordEventsEmitted(ctx context.Context, count int) {
	if count <= 0 {
		return
	}
	m.EventsEmitted.Add(ctx, int64(count))
}

// RecordJobCompleted records a job reaching a terminal status.
func (m *Metrics) RecordJobCompleted(ctx context.Context, template, status string, durationSeconds float64) {
	attrs := metric.WithAttributes(templateAttr(template), jobStatusAttr(status))
	m.JobDuration.Record(ctx, durationSeconds, attrs)
}

// Push sends the current metrics to a Prometheus Pushgateway.
func (m *Metrics) Push(ctx context.Context, gatewayURL, template string) error {
	err := push.New(gatewayURL, "towerrunner").
		Gatherer(m.registry).
		Grouping("template", template).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
