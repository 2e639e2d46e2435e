package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "kart-reconciler"

// InitMeterProvider initializes the Prometheus exporter and MeterProvider.
// It returns an http.Handler for the /metrics endpoint and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(newResource(serviceName, serviceVersion)),
	)

	otel.SetMeterProvider(mp)

	return promhttp.Handler(), mp.Shutdown, nil
}

// Metrics holds the reconciliation instruments. A nil *Metrics records nothing.
type Metrics struct {
	outcomes       metric.Int64Counter
	verifyDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFromMeter(otel.GetMeterProvider().Meter(meterName))
}

// NewMetricsFromMeter creates the instruments on meter.
func NewMetricsFromMeter(meter metric.Meter) (*Metrics, error) {
	outcomes, err := meter.Int64Counter(
		"reconcile_outcomes_total",
		metric.WithDescription("Reconcile calls by outcome"),
	)
	if err != nil {
		return nil, err
	}

	verifyDuration, err := meter.Float64Histogram(
		"gateway_verify_duration_seconds",
		metric.WithDescription("Latency of payment gateway verification including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{outcomes: outcomes, verifyDuration: verifyDuration}, nil
}

// RecordOutcome counts one reconcile call ending in outcome.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordVerify observes one gateway verification.
func (m *Metrics) RecordVerify(ctx context.Context, elapsed time.Duration, result string) {
	if m == nil {
		return
	}
	m.verifyDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("result", result)))
}
