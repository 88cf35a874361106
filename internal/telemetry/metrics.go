package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitMeterProvider initializes the Prometheus exporter and MeterProvider.
// It returns an http.Handler for the /metrics endpoint and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return promhttp.Handler(), mp.Shutdown, nil
}

// OrderMetrics carries the domain counters for the ordering flow.
type OrderMetrics struct {
	OrdersPlaced      metric.Int64Counter
	PaymentsSettled   metric.Int64Counter
	WebhooksProcessed metric.Int64Counter
}

func NewOrderMetrics() (*OrderMetrics, error) {
	meter := otel.Meter("counterserve/orders")

	placed, err := meter.Int64Counter("orders_placed_total",
		metric.WithDescription("Orders placed into checkout"))
	if err != nil {
		return nil, err
	}

	settled, err := meter.Int64Counter("payments_settled_total",
		metric.WithDescription("Orders settled to paid by a capture event"))
	if err != nil {
		return nil, err
	}

	webhooks, err := meter.Int64Counter("webhooks_processed_total",
		metric.WithDescription("Provider webhook deliveries processed"))
	if err != nil {
		return nil, err
	}

	return &OrderMetrics{
		OrdersPlaced:      placed,
		PaymentsSettled:   settled,
		WebhooksProcessed: webhooks,
	}, nil
}

// ProviderAttr tags a metric point with the payment provider involved.
func ProviderAttr(provider string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("provider", provider))
}
