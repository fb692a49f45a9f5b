package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	attemptCounter  otelmetric.Int64Counter
	attemptDuration otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	attemptCounter, _ := meter.Int64Counter(
		"delivery.attempts",
		otelmetric.WithDescription("Number of delivery attempts processed"),
	)

	attemptDuration, _ := meter.Float64Histogram(
		"delivery.duration",
		otelmetric.WithDescription("Delivery attempt duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		attemptCounter:  attemptCounter,
		attemptDuration: attemptDuration,
	}
}

func (o *Observability) RecordAttempt(ctx context.Context, channel, status string) {
	if o.attemptCounter != nil {
		o.attemptCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordAttemptDuration(ctx context.Context, duration time.Duration, channel, status string) {
	if o.attemptDuration != nil {
		o.attemptDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("channel", channel),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
