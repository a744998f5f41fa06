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
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	meter          otelmetric.Meter
	tracer         trace.Tracer
	searchCounter  otelmetric.Int64Counter
	searchLatency  otelmetric.Float64Histogram
	syncCounter    otelmetric.Int64Counter
}

// New installs the global meter and tracer providers. Metrics are exported
// through the Prometheus registry served on /metrics.
func New(serviceName string, sampleRate float64) *Observability {
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)
	otel.SetTracerProvider(tracerProvider)

	o := &Observability{
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(serviceName),
	}

	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	searchCounter, _ := meter.Int64Counter(
		"search.requests",
		otelmetric.WithDescription("Number of search requests served"),
	)
	searchLatency, _ := meter.Float64Histogram(
		"search.latency",
		otelmetric.WithDescription("Search request latency"),
		otelmetric.WithUnit("ms"),
	)
	syncCounter, _ := meter.Int64Counter(
		"index.sync.events",
		otelmetric.WithDescription("Number of listing sync events applied"),
	)

	o.meterProvider = provider
	o.meter = meter
	o.searchCounter = searchCounter
	o.searchLatency = searchLatency
	o.syncCounter = syncCounter
	return o
}

// StartSpan opens a span on the service tracer.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := o.tracer
	if tracer == nil {
		tracer = otel.Tracer("search-gateway")
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (o *Observability) RecordSearch(ctx context.Context, duration time.Duration, searchType, outcome string) {
	attrs := otelmetric.WithAttributes(
		attribute.String("search_type", searchType),
		attribute.String("outcome", outcome),
	)
	if o.searchCounter != nil {
		o.searchCounter.Add(ctx, 1, attrs)
	}
	if o.searchLatency != nil {
		o.searchLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

func (o *Observability) RecordSync(ctx context.Context, event, outcome string) {
	if o.syncCounter != nil {
		o.syncCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("event", event),
			attribute.String("outcome", outcome),
		))
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
