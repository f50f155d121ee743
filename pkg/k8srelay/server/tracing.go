package server

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider wraps an OTLP-exporting *sdktrace.TracerProvider, grounded
// on pkg/relay's OTELExporter: one span per Collect session, one child span
// per dispatched event (SPEC_FULL.md §4.9), batched to an OTLP collector
// over gRPC.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// NewTracerProvider dials endpoint (an OTLP/gRPC collector address) and
// installs the resulting provider as the process-global tracer provider.
// An empty endpoint disables export: callers get a functioning, sampling,
// no-op-exporting provider rather than an error, since tracing is ambient
// and must never block startup.
func NewTracerProvider(ctx context.Context, endpoint string) (*TracerProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName("k8s-relay"),
			attribute.String("k8srelay.component", "server"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	if endpoint != "" {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithTimeout(10*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("build otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return &TracerProvider{provider: tp}, nil
}

// Tracer returns a tracer scoped to the given instrumentation name.
func (p *TracerProvider) Tracer(name string) trace.Tracer {
	return p.provider.Tracer(name)
}

// Shutdown flushes and stops the underlying provider.
func (p *TracerProvider) Shutdown(ctx context.Context) error {
	if err := p.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}
