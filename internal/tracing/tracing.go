// Package tracing owns the OpenTelemetry provider and the span helpers the
// ledger engines use. Until Init installs a provider, spans are no-ops.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is the default OpenTelemetry service name.
const ServiceName = "venue-ledger-api"

const instrumentation = "venue-ledger-api/internal"

// Config holds tracing configuration.
type Config struct {
	Enabled     bool
	Endpoint    string // Jaeger collector, e.g. http://localhost:14268/api/traces
	ServiceName string
	Environment string
	Version     string
	// SampleRatio is the fraction of new traces recorded. Parent decisions win.
	SampleRatio float64
}

// Init installs a Jaeger-backed provider when tracing is enabled.
func Init(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	if err != nil {
		return fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}
	tp, err := newProvider(tracesdk.WithBatcher(exp), cfg)
	if err != nil {
		return err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return nil
}

func newProvider(export tracesdk.TracerProviderOption, cfg Config) (*tracesdk.TracerProvider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = ServiceName
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.SampleRatio <= 0 || cfg.SampleRatio > 1 {
		cfg.SampleRatio = 1
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return tracesdk.NewTracerProvider(
		export,
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(cfg.SampleRatio))),
	), nil
}

// Start opens an internal span on the installed provider.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentation).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Ledger span attributes.
func VenueID(id string) attribute.KeyValue { return attribute.String("ledger.venue_id", id) }
func OrderID(id string) attribute.KeyValue { return attribute.String("ledger.order_id", id) }
func QuestID(id string) attribute.KeyValue { return attribute.String("ledger.quest_id", id) }
func UserID(id string) attribute.KeyValue  { return attribute.String("ledger.user_id", id) }
func Trigger(t string) attribute.KeyValue  { return attribute.String("ledger.trigger", t) }

// Shutdown flushes and stops the installed provider.
func Shutdown(ctx context.Context) error {
	if tp, ok := otel.GetTracerProvider().(*tracesdk.TracerProvider); ok {
		return tp.Shutdown(ctx)
	}
	return nil
}
