package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/platonv/delayq/internal/jaeger"
)

// Config describes the tracing pipeline.
type Config struct {
	Enabled        bool
	JaegerEndpoint string
	ServiceName    string
}

type OtelController struct {
	traceProvider *sdktrace.TracerProvider
}

// MustInitOtel installs the global tracer provider and propagator.
// With tracing disabled only the propagator is installed and spans are dropped.
func MustInitOtel(cfg Config) *OtelController {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return &OtelController{}
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "delayq"
	}

	jaegerExporter := jaeger.MustNewJaeger(cfg.JaegerEndpoint)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(jaegerExporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
	)

	otel.SetTracerProvider(tp)

	return &OtelController{
		traceProvider: tp,
	}
}

func (o *OtelController) Shutdown(ctx context.Context) error {
	if o.traceProvider == nil {
		return nil
	}
	if err := o.traceProvider.Shutdown(ctx); err != nil {
		return err
	}

	return nil
}
