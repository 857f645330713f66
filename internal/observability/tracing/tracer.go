package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is the instrumentation scope and resource service name.
const ServiceName = "osiri-dispatch"

// GetTracer returns the tracer used for batch, delivery and HTTP spans. It is
// looked up on every call so a provider installed later is honoured.
//
//	ctx, span := tracing.GetTracer().Start(ctx, "notify.ProcessNotifications")
//	defer span.End()
func GetTracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}

// InstallProvider registers an SDK tracer provider as the global provider and
// returns its shutdown function. component distinguishes the api and worker
// binaries. Exporters are passed as options (sdktrace.WithBatcher).
func InstallProvider(component string, opts ...sdktrace.TracerProviderOption) func(context.Context) error {
	res := sdkresource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.component", component),
	)
	opts = append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
