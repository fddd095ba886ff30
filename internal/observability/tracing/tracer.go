package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"regwatch/internal/domain/entity"
)

const instrumentationName = "regwatch"

// GetTracer returns the tracer used by the pipeline. It resolves the global
// provider on each call so providers installed by Init are picked up.
//
//	ctx, span := tracing.GetTracer().Start(ctx, "operation-name")
//	defer span.End()
func GetTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Init installs an SDK tracer provider built from opts as the global provider
// and returns its shutdown function.
func Init(opts ...sdktrace.TracerProviderOption) func(context.Context) error {
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// StartJobSpan starts a span carrying the job identity.
func StartJobSpan(ctx context.Context, name string, job *entity.Job) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, name, trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("source.id", job.SourceID),
		attribute.Int("job.attempt", job.Attempt),
	))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
