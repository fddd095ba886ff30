// Package tracing provides OpenTelemetry tracing for the monitoring pipeline.
//
// Spans are opened around sweeps, job attempts, fetches and classifier
// calls. Without Init the global no-op provider is used, so tracing costs
// nothing unless a provider is installed.
//
//	shutdown := tracing.Init(sdktrace.WithBatcher(exporter))
//	defer func() { _ = shutdown(ctx) }()
//
//	ctx, span := tracing.StartJobSpan(ctx, "monitor.process_job", job)
//	defer func() { tracing.End(span, err) }()
package tracing
