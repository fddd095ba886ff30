// Package observability groups logging, metrics and tracing for the
// monitoring pipeline.
//
// Subpackages:
//   - logging: slog construction, job/source scoped loggers, secret masking
//   - metrics: Prometheus collectors and recorders
//   - tracing: OpenTelemetry tracer and span helpers
package observability
