// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes the monitoring pipeline metrics:
//   - job lifecycle (transitions, attempt duration, retries, queue depth)
//   - source registry and scheduler sweeps
//   - fetch latency and size, detector verdicts, reconciliation
//   - classification outcomes and the retry queue
//   - store errors and database pool statistics
//
// All metrics are registered with the Prometheus default registry and exposed
// via the worker's /metrics endpoint.
//
// Example usage:
//
//	import "regwatch/internal/observability/metrics"
//
//	metrics.RecordChangeDetected(result.Kind)
//	metrics.RecordJobTransition(entity.JobCompleted)
package metrics
