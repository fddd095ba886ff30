// Package logging provides structured logging utilities with context propagation.
//
// Key features:
//   - JSON output for the worker, text output on stderr for the CLI
//   - job and source scoped loggers
//   - secret masking for error messages
//
// Example usage:
//
//	logger := logging.NewLogger()
//	logging.WithJob(logger, job).Warn("fetch failed",
//	    slog.String("error", logging.SanitizeError(err)))
package logging
