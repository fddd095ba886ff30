// Package logging provides structured logging utilities using the standard library's log/slog package.
// It offers helper functions for creating loggers with consistent configuration and context propagation.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"regwatch/internal/domain/entity"
)

// NewLogger creates a JSON logger on stdout.
// LOG_LEVEL=debug lowers the level and attaches source positions.
func NewLogger() *slog.Logger {
	return newLogger(os.Stdout, true)
}

// NewTextLogger creates a human-readable logger on stderr, used by the CLI
// so that stdout stays free for command output.
func NewTextLogger() *slog.Logger {
	return newLogger(os.Stderr, false)
}

func newLogger(w io.Writer, jsonOut bool) *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}
	if jsonOut {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithJob returns a logger annotated with the job's identity.
func WithJob(logger *slog.Logger, job *entity.Job) *slog.Logger {
	return logger.With(
		slog.String("job_id", job.ID),
		slog.String("source_id", job.SourceID),
		slog.Int("attempt", job.Attempt),
	)
}

// WithSource returns a logger annotated with a source's identity.
func WithSource(logger *slog.Logger, src *entity.Source) *slog.Logger {
	return logger.With(
		slog.String("source_id", src.ID),
		slog.String("jurisdiction", src.Jurisdiction),
		slog.String("url", src.URL),
	)
}

// WithFields returns a new logger with additional structured fields.
func WithFields(logger *slog.Logger, fields map[string]interface{}) *slog.Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return logger.With(args...)
}

// FromContext retrieves the logger from the context, or returns the default logger if not found.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

type contextKey string

const loggerContextKey contextKey = "logger"

var (
	// Anthropic keys first: the OpenAI pattern would also match their prefix.
	anthropicKeyPattern = regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-_]+`)
	openaiKeyPattern    = regexp.MustCompile(`sk-[a-zA-Z0-9]{10,}`)
	dsnPasswordPattern  = regexp.MustCompile(`://([^:/@]+):([^@]+)@`)
	webhookTokenPattern = regexp.MustCompile(`(hooks\.slack\.com/services|discord(?:app)?\.com/api/webhooks)/[^\s"':]+`)
)

// SanitizeError returns err's message with API keys, DSN passwords and
// webhook tokens masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return Sanitize(err.Error())
}

// Sanitize masks secrets in an arbitrary message.
func Sanitize(msg string) string {
	msg = anthropicKeyPattern.ReplaceAllString(msg, "sk-ant-****")
	msg = openaiKeyPattern.ReplaceAllString(msg, "sk-****")
	msg = dsnPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	msg = webhookTokenPattern.ReplaceAllString(msg, "$1/****")
	return msg
}
