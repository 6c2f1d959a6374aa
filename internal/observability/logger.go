// Package observability provides structured logging for voxcut.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/masq"
)

// LoggingConfig describes the logger shape.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// NewLogger creates a configured slog.Logger writing to stdout.
func NewLogger(cfg LoggingConfig) *slog.Logger {
	return NewLoggerWithWriter(cfg, os.Stdout)
}

// NewLoggerWithWriter creates a configured slog.Logger writing to w.
// Secret-bearing attributes (api keys, tokens, authorization headers)
// are masked before they reach the handler.
func NewLoggerWithWriter(cfg LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
		ReplaceAttr: masq.New(
			masq.WithFieldName("APIKey"),
			masq.WithFieldName("Authorization"),
			masq.WithFieldName("Token"),
			masq.WithFieldPrefix("secret"),
		),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// SetDefault installs the logger as the process-wide default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithOperation returns a logger tagged with an operation name.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With("operation", operation)
}

// WithTask returns a logger tagged with the task coordinates used
// throughout the scheduler and pipelines.
func WithTask(logger *slog.Logger, scope, projectID, taskID string) *slog.Logger {
	return logger.With("scope", scope, "project_id", projectID, "task_id", taskID)
}

type contextKey string

const loggerKey contextKey = "logger"

// ContextWithLogger stores a logger in the context.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves a logger from the context, falling back
// to slog.Default when none was stored.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// TimedOperation logs the start and duration of an operation.
func TimedOperation(logger *slog.Logger, operation string, fn func()) {
	start := time.Now()
	logger.Debug("operation started", "operation", operation)
	fn()
	logger.Debug("operation completed", "operation", operation, "duration", time.Since(start))
}

// TimedOperationWithError logs the start, duration and outcome of an
// operation that can fail.
func TimedOperationWithError(logger *slog.Logger, operation string, fn func() error) error {
	start := time.Now()
	logger.Debug("operation started", "operation", operation)
	err := fn()
	if err != nil {
		logger.Error("operation failed", "operation", operation, "duration", time.Since(start), "error", err)
		return err
	}
	logger.Debug("operation completed", "operation", operation, "duration", time.Since(start))
	return nil
}
