// Package logger builds the zerolog loggers used by the mailqueue binaries
// and carries them, with a correlation id, through request and task contexts.
package logger

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config selects the level, format and destination of log output.
// Callers populate it from config.LoggingConfig.
type Config struct {
	Level     string
	Format    string // json (default), console
	Output    string // stdout (default), stderr, file
	FilePath  string
	MaxSizeMB int
	MaxFiles  int
	MaxAgeDay int
}

type contextKey string

const (
	loggerKey        contextKey = "logger"
	correlationIDKey contextKey = "correlation_id"
)

// New creates a JSON zerolog.Logger on stdout with the given level.
// An invalid level falls back to info.
func New(level string) zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// NewFromConfig creates a logger writing to the destination named by
// cfg.Output. A "file" output rotates through lumberjack.
func NewFromConfig(cfg Config) zerolog.Logger {
	var writer io.Writer
	switch cfg.Output {
	case "file":
		writer = NewFileWriter(FileConfig{
			Path:       cfg.FilePath,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxFiles:   cfg.MaxFiles,
			MaxAgeDays: cfg.MaxAgeDay,
		})
	case "stderr":
		writer = os.Stderr
	default:
		writer = os.Stdout
	}

	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: writer}
	}

	return zerolog.New(writer).
		Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithCorrelationID stores a correlation id in the context. Task workers use
// the task id; the API uses the request id.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext returns the correlation id, or "" if none is set.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns the logger stored in ctx with the correlation id
// attached. Without a stored logger it returns an info-level stdout logger.
func FromContext(ctx context.Context) zerolog.Logger {
	log, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		log = New("info")
	}

	if id := CorrelationIDFromContext(ctx); id != "" {
		log = log.With().Str("correlation_id", id).Logger()
	}

	return log
}

// NewCorrelationID generates a new random correlation id.
func NewCorrelationID() string {
	return uuid.New().String()
}
