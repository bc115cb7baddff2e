package observability

import (
	"cmp"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig mirrors config.LoggingConfig so this package does not import config.
type LoggingConfig struct {
	Level      string // trace, debug, info, warn, error, fatal, panic
	Format     string // json, console or pretty
	Output     string // stdout, stderr or a file path
	AddSource  bool
	TimeFormat string
}

// DefaultLoggingConfig returns JSON logging at info level to stdout.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// NewLogger builds the process logger and sets the zerolog global level to match.
// A file output that cannot be opened falls back to stdout.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = cmp.Or(cfg.TimeFormat, time.RFC3339)
	return newLogger(cfg, openOutput(cfg.Output))
}

// newLogger writes to w without touching zerolog globals.
func newLogger(cfg LoggingConfig, w io.Writer) zerolog.Logger {
	switch strings.ToLower(cfg.Format) {
	case "console", "pretty":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	ctx := zerolog.New(w).With().Timestamp()
	if cfg.AddSource {
		ctx = ctx.Caller()
	}
	return ctx.Logger().Level(parseLevel(cfg.Level))
}

func openOutput(dest string) io.Writer {
	switch strings.ToLower(dest) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stdout
	}
	return f
}

// parseLevel accepts zerolog level names plus "warning". Anything else is info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return zerolog.WarnLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return l
}

// WithReviewContext adds review identity fields to a logger.
func WithReviewContext(logger zerolog.Logger, reviewID, businessID string) zerolog.Logger {
	return logger.With().
		Str("review_id", reviewID).
		Str("business_id", businessID).
		Logger()
}

// WithStageContext adds pipeline stage fields to a logger.
func WithStageContext(logger zerolog.Logger, stage, provider string) zerolog.Logger {
	return logger.With().
		Str("stage", stage).
		Str("provider", provider).
		Logger()
}

// WithCycleContext adds scheduler cycle fields to a logger.
func WithCycleContext(logger zerolog.Logger, cycleID, kind string) zerolog.Logger {
	return logger.With().
		Str("cycle_id", cycleID).
		Str("cycle", kind).
		Logger()
}

// LoggerFromContext enriches base with any identifiers stored in ctx.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	c := base.With()
	if v := CycleIDFromContext(ctx); v != "" {
		c = c.Str("cycle_id", v)
	}
	if v := ReviewIDFromContext(ctx); v != "" {
		c = c.Str("review_id", v)
	}
	if v := RequestIDFromContext(ctx); v != "" {
		c = c.Str("request_id", v)
	}
	return c.Logger()
}
