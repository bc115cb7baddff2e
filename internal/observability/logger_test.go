package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log line: %s", buf.String())
	return entry
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	logger.Warn().Str("review_id", "r-1").Msg("kept")
	entry := decodeLine(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "r-1", entry["review_id"])
	assert.Contains(t, entry, "time")
}

func TestNewLogger_Formats(t *testing.T) {
	t.Run("console output is not JSON", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(LoggingConfig{Format: "console"}, &buf)
		logger.Info().Msg("human readable")

		assert.Contains(t, buf.String(), "human readable")
		assert.False(t, json.Valid(buf.Bytes()))
	})

	t.Run("add source records the caller", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger(LoggingConfig{AddSource: true}, &buf)
		logger.Info().Msg("with caller")

		entry := decodeLine(t, &buf)
		assert.Contains(t, entry["caller"], "logger_test.go")
	})
}

func TestNewLogger_DefaultsToInfo(t *testing.T) {
	logger := NewLogger(DefaultLoggingConfig())
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		" info ":  zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"Warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"fatal":   zerolog.FatalLevel,
		"panic":   zerolog.PanicLevel,
		"verbose": zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
	}
	for input, want := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, want, parseLevel(input))
		})
	}
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	logger := NewLogger(LoggingConfig{Level: "info", Format: "json", Output: path})
	logger.Info().Msg("written to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestWithReviewContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := WithReviewContext(logger, "r-123", "cid-456")
	enriched.Info().Msg("test message")

	logEntry := decodeLine(t, &buf)

	assert.Equal(t, "r-123", logEntry["review_id"])
	assert.Equal(t, "cid-456", logEntry["business_id"])
	assert.Equal(t, "test message", logEntry["message"])
}

func TestWithStageContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	enriched := WithStageContext(logger, "consult", "anthropic")
	enriched.Warn().Msg("stage failed")

	logEntry := decodeLine(t, &buf)

	assert.Equal(t, "consult", logEntry["stage"])
	assert.Equal(t, "anthropic", logEntry["provider"])
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := WithCycleID(context.Background(), "cycle-1")
	ctx = WithReviewID(ctx, "r-9")
	enriched := WithCycleContext(LoggerFromContext(ctx, logger), "cycle-1", "ingest")
	enriched.Info().Msg("chained context")

	logEntry := decodeLine(t, &buf)

	assert.Equal(t, "cycle-1", logEntry["cycle_id"])
	assert.Equal(t, "r-9", logEntry["review_id"])
	assert.Equal(t, "ingest", logEntry["cycle"])
	assert.NotContains(t, logEntry, "request_id")
}
