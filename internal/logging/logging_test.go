package logging

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

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{input: "debug", want: zerolog.DebugLevel},
		{input: " WARN ", want: zerolog.WarnLevel},
		{input: "error", want: zerolog.ErrorLevel},
		{input: "", want: zerolog.InfoLevel},
		{input: "chatty", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, Config{Level: "info", Format: FormatJSON}, false)

	l.Debug().Msg("hidden")
	cl := ComponentLogger(l, "repository")
	cl.Info().Str("operation", "find").Msg("visible")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "visible", event["message"])
	assert.Equal(t, "repository", event["component"])
	assert.Equal(t, "find", event["operation"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNewLoggerWithPath_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "specrepo.log")
	result := NewLoggerWithPath(Config{Level: "info", Format: FormatJSON, File: path})
	t.Cleanup(func() { _ = result.Close() })

	require.True(t, result.UsingFile)
	assert.False(t, result.FallbackUsed)
	assert.Equal(t, path, result.FilePath)

	result.Logger.Info().Msg("to file")
	require.NoError(t, result.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
	assert.NoError(t, result.Close(), "close is idempotent")
}

func TestNewLoggerWithPath_Fallback(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	result := NewLoggerWithPath(Config{File: filepath.Join(blocker, "specrepo.log")})
	assert.False(t, result.UsingFile)
	assert.True(t, result.FallbackUsed)
	assert.NotEmpty(t, result.FallbackReason)
}

func TestPrintMessages(t *testing.T) {
	var buf bytes.Buffer
	PrintLogPathMessage(&buf, "/tmp/x.log")
	PrintFallbackWarning(&buf, "denied")
	assert.Contains(t, buf.String(), "Logging to /tmp/x.log")
	assert.Contains(t, buf.String(), "denied")
}

func TestContextLogger(t *testing.T) {
	assert.Equal(t, zerolog.Disabled, FromContext(context.Background()).GetLevel())

	var buf bytes.Buffer
	l := NewLogger(&buf, Config{Format: FormatJSON}, false)
	ctx := WithTrace(context.Background(), l)

	id := TraceIDFromContext(ctx)
	require.NotEmpty(t, id)
	assert.Equal(t, id, GetOrGenerateTraceID(ctx))

	FromContext(ctx).Info().Msg("traced")
	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, id, event["trace_id"])
}
