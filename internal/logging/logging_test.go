package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kyureeus-Edtech/custom-python-etl-data-connector-Kamalnath-28/internal/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, logging.ParseLevel(tt.in))
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "json", "info")

	logger.Debug("hidden")
	logger.Info("ingest complete", "inserted", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "ingest complete", line["msg"])
	require.EqualValues(t, 3, line["inserted"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "text", "debug")

	logger.Debug("retrying fetch", "wait", "5s")
	require.Contains(t, buf.String(), "level=DEBUG")
	require.Contains(t, buf.String(), "wait=5s")
}
