package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/eshaffer321/ledger-recon/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMavenHandler_Format(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "info"}).With("system", "reconcile")

	// Act
	logger.Info("run complete", "run_id", "abc", "matched", 3, "reason", "two words")

	// Assert
	assert.Regexp(t, `^\[INFO\] \[reconcile\] \[\d{2}:\d{2}:\d{2}\] run complete run_id=abc matched=3 reason="two words"\n$`, buf.String())
}

func TestMavenHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "warn"})

	logger.Info("hidden")
	logger.Debug("hidden")
	logger.Warn("shown")

	assert.Contains(t, buf.String(), "[WARN]")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestMavenHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewMavenHandler(&buf, nil))

	logger.WithGroup("segment").With("id", "chq#1").Info("checked",
		slog.Group("balance", slog.String("opening", "100.00")))

	out := buf.String()
	assert.Contains(t, out, " segment.id=chq#1")
	assert.Contains(t, out, " segment.balance.opening=100.00")
	assert.NotContains(t, out, "[chq#1]")
}

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "debug", Format: "json"})

	logger.Debug("normalized", "records", 12)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "normalized", entry["msg"])
	assert.Equal(t, float64(12), entry["records"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
