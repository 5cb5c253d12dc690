package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexliu/ordo/pkg/config"
)

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"info":  slog.LevelInfo,
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseLevel("chatty")
	assert.Error(t, err)
}

func TestConfigureWritesFile(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := Configure("test", config.LoggingConfig{
		Level:       "debug",
		Format:      "json",
		FilePath:    "logs/ordod.log",
		FileMaxSize: 1,
	}, dir)
	require.NoError(t, err)
	logger.Debug("hello", "id", "abc")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "logs", "ordod.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestConfigureStdoutOnly(t *testing.T) {
	logger, closer, err := Configure("test", config.LoggingConfig{Level: "warn"}, t.TempDir())
	require.NoError(t, err)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.NoError(t, closer.Close())
}
