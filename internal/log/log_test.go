package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	logger := New(Config{Path: path, Level: "info"})
	defer logger.Sync()

	logger.Named("stream").Info("established")

	logger.Sync()
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(buf), `"logger":"stream"`)
	require.Contains(t, string(buf), `"msg":"established"`)
}

func TestNewFiltersBelowConfiguredLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	logger := New(Config{Path: path, Level: "warn"})
	defer logger.Sync()

	logger.Info("should be dropped")
	logger.Warn("should survive")
	logger.Sync()

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(buf), "should be dropped")
	require.Contains(t, string(buf), "should survive")
}

func TestNewWithoutPathLogsToConsoleOnly(t *testing.T) {
	logger := New(Config{Level: "info"})
	require.NotNil(t, logger)
}
