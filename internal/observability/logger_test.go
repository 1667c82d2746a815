package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grading.log")

	logger := NewLogger(LoggerConfig{Level: "debug", File: path, AppName: "grading", Env: "test"})
	require.Equal(t, zerolog.DebugLevel, logger.GetLevel())

	logger.Info().Str("component", "test").Msg("score recorded")

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"message":"score recorded"`)
	require.Contains(t, string(contents), `"app":"grading"`)
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger := NewLogger(LoggerConfig{Level: "verbose"})
	require.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}
