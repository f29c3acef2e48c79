package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Tsahi-Elkayam/sphinx/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevelFromEnvironment(t *testing.T) {
	tests := []struct {
		value string
		want  logrus.Level
	}{
		{value: "", want: logrus.InfoLevel},
		{value: "debug", want: logrus.DebugLevel},
		{value: "WARNING", want: logrus.WarnLevel},
		{value: "error", want: logrus.ErrorLevel},
		{value: "nonsense", want: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("SPHINX_LOG_LEVEL", tt.value)
			assert.Equal(t, tt.want, NewLogger().GetLevel())
		})
	}
}

func TestNewLoggerJSONFormat(t *testing.T) {
	t.Setenv("SPHINX_LOG_FORMAT", "json")

	logger := NewLogger()
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
	assert.Equal(t, os.Stderr, logger.Out)
}

func TestApplyConfig(t *testing.T) {
	t.Setenv("SPHINX_LOG_LEVEL", "")
	t.Setenv("SPHINX_LOG_FORMAT", "")

	logFile := filepath.Join(t.TempDir(), "sphinx.log")
	logger := NewLogger()

	err := ApplyConfig(logger, config.LoggingConfig{Level: "debug", Format: "json", File: logFile})
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)

	logger.Info("written to file")
	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestApplyConfigEnvironmentWins(t *testing.T) {
	t.Setenv("SPHINX_LOG_LEVEL", "error")

	logger := NewLogger()
	require.NoError(t, ApplyConfig(logger, config.LoggingConfig{Level: "debug"}))
	assert.Equal(t, logrus.ErrorLevel, logger.GetLevel())
}

func TestApplyConfigBadFile(t *testing.T) {
	logger := NewLogger()
	err := ApplyConfig(logger, config.LoggingConfig{Level: "info", File: filepath.Join(t.TempDir(), "missing", "x.log")})
	assert.Error(t, err)
}
