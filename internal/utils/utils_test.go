package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbscrape/internal/config"
)

func TestNewLogger_FileOutput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "scraper.log")
	logger := NewLogger(config.LoggingConfig{Level: "warn", File: file, MaxSize: 1})
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	logger.Warn("shown")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "shown")
	assert.NotContains(t, string(data), "hidden")
}

func TestNewLogger_BadLevel(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, NewLogger(config.LoggingConfig{Level: "loud"}).GetLevel())
	assert.Equal(t, logrus.DebugLevel, SetupLogger(true).GetLevel())
}

func TestIsWithinDays(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	assert.True(t, IsWithinDays(now, now.Add(-48*time.Hour), 3))
	assert.False(t, IsWithinDays(now, now.AddDate(0, 0, -4), 3))
	assert.Equal(t, "2026-05-10 12:00:00", FormatTimestamp(now))
}
