package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "123:abc", cfg.TelegramToken)
		assert.Equal(t, "./data/mailsentry.db", cfg.DatabasePath)
		assert.Equal(t, 3*time.Second, cfg.ProbeTimeout)
		assert.Equal(t, 100, cfg.ValidationBatch)
		assert.Equal(t, 75, cfg.ValidationWorkers)
		assert.Equal(t, 25, cfg.ProgressEvery)
		assert.Equal(t, 5*time.Minute, cfg.PollInterval)
		assert.Equal(t, time.Minute, cfg.ErrorBackoff)
		assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
		assert.Equal(t, 24*time.Hour, cfg.FetchWindow)
		assert.Equal(t, 5, cfg.MonitorBatch)
		assert.Equal(t, 30*time.Second, cfg.BatchDeadline)
		assert.Equal(t, 10, cfg.FetchLimit)
		assert.Equal(t, "en", cfg.TargetLanguage)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
		t.Setenv("VALIDATION_WORKERS", "10")
		t.Setenv("POLL_INTERVAL", "30s")
		t.Setenv("LOG_FORMAT", "json")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 10, cfg.ValidationWorkers)
		assert.Equal(t, 30*time.Second, cfg.PollInterval)
		assert.Equal(t, "json", cfg.LogFormat)
	})

	t.Run("missing token", func(t *testing.T) {
		// t.Setenv records the restore; unset so "required" trips.
		t.Setenv("TELEGRAM_BOT_TOKEN", "")
		os.Unsetenv("TELEGRAM_BOT_TOKEN")

		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("invalid worker count", func(t *testing.T) {
		t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
		t.Setenv("VALIDATION_WORKERS", "0")

		_, err := Load()
		assert.Error(t, err)
	})
}
