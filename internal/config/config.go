package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Telegram
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN,required"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mailsentry.db"`

	// Validation
	ProbeTimeout      time.Duration `env:"PROBE_TIMEOUT" envDefault:"3s"`
	ValidationBatch   int           `env:"VALIDATION_BATCH_SIZE" envDefault:"100"`
	ValidationWorkers int           `env:"VALIDATION_WORKERS" envDefault:"75"`
	ProgressEvery     int           `env:"PROGRESS_EVERY" envDefault:"25"`

	// Monitoring
	PollInterval  time.Duration `env:"POLL_INTERVAL" envDefault:"5m"`
	ErrorBackoff  time.Duration `env:"ERROR_BACKOFF" envDefault:"1m"`
	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT" envDefault:"5s"`
	FetchWindow   time.Duration `env:"FETCH_WINDOW" envDefault:"24h"`
	MonitorBatch  int           `env:"MONITOR_BATCH_SIZE" envDefault:"5"`
	BatchDeadline time.Duration `env:"BATCH_DEADLINE" envDefault:"30s"`
	BatchPause    time.Duration `env:"BATCH_PAUSE" envDefault:"1s"`
	FetchLimit    int           `env:"FETCH_LIMIT" envDefault:"10"`

	// Forwarding
	WebhookTimeout   time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	TranslateURL     string        `env:"TRANSLATE_URL" envDefault:"https://ftapi.pythonanywhere.com/translate"`
	TranslateTimeout time.Duration `env:"TRANSLATE_TIMEOUT" envDefault:"15s"`
	TargetLanguage   string        `env:"TARGET_LANGUAGE" envDefault:"en"`

	// Health endpoint (started only when PORT is set)
	Port int `env:"PORT"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.ValidationWorkers < 1 {
		return nil, fmt.Errorf("VALIDATION_WORKERS must be positive, got %d", cfg.ValidationWorkers)
	}
	if cfg.ValidationBatch < 1 {
		return nil, fmt.Errorf("VALIDATION_BATCH_SIZE must be positive, got %d", cfg.ValidationBatch)
	}

	return cfg, nil
}
