package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/mailsentry/mailsentry/internal/checker"
	"github.com/mailsentry/mailsentry/internal/config"
	"github.com/mailsentry/mailsentry/internal/database"
	"github.com/mailsentry/mailsentry/internal/export"
	"github.com/mailsentry/mailsentry/internal/forward"
	"github.com/mailsentry/mailsentry/internal/health"
	"github.com/mailsentry/mailsentry/internal/monitor"
	"github.com/mailsentry/mailsentry/internal/parser"
	"github.com/mailsentry/mailsentry/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting mailsentry")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Validation pipeline
	prober := checker.NewIMAPProber(cfg.ProbeTimeout, logger)
	engine := checker.NewEngine(db, prober, checker.EngineConfig{
		BatchSize:     cfg.ValidationBatch,
		Workers:       cfg.ValidationWorkers,
		ProgressEvery: cfg.ProgressEvery,
	}, logger)
	registry := checker.NewRegistry()
	exporter := export.New(db)

	// Forwarding pipeline
	translator := forward.NewTranslator(cfg.TranslateURL, cfg.TargetLanguage, cfg.TranslateTimeout, logger)
	forwarder := forward.NewWebhookForwarder(db, translator, cfg.WebhookTimeout, logger)

	// Create bot
	bot, err := telegram.NewBot(telegram.BotDeps{
		Config:   cfg,
		DB:       db,
		Engine:   engine,
		Registry: registry,
		Exporter: exporter,
		Sink:     forwarder,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	// Monitoring pipeline, with the bot as its notifier
	fetcher := monitor.NewIMAPFetcher(db, parser.NewHTMLParser(), cfg.FetchTimeout, cfg.FetchLimit, logger)
	scheduler := monitor.NewScheduler(db, fetcher, forwarder, bot, monitor.SchedulerConfig{
		Interval:      cfg.PollInterval,
		ErrorBackoff:  cfg.ErrorBackoff,
		BatchSize:     cfg.MonitorBatch,
		BatchDeadline: cfg.BatchDeadline,
		BatchPause:    cfg.BatchPause,
		FetchWindow:   cfg.FetchWindow,
	}, logger)
	bot.AttachScheduler(scheduler)

	// Health endpoint (only when PORT is set)
	var healthSrv *health.Server
	if cfg.Port != 0 {
		healthSrv = health.New(logger)
		go func() {
			if err := healthSrv.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
				logger.Error("health endpoint failed", "error", err)
			}
		}()
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		logger.Info("shutting down...")

		scheduler.StopAll()
		if healthSrv != nil {
			healthSrv.Shutdown()
		}
		cancel()
	}()

	// Start bot
	logger.Info("bot is running, press Ctrl+C to stop")
	bot.Start(ctx)

	logger.Info("bot stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
