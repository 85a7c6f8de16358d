package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mailsentry/mailsentry/internal/checker"
	"github.com/mailsentry/mailsentry/internal/config"
	"github.com/mailsentry/mailsentry/internal/database"
	"github.com/mailsentry/mailsentry/internal/export"
	"github.com/mailsentry/mailsentry/internal/monitor"
)

// maxUploadSize caps credential file downloads at 10 MiB
const maxUploadSize = 10 << 20

// SinkPinger verifies a webhook URL accepts deliveries. Implemented by
// forward.WebhookForwarder.
type SinkPinger interface {
	Ping(ctx context.Context, webhookURL string) error
}

// Bot represents the Telegram bot
type Bot struct {
	bot       *bot.Bot
	db        *database.DB
	engine    *checker.Engine
	registry  *checker.Registry
	scheduler *monitor.Scheduler
	exporter  *export.Exporter
	sink      SinkPinger
	logger    *slog.Logger
	config    *config.Config
}

// BotDeps dependencies for creating a bot
type BotDeps struct {
	Config   *config.Config
	DB       *database.DB
	Engine   *checker.Engine
	Registry *checker.Registry
	Exporter *export.Exporter
	Sink     SinkPinger
	Logger   *slog.Logger
}

// NewBot creates a new Telegram bot
func NewBot(deps BotDeps) (*Bot, error) {
	b := &Bot{
		db:       deps.DB,
		engine:   deps.Engine,
		registry: deps.Registry,
		exporter: deps.Exporter,
		sink:     deps.Sink,
		logger:   deps.Logger.With("component", "telegram_bot"),
		config:   deps.Config,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.defaultHandler),
	}

	tgBot, err := bot.New(deps.Config.TelegramToken, opts...)
	if err != nil {
		return nil, err
	}

	b.bot = tgBot
	b.registerHandlers()

	return b, nil
}

// AttachScheduler wires the monitoring scheduler. Called once at startup,
// after the scheduler is built with the bot as its notifier.
func (b *Bot) AttachScheduler(s *monitor.Scheduler) {
	b.scheduler = s
}

// registerHandlers registers command handlers
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start_monitoring", bot.MatchTypePrefix, b.handleStartMonitoring)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/stop_monitoring", bot.MatchTypePrefix, b.handleStopMonitoring)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.handleStart)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, b.handleHelp)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/stop", bot.MatchTypePrefix, b.handleStop)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/stats", bot.MatchTypePrefix, b.handleStats)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/accounts", bot.MatchTypePrefix, b.handleAccounts)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/results", bot.MatchTypePrefix, b.handleResults)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/webhook", bot.MatchTypePrefix, b.handleWebhook)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/monitor", bot.MatchTypePrefix, b.handleMonitor)
}

// Start starts the bot
func (b *Bot) Start(ctx context.Context) {
	b.logger.Info("starting telegram bot")
	b.bot.Start(ctx)
}

// NotifyNewMessages tells the owner how many messages a sweep forwarded.
// Implements monitor.Notifier.
func (b *Bot) NotifyNewMessages(ctx context.Context, ownerID int64, count int) {
	word := "messages"
	if count == 1 {
		word = "message"
	}
	if _, err := b.sendMessage(ctx, ownerID, fmt.Sprintf("📬 Forwarded <b>%d</b> new %s to your webhook", count, word)); err != nil {
		b.logger.Warn("failed to send notification", "owner_id", ownerID, "error", err)
	}
}

// defaultHandler routes non-command updates: credential batches arrive as
// plain text or as document uploads
func (b *Bot) defaultHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	msg := update.Message

	if msg.Document != nil {
		b.handleCredentialFile(ctx, msg)
		return
	}

	if msg.Text == "" {
		return
	}
	if msg.Text[0] == '/' {
		b.logger.Debug("unknown command", "text", msg.Text)
		return
	}
	if strings.Contains(msg.Text, ":") {
		b.handleCredentialBatch(ctx, msg, msg.Text)
		return
	}
}

// handleStart handles /start command
func (b *Bot) handleStart(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	b.handleHelp(ctx, tgBot, update)
}

// handleHelp handles /help command
func (b *Bot) handleHelp(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	text := `<b>MailSentry</b>

Validates mail credentials over IMAP and forwards incoming mail to your webhook.

<b>Validation:</b>
Send credentials as text or a .txt file, one per line:
<code>user@example.com:password</code>
/stop - stop the current validation run
/stats - validation statistics
/accounts - account counts by status
/results - download result files

<b>Monitoring:</b>
/start_monitoring - start polling validated accounts
/stop_monitoring - stop polling
/webhook url - set the delivery webhook
/monitor add email - only forward mail from this sender
/monitor remove email - drop a sender filter
/monitor list - show sender filters
/monitor clear - remove all filters

<b>Notes:</b>
- Malformed credential lines are skipped
- Accounts behind two-factor auth are reported separately
- Without filters every message is forwarded`

	b.sendMessage(ctx, msg.Chat.ID, text)
}
