package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mailsentry/mailsentry/internal/database"
	appmodels "github.com/mailsentry/mailsentry/pkg/models"
)

// handleStop handles /stop command
func (b *Bot) handleStop(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	run, ok := b.registry.Get(msg.From.ID)
	if !ok {
		b.sendMessage(ctx, msg.Chat.ID, "No validation run is active")
		return
	}

	run.RequestStop()
	b.sendMessage(ctx, msg.Chat.ID, "⏸ Stopping after the current batch drains...")
}

// handleStats handles /stats command
func (b *Bot) handleStats(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	ownerID := msg.From.ID

	if run, ok := b.registry.Get(ownerID); ok {
		snap := run.Snapshot()
		b.sendMessage(ctx, msg.Chat.ID, formatProgress(snap))
		return
	}

	counts, err := b.db.CountAccountsByStatus(ctx, ownerID)
	if err != nil {
		b.logger.Error("failed to count accounts", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Failed to load statistics")
		return
	}

	messages, err := b.db.CountMessages(ctx, ownerID)
	if err != nil {
		b.logger.Error("failed to count messages", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Failed to load statistics")
		return
	}

	monitoring := "stopped"
	if b.scheduler != nil && b.scheduler.Running(ownerID) {
		monitoring = "running"
	}

	b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf(`<b>Statistics</b>

✅ Valid: %d
❌ Invalid: %d
🔐 2FA: %d
⏳ Pending: %d

📨 Messages stored: %d
👁 Monitoring: %s`,
		counts[appmodels.StatusActive],
		counts[appmodels.StatusFailed],
		counts[appmodels.StatusTwoFactor],
		counts[appmodels.StatusPending],
		messages,
		monitoring,
	))
}

// handleAccounts handles /accounts command
func (b *Bot) handleAccounts(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	accounts, err := b.db.GetActiveAccounts(ctx, msg.From.ID)
	if err != nil {
		b.logger.Error("failed to load accounts", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Failed to load accounts")
		return
	}

	if len(accounts) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, "No validated accounts yet. Send credentials to validate them.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Validated accounts (%d)</b>\n\n", len(accounts))
	for i, account := range accounts {
		if i == 20 {
			fmt.Fprintf(&sb, "... and %d more", len(accounts)-i)
			break
		}
		fmt.Fprintf(&sb, "%s - %d messages\n", account.Email, account.TotalMessages)
	}

	b.sendMessage(ctx, msg.Chat.ID, sb.String())
}

// handleResults handles /results command
func (b *Bot) handleResults(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	files, err := b.exporter.Results(ctx, msg.From.ID)
	if err != nil {
		b.logger.Error("failed to build result files", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Failed to build result files")
		return
	}

	if len(files) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, "Nothing to export yet")
		return
	}

	for _, file := range files {
		if err := b.sendDocument(ctx, msg.Chat.ID, file.Name, file.Data); err != nil {
			b.logger.Error("failed to send result file", "file", file.Name, "error", err)
		}
	}
}

// handleWebhook handles /webhook command
// Usage: /webhook https://example.com/hook
func (b *Bot) handleWebhook(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	parts := strings.Fields(msg.Text)
	if len(parts) != 2 {
		b.sendMessage(ctx, msg.Chat.ID, "Usage: <code>/webhook https://example.com/hook</code>")
		return
	}

	parsed, err := url.Parse(parts[1])
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		b.sendMessage(ctx, msg.Chat.ID, "That does not look like a valid webhook URL")
		return
	}

	if err := b.db.SetWebhook(ctx, msg.From.ID, parts[1]); err != nil {
		b.logger.Error("failed to save webhook", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Failed to save webhook")
		return
	}

	if b.sink != nil {
		if err := b.sink.Ping(ctx, parts[1]); err != nil {
			b.logger.Warn("webhook test delivery failed", "error", err)
			b.sendMessage(ctx, msg.Chat.ID, "⚠️ Webhook saved, but the test delivery failed. Check that the URL accepts POSTed JSON.")
			return
		}
	}

	b.sendMessage(ctx, msg.Chat.ID, "✅ Webhook saved and test delivery acknowledged. New mail will be delivered there.")
}

// handleMonitor handles /monitor add|remove|list|clear
func (b *Bot) handleMonitor(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	ownerID := msg.From.ID

	parts := strings.Fields(msg.Text)
	if len(parts) < 2 {
		b.sendMessage(ctx, msg.Chat.ID, "Usage: <code>/monitor add|remove|list|clear [email]</code>")
		return
	}

	switch parts[1] {
	case "add":
		if len(parts) != 3 || !strings.Contains(parts[2], "@") {
			b.sendMessage(ctx, msg.Chat.ID, "Usage: <code>/monitor add sender@example.com</code>")
			return
		}
		err := b.db.AddFilter(ctx, ownerID, parts[2])
		if errors.Is(err, database.ErrAlreadyExists) {
			b.sendMessage(ctx, msg.Chat.ID, "That sender is already monitored")
			return
		}
		if err != nil {
			b.logger.Error("failed to add filter", "error", err)
			b.sendMessage(ctx, msg.Chat.ID, "Failed to add filter")
			return
		}
		b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("✅ Only mail from monitored senders will be forwarded.\nAdded: <code>%s</code>", parts[2]))

	case "remove":
		if len(parts) != 3 {
			b.sendMessage(ctx, msg.Chat.ID, "Usage: <code>/monitor remove sender@example.com</code>")
			return
		}
		err := b.db.RemoveFilter(ctx, ownerID, parts[2])
		if errors.Is(err, database.ErrNotFound) {
			b.sendMessage(ctx, msg.Chat.ID, "That sender is not monitored")
			return
		}
		if err != nil {
			b.logger.Error("failed to remove filter", "error", err)
			b.sendMessage(ctx, msg.Chat.ID, "Failed to remove filter")
			return
		}
		b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("Removed: <code>%s</code>", parts[2]))

	case "list":
		filters, err := b.db.ListFilters(ctx, ownerID)
		if err != nil {
			b.logger.Error("failed to list filters", "error", err)
			b.sendMessage(ctx, msg.Chat.ID, "Failed to list filters")
			return
		}
		if len(filters) == 0 {
			b.sendMessage(ctx, msg.Chat.ID, "No sender filters. Every message is forwarded.")
			return
		}
		var sb strings.Builder
		sb.WriteString("<b>Monitored senders</b>\n\n")
		for _, f := range filters {
			fmt.Fprintf(&sb, "• <code>%s</code>\n", f.SenderEmail)
		}
		b.sendMessage(ctx, msg.Chat.ID, sb.String())

	case "clear":
		removed, err := b.db.ClearFilters(ctx, ownerID)
		if err != nil {
			b.logger.Error("failed to clear filters", "error", err)
			b.sendMessage(ctx, msg.Chat.ID, "Failed to clear filters")
			return
		}
		b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("Removed %d filters. Every message is forwarded again.", removed))

	default:
		b.sendMessage(ctx, msg.Chat.ID, "Usage: <code>/monitor add|remove|list|clear [email]</code>")
	}
}

// handleStartMonitoring handles /start_monitoring command
func (b *Bot) handleStartMonitoring(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	ownerID := msg.From.ID

	if b.scheduler == nil {
		b.sendMessage(ctx, msg.Chat.ID, "Monitoring is not available")
		return
	}

	if _, err := b.db.GetWebhookURL(ctx, ownerID); errors.Is(err, database.ErrNotFound) {
		b.sendMessage(ctx, msg.Chat.ID, "Set a webhook first: <code>/webhook https://example.com/hook</code>")
		return
	} else if err != nil {
		b.logger.Error("failed to load webhook", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Failed to check webhook")
		return
	}

	accounts, err := b.db.GetActiveAccounts(ctx, ownerID)
	if err != nil {
		b.logger.Error("failed to load accounts", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Failed to load accounts")
		return
	}
	if len(accounts) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, "No validated accounts to monitor. Validate credentials first.")
		return
	}

	if !b.scheduler.Start(ownerID) {
		b.sendMessage(ctx, msg.Chat.ID, "Monitoring is already running")
		return
	}

	b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf("👁 Monitoring started for <b>%d</b> accounts", len(accounts)))
}

// handleStopMonitoring handles /stop_monitoring command
func (b *Bot) handleStopMonitoring(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message

	if b.scheduler == nil || !b.scheduler.Stop(msg.From.ID) {
		b.sendMessage(ctx, msg.Chat.ID, "Monitoring is not running")
		return
	}

	b.sendMessage(ctx, msg.Chat.ID, "Monitoring stopped")
}
