package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/mailsentry/mailsentry/internal/checker"
	appmodels "github.com/mailsentry/mailsentry/pkg/models"
)

// handleCredentialFile downloads an uploaded document and treats its
// contents as a credential batch
func (b *Bot) handleCredentialFile(ctx context.Context, msg *models.Message) {
	doc := msg.Document
	if doc.FileName != "" && !strings.HasSuffix(strings.ToLower(doc.FileName), ".txt") &&
		!strings.HasSuffix(strings.ToLower(doc.FileName), ".csv") {
		b.sendMessage(ctx, msg.Chat.ID, "Send credentials as a .txt or .csv file")
		return
	}

	data, err := b.downloadDocument(ctx, doc.FileID)
	if err != nil {
		b.logger.Error("failed to download credential file", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Failed to download the file")
		return
	}

	b.handleCredentialBatch(ctx, msg, string(data))
}

// handleCredentialBatch parses a credential batch, stores the accounts and
// kicks off a validation run
func (b *Bot) handleCredentialBatch(ctx context.Context, msg *models.Message, text string) {
	ownerID := msg.From.ID

	accounts := checker.ParseCredentials(ownerID, strings.Split(text, "\n"))
	if len(accounts) == 0 {
		b.sendMessage(ctx, msg.Chat.ID, "No valid credentials found. Expected one <code>email:password</code> per line.")
		return
	}

	run := b.registry.Begin(ownerID)
	if run == nil {
		b.sendMessage(ctx, msg.Chat.ID, "A validation run is already active. Use /stop to cancel it first.")
		return
	}

	if err := b.db.CreateAccounts(ctx, accounts); err != nil {
		b.registry.End(ownerID)
		b.logger.Error("failed to store accounts", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Failed to store the accounts")
		return
	}

	// Re-read pending accounts so duplicates from earlier batches are
	// picked up too and every account carries its database id.
	pending, err := b.db.GetPendingAccounts(ctx, ownerID)
	if err != nil {
		b.registry.End(ownerID)
		b.logger.Error("failed to load pending accounts", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, "Failed to load the accounts")
		return
	}
	if len(pending) == 0 {
		b.registry.End(ownerID)
		b.sendMessage(ctx, msg.Chat.ID, "All of those accounts were validated before. Use /results to download them.")
		return
	}

	progressMsg, err := b.sendMessage(ctx, msg.Chat.ID,
		fmt.Sprintf("🔍 Validating <b>%d</b> accounts...", len(pending)))
	if err != nil {
		b.registry.End(ownerID)
		b.logger.Error("failed to send progress message", "error", err)
		return
	}

	go b.runValidation(ctx, msg.Chat.ID, progressMsg.ID, run, pending)
}

// runValidation drives one validation run and keeps the progress message
// up to date. Runs on its own goroutine.
func (b *Bot) runValidation(ctx context.Context, chatID int64, progressMsgID int, run *checker.Run, accounts []*appmodels.Account) {
	ownerID := run.OwnerID
	defer b.registry.End(ownerID)

	onProgress := func(snap appmodels.ProgressSnapshot) {
		if err := b.editMessage(ctx, chatID, progressMsgID, formatProgress(snap)); err != nil {
			b.logger.Debug("failed to edit progress message", "error", err)
		}
	}

	err := b.engine.Validate(ctx, run, accounts, onProgress)
	snap := run.Snapshot()

	if err != nil {
		b.logger.Error("validation run failed", "owner_id", ownerID, "error", err)
		b.editMessage(ctx, chatID, progressMsgID, formatProgress(snap)+"\n\n⚠️ Run aborted by an internal error")
		return
	}

	b.editMessage(ctx, chatID, progressMsgID, formatSummary(snap))

	if snap.Successful > 0 {
		files, err := b.exporter.Results(ctx, ownerID)
		if err != nil {
			b.logger.Error("failed to build result files", "error", err)
			return
		}
		for _, file := range files {
			if err := b.sendDocument(ctx, chatID, file.Name, file.Data); err != nil {
				b.logger.Error("failed to send result file", "file", file.Name, "error", err)
			}
		}
	}
}

func formatProgress(snap appmodels.ProgressSnapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔍 <b>Validation in progress</b>\n\n")
	fmt.Fprintf(&sb, "Processed: %d/%d (%.1f%%)\n", snap.Processed, snap.Total, snap.Percent())
	fmt.Fprintf(&sb, "✅ Valid: %d\n", snap.Successful)
	fmt.Fprintf(&sb, "❌ Invalid: %d\n", snap.Failed)
	fmt.Fprintf(&sb, "🔐 2FA: %d\n", snap.TwoFactor)
	if snap.Throughput > 0 {
		fmt.Fprintf(&sb, "\n⚡ %.0f accounts/min", snap.Throughput)
		if snap.ETA > 0 {
			fmt.Fprintf(&sb, ", ~%s left", snap.ETA.Round(time.Second))
		}
	}
	if snap.Stopped {
		sb.WriteString("\n\n⏸ Stopping...")
	}
	return sb.String()
}

func formatSummary(snap appmodels.ProgressSnapshot) string {
	title := "🏁 <b>Validation finished</b>"
	if snap.Stopped {
		title = "⏹ <b>Validation stopped</b>"
	}
	var sb strings.Builder
	sb.WriteString(title + "\n\n")
	fmt.Fprintf(&sb, "Processed: %d/%d\n", snap.Processed, snap.Total)
	fmt.Fprintf(&sb, "✅ Valid: %d\n", snap.Successful)
	fmt.Fprintf(&sb, "❌ Invalid: %d\n", snap.Failed)
	fmt.Fprintf(&sb, "🔐 2FA: %d\n", snap.TwoFactor)
	fmt.Fprintf(&sb, "\n📈 Hit rate: %.1f%%\n", snap.HitRate())
	fmt.Fprintf(&sb, "⏱ Took %s", snap.Elapsed.Round(time.Second))
	return sb.String()
}
