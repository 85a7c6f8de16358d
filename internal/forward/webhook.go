package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mailsentry/mailsentry/internal/database"
	"github.com/mailsentry/mailsentry/pkg/models"
)

const previewLimit = 500

// Store is what the webhook sink needs from persistence.
type Store interface {
	GetWebhookURL(ctx context.Context, ownerID int64) (string, error)
	FilterAllows(ctx context.Context, ownerID int64, sender string) (bool, error)
	MarkMessageForwarded(ctx context.Context, messageID int64) error
}

// WebhookForwarder delivers messages to the owner's registered webhook as
// embed-style JSON events. Delivery is best effort and at most once.
type WebhookForwarder struct {
	store      Store
	translator *Translator
	client     *http.Client
	logger     *slog.Logger
}

// NewWebhookForwarder creates a webhook sink. translator may be nil to
// forward untranslated text.
func NewWebhookForwarder(store Store, translator *Translator, timeout time.Duration, logger *slog.Logger) *WebhookForwarder {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookForwarder{
		store:      store,
		translator: translator,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With("component", "webhook"),
	}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Color       int          `json:"color"`
	Fields      []embedField `json:"fields"`
	Timestamp   string       `json:"timestamp"`
}

type webhookEvent struct {
	Embeds []embed `json:"embeds"`
}

// Forward translates and posts one message to the owner's webhook. Owners
// without a webhook are a silent no-op. Only an acknowledged delivery marks
// the message forwarded; a dropped delivery is never retried.
func (f *WebhookForwarder) Forward(ctx context.Context, ownerID int64, msg *models.Message) error {
	webhookURL, err := f.store.GetWebhookURL(ctx, ownerID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load webhook: %w", err)
	}

	// Filters may have changed since the message was admitted, re-check at
	// delivery time.
	allowed, err := f.store.FilterAllows(ctx, ownerID, msg.Sender)
	if err != nil {
		return fmt.Errorf("check filter: %w", err)
	}
	if !allowed {
		return nil
	}

	payload, err := json.Marshal(f.buildEvent(ctx, msg))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		f.logger.Warn("webhook delivery rejected",
			"owner_id", ownerID,
			"message_id", msg.MessageID,
			"status", resp.StatusCode,
		)
		return nil
	}

	if err := f.store.MarkMessageForwarded(ctx, msg.ID); err != nil {
		return fmt.Errorf("mark forwarded: %w", err)
	}

	f.logger.Info("message forwarded",
		"owner_id", ownerID,
		"account", msg.Recipient,
		"sender", msg.Sender,
	)
	return nil
}

// Ping posts a minimal event to the URL so the owner learns right away
// whether the sink accepts deliveries.
func (f *WebhookForwarder) Ping(ctx context.Context, webhookURL string) error {
	payload, err := json.Marshal(webhookEvent{
		Embeds: []embed{{
			Title:       "MailSentry connected",
			Description: "This webhook will receive forwarded mail.",
			Color:       0x2ecc71,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (f *WebhookForwarder) buildEvent(ctx context.Context, msg *models.Message) webhookEvent {
	subject := msg.Subject
	preview := msg.BodyText
	if f.translator != nil {
		subject = f.translator.Translate(ctx, subject).Text
		preview = f.translator.Translate(ctx, preview).Annotate()
	}
	if len(preview) > previewLimit {
		preview = preview[:previewLimit] + "..."
	}
	if preview == "" {
		preview = "(no text content)"
	}
	if subject == "" {
		subject = "(no subject)"
	}

	return webhookEvent{
		Embeds: []embed{{
			Title:       subject,
			Description: preview,
			Color:       0x3498db,
			Fields: []embedField{
				{Name: "Account", Value: msg.Recipient, Inline: true},
				{Name: "From", Value: msg.SenderDisplay(), Inline: true},
				{Name: "Received", Value: msg.ReceivedAt.Format(time.RFC1123), Inline: false},
			},
			Timestamp: msg.ReceivedAt.UTC().Format(time.RFC3339),
		}},
	}
}
