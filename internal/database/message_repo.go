package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mailsentry/mailsentry/pkg/models"
)

// CreateMessage inserts a message record. The UNIQUE(account_id, message_id)
// constraint is the dedup ledger: an insert that hits it returns
// ErrAlreadyExists and the caller must not emit the message again.
func (db *DB) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT OR IGNORE INTO messages (account_id, owner_id, message_id, subject, sender, sender_name, recipient, received_at, body_text, body_html, forwarded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		msg.AccountID,
		msg.OwnerID,
		msg.MessageID,
		msg.Subject,
		msg.Sender,
		msg.SenderName,
		msg.Recipient,
		msg.ReceivedAt,
		msg.BodyText,
		msg.BodyHTML,
		false,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	// Check if row was actually inserted (not ignored due to duplicate)
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	msg.ID = id
	msg.CreatedAt = now
	return nil
}

// HasMessage reports whether (account, message id) was already ingested
func (db *DB) HasMessage(ctx context.Context, accountID int64, messageID string) (bool, error) {
	var n int
	query := `SELECT COUNT(*) FROM messages WHERE account_id = ? AND message_id = ?`
	if err := db.GetContext(ctx, &n, query, accountID, messageID); err != nil {
		return false, fmt.Errorf("failed to check message: %w", err)
	}
	return n > 0, nil
}

// GetMessageByID returns a message by ID
func (db *DB) GetMessageByID(ctx context.Context, id int64) (*models.Message, error) {
	var msg models.Message
	query := `SELECT * FROM messages WHERE id = ?`
	err := db.GetContext(ctx, &msg, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

// MarkMessageForwarded sets the forwarded flag after a successful delivery
func (db *DB) MarkMessageForwarded(ctx context.Context, id int64) error {
	query := `UPDATE messages SET forwarded = true WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark message forwarded: %w", err)
	}
	return nil
}

// CountMessages returns the owner's total ingested message count
func (db *DB) CountMessages(ctx context.Context, ownerID int64) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM messages WHERE owner_id = ?`
	if err := db.GetContext(ctx, &n, query, ownerID); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}
