package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetWebhook sets the owner's sink URL, replacing any previous one
func (db *DB) SetWebhook(ctx context.Context, ownerID int64, url string) error {
	query := `INSERT OR REPLACE INTO webhooks (owner_id, url, is_active) VALUES (?, ?, true)`
	if _, err := db.ExecContext(ctx, query, ownerID, url); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

// GetWebhookURL returns the owner's active sink URL
func (db *DB) GetWebhookURL(ctx context.Context, ownerID int64) (string, error) {
	var url string
	query := `SELECT url FROM webhooks WHERE owner_id = ? AND is_active = true`
	err := db.GetContext(ctx, &url, query, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get webhook: %w", err)
	}
	return url, nil
}
