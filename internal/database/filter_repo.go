package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/mailsentry/mailsentry/pkg/models"
)

// FilterAllows reports whether messages from the sender should be forwarded.
// An owner with zero active filters monitors every sender; otherwise the
// sender must exactly match an active entry (case-insensitive).
func (db *DB) FilterAllows(ctx context.Context, ownerID int64, sender string) (bool, error) {
	var total int
	query := `SELECT COUNT(*) FROM monitor_filters WHERE owner_id = ? AND is_active = true`
	if err := db.GetContext(ctx, &total, query, ownerID); err != nil {
		return false, fmt.Errorf("failed to count filters: %w", err)
	}
	if total == 0 {
		return true, nil
	}

	var matched int
	query = `SELECT COUNT(*) FROM monitor_filters WHERE owner_id = ? AND sender_email = ? AND is_active = true`
	if err := db.GetContext(ctx, &matched, query, ownerID, strings.ToLower(sender)); err != nil {
		return false, fmt.Errorf("failed to match filter: %w", err)
	}
	return matched > 0, nil
}

// AddFilter adds a sender to the owner's allow-list
func (db *DB) AddFilter(ctx context.Context, ownerID int64, sender string) error {
	query := `INSERT OR IGNORE INTO monitor_filters (owner_id, sender_email, is_active) VALUES (?, ?, true)`
	result, err := db.ExecContext(ctx, query, ownerID, strings.ToLower(sender))
	if err != nil {
		return fmt.Errorf("failed to add filter: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// RemoveFilter removes a sender from the owner's allow-list
func (db *DB) RemoveFilter(ctx context.Context, ownerID int64, sender string) error {
	query := `DELETE FROM monitor_filters WHERE owner_id = ? AND sender_email = ?`
	result, err := db.ExecContext(ctx, query, ownerID, strings.ToLower(sender))
	if err != nil {
		return fmt.Errorf("failed to remove filter: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFilters returns the owner's active filter entries
func (db *DB) ListFilters(ctx context.Context, ownerID int64) ([]*models.SenderFilter, error) {
	var filters []*models.SenderFilter
	query := `SELECT * FROM monitor_filters WHERE owner_id = ? AND is_active = true ORDER BY sender_email`
	if err := db.SelectContext(ctx, &filters, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list filters: %w", err)
	}
	return filters, nil
}

// ClearFilters removes all of the owner's filters, returning to monitor-all
func (db *DB) ClearFilters(ctx context.Context, ownerID int64) (int, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM monitor_filters WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear filters: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}
