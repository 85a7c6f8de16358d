package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mailsentry/mailsentry/pkg/models"
)

// CreateAccounts inserts a batch of pending accounts. Re-uploaded addresses
// are ignored, so uploads accumulate instead of replacing.
func (db *DB) CreateAccounts(ctx context.Context, accounts []*models.Account) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT OR IGNORE INTO accounts (owner_id, email, password, imap_host, imap_port, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	for _, account := range accounts {
		if _, err := tx.ExecContext(ctx, query,
			account.OwnerID,
			account.Email,
			account.Password,
			account.IMAPHost,
			account.IMAPPort,
			models.StatusPending,
			now,
		); err != nil {
			return fmt.Errorf("failed to create account %s: %w", account.Email, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit accounts: %w", err)
	}
	return nil
}

// GetAccountByID returns an account by ID
func (db *DB) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	var account models.Account
	query := `SELECT * FROM accounts WHERE id = ?`
	err := db.GetContext(ctx, &account, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// GetPendingAccounts returns the owner's accounts awaiting validation
func (db *DB) GetPendingAccounts(ctx context.Context, ownerID int64) ([]*models.Account, error) {
	var accounts []*models.Account
	query := `SELECT * FROM accounts WHERE owner_id = ? AND status = ?`
	err := db.SelectContext(ctx, &accounts, query, ownerID, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending accounts: %w", err)
	}
	return accounts, nil
}

// GetActiveAccounts returns the owner's validated accounts
func (db *DB) GetActiveAccounts(ctx context.Context, ownerID int64) ([]*models.Account, error) {
	var accounts []*models.Account
	query := `SELECT * FROM accounts WHERE owner_id = ? AND status = ? ORDER BY total_messages DESC`
	err := db.SelectContext(ctx, &accounts, query, ownerID, models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to get active accounts: %w", err)
	}
	return accounts, nil
}

// GetAccountsByStatus returns the owner's accounts with the given status
func (db *DB) GetAccountsByStatus(ctx context.Context, ownerID int64, status string) ([]*models.Account, error) {
	var accounts []*models.Account
	query := `SELECT * FROM accounts WHERE owner_id = ? AND status = ? ORDER BY email`
	err := db.SelectContext(ctx, &accounts, query, ownerID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s accounts: %w", status, err)
	}
	return accounts, nil
}

// ApplyProbeSuccess marks an account active and records its message count
func (db *DB) ApplyProbeSuccess(ctx context.Context, id int64, messageCount int) error {
	query := `
		UPDATE accounts
		SET status = ?, last_check = ?, total_messages = ?, error_message = ''
		WHERE id = ?
	`
	if _, err := db.ExecContext(ctx, query, models.StatusActive, time.Now(), messageCount, id); err != nil {
		return fmt.Errorf("failed to apply probe success: %w", err)
	}
	return nil
}

// ApplyProbeFailure marks an account failed or two-factor with the error text
func (db *DB) ApplyProbeFailure(ctx context.Context, id int64, status, errorMessage string) error {
	query := `
		UPDATE accounts
		SET status = ?, last_check = ?, error_message = ?
		WHERE id = ?
	`
	if _, err := db.ExecContext(ctx, query, status, time.Now(), errorMessage, id); err != nil {
		return fmt.Errorf("failed to apply probe failure: %w", err)
	}
	return nil
}

// UpdateAccountEndpoint records the endpoint that actually worked so future
// polls skip the failed candidates.
func (db *DB) UpdateAccountEndpoint(ctx context.Context, id int64, host string, port int) error {
	query := `UPDATE accounts SET imap_host = ?, imap_port = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, host, port, id); err != nil {
		return fmt.Errorf("failed to update account endpoint: %w", err)
	}
	return nil
}

// CountAccountsByStatus returns per-status account counts for an owner
func (db *DB) CountAccountsByStatus(ctx context.Context, ownerID int64) (map[string]int, error) {
	rows, err := db.QueryxContext(ctx,
		`SELECT status, COUNT(*) FROM accounts WHERE owner_id = ? GROUP BY status`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan account count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
