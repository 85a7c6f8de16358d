package models

import (
	"strings"
	"time"
)

// Account status values. An account starts pending and is moved to exactly
// one terminal status by a validation run.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusFailed    = "failed"
	StatusTwoFactor = "2fa"
)

// Account represents one third-party mailbox credential being validated
// and monitored on behalf of an owner.
type Account struct {
	ID            int64      `db:"id"`
	OwnerID       int64      `db:"owner_id"`
	Email         string     `db:"email"`
	Password      string     `db:"password"`
	IMAPHost      string     `db:"imap_host"` // sticky: updated when a fallback endpoint works
	IMAPPort      int        `db:"imap_port"`
	Status        string     `db:"status"`
	LastCheck     *time.Time `db:"last_check"`
	TotalMessages int        `db:"total_messages"`
	ErrorMessage  string     `db:"error_message"`
	CreatedAt     time.Time  `db:"created_at"`
}

// Domain returns the lowercased domain part of the account address.
func (a *Account) Domain() string {
	_, domain, ok := strings.Cut(a.Email, "@")
	if !ok {
		return ""
	}
	return strings.ToLower(domain)
}
