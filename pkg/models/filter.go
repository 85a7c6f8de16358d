package models

import "time"

// SenderFilter is one entry of an owner's sender allow-list. An owner with
// zero active entries monitors all senders.
type SenderFilter struct {
	ID          int64     `db:"id"`
	OwnerID     int64     `db:"owner_id"`
	SenderEmail string    `db:"sender_email"`
	IsActive    bool      `db:"is_active"`
	CreatedAt   time.Time `db:"created_at"`
}

// Webhook is an owner's forwarding sink. One active URL per owner; setting a
// new one replaces the previous.
type Webhook struct {
	ID        int64     `db:"id"`
	OwnerID   int64     `db:"owner_id"`
	URL       string    `db:"url"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}
