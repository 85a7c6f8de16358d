package models

import "time"

// Message represents an ingested mailbox message. The natural key is
// (account_id, message_id); rows are immutable except the Forwarded flag.
type Message struct {
	ID         int64     `db:"id"`
	AccountID  int64     `db:"account_id"`
	OwnerID    int64     `db:"owner_id"`
	MessageID  string    `db:"message_id"` // provider Message-ID header
	Subject    string    `db:"subject"`
	Sender     string    `db:"sender"`
	SenderName string    `db:"sender_name"`
	Recipient  string    `db:"recipient"`
	ReceivedAt time.Time `db:"received_at"`
	BodyText   string    `db:"body_text"`
	BodyHTML   string    `db:"body_html"`
	Forwarded  bool      `db:"forwarded"`
	CreatedAt  time.Time `db:"created_at"`
}

// SenderDisplay formats the sender for outgoing events, preferring
// "Display Name <address>" when a name is present.
func (m *Message) SenderDisplay() string {
	if m.SenderName != "" {
		return m.SenderName + " <" + m.Sender + ">"
	}
	return m.Sender
}
