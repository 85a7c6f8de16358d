package monitor

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"

	"github.com/mailsentry/mailsentry/internal/database"
	"github.com/mailsentry/mailsentry/internal/parser"
	"github.com/mailsentry/mailsentry/pkg/models"
)

// MessageStore is the slice of persistence the fetcher needs. Inserting a
// message IS the dedup marker; *database.DB implements it.
type MessageStore interface {
	HasMessage(ctx context.Context, accountID int64, messageID string) (bool, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
}

// Fetcher retrieves recent messages from a validated account's mailbox.
type Fetcher interface {
	FetchNew(ctx context.Context, account *models.Account, window time.Duration) ([]*models.Message, error)
}

// IMAPFetcher fetches over IMAP using the account's stored sticky endpoint.
type IMAPFetcher struct {
	store      MessageStore
	htmlParser *parser.HTMLParser
	timeout    time.Duration
	limit      int
	logger     *slog.Logger
}

// NewIMAPFetcher creates a fetcher with the given per-operation timeout and
// per-poll message inspection limit.
func NewIMAPFetcher(store MessageStore, htmlParser *parser.HTMLParser, timeout time.Duration, limit int, logger *slog.Logger) *IMAPFetcher {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if limit <= 0 {
		limit = 10
	}
	return &IMAPFetcher{
		store:      store,
		htmlParser: htmlParser,
		timeout:    timeout,
		limit:      limit,
		logger:     logger.With("component", "fetcher"),
	}
}

// FetchNew connects to the account's mailbox, searches messages received
// within the window, inspects at most the newest few and returns those not
// seen before. Each returned message has already been inserted into the
// store, so a crash after this call can only drop a forward, never
// double-count a message.
func (f *IMAPFetcher) FetchNew(ctx context.Context, account *models.Account, window time.Duration) ([]*models.Message, error) {
	c, err := f.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = time.Now().Add(-window)
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search mailbox: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// Only the most recent matches, to bound per-poll latency.
	if len(ids) > f.limit {
		ids = ids[len(ids)-f.limit:]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(ids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	var fetched []*models.Message
	for msg := range messages {
		record, err := f.ingest(ctx, account, msg, section)
		if err != nil {
			// A single unparseable message never aborts the rest of the poll.
			f.logger.Warn("failed to ingest message", "uid", msg.Uid, "account_id", account.ID, "error", err)
			continue
		}
		if record != nil {
			fetched = append(fetched, record)
		}
	}

	if err := <-done; err != nil {
		return fetched, fmt.Errorf("failed to fetch: %w", err)
	}
	return fetched, nil
}

// connect dials the stored endpoint, TLS on the secure port with relaxed
// certificate verification, plaintext otherwise.
func (f *IMAPFetcher) connect(ctx context.Context, account *models.Account) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", account.IMAPHost, account.IMAPPort)
	deadline := time.Now().Add(f.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := &net.Dialer{Timeout: time.Until(deadline)}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	_ = conn.SetDeadline(deadline)

	if account.IMAPPort == 993 {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         account.IMAPHost,
			InsecureSkipVerify: true,
		})
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("tls handshake with %s failed: %w", addr, err)
		}
		conn = tlsConn
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}
	c.Timeout = f.timeout

	if err := c.Login(account.Email, account.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	return c, nil
}

// ingest parses one fetched message and inserts it. Returns (nil, nil) when
// the message was already ingested.
func (f *IMAPFetcher) ingest(ctx context.Context, account *models.Account, msg *imap.Message, section *imap.BodySectionName) (*models.Message, error) {
	record := &models.Message{
		AccountID:  account.ID,
		OwnerID:    account.OwnerID,
		Recipient:  account.Email,
		ReceivedAt: time.Now(),
	}

	bodyReader := msg.GetBody(section)
	if bodyReader == nil {
		return nil, errors.New("no body section returned")
	}

	mr, err := mail.CreateReader(bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}

	header := mr.Header
	record.Subject = parser.DecodeHeader(header.Get("Subject"))
	record.Sender, record.SenderName = parser.ParseSender(header.Get("From"))
	record.ReceivedAt = parser.ParseDate(header.Get("Date"), time.Now())
	record.MessageID = strings.Trim(header.Get("Message-Id"), "<> ")
	if record.MessageID == "" && msg.Envelope != nil {
		record.MessageID = strings.Trim(msg.Envelope.MessageId, "<> ")
	}
	if record.MessageID == "" {
		record.MessageID = fmt.Sprintf("uid-%d", msg.Uid)
	}

	// Already ingested: skip without re-reading the body.
	if seen, err := f.store.HasMessage(ctx, account.ID, record.MessageID); err != nil {
		return nil, err
	} else if seen {
		return nil, nil
	}

	f.readBody(mr, record)

	if err := f.store.CreateMessage(ctx, record); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			// A concurrent fetch won the insert race; the store's uniqueness
			// constraint keeps the ledger consistent.
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// readBody extracts the plain-text and HTML parts; when only HTML is present
// it is rendered to text.
func (f *IMAPFetcher) readBody(mr *mail.Reader, record *models.Message) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			f.logger.Debug("failed to read part", "error", err)
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(ct, "text/plain") && record.BodyText == "":
			record.BodyText = strings.TrimSpace(string(body))
		case strings.HasPrefix(ct, "text/html") && record.BodyHTML == "":
			record.BodyHTML = strings.TrimSpace(string(body))
		}
	}

	if record.BodyText == "" && record.BodyHTML != "" {
		text, err := f.htmlParser.Parse(record.BodyHTML)
		if err != nil {
			f.logger.Debug("failed to render html body", "error", err)
			return
		}
		record.BodyText = text
	}
}
