package checker

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
)

const securePort = 993

// ProbeResult is the typed outcome of one probe against one endpoint.
type ProbeResult struct {
	Class        Class
	Endpoint     Endpoint
	MessageCount int
	Detail       string
}

// Prober attempts a login/select/count handshake against one endpoint.
type Prober interface {
	Probe(ctx context.Context, address, password string, endpoint Endpoint) ProbeResult
}

// IMAPProber probes real IMAP servers with a bounded per-attempt timeout.
// Certificate verification is deliberately relaxed: the target servers are
// unknown third parties and self-signed or mismatched certs are common.
type IMAPProber struct {
	timeout time.Duration
	logger  *slog.Logger
}

// NewIMAPProber creates a prober with the given per-attempt timeout.
func NewIMAPProber(timeout time.Duration, logger *slog.Logger) *IMAPProber {
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	return &IMAPProber{
		timeout: timeout,
		logger:  logger.With("component", "prober"),
	}
}

// Probe connects, logs in, selects INBOX and counts messages.
func (p *IMAPProber) Probe(ctx context.Context, address, password string, endpoint Endpoint) ProbeResult {
	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	dialer := &net.Dialer{Timeout: time.Until(deadline)}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint.String())
	if err != nil {
		return ProbeResult{Class: EndpointUnreachable, Endpoint: endpoint, Detail: err.Error()}
	}
	_ = conn.SetDeadline(deadline)

	if endpoint.Port == securePort {
		tlsConn := tls.Client(conn, &tls.Config{
			ServerName:         endpoint.Host,
			InsecureSkipVerify: true,
		})
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			// A TLS-layer failure means "try the next candidate", same as an
			// unreachable endpoint.
			return ProbeResult{Class: EndpointUnreachable, Endpoint: endpoint, Detail: err.Error()}
		}
		conn = tlsConn
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return ProbeResult{Class: EndpointUnreachable, Endpoint: endpoint, Detail: err.Error()}
	}
	defer c.Logout()
	c.Timeout = p.timeout

	if err := c.Login(address, password); err != nil {
		return p.failure(endpoint, err)
	}

	mbox, err := c.Select("INBOX", true)
	if err != nil {
		return p.failure(endpoint, err)
	}

	p.logger.Debug("probe succeeded", "endpoint", endpoint.String(), "messages", mbox.Messages)
	return ProbeResult{
		Class:        Success,
		Endpoint:     endpoint,
		MessageCount: int(mbox.Messages),
	}
}

func (p *IMAPProber) failure(endpoint Endpoint, err error) ProbeResult {
	return ProbeResult{
		Class:    ClassifyError(err),
		Endpoint: endpoint,
		Detail:   err.Error(),
	}
}
