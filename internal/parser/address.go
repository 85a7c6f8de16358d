package parser

import (
	"io"
	"mime"
	"net/mail"
	"regexp"
	"strings"
	"time"

	gomessage "github.com/emersion/go-message"
	htmlcharset "golang.org/x/net/html/charset"
)

func init() {
	// Let the MIME decoder understand the legacy charsets real mailboxes use.
	gomessage.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	}
}

var wordDecoder = mime.WordDecoder{
	CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
		return htmlcharset.NewReaderLabel(charset, input)
	},
}

// DecodeHeader decodes MIME encoded-words in a header value. It never fails:
// on any decode error the raw value is passed through, with invalid bytes
// kept as-is rather than raised.
func DecodeHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

var (
	angleAddrRegex = regexp.MustCompile(`<([^>]+)>`)
	bareAddrRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// ParseSender splits a From header into (address, display name). The header
// is decoded first, then matched as "Name <addr>", then as a bare address;
// if neither matches, the decoded string is returned as the address with an
// empty name.
func ParseSender(fromHeader string) (address, name string) {
	decoded := DecodeHeader(fromHeader)
	if decoded == "" {
		return "", ""
	}

	if addr, err := mail.ParseAddress(decoded); err == nil {
		return strings.TrimSpace(addr.Address), strings.TrimSpace(addr.Name)
	}

	if m := angleAddrRegex.FindStringSubmatch(decoded); m != nil {
		name := strings.TrimSpace(decoded[:strings.Index(decoded, "<")])
		name = strings.Trim(name, `"'`)
		return strings.TrimSpace(m[1]), strings.TrimSpace(name)
	}
	if m := bareAddrRegex.FindString(decoded); m != "" {
		return m, ""
	}
	return strings.TrimSpace(decoded), ""
}

// ParseDate parses a Date header, falling back to the given time when the
// header is missing or unparseable.
func ParseDate(dateHeader string, fallback time.Time) time.Time {
	dateHeader = strings.TrimSpace(dateHeader)
	if dateHeader == "" {
		return fallback
	}
	if t, err := mail.ParseDate(dateHeader); err == nil {
		return t
	}
	return fallback
}
