package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecodeHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain ascii", "Hello", "Hello"},
		{"utf-8 base64", "=?UTF-8?B?0J/RgNC40LLQtdGC?=", "Привет"},
		{"utf-8 quoted-printable", "=?utf-8?q?caf=C3=A9?=", "café"},
		{"iso-8859-1", "=?iso-8859-1?q?f=E9licitations?=", "félicitations"},
		{"malformed encoding passes through", "=?garbage?X?abc?=", "=?garbage?X?abc?="},
		{"surrounding space trimmed", "  plain  ", "plain"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeHeader(tt.in))
		})
	}
}

func TestParseSender(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		wantAddr string
		wantName string
	}{
		{"name and angle address", `Alice Example <alice@example.com>`, "alice@example.com", "Alice Example"},
		{"quoted name", `"Support, Team" <support@example.com>`, "support@example.com", "Support, Team"},
		{"bare address", "bob@example.com", "bob@example.com", ""},
		{"encoded name", "=?utf-8?q?Caf=C3=A9?= <cafe@example.com>", "cafe@example.com", "Café"},
		{"address buried in text", "on behalf of carol@example.com via relay", "carol@example.com", ""},
		{"unparseable", "not an address at all", "not an address at all", ""},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, name := ParseSender(tt.in)
			assert.Equal(t, tt.wantAddr, addr)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestParseDate(t *testing.T) {
	fallback := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("rfc 5322 date", func(t *testing.T) {
		got := ParseDate("Mon, 02 Jan 2006 15:04:05 -0700", fallback)
		assert.Equal(t, 2006, got.Year())
	})

	t.Run("garbage falls back", func(t *testing.T) {
		assert.Equal(t, fallback, ParseDate("yesterday-ish", fallback))
	})

	t.Run("empty falls back", func(t *testing.T) {
		assert.Equal(t, fallback, ParseDate("", fallback))
	})
}
