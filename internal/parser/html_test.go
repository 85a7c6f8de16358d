package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLParser(t *testing.T) {
	p := NewHTMLParser()

	t.Run("strips tags and keeps text", func(t *testing.T) {
		text, err := p.Parse(`<html><body><p>Hello <b>world</b></p></body></html>`)
		require.NoError(t, err)
		assert.Equal(t, "Hello world", text)
	})

	t.Run("drops scripts and styles", func(t *testing.T) {
		text, err := p.Parse(`<html><head><style>.x{color:red}</style></head><body><script>alert(1)</script><p>visible</p></body></html>`)
		require.NoError(t, err)
		assert.Equal(t, "visible", text)
	})

	t.Run("block elements become line breaks", func(t *testing.T) {
		text, err := p.Parse(`<div>first</div><div>second</div><p>third</p>`)
		require.NoError(t, err)
		assert.Equal(t, "first\nsecond\nthird", text)
	})

	t.Run("entities are unescaped", func(t *testing.T) {
		text, err := p.Parse(`<p>Tom &amp; Jerry &lt;3</p>`)
		require.NoError(t, err)
		assert.Equal(t, "Tom & Jerry <3", text)
	})

	t.Run("invisible unicode is removed", func(t *testing.T) {
		text, err := p.Parse("<p>ver​ify\ufeff code</p>")
		require.NoError(t, err)
		assert.Equal(t, "verify code", text)
	})

	t.Run("runs of blank lines collapse", func(t *testing.T) {
		text, err := p.Parse(`<p>a</p><br><br><br><br><p>b</p>`)
		require.NoError(t, err)
		assert.False(t, strings.Contains(text, "\n\n\n"))
	})

	t.Run("empty input", func(t *testing.T) {
		text, err := p.Parse("")
		require.NoError(t, err)
		assert.Equal(t, "", text)
	})
}
