package forward

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const translateInputLimit = 2000

// Translator converts message text to the target language via the free
// translate API. Every failure degrades to the original text; translation
// never blocks delivery.
type Translator struct {
	baseURL    string
	targetLang string
	client     *http.Client
	logger     *slog.Logger
}

// TranslationResult carries the translated text and the detected source
// language. Translated is false when the text came back unchanged.
type TranslationResult struct {
	Text       string
	SourceLang string
	Translated bool
}

// NewTranslator creates a translator against the given endpoint.
func NewTranslator(baseURL, targetLang string, timeout time.Duration, logger *slog.Logger) *Translator {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Translator{
		baseURL:    baseURL,
		targetLang: targetLang,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With("component", "translator"),
	}
}

type translateResponse struct {
	SourceLanguage  string `json:"source-language"`
	DestinationText string `json:"destination-text"`
}

// Translate returns the text in the target language. Input beyond the API
// limit is truncated before the request. On any error the original text is
// returned with Translated false.
func (t *Translator) Translate(ctx context.Context, text string) TranslationResult {
	original := TranslationResult{Text: text, SourceLang: t.targetLang}
	if strings.TrimSpace(text) == "" {
		return original
	}

	input := text
	if len(input) > translateInputLimit {
		input = input[:translateInputLimit]
	}

	query := url.Values{}
	query.Set("dl", t.targetLang)
	query.Set("text", input)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		t.logger.Warn("translation request build failed", "error", err)
		return original
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Warn("translation request failed", "error", err)
		return original
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.logger.Warn("translation rejected", "status", resp.StatusCode)
		return original
	}

	var parsed translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.logger.Warn("translation response malformed", "error", err)
		return original
	}
	if parsed.DestinationText == "" {
		return original
	}

	source := strings.ToLower(parsed.SourceLanguage)
	if source == "" || source == strings.ToLower(t.targetLang) {
		// Already in the target language, keep the original untouched.
		return original
	}

	return TranslationResult{
		Text:       parsed.DestinationText,
		SourceLang: source,
		Translated: true,
	}
}

// Annotate prefixes translated text with its source language so the reader
// knows the original was in another language.
func (r TranslationResult) Annotate() string {
	if !r.Translated {
		return r.Text
	}
	return fmt.Sprintf("[Auto-translated from %s]\n%s", strings.ToUpper(r.SourceLang), r.Text)
}
