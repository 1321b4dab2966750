// Package llm recovers stop addresses from extracted document text with an
// OpenAI-compatible chat completions API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/entity"
	"github.com/joseph-ayodele/order-intake/internal/httpjson"
)

// ErrNoText means the document carried no text to send.
var ErrNoText = errors.New("document has no extracted text")

// Config for the chat completions client.
type Config struct {
	APIKey      string // if empty, falls back to env OPENAI_API_KEY
	BaseURL     string // default https://api.openai.com/v1
	Model       string
	Temperature float32
	Timeout     time.Duration
	// MaxChars caps the document text sent per request. Default 12000.
	MaxChars int
}

// Fallback implements extract.AddressFallback over chat completions.
type Fallback struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewFallback(cfg Config, logger *slog.Logger) *Fallback {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 12000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

const systemPrompt = `You read freight bills of lading and return the pickup and ship-to address blocks.
Reply with one JSON object with the keys "pickup" and "ship_to". Each value has the keys
"company", "address", "city", "state" and "zip". "address" is the street line only and
"state" is the two-letter code. Use "" for anything the text does not show.`

func (f *Fallback) Fragments(ctx context.Context, doc entity.Document) (map[constants.StopRole]entity.AddressFragment, error) {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil, fmt.Errorf("%s: %w", doc.Name, ErrNoText)
	}
	if len(text) > f.cfg.MaxChars {
		text = text[:f.cfg.MaxChars]
	}
	start := time.Now()

	schemaJSON, _ := json.Marshal(BuildAddressJSONSchema())
	body := map[string]any{
		"model":           f.cfg.Model,
		"temperature":     f.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "system", "content": "JSON Schema:\n" + string(schemaJSON)},
			{"role": "user", "content": "Document " + doc.Name + ":\n\n" + text},
		},
	}
	headers := map[string]string{"Authorization": "Bearer " + f.cfg.APIKey}
	raw, status, err := httpjson.Do(ctx, f.http, httpjson.Request{
		URL:     strings.TrimRight(f.cfg.BaseURL, "/") + "/chat/completions",
		Body:    body,
		Headers: headers,
	}, f.logger.With("component", "llm"))
	if err != nil {
		f.logger.Error("llm.fallback.http_error", "file", doc.Name, "status", status, "error", err)
		return nil, fmt.Errorf("chat completions: %w", err)
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in chat response")
	}
	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))

	if err := ValidateAddressJSON(content); err != nil {
		cleaned, dropped, sErr := SanitizeOptional(content)
		if sErr != nil {
			return nil, fmt.Errorf("sanitize reply: %w", sErr)
		}
		if vErr := ValidateAddressJSON(cleaned); vErr != nil {
			f.logger.Error("llm.fallback.schema_validation_failed", "file", doc.Name, "error", vErr)
			return nil, fmt.Errorf("schema validation failed: %w", vErr)
		}
		f.logger.Warn("llm.fallback.sanitized", "file", doc.Name, "dropped", dropped)
		content = cleaned
	}

	var reply struct {
		Pickup wireAddress `json:"pickup"`
		ShipTo wireAddress `json:"ship_to"`
	}
	if err := json.Unmarshal(content, &reply); err != nil {
		return nil, fmt.Errorf("unmarshal fragments: %w", err)
	}
	out := make(map[constants.StopRole]entity.AddressFragment, 2)
	if fr := reply.Pickup.fragment(); !fr.Empty() {
		out[constants.Pickup] = fr
	}
	if fr := reply.ShipTo.fragment(); !fr.Empty() {
		out[constants.Dropoff] = fr
	}
	f.logger.Info("llm.fallback.ok", "file", doc.Name, "roles", len(out), "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

type wireAddress struct {
	Company string `json:"company"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
}

func (w wireAddress) fragment() entity.AddressFragment {
	return entity.AddressFragment{
		Company: strings.TrimSpace(w.Company),
		Address: strings.ToUpper(strings.TrimSpace(w.Address)),
		City:    strings.ToUpper(strings.TrimSpace(w.City)),
		State:   strings.ToUpper(strings.TrimSpace(w.State)),
		Zip:     strings.TrimSpace(w.Zip),
	}
}
