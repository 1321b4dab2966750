package vertex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/entity"
)

const systemPrompt = "You read scanned freight bills of lading and return the pickup and ship-to addresses as JSON."

const userPrompt = `Read the attached bill of lading. Return one JSON object with two keys,
"pickup" and "ship_to". Each value is an object with the keys "company", "address",
"city", "state" and "zip". "address" is the street line only. "state" is the two-letter
code. Use "" for anything you cannot read. Do not add any other text.`

// generator is the part of *genai.GenerativeModel the fallback uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Fallback asks a Gemini model for the address blocks of a document.
type Fallback struct {
	model  generator
	client *genai.Client
	logger *slog.Logger
}

// New connects to Vertex AI. modelName defaults to gemini-1.5-pro.
func New(ctx context.Context, projectID, region, modelName string, logger *slog.Logger) (*Fallback, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("vertex fallback: projectID and region cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	model := client.GenerativeModel(modelName)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	}
	return &Fallback{model: model, client: client, logger: logger}, nil
}

func (f *Fallback) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *Fallback) Fragments(ctx context.Context, doc entity.Document) (map[constants.StopRole]entity.AddressFragment, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", doc.Name, err)
	}
	resp, err := f.model.GenerateContent(ctx, genai.Blob{MIMEType: "application/pdf", Data: data}, genai.Text(userPrompt))
	if err != nil {
		f.logger.Error("vertex fallback call failed", "file", doc.Name, "error", err)
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	raw := responseText(resp)
	if raw == "" {
		return nil, fmt.Errorf("gemini returned no content for %s", doc.Name)
	}
	frags, err := decodeFragments(raw)
	if err != nil {
		f.logger.Warn("vertex fallback returned unreadable json", "file", doc.Name, "error", err)
		return nil, err
	}
	f.logger.Info("vertex fallback ok", "file", doc.Name, "roles", len(frags))
	return frags, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
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
		Address: strings.TrimSpace(w.Address),
		City:    strings.ToUpper(strings.TrimSpace(w.City)),
		State:   strings.ToUpper(strings.TrimSpace(w.State)),
		Zip:     strings.TrimSpace(w.Zip),
	}
}

func decodeFragments(raw string) (map[constants.StopRole]entity.AddressFragment, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")
	var body struct {
		Pickup wireAddress `json:"pickup"`
		ShipTo wireAddress `json:"ship_to"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &body); err != nil {
		return nil, fmt.Errorf("decode gemini fragments: %w", err)
	}
	out := make(map[constants.StopRole]entity.AddressFragment)
	if f := body.Pickup.fragment(); !f.Empty() {
		out[constants.Pickup] = f
	}
	if f := body.ShipTo.fragment(); !f.Empty() {
		out[constants.Dropoff] = f
	}
	return out, nil
}
