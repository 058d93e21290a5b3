package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/docchat/internal/models"
	"google.golang.org/genai"
)

// GeminiGenerator answers with the Gemini API.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature *float64
}

// NewGeminiGenerator creates a generator for model (e.g. "gemini-2.0-flash").
// A nil temperature leaves the model default. An empty baseURL uses the public endpoint.
func NewGeminiGenerator(ctx context.Context, model string, temperature *float64, apiKey, baseURL string) (*GeminiGenerator, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	return &GeminiGenerator{client: client, model: model, temperature: temperature}, nil
}

// Complete sends messages to generateContent. System messages become the system
// instruction; assistant messages are sent with the "model" role. The reply text
// is returned as the model produced it.
func (g *GeminiGenerator) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	var contents []*genai.Content
	var system []*genai.Part
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			system = append(system, &genai.Part{Text: m.Content})
		case models.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  string(genai.RoleModel),
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  string(genai.RoleUser),
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	cfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: system}
	}
	if g.temperature != nil {
		t := float32(*g.temperature)
		cfg.Temperature = &t
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %w", ErrGeneration, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: prompt blocked: %s", ErrGeneration, resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("%w: no candidates in response", ErrGeneration)
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	text := b.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty reply (finish reason %s)", ErrGeneration, resp.Candidates[0].FinishReason)
	}
	return text, nil
}

// Model returns the model resource name.
func (g *GeminiGenerator) Model() string {
	return g.model
}
