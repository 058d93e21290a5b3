package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/docchat/internal/models"
)

// OllamaGenerator answers with an Ollama server's /api/chat endpoint.
type OllamaGenerator struct {
	client      *http.Client
	baseURL     string
	model       string
	temperature *float64
	timeout     time.Duration
}

type ollamaChatRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
	Options  map[string]any       `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message models.ChatMessage `json:"message"`
	Error   string             `json:"error,omitempty"`
}

// NewOllamaGenerator creates a generator for model served at baseURL.
func NewOllamaGenerator(baseURL, model string, temperature *float64, timeout time.Duration) *OllamaGenerator {
	return &OllamaGenerator{
		client:      &http.Client{},
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: temperature,
		timeout:     timeout,
	}
}

// Complete sends messages as a non-streaming chat request.
func (g *OllamaGenerator) Complete(ctx context.Context, messages []models.ChatMessage) (string, error) {
	chat := ollamaChatRequest{Model: g.model, Messages: messages}
	if g.temperature != nil {
		chat.Options = map[string]any{"temperature": *g.temperature}
	}
	body, err := json.Marshal(chat)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %w", ErrGeneration, err)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", ErrGeneration, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %w", ErrGeneration, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrGeneration, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s: %s", ErrGeneration, resp.Status, strings.TrimSpace(string(raw)))
	}
	var parsed ollamaChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: parse response: %w", ErrGeneration, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrGeneration, parsed.Error)
	}
	text := parsed.Message.Content
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty reply", ErrGeneration)
	}
	return text, nil
}

// Model returns the Ollama model name.
func (g *OllamaGenerator) Model() string {
	return "ollama:" + g.model
}
