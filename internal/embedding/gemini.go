package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/docchat/pkg/utils"
	"google.golang.org/genai"
)

// maxGeminiBatch is the largest number of texts accepted by one batchEmbedContents call.
const maxGeminiBatch = 100

// GeminiEmbedder embeds text with the Gemini API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGeminiEmbedder creates a Gemini embedder for model (e.g. "embedding-001") that
// expects vectors of the given dimensions. An empty baseURL uses the public endpoint.
func NewGeminiEmbedder(ctx context.Context, model string, dimensions int, apiKey, baseURL string) (*GeminiEmbedder, error) {
	client, err := newGeminiClient(ctx, apiKey, baseURL)
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{client: client, model: geminiModelName(model), dimensions: dimensions}, nil
}

func newGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
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
	return client, nil
}

// Embed returns the embedding of text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in groups of at most 100.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxGeminiBatch {
		end := min(start+maxGeminiBatch, len(texts))
		vecs, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *GeminiEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: %w", ErrEmbedding, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbedding, len(resp.Embeddings), len(texts))
	}
	out := make([][]float32, 0, len(texts))
	for _, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("%w: empty embedding in response", ErrEmbedding)
		}
		v, err := e.convert(emb.Values)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// convert validates values and scales them to unit length.
func (e *GeminiEmbedder) convert(values []float32) ([]float32, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrEmbedding)
	}
	if e.dimensions > 0 && len(values) != e.dimensions {
		return nil, fmt.Errorf("%w: model returned %d dimensions, configured %d", ErrEmbedding, len(values), e.dimensions)
	}
	v := make([]float32, len(values))
	copy(v, values)
	utils.NormalizeL2(v)
	return v, nil
}

// Dimensions returns the configured embedding dimension.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the model resource name.
func (e *GeminiEmbedder) Model() string {
	return e.model
}

// Close is a no-op; the API client holds no resources.
func (e *GeminiEmbedder) Close() error {
	return nil
}

// geminiModelName returns model as an API resource name ("models/<id>").
func geminiModelName(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}
