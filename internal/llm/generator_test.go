package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/docchat/internal/config"
	"github.com/hyperjump/docchat/internal/models"
)

var testMessages = []models.ChatMessage{
	{Role: models.RoleSystem, Content: "Answer from context."},
	{Role: models.RoleUser, Content: "Here is the context"},
	{Role: models.RoleUser, Content: "Question: what color is the sky?"},
}

func TestOllamaGenerator_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Stream {
			t.Error("request should not stream")
		}
		if len(req.Messages) != 3 || req.Messages[0].Role != models.RoleSystem {
			t.Errorf("messages not forwarded: %+v", req.Messages)
		}
		if req.Options["temperature"] != float64(0) {
			t.Errorf("temperature option = %v", req.Options["temperature"])
		}
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{Message: models.ChatMessage{Role: "assistant", Content: " The sky is blue. "}})
	}))
	defer srv.Close()

	zero := 0.0
	g := NewOllamaGenerator(srv.URL, "llama3.2", &zero, 5*time.Second)
	got, err := g.Complete(context.Background(), testMessages)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != " The sky is blue. " {
		t.Errorf("reply not returned verbatim: %q", got)
	}
	if g.Model() != "ollama:llama3.2" {
		t.Errorf("Model = %s", g.Model())
	}
}

func TestOllamaGenerator_Errors(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		},
		"error field": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
		},
		"empty reply": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"  "}}`))
		},
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := NewOllamaGenerator(srv.URL, "m", nil, time.Second).Complete(context.Background(), testMessages)
			if !errors.Is(err, ErrGeneration) {
				t.Errorf("error = %v, want ErrGeneration", err)
			}
		})
	}
}

func TestGeminiGenerator_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "models/gemini-2.0-flash:generateContent") {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":404,"message":"model not found"}}`))
			return
		}
		var req struct {
			Contents []struct {
				Role  string `json:"role"`
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
			SystemInstruction struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(req.Contents) != 2 || req.Contents[0].Role != "user" {
			t.Errorf("contents = %+v", req.Contents)
		}
		if len(req.SystemInstruction.Parts) != 1 || req.SystemInstruction.Parts[0].Text != "Answer from context." {
			t.Errorf("system instruction = %+v", req.SystemInstruction)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"The sky "},{"text":"is blue.\n"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	g, err := NewGeminiGenerator(ctx, "gemini-2.0-flash", nil, "k", srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	got, err := g.Complete(ctx, testMessages)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "The sky is blue.\n" {
		t.Errorf("reply not returned verbatim: %q", got)
	}

	bad, err := NewGeminiGenerator(ctx, "unknown", nil, "k", srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bad.Complete(ctx, testMessages); !errors.Is(err, ErrGeneration) {
		t.Errorf("error = %v, want ErrGeneration", err)
	}
}

func TestGeminiGenerator_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	g, err := NewGeminiGenerator(ctx, "gemini-2.0-flash", nil, "k", srv.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	_, err = g.Complete(ctx, testMessages)
	if !errors.Is(err, ErrGeneration) || !strings.Contains(err.Error(), "SAFETY") {
		t.Errorf("error = %v", err)
	}
}

type stubGenerator struct{ calls int }

func (s *stubGenerator) Complete(ctx context.Context, _ []models.ChatMessage) (string, error) {
	s.calls++
	return "ok", nil
}

func (s *stubGenerator) Model() string { return "stub" }

func TestRateLimitedGenerator(t *testing.T) {
	stub := &stubGenerator{}
	g := NewRateLimitedGenerator(stub, 0.001, 1)
	if _, err := g.Complete(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := g.Complete(ctx, nil); !errors.Is(err, ErrGeneration) {
		t.Errorf("error = %v, want ErrGeneration", err)
	}
	if stub.calls != 1 {
		t.Errorf("calls = %d, want 1", stub.calls)
	}
	if g.Model() != "stub" {
		t.Errorf("Model = %s", g.Model())
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	g, err := New(ctx, &config.GenerationConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "llama3.2", RequestsPerSecond: 2}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.(*RateLimitedGenerator); !ok {
		t.Errorf("expected rate limited generator, got %T", g)
	}
	if _, err := New(ctx, &config.GenerationConfig{Provider: "gemini", APIKeyEnv: "DOCCHAT_UNSET_KEY_FOR_TEST"}, nil); err == nil {
		t.Error("expected error for missing key")
	}
	if _, err := New(ctx, &config.GenerationConfig{Provider: "openai"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}
