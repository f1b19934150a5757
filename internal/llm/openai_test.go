package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/promptlab/internal/domain"
)

func TestOpenAIClientGenerate(t *testing.T) {
	t.Parallel()

	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("unexpected Authorization header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  a red cow \n"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-test", MaxTokens: 150})
	out, err := client.Generate(context.Background(), []domain.Message{domain.UserMessage("make it red")}, Options{MaxTokens: 42})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out != "a red cow" {
		t.Fatalf("expected trimmed reply, got %q", out)
	}
	if got.Model != "gpt-test" || got.MaxTokens != 42 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[0].Content != DefaultSystemPrompt {
		t.Fatalf("expected default system message to be prepended, got %+v", got.Messages)
	}
}

func TestOpenAIClientStatusKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusTooManyRequests, KindRateLimit},
		{http.StatusBadGateway, KindUnavailable},
		{http.StatusBadRequest, KindInvalidRequest},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":{"message":"nope"}}`, tt.status)
		}))

		client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
		_, err := client.Generate(context.Background(), []domain.Message{domain.UserMessage("hi")}, Options{})
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if kind := KindOf(err); kind != tt.want {
			t.Fatalf("status %d: expected kind %s, got %s", tt.status, tt.want, kind)
		}
	}
}

func TestOpenAIClientMissingKey(t *testing.T) {
	t.Parallel()

	client := NewOpenAIClient(OpenAIConfig{})
	_, err := client.Generate(context.Background(), []domain.Message{domain.UserMessage("hi")}, Options{})
	if KindOf(err) != KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestOpenAIClientEmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := client.Generate(context.Background(), []domain.Message{domain.UserMessage("hi")}, Options{})
	if KindOf(err) != KindEmpty {
		t.Fatalf("expected empty error, got %v", err)
	}
}
