package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/promptlab/internal/domain"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// GeminiClient implements Generator using the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create GenAI client: %w", err)
	}

	return &GeminiClient{client: client, cfg: cfg}, nil
}

// Generate maps system messages to the system instruction and the remaining
// turns to user/model contents, preserving order.
func (g *GeminiClient) Generate(ctx context.Context, messages []domain.Message, opts Options) (string, error) {
	if len(messages) == 0 {
		return "", newError("gemini", KindInvalidRequest, errors.New("no messages"))
	}

	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range withDefaultSystem(messages) {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return "", newError("gemini", KindInvalidRequest, errors.New("no user or assistant turns"))
	}

	maxTokens := g.cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	temp := float32(g.cfg.Temperature)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser),
		Temperature:       &temp,
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens) //nolint:gosec // bounded by config
	}

	res, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, cfg)
	if err != nil {
		return "", newError("gemini", classifyGeminiError(err), fmt.Errorf("generate content: %w", err))
	}

	text := strings.TrimSpace(res.Text())
	if text == "" {
		return "", newError("gemini", KindEmpty, errors.New("gemini returned empty text"))
	}
	return text, nil
}

func classifyGeminiError(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "429"):
		return KindRateLimit
	case strings.Contains(msg, "UNAUTHENTICATED") || strings.Contains(msg, "PERMISSION_DENIED") ||
		strings.Contains(msg, "API key not valid"):
		return KindAuth
	case strings.Contains(msg, "INVALID_ARGUMENT"):
		return KindInvalidRequest
	default:
		return KindUnavailable
	}
}
