package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/promptlab/internal/domain"
)

// DeepseekBaseURL is the OpenAI-compatible Deepseek endpoint.
const DeepseekBaseURL = "https://api.deepseek.com"

// OpenAIConfig configures an OpenAI-compatible chat-completions client.
type OpenAIConfig struct {
	Provider     string // label used in errors and metrics
	APIKey       string
	Organization string
	BaseURL      string
	Model        string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
}

// OpenAIClient implements Generator for OpenAI-compatible APIs.
type OpenAIClient struct {
	cfg        OpenAIConfig
	httpClient *http.Client
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAIClient creates a chat-completions client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Generate sends messages to /chat/completions and returns the first choice.
func (c *OpenAIClient) Generate(ctx context.Context, messages []domain.Message, opts Options) (string, error) {
	if c.cfg.APIKey == "" {
		return "", newError(c.cfg.Provider, KindAuth, errors.New("API key not configured"))
	}
	if len(messages) == 0 {
		return "", newError(c.cfg.Provider, KindInvalidRequest, errors.New("no messages"))
	}

	maxTokens := c.cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	msgs := withDefaultSystem(messages)
	reqBody := openAIRequest{
		Model:       c.cfg.Model,
		Messages:    make([]openAIMessage, 0, len(msgs)),
		MaxTokens:   maxTokens,
		Temperature: c.cfg.Temperature,
	}
	for _, m := range msgs {
		reqBody.Messages = append(reqBody.Messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", newError(c.cfg.Provider, KindInvalidRequest, fmt.Errorf("marshal request: %w", err))
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", newError(c.cfg.Provider, KindInvalidRequest, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", c.cfg.Organization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", newError(c.cfg.Provider, kindForTransport(err), fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", newError(c.cfg.Provider, KindUnavailable, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", newError(c.cfg.Provider, kindForStatus(resp.StatusCode),
			fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", newError(c.cfg.Provider, KindUnknown, fmt.Errorf("parse response: %w", err))
	}
	if parsed.Error != nil {
		return "", newError(c.cfg.Provider, KindUnknown, fmt.Errorf("API error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", newError(c.cfg.Provider, KindEmpty, errors.New("no completion returned"))
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
