package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/promptlab/internal/config"
	"github.com/ashureev/promptlab/internal/metrics"
)

// New builds the configured provider wrapped with metrics and the declared
// retry policy. m may be nil.
func New(ctx context.Context, cfg config.LLMConfig, m *metrics.Metrics, logger *slog.Logger) (Generator, error) {
	var base Generator
	switch cfg.Provider {
	case config.ProviderOpenAI:
		base = NewOpenAIClient(OpenAIConfig{
			Provider:     config.ProviderOpenAI,
			APIKey:       cfg.OpenAIAPIKey,
			Organization: cfg.OpenAIOrg,
			BaseURL:      cfg.OpenAIBaseURL,
			Model:        cfg.ModelName,
			MaxTokens:    cfg.MaxTokens,
			Temperature:  cfg.Temperature,
			Timeout:      cfg.Timeout,
		})
	case config.ProviderDeepseek:
		base = NewOpenAIClient(OpenAIConfig{
			Provider:    config.ProviderDeepseek,
			APIKey:      cfg.DeepseekAPIKey,
			BaseURL:     DeepseekBaseURL,
			Model:       cfg.DeepseekModel,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	case config.ProviderGemini:
		g, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			Model:       cfg.GeminiModel,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.GeminiTemperature,
		})
		if err != nil {
			return nil, err
		}
		base = g
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}

	gen := WithMetrics(base, cfg.Provider, m, logger)
	return WithRetry(gen, RetryPolicy{MaxAttempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}, m), nil
}
