// Package llm wraps the outbound chat-completion providers behind one
// Generator contract: a typed *Error on failure, never an error string
// disguised as a reply.
package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/promptlab/internal/domain"
	"github.com/ashureev/promptlab/internal/metrics"
)

// DefaultSystemPrompt is prepended when a request carries no system message.
const DefaultSystemPrompt = "You are a helpful assistant."

// Options tunes a single generation call.
type Options struct {
	// MaxTokens overrides the provider default when > 0.
	MaxTokens int
}

// Generator produces a model reply for an ordered message list.
type Generator interface {
	Generate(ctx context.Context, messages []domain.Message, opts Options) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, messages []domain.Message, opts Options) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, messages []domain.Message, opts Options) (string, error) {
	return f(ctx, messages, opts)
}

// Prompt sends a single user prompt with the default system message.
func Prompt(ctx context.Context, gen Generator, prompt string, opts Options) (string, error) {
	return gen.Generate(ctx, []domain.Message{
		domain.SystemMessage(DefaultSystemPrompt),
		domain.UserMessage(prompt),
	}, opts)
}

// withDefaultSystem returns messages with a leading default system message
// when none is present. The input slice is not modified.
func withDefaultSystem(messages []domain.Message) []domain.Message {
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			return messages
		}
	}
	out := make([]domain.Message, 0, len(messages)+1)
	out = append(out, domain.SystemMessage(DefaultSystemPrompt))
	return append(out, messages...)
}

type instrumented struct {
	next     Generator
	provider string
	m        *metrics.Metrics
	logger   *slog.Logger
}

// WithMetrics records latency and outcome of every call made through gen.
func WithMetrics(gen Generator, provider string, m *metrics.Metrics, logger *slog.Logger) Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &instrumented{next: gen, provider: provider, m: m, logger: logger}
}

func (g *instrumented) Generate(ctx context.Context, messages []domain.Message, opts Options) (string, error) {
	start := time.Now()
	out, err := g.next.Generate(ctx, messages, opts)
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
		g.logger.Warn("model call failed", "provider", g.provider, "kind", outcome, "duration", elapsed, "error", err)
	} else {
		g.logger.Debug("model call completed", "provider", g.provider, "messages", len(messages), "duration", elapsed, "response_len", len(out))
	}
	g.m.RecordModelCall(g.provider, outcome, elapsed)
	return out, err
}
