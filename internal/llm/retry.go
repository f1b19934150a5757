package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/promptlab/internal/domain"
	"github.com/ashureev/promptlab/internal/metrics"
)

// RetryPolicy is the single retry policy applied at the model boundary.
type RetryPolicy struct {
	// MaxAttempts counts the initial call; 1 disables retries.
	MaxAttempts int
	// Backoff is the base delay, doubled after each failed attempt.
	Backoff time.Duration
}

// DefaultRetryPolicy is one retry after a short fixed pause.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, Backoff: 200 * time.Millisecond}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	return p.Backoff * time.Duration(1<<attempt)
}

type retrying struct {
	next   Generator
	policy RetryPolicy
	m      *metrics.Metrics
}

// WithRetry retries retryable *Error failures from gen according to policy.
// Non-retryable errors and context cancellation return immediately.
func WithRetry(gen Generator, policy RetryPolicy, m *metrics.Metrics) Generator {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &retrying{next: gen, policy: policy, m: m}
}

func (g *retrying) Generate(ctx context.Context, messages []domain.Message, opts Options) (string, error) {
	var lastErr error
	for i := 0; i < g.policy.MaxAttempts; i++ {
		out, err := g.next.Generate(ctx, messages, opts)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !IsRetryable(err) || i == g.policy.MaxAttempts-1 {
			break
		}

		delay := g.policy.delay(i)
		slog.Debug("model call failed, retrying",
			"attempt", i+1,
			"kind", KindOf(err),
			"delay", delay)
		g.m.RecordRetry(string(KindOf(err)))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", newError("", KindUnknown, ctx.Err())
		case <-timer.C:
		}
	}
	return "", lastErr
}
