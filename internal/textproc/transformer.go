package textproc

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/promptlab/internal/domain"
	"github.com/ashureev/promptlab/internal/llm"
	"github.com/ashureev/promptlab/internal/session"
)

// Transformer tracks a running piece of text per session and applies
// requested edits to it.
type Transformer struct {
	base
}

// NewTransformer creates the transformation demo over its own session store.
func NewTransformer(gen llm.Generator, store session.Store, opts Options) *Transformer {
	return &Transformer{base: newBase(DemoTransform, gen, store, opts)}
}

// CurrentText returns the most recent assistant reply that is not a request
// for input.
func CurrentText(state *domain.SessionState) (string, bool) {
	if state == nil {
		return "", false
	}
	return state.LastAssistant(func(content string) bool {
		return strings.TrimSpace(content) != "" && !IsClarification(content)
	})
}

// Process handles one turn. With no established text the single-step prompt
// decides between echoing content and asking for it. Otherwise intent
// analysis and execution run as separate calls, falling back to the
// single-step prompt if either fails.
func (t *Transformer) Process(ctx context.Context, text, sessionID string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return t.finish(sessionID, "invalid_input", Result{Response: "Please provide some text to work with.", SessionID: sessionID}), nil
	}
	t.record(sessionID, "inbound", "user_text", text, false)

	unlock := t.locks.Lock(sessionID)
	defer unlock()

	state, err := t.store.Get(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("load session: %w", err)
	}

	path := "single_step"
	degraded := false
	var reply string

	if current, ok := CurrentText(state); ok {
		reply, err = t.twoStep(ctx, current, text)
		if err == nil {
			path = "two_step"
		} else {
			t.logger.Warn("two-step transformation failed, falling back",
				"session_id", sessionID,
				"kind", llm.KindOf(err),
				"error", err)
			path = "fallback"
			degraded = true
		}
	}

	if path != "two_step" {
		reply, err = t.gen.Generate(ctx, session.Assemble(state, TransformPrompt, text), llm.Options{})
		if err != nil {
			t.logger.Error("transformation model call failed", "session_id", sessionID, "error", err)
			return t.finish(sessionID, "error", t.failure(sessionID, err)), nil
		}
	}

	if IsClarification(reply) {
		reply = ClarificationRequest
	}
	if err := t.commit(ctx, sessionID, state, TransformPrompt, text, reply); err != nil {
		return Result{}, err
	}
	t.logger.Info("transformation turn processed", "session_id", sessionID, "path", path)
	return t.finish(sessionID, path, Result{Response: reply, SessionID: sessionID, Degraded: degraded}), nil
}

func (t *Transformer) twoStep(ctx context.Context, current, instruction string) (string, error) {
	analysis, err := t.analyze(ctx, current, instruction)
	if err != nil {
		return "", fmt.Errorf("intent analysis: %w", err)
	}
	t.logger.Debug("intent analyzed", "intent", analysis.Intent, "description", analysis.Description)

	out, err := t.gen.Generate(ctx, []domain.Message{
		domain.SystemMessage(executePrompt),
		domain.UserMessage(executeRequest(current, analysis)),
	}, llm.Options{})
	if err != nil {
		return "", fmt.Errorf("execute transformation: %w", err)
	}
	return out, nil
}

func (t *Transformer) analyze(ctx context.Context, current, instruction string) (IntentAnalysis, error) {
	reply, err := t.gen.Generate(ctx, []domain.Message{
		domain.SystemMessage(intentPrompt),
		domain.UserMessage(intentRequest(current, instruction)),
	}, llm.Options{})
	if err != nil {
		return IntentAnalysis{}, err
	}
	return ParseIntent(reply), nil
}

// Reset forgets a session and reports whether it existed.
func (t *Transformer) Reset(ctx context.Context, sessionID string) (bool, error) {
	unlock := t.locks.Lock(sessionID)
	defer unlock()

	ok, err := t.store.Delete(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	if ok {
		t.record(sessionID, "inbound", "reset", "", false)
	}
	return ok, nil
}
