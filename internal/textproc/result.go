// Package textproc implements the calculator and text-transformation demos
// on top of the session store and a model generator.
package textproc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/promptlab/internal/domain"
	"github.com/ashureev/promptlab/internal/llm"
	"github.com/ashureev/promptlab/internal/metrics"
	"github.com/ashureev/promptlab/internal/session"
	"github.com/ashureev/promptlab/internal/transcript"
)

// Demo names. Each demo has an independent session namespace.
const (
	DemoCalculator = "calculator"
	DemoTransform  = "transform"
)

// Result is the outcome of one turn. Model failures are reported through
// Degraded and ErrorKind with a user-facing Response; they are not errors.
type Result struct {
	Response  string   `json:"response"`
	SessionID string   `json:"session_id"`
	Degraded  bool     `json:"degraded,omitempty"`
	ErrorKind llm.Kind `json:"error_kind,omitempty"`
}

// Processor is one text demo.
type Processor interface {
	Process(ctx context.Context, text, sessionID string) (Result, error)
}

// Options are shared by both demos.
type Options struct {
	// MaxExchanges bounds replayed history; see session.Truncate.
	MaxExchanges int
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Transcript   transcript.Recorder
}

// base carries what every demo needs to run a turn.
type base struct {
	demo         string
	gen          llm.Generator
	store        session.Store
	locks        *session.Locks
	maxExchanges int
	logger       *slog.Logger
	metrics      *metrics.Metrics
	transcript   transcript.Recorder
}

func newBase(demo string, gen llm.Generator, store session.Store, opts Options) base {
	b := base{
		demo:         demo,
		gen:          gen,
		store:        store,
		locks:        session.NewLocks(),
		maxExchanges: opts.MaxExchanges,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		transcript:   opts.Transcript,
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("demo", demo)
	if b.transcript == nil {
		b.transcript = transcript.Nop{}
	}
	return b
}

// apology is the user-facing reply for a failed model call.
func apology(err error) string {
	return fmt.Sprintf("I encountered an AI processing issue: %v", err)
}

func (b *base) failure(sessionID string, err error) Result {
	return Result{
		Response:  apology(err),
		SessionID: sessionID,
		Degraded:  true,
		ErrorKind: llm.KindOf(err),
	}
}

func (b *base) commit(ctx context.Context, sessionID string, state *domain.SessionState, systemPrompt, userText, reply string) error {
	state.SessionID = sessionID
	session.RecordTurn(state, systemPrompt, userText, reply, b.maxExchanges)
	if err := b.store.Save(ctx, sessionID, state); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	b.logger.Debug("session updated", "session_id", sessionID, "history_len", len(state.History))
	return nil
}

func (b *base) record(sessionID, direction, eventType, content string, degraded bool) {
	b.transcript.Log(transcript.Event{
		Namespace: b.demo,
		SessionID: sessionID,
		Direction: direction,
		EventType: eventType,
		Content:   content,
		Degraded:  degraded,
	})
}

func (b *base) finish(sessionID, path string, res Result) Result {
	b.metrics.RecordTurn(b.demo, path)
	b.record(sessionID, "outbound", "reply", res.Response, res.Degraded)
	return res
}
