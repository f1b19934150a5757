package textproc

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ashureev/promptlab/internal/llm"
	"github.com/ashureev/promptlab/internal/session"
)

// Calculator keeps a running total across turns by replaying history to the
// model.
type Calculator struct {
	base
}

// NewCalculator creates the calculator demo over its own session store.
func NewCalculator(gen llm.Generator, store session.Store, opts Options) *Calculator {
	return &Calculator{base: newBase(DemoCalculator, gen, store, opts)}
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// Process handles one numeric input. Invalid input never reaches the model.
func (c *Calculator) Process(ctx context.Context, text, sessionID string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return c.finish(sessionID, "invalid_input", Result{Response: "Please enter a number.", SessionID: sessionID}), nil
	}
	c.record(sessionID, "inbound", "user_text", text, false)
	if !isNumber(text) {
		return c.finish(sessionID, "invalid_input", Result{Response: "Please provide a valid number.", SessionID: sessionID}), nil
	}

	unlock := c.locks.Lock(sessionID)
	defer unlock()

	state, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("load session: %w", err)
	}

	input := strings.TrimSpace(text)
	reply, err := c.gen.Generate(ctx, session.Assemble(state, CalculatorPrompt, input), llm.Options{})
	if err != nil {
		c.logger.Error("calculator model call failed", "session_id", sessionID, "error", err)
		return c.finish(sessionID, "error", c.failure(sessionID, err)), nil
	}

	if err := c.commit(ctx, sessionID, state, CalculatorPrompt, input, reply); err != nil {
		return Result{}, err
	}
	c.logger.Info("calculator turn processed", "session_id", sessionID)
	return c.finish(sessionID, "model", Result{Response: reply, SessionID: sessionID}), nil
}
