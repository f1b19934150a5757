// Package chain builds multi-step decision chains by repeatedly prompting a
// model, and exposes them through a persistence-backed service.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/promptlab/internal/domain"
	"github.com/ashureev/promptlab/internal/llm"
	"github.com/ashureev/promptlab/internal/metrics"
	"github.com/ashureev/promptlab/internal/session"
	"github.com/google/uuid"
)

var (
	// ErrNoActiveChain is returned by step and completion calls when no chain
	// has been created on the builder.
	ErrNoActiveChain = errors.New("no active decision chain")
	// ErrChainActive is returned by CreateChain while another chain is active.
	ErrChainActive = errors.New("a decision chain is already active")
)

// DefaultTitle is used when title generation fails.
const DefaultTitle = "Decision Process"

// DefaultMaxIterations is the step count when none is configured.
const DefaultMaxIterations = 5

const continueAction = "Continue to next step"

func decisionPrompt(context string) string {
	return "You are a decision-making assistant that helps with complex problems.\n\n" +
		"Context: " + context + "\n\n" +
		"Think through this step-by-step:\n" +
		"1. Analyze the context carefully\n" +
		"2. Identify key decision points\n" +
		"3. Evaluate options for each decision\n" +
		"4. Make recommendations based on your analysis\n\n" +
		"Provide your reasoning first, then a blank line, then your decision."
}

func stepPrompt(stepNumber int) string {
	if stepNumber == 1 {
		return "Analyze the context and make an initial decision."
	}
	return fmt.Sprintf("Based on your previous decision, what is the next step (step %d)?", stepNumber)
}

// splitOutput separates reasoning from decision at the first blank line.
// Without one, the whole output serves as both.
func splitOutput(output string) (reasoning, decision string) {
	reasoning, decision, found := strings.Cut(output, "\n\n")
	if !found {
		return output, output
	}
	return reasoning, decision
}

// Config tunes a Builder.
type Config struct {
	MaxIterations int
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
}

// Builder holds at most one active chain at a time. It is safe for
// concurrent use, but callers normally use one builder per request.
type Builder struct {
	gen           llm.Generator
	maxIterations int
	logger        *slog.Logger
	metrics       *metrics.Metrics

	mu     sync.Mutex
	active *domain.DecisionChain
}

// NewBuilder creates a builder that drives gen.
func NewBuilder(gen llm.Generator, cfg Config) *Builder {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Builder{
		gen:           gen,
		maxIterations: cfg.MaxIterations,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

// MaxIterations returns the number of steps ProcessText runs.
func (b *Builder) MaxIterations() int { return b.maxIterations }

// CreateChain starts a chain for contextText. An empty title is generated by
// the model, falling back to DefaultTitle.
func (b *Builder) CreateChain(ctx context.Context, contextText, title string) (*domain.DecisionChain, error) {
	b.mu.Lock()
	busy := b.active != nil
	b.mu.Unlock()
	if busy {
		return nil, ErrChainActive
	}

	if strings.TrimSpace(title) == "" {
		title = b.generateTitle(ctx, contextText)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active != nil {
		return nil, ErrChainActive
	}
	b.active = &domain.DecisionChain{
		ChainID: uuid.NewString(),
		Title:   title,
		Context: contextText,
		Steps:   []domain.DecisionStep{},
		Status:  domain.ChainInProgress,
	}
	return b.active, nil
}

func (b *Builder) generateTitle(ctx context.Context, contextText string) string {
	prompt := fmt.Sprintf("Generate a concise title (5-7 words) for a decision process about: %s", contextText)
	title, err := llm.Prompt(ctx, b.gen, prompt, llm.Options{})
	if err != nil {
		b.logger.Warn("title generation failed, using default", "error", err)
		return DefaultTitle
	}
	title = strings.Trim(strings.TrimSpace(title), `"`)
	if title == "" {
		return DefaultTitle
	}
	return title
}

// AddStep appends a step to the active chain.
func (b *Builder) AddStep(reasoning, decision string, nextActions []string, metadata map[string]any) (domain.DecisionStep, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return domain.DecisionStep{}, ErrNoActiveChain
	}

	if nextActions == nil {
		nextActions = []string{}
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	step := domain.DecisionStep{
		StepID:      uuid.NewString(),
		StepNumber:  len(b.active.Steps) + 1,
		Reasoning:   reasoning,
		Decision:    decision,
		NextActions: nextActions,
		Metadata:    metadata,
	}
	b.active.Steps = append(b.active.Steps, step)
	return step, nil
}

// Complete marks the active chain completed and clears the active slot.
func (b *Builder) Complete(finalDecision string) (*domain.DecisionChain, error) {
	return b.finish(finalDecision, domain.ChainCompleted)
}

func (b *Builder) finish(finalDecision string, status domain.ChainStatus) (*domain.DecisionChain, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil {
		return nil, ErrNoActiveChain
	}

	c := b.active
	c.FinalDecision = &finalDecision
	c.Status = status
	b.active = nil

	b.metrics.RecordChain(string(status), len(c.Steps))
	return c, nil
}

// Active returns the chain in progress, if any.
func (b *Builder) Active() (*domain.DecisionChain, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active, b.active != nil
}

// ProcessText runs up to MaxIterations model steps over text and returns a
// terminal chain. Model failures end the chain with status error rather than
// returning an error; only invalid builder state is reported as error.
func (b *Builder) ProcessText(ctx context.Context, text string) (*domain.DecisionChain, error) {
	c, err := b.CreateChain(ctx, text, "")
	if err != nil {
		return nil, err
	}
	logger := b.logger.With("chain_id", c.ChainID)

	conversation := &domain.SessionState{}
	system := decisionPrompt(text)

	for n := 1; n <= b.maxIterations; n++ {
		prompt := stepPrompt(n)
		output, err := b.gen.Generate(ctx, session.Assemble(conversation, system, prompt), llm.Options{})
		if err != nil {
			return b.fail(logger, err)
		}
		conversation.History = append(conversation.History, domain.UserMessage(prompt), domain.AssistantMessage(output))

		reasoning, decision := splitOutput(output)
		var next []string
		if n < b.maxIterations {
			next = []string{continueAction}
		}
		if _, err := b.AddStep(reasoning, decision, next, map[string]any{"prompt": prompt}); err != nil {
			return nil, err
		}
		logger.Debug("decision step added", "step", n)
	}

	last, _ := c.LastStep()
	final := fmt.Sprintf("After %d steps of analysis, the final decision is: %s", len(c.Steps), last.Decision)
	done, err := b.Complete(final)
	if err != nil {
		return nil, err
	}
	logger.Info("decision chain completed", "steps", len(done.Steps))
	return done, nil
}

func (b *Builder) fail(logger *slog.Logger, cause error) (*domain.DecisionChain, error) {
	c, ok := b.Active()
	if !ok {
		return nil, ErrNoActiveChain
	}
	logger.Error("decision chain failed", "steps", len(c.Steps), "kind", llm.KindOf(cause), "error", cause)

	if len(c.Steps) == 0 {
		if _, err := b.AddStep(
			fmt.Sprintf("Error during processing: %v", cause),
			"Unable to complete decision process",
			nil,
			map[string]any{"error": cause.Error(), "error_kind": string(llm.KindOf(cause))},
		); err != nil {
			return nil, err
		}
	}
	return b.finish(fmt.Sprintf("Decision process failed: %v", cause), domain.ChainError)
}
