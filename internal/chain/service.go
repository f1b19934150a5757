package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/promptlab/internal/domain"
	"github.com/ashureev/promptlab/internal/llm"
	"github.com/ashureev/promptlab/internal/metrics"
	"github.com/ashureev/promptlab/internal/store"
)

// ErrPersistenceDisabled is returned by lookups on a service without a repository.
var ErrPersistenceDisabled = errors.New("chain persistence is not configured")

// Options controls one Process call.
type Options struct {
	Persist bool
	// Iterations overrides the configured step count when > 0.
	Iterations int
}

// Service runs decision chains and optionally persists them. Each call
// gets its own Builder.
type Service struct {
	gen           llm.Generator
	repo          store.ChainRepository
	maxIterations int
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// NewService creates a chain service. repo may be nil, in which case
// persistence requests fail with ErrPersistenceDisabled.
func NewService(gen llm.Generator, repo store.ChainRepository, cfg Config) *Service {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		gen:           gen,
		repo:          repo,
		maxIterations: cfg.MaxIterations,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

// MaxIterations returns the upper bound accepted for Options.Iterations.
func (s *Service) MaxIterations() int { return s.maxIterations }

// Process builds a chain for text. The returned chain is always terminal;
// the error is non-nil only when persistence was requested and failed.
func (s *Service) Process(ctx context.Context, text string, opts Options) (*domain.DecisionChain, error) {
	iterations := s.maxIterations
	if opts.Iterations > 0 && opts.Iterations < iterations {
		iterations = opts.Iterations
	}
	if opts.Persist && s.repo == nil {
		return nil, ErrPersistenceDisabled
	}

	b := NewBuilder(s.gen, Config{MaxIterations: iterations, Logger: s.logger, Metrics: s.metrics})
	c, err := b.ProcessText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("process text: %w", err)
	}

	if opts.Persist {
		if _, err := s.repo.SaveChain(ctx, c); err != nil {
			return c, fmt.Errorf("save chain: %w", err)
		}
		s.logger.Info("decision chain saved", "chain_id", c.ChainID, "status", c.Status)
	}
	return c, nil
}

// Get returns a stored chain, or nil when it does not exist.
func (s *Service) Get(ctx context.Context, chainID string) (*domain.DecisionChain, error) {
	if s.repo == nil {
		return nil, ErrPersistenceDisabled
	}
	return s.repo.GetChain(ctx, chainID)
}

// Recent returns the newest stored chains.
func (s *Service) Recent(ctx context.Context, limit int) ([]*domain.DecisionChain, error) {
	if s.repo == nil {
		return nil, ErrPersistenceDisabled
	}
	return s.repo.RecentChains(ctx, limit)
}

// Delete removes a stored chain and reports whether it existed.
func (s *Service) Delete(ctx context.Context, chainID string) (bool, error) {
	if s.repo == nil {
		return false, ErrPersistenceDisabled
	}
	return s.repo.DeleteChain(ctx, chainID)
}
