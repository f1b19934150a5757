// Package app wires configuration into the demo services shared by the
// server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/promptlab/internal/chain"
	"github.com/ashureev/promptlab/internal/config"
	"github.com/ashureev/promptlab/internal/llm"
	"github.com/ashureev/promptlab/internal/metrics"
	"github.com/ashureev/promptlab/internal/session"
	"github.com/ashureev/promptlab/internal/store"
	"github.com/ashureev/promptlab/internal/textproc"
	"github.com/ashureev/promptlab/internal/tools"
	"github.com/ashureev/promptlab/internal/transcript"
)

// App holds the constructed services.
type App struct {
	Config      *config.Config
	Metrics     *metrics.Metrics
	Repo        *store.SQLiteStore
	Generator   llm.Generator
	Calculator  *textproc.Calculator
	Transformer *textproc.Transformer
	Chains      *chain.Service
	Tools       *tools.Client // nil when tools are disabled

	closeTranscript func() error
}

// New opens the database, builds the configured model client, the three
// text demos and, when enabled, the tool client. Callers must Close the returned App.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	gen, err := llm.New(ctx, cfg.LLM, m, logger)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("initialize model client: %w", err)
	}

	rec, closeRec, err := transcript.New(transcript.Config{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("initialize transcripts: %w", err)
	}

	var toolClient *tools.Client
	if cfg.Tools.Enabled {
		toolClient, err = tools.NewClient(ctx, tools.NewServer(), tools.Options{
			ListTimeout: cfg.Tools.ListTimeout,
			CallTimeout: cfg.Tools.CallTimeout,
			Logger:      logger,
			Metrics:     m,
		})
		if err != nil {
			_ = closeRec()
			_ = repo.Close()
			return nil, fmt.Errorf("initialize tools: %w", err)
		}
	}

	calcStore, transformStore := sessionStores(cfg.SessionBackend, repo)

	a := &App{
		Config:    cfg,
		Metrics:   m,
		Repo:      repo,
		Generator: gen,
		Calculator: textproc.NewCalculator(gen, calcStore, textproc.Options{
			MaxExchanges: cfg.History.CalculatorMaxExchanges,
			Logger:       logger,
			Metrics:      m,
			Transcript:   rec,
		}),
		Transformer: textproc.NewTransformer(gen, transformStore, textproc.Options{
			MaxExchanges: cfg.History.TransformMaxExchanges,
			Logger:       logger,
			Metrics:      m,
			Transcript:   rec,
		}),
		Chains: chain.NewService(gen, repo, chain.Config{
			MaxIterations: cfg.Chain.MaxIterations,
			Logger:        logger,
			Metrics:       m,
		}),
		Tools:           toolClient,
		closeTranscript: closeRec,
	}

	logger.Info("Services initialized",
		"provider", cfg.LLM.Provider,
		"session_backend", cfg.SessionBackend,
		"transcripts", cfg.Transcript.Enabled,
		"tools", cfg.Tools.Enabled)
	return a, nil
}

// sessionStores gives each demo its own namespace so ids never collide
// across demos.
func sessionStores(backend string, repo store.SessionRepository) (calculator, transformer session.Store) {
	if backend == config.SessionBackendSQLite {
		return store.NewSessions(repo, textproc.DemoCalculator), store.NewSessions(repo, textproc.DemoTransform)
	}
	return session.NewMemoryStore(), session.NewMemoryStore()
}

// Close stops the tool client, flushes transcripts and closes the database.
func (a *App) Close() error {
	var errs []error
	if a.Tools != nil {
		errs = append(errs, a.Tools.Close())
	}
	if a.closeTranscript != nil {
		errs = append(errs, a.closeTranscript())
	}
	errs = append(errs, a.Repo.Close())
	return errors.Join(errs...)
}
