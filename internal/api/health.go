package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/promptlab/internal/config"
	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health and configuration endpoints.
type HealthHandler struct {
	db  Pinger
	cfg *config.Config
}

// NewHealthHandler creates a new health handler. db may be nil when nothing
// is persisted.
func NewHealthHandler(db Pinger, cfg *config.Config) *HealthHandler {
	return &HealthHandler{db: db, cfg: cfg}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	switch {
	case h.db == nil:
		checks["database"] = "disabled"
	case h.db.Ping(ctx) != nil:
		slog.Error("Health check failed", "check", "database")
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	default:
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// GetConfig returns the non-secret settings the frontend needs.
func (h *HealthHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	model := h.cfg.LLM.ModelName
	switch h.cfg.LLM.Provider {
	case config.ProviderGemini:
		model = h.cfg.LLM.GeminiModel
	case config.ProviderDeepseek:
		model = h.cfg.LLM.DeepseekModel
	}

	Success(w, map[string]interface{}{
		"provider":             h.cfg.LLM.Provider,
		"model":                model,
		"max_tokens":           h.cfg.LLM.MaxTokens,
		"session_backend":      h.cfg.SessionBackend,
		"chain_max_iterations": h.cfg.Chain.MaxIterations,
		"demos":                []string{"calculator", "transform", "chain"},
	})
}

// RegisterRoutes registers the health and config routes.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.Health)
	r.Get("/api/config", h.GetConfig)
}
