package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/promptlab/internal/chain"
	"github.com/ashureev/promptlab/internal/domain"
	"github.com/go-chi/chi/v5"
)

const maxRecentLimit = 100

// ChainRequest is the body of POST /api/chains/process.
type ChainRequest struct {
	Text       *string `json:"text"`
	Persist    bool    `json:"persist"`
	Iterations int     `json:"iterations,omitempty"`
}

// ChainResult is the serialized view of a decision chain.
type ChainResult struct {
	ChainID       string                `json:"chain_id"`
	Title         string                `json:"title"`
	Context       string                `json:"context"`
	Status        domain.ChainStatus    `json:"status"`
	FinalDecision *string               `json:"final_decision"`
	StepCount     int                   `json:"step_count"`
	Steps         []domain.DecisionStep `json:"steps"`
	Persisted     bool                  `json:"persisted"`
}

func newChainResult(c *domain.DecisionChain, persisted bool) ChainResult {
	steps := c.Steps
	if steps == nil {
		steps = []domain.DecisionStep{}
	}
	return ChainResult{
		ChainID:       c.ChainID,
		Title:         c.Title,
		Context:       c.Context,
		Status:        c.Status,
		FinalDecision: c.FinalDecision,
		StepCount:     len(steps),
		Steps:         steps,
		Persisted:     persisted,
	}
}

func iterationsMessage(maxIter int) string {
	return "iterations must be between 0 and " + strconv.Itoa(maxIter) + " (0 = default)"
}

// ChainHandler serves the decision-chain demo.
type ChainHandler struct {
	svc *chain.Service
}

// NewChainHandler creates the decision-chain handler.
func NewChainHandler(svc *chain.Service) *ChainHandler {
	return &ChainHandler{svc: svc}
}

// RegisterRoutes registers decision-chain routes.
func (h *ChainHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chains", func(r chi.Router) {
		r.Post("/process", h.Process)
		r.Get("/", h.Recent)
		r.Get("/{chainID}", h.Get)
		r.Delete("/{chainID}", h.Delete)
	})
}

// Process runs a decision chain over the request text.
func (h *ChainHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req ChainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	text, ok := requireText(w, req.Text, false)
	if !ok {
		return
	}
	if req.Iterations < 0 || req.Iterations > h.svc.MaxIterations() {
		Error(w, http.StatusBadRequest, iterationsMessage(h.svc.MaxIterations()))
		return
	}

	c, err := h.svc.Process(r.Context(), text, chain.Options{Persist: req.Persist, Iterations: req.Iterations})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	Success(w, newChainResult(c, req.Persist))
}

// Recent lists stored chains, newest first.
func (h *ChainHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	chains, err := h.svc.Recent(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	out := make([]ChainResult, 0, len(chains))
	for _, c := range chains {
		out = append(out, newChainResult(c, true))
	}
	Success(w, out)
}

// Get returns a stored chain.
func (h *ChainHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chainID")
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if c == nil {
		Error(w, http.StatusNotFound, "Chain not found")
		return
	}
	Success(w, newChainResult(c, true))
}

// Delete removes a stored chain.
func (h *ChainHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chainID")
	ok, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !ok {
		Error(w, http.StatusNotFound, "Chain not found")
		return
	}
	Success(w, map[string]any{"chain_id": id, "deleted": true})
}

func (h *ChainHandler) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, chain.ErrPersistenceDisabled) {
		Error(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	slog.Error("decision chain request failed", "error", err)
	Error(w, http.StatusInternalServerError, "decision chain storage failed")
}
