package api

import (
	"log/slog"
	"net/http"

	"github.com/ashureev/promptlab/internal/identity"
	"github.com/ashureev/promptlab/internal/textproc"
	"github.com/go-chi/chi/v5"
)

// TextRequest is the body of the text demo endpoints.
type TextRequest struct {
	Text      *string `json:"text"`
	SessionID string  `json:"session_id,omitempty"`
}

// TextHandler serves the calculator and transformation demos.
type TextHandler struct {
	calculator  textproc.Processor
	transformer *textproc.Transformer
}

// NewTextHandler creates the text demo handler.
func NewTextHandler(calculator textproc.Processor, transformer *textproc.Transformer) *TextHandler {
	return &TextHandler{calculator: calculator, transformer: transformer}
}

// RegisterRoutes registers text demo routes.
func (h *TextHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/calculator/process", h.process(h.calculator))
	r.Route("/api/transform", func(r chi.Router) {
		r.Post("/process", h.process(h.transformer))
		r.Delete("/sessions/{sessionID}", h.ResetTransform)
	})
}

func (h *TextHandler) process(p textproc.Processor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TextRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		// Blank text gets an in-band prompt from the demo itself.
		text, ok := requireText(w, req.Text, true)
		if !ok {
			return
		}

		sid := sessionKey(r, req.SessionID)
		res, err := p.Process(r.Context(), text, sid)
		if err != nil {
			slog.Error("text processing failed", "session_id", sid, "error", err)
			Error(w, http.StatusInternalServerError, "failed to process text")
			return
		}
		Success(w, res)
	}
}

// ResetTransform deletes a transformation session. The id is tried as an
// explicit session id first, then as the caller's tab session.
func (h *TextHandler) ResetTransform(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sessionID")
	if sid == "" || !identity.ValidSessionID(sid) {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}

	ok, err := h.transformer.Reset(r.Context(), sid)
	if err == nil && !ok {
		caller := identity.FromContext(r.Context())
		if !caller.Anonymous() {
			scoped := identity.Caller{ID: caller.ID, SessionID: sid}.SessionKey()
			ok, err = h.transformer.Reset(r.Context(), scoped)
		}
	}
	if err != nil {
		slog.Error("session reset failed", "session_id", sid, "error", err)
		Error(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	if !ok {
		Error(w, http.StatusNotFound, "Session not found")
		return
	}
	Success(w, map[string]any{"session_id": sid, "deleted": true})
}
