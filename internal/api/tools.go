package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/promptlab/internal/tools"
	"github.com/go-chi/chi/v5"
)

// ToolCallRequest is the body of POST /api/tools/call.
type ToolCallRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolCallResult echoes the call alongside the tool's output.
type ToolCallResult struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Result    map[string]any `json:"result"`
}

// ToolsHandler serves the tool-calling demo.
type ToolsHandler struct {
	runner tools.Runner
}

// NewToolsHandler creates the tool-calling handler.
func NewToolsHandler(runner tools.Runner) *ToolsHandler {
	return &ToolsHandler{runner: runner}
}

// RegisterRoutes registers tool routes.
func (h *ToolsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/tools", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/call", h.Call)
	})
}

// List returns the available tools.
func (h *ToolsHandler) List(w http.ResponseWriter, r *http.Request) {
	infos, err := h.runner.ListTools(r.Context())
	if err != nil {
		h.writeToolError(w, err)
		return
	}
	Success(w, map[string]any{"tools": infos})
}

// Call runs one tool.
func (h *ToolsHandler) Call(w http.ResponseWriter, r *http.Request) {
	var req ToolCallRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.ToolName)
	if name == "" {
		Error(w, http.StatusBadRequest, "Tool name is required")
		return
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	res, err := h.runner.CallTool(r.Context(), name, req.Arguments)
	if err != nil {
		h.writeToolError(w, err)
		return
	}
	Success(w, ToolCallResult{ToolName: name, Arguments: req.Arguments, Result: res})
}

func (h *ToolsHandler) writeToolError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tools.ErrToolFailed):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		Error(w, http.StatusGatewayTimeout, "tool request timed out")
	default:
		slog.Error("tool request failed", "error", err)
		Error(w, http.StatusInternalServerError, "tool request failed")
	}
}
