package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/ashureev/promptlab/internal/chain"
	"github.com/ashureev/promptlab/internal/domain"
	"github.com/ashureev/promptlab/internal/textproc"
	"github.com/ashureev/promptlab/internal/tools"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Demo names accepted in /ws/{demo}.
const (
	DemoCalculator = textproc.DemoCalculator
	DemoTransform  = textproc.DemoTransform
	DemoChain      = "chain"
	DemoTools      = "tools"
)

// Event types.
const (
	TypeConnected          = "connected"
	TypeProcessingStart    = "processing_start"
	TypeProcessingUpdate   = "processing_update"
	TypeProcessingComplete = "processing_complete"
	TypeError              = "error"
	TypePong               = "pong"
	TypeToolsList          = "tools_list"
	TypeToolResult         = "tool_result"
)

const writeTimeout = 10 * time.Second

// Event is a server-to-client message.
type Event struct {
	Type      string `json:"type"`
	Status    string `json:"status,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	ChainID   string `json:"chain_id,omitempty"`

	ToolName  string         `json:"tool_name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Tools     []tools.Info   `json:"tools,omitempty"`
}

// clientMessage is a client-to-server message.
type clientMessage struct {
	Type    string  `json:"type"`
	Text    *string `json:"text"`
	Persist bool    `json:"persist,omitempty"`

	ToolName  string         `json:"tool_name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Handler upgrades /ws/{demo} and runs one demo per connection. The
// connection id doubles as the demo session id.
type Handler struct {
	calculator     textproc.Processor
	transformer    textproc.Processor
	chains         *chain.Service
	tools          tools.Runner
	registry       *Registry
	allowedOrigins []string
	isDev          bool
}

// NewHandler creates the event handler.
func NewHandler(calculator, transformer textproc.Processor, chains *chain.Service, registry *Registry, allowedOrigins []string, isDev bool) *Handler {
	return &Handler{
		calculator:     calculator,
		transformer:    transformer,
		chains:         chains,
		registry:       registry,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// WithTools enables the tools demo.
func (h *Handler) WithTools(runner tools.Runner) *Handler {
	h.tools = runner
	return h
}

// RegisterRoutes registers the WebSocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{demo}", h.ServeHTTP)
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	demo := chi.URLParam(r, "demo")
	switch demo {
	case DemoCalculator, DemoTransform, DemoChain:
	case DemoTools:
		if h.tools == nil {
			http.Error(w, "tools are disabled", http.StatusNotFound)
			return
		}
	default:
		http.Error(w, "unknown demo", http.StatusNotFound)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "demo", demo)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	connID := uuid.NewString()
	h.registry.Register(connID, ws)
	defer h.registry.Unregister(connID, ws)

	logger := slog.With("conn_id", connID, "demo", demo)
	logger.Info("Event connection opened", "ip", r.RemoteAddr)

	ctx := r.Context()
	if err := writeEvent(ctx, ws, Event{Type: TypeConnected, SessionID: connID}); err != nil {
		logger.Debug("Failed to send connected event", "error", err)
		return
	}

	h.readLoop(ctx, ws, demo, connID, logger)
	logger.Info("Event connection closed")
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, demo, connID string, logger *slog.Logger) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				logger.Debug("WebSocket closed by client")
			} else if ctx.Err() == nil {
				logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if err := writeError(ctx, ws, "invalid message"); err != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case "ping":
			err = writeEvent(ctx, ws, Event{Type: TypePong})
		case "process_text":
			if demo == DemoTools {
				err = writeError(ctx, ws, "use get_tools or call_tool on the tools demo")
				break
			}
			err = h.process(ctx, ws, demo, connID, msg, logger)
		case "get_tools", "call_tool":
			if demo != DemoTools {
				err = writeError(ctx, ws, fmt.Sprintf("unknown message type %q", msg.Type))
				break
			}
			err = h.processTool(ctx, ws, msg, logger)
		default:
			err = writeError(ctx, ws, fmt.Sprintf("unknown message type %q", msg.Type))
		}
		if err != nil {
			logger.Debug("Failed to write event", "error", err)
			return
		}
	}
}

// process runs one request and streams its events. The returned error is a
// write failure; processing failures are reported to the client.
func (h *Handler) process(ctx context.Context, ws *websocket.Conn, demo, connID string, msg clientMessage, logger *slog.Logger) error {
	if msg.Text == nil {
		return writeError(ctx, ws, "Text is required")
	}
	if err := writeEvent(ctx, ws, Event{Type: TypeProcessingStart, Status: "started"}); err != nil {
		return err
	}

	if demo == DemoChain {
		return h.processChain(ctx, ws, *msg.Text, msg.Persist, logger)
	}

	p := h.calculator
	if demo == DemoTransform {
		p = h.transformer
	}
	res, err := p.Process(ctx, *msg.Text, connID)
	if err != nil {
		logger.Error("text processing failed", "error", err)
		return writeError(ctx, ws, "failed to process text")
	}
	if err := writeEvent(ctx, ws, Event{Type: TypeProcessingUpdate, Chunk: res.Response}); err != nil {
		return err
	}
	return writeEvent(ctx, ws, Event{Type: TypeProcessingComplete, Status: "complete", SessionID: connID})
}

func (h *Handler) processChain(ctx context.Context, ws *websocket.Conn, text string, persist bool, logger *slog.Logger) error {
	c, err := h.chains.Process(ctx, text, chain.Options{Persist: persist})
	if err != nil {
		logger.Error("decision chain failed", "error", err)
		return writeError(ctx, ws, err.Error())
	}

	for _, step := range c.Steps {
		chunk := fmt.Sprintf("Step %d: %s", step.StepNumber, step.Decision)
		if err := writeEvent(ctx, ws, Event{Type: TypeProcessingUpdate, Chunk: chunk, ChainID: c.ChainID}); err != nil {
			return err
		}
	}
	if c.Status == domain.ChainError {
		return writeError(ctx, ws, *c.FinalDecision)
	}
	return writeEvent(ctx, ws, Event{Type: TypeProcessingComplete, Status: "complete", Chunk: *c.FinalDecision, ChainID: c.ChainID})
}

func (h *Handler) processTool(ctx context.Context, ws *websocket.Conn, msg clientMessage, logger *slog.Logger) error {
	if msg.Type == "get_tools" {
		infos, err := h.tools.ListTools(ctx)
		if err != nil {
			logger.Error("listing tools failed", "error", err)
			return writeError(ctx, ws, toolErrorMessage(err))
		}
		return writeEvent(ctx, ws, Event{Type: TypeToolsList, Tools: infos})
	}

	if msg.ToolName == "" {
		return writeError(ctx, ws, "Tool name is required")
	}
	if err := writeEvent(ctx, ws, Event{Type: TypeProcessingStart, Status: "started", ToolName: msg.ToolName}); err != nil {
		return err
	}
	res, err := h.tools.CallTool(ctx, msg.ToolName, msg.Arguments)
	if err != nil {
		logger.Warn("tool call failed", "tool", msg.ToolName, "error", err)
		return writeError(ctx, ws, toolErrorMessage(err))
	}
	if err := writeEvent(ctx, ws, Event{Type: TypeToolResult, ToolName: msg.ToolName, Arguments: msg.Arguments, Result: res}); err != nil {
		return err
	}
	return writeEvent(ctx, ws, Event{Type: TypeProcessingComplete, Status: "complete", ToolName: msg.ToolName})
}

func toolErrorMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "tool request timed out"
	case errors.Is(err, tools.ErrUnknownTool), errors.Is(err, tools.ErrToolFailed):
		return err.Error()
	}
	return "tool request failed"
}

func writeError(ctx context.Context, ws *websocket.Conn, message string) error {
	return writeEvent(ctx, ws, Event{Type: TypeError, Message: message})
}

func writeEvent(ctx context.Context, ws *websocket.Conn, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
