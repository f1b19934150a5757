package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/promptlab/internal/metrics"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Default bounds on tool operations.
const (
	DefaultListTimeout = 10 * time.Second
	DefaultCallTimeout = 30 * time.Second
)

var (
	// ErrUnknownTool is returned when calling a tool the server does not
	// offer.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrToolFailed wraps an error result reported by the tool itself.
	ErrToolFailed = errors.New("tool failed")
)

// Info describes one tool.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

// Runner lists and calls tools. *Client implements it.
type Runner interface {
	ListTools(ctx context.Context) ([]Info, error)
	CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// Options configure a Client.
type Options struct {
	ListTimeout time.Duration
	CallTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Client talks to a tool server in the same process. It is safe for
// concurrent use.
type Client struct {
	conn        *client.Client
	known       map[string]struct{}
	listTimeout time.Duration
	callTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewClient connects to srv, completes the handshake and caches the tool
// names. Callers must Close the returned Client.
func NewClient(ctx context.Context, srv *server.MCPServer, opts Options) (*Client, error) {
	if opts.ListTimeout <= 0 {
		opts.ListTimeout = DefaultListTimeout
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	mc, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, fmt.Errorf("create tool client: %w", err)
	}
	c := &Client{
		conn:        mc,
		listTimeout: opts.ListTimeout,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}

	if err := mc.Start(ctx); err != nil {
		_ = mc.Close()
		return nil, fmt.Errorf("start tool client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "promptlab", Version: ServerVersion}
	if _, err := mc.Initialize(ctx, initReq); err != nil {
		_ = mc.Close()
		return nil, fmt.Errorf("initialize tool client: %w", err)
	}

	infos, err := c.list(ctx)
	if err != nil {
		_ = mc.Close()
		return nil, err
	}
	c.known = make(map[string]struct{}, len(infos))
	for _, t := range infos {
		c.known[t.Name] = struct{}{}
	}
	c.logger.Info("Tool client initialized", "tools", len(infos))
	return c, nil
}

// ListTools returns the server's tools, bounded by the list timeout.
func (c *Client) ListTools(ctx context.Context) ([]Info, error) {
	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()
	return c.list(ctx)
}

func (c *Client) list(ctx context.Context) ([]Info, error) {
	res, err := c.conn.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, wrapTimeout(ctx, "list tools", err)
	}
	out := make([]Info, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, Info{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return out, nil
}

// CallTool runs one tool, bounded by the call timeout. A JSON text result
// is decoded into a map; other text is returned under "text".
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	if _, ok := c.known[name]; !ok {
		c.metrics.RecordToolCall("unknown", "unknown_tool")
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	start := time.Now()
	res, err := c.conn.CallTool(ctx, req)
	if err == nil && ctx.Err() != nil {
		// The result arrived after the deadline.
		err = ctx.Err()
	}
	if err != nil {
		err = wrapTimeout(ctx, "call "+name, err)
		c.metrics.RecordToolCall(name, outcome(err))
		c.logger.Warn("tool call failed", "tool", name, "error", err, "duration", time.Since(start))
		return nil, err
	}

	text, ok := firstText(res)
	if res.IsError {
		c.metrics.RecordToolCall(name, "tool_error")
		return nil, fmt.Errorf("%w: %s: %s", ErrToolFailed, name, text)
	}
	c.metrics.RecordToolCall(name, "ok")
	c.logger.Debug("tool called", "tool", name, "duration", time.Since(start))

	if !ok {
		return map[string]any{"result": "No content returned"}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil || out == nil {
		return map[string]any{"text": text}, nil
	}
	return out, nil
}

// Close shuts the client down.
func (c *Client) Close() error {
	return c.conn.Close()
}

func firstText(res *mcp.CallToolResult) (string, bool) {
	if res == nil || len(res.Content) == 0 {
		return "", false
	}
	switch tc := res.Content[0].(type) {
	case mcp.TextContent:
		return tc.Text, true
	case *mcp.TextContent:
		return tc.Text, true
	}
	return "", false
}

// wrapTimeout reports an expired deadline as context.DeadlineExceeded
// whatever error the transport surfaced.
func wrapTimeout(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, context.DeadlineExceeded)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func outcome(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
