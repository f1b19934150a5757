package tools

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func newTestClient(t *testing.T, srv *server.MCPServer, opts Options) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), srv, opts)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		want float64
	}{
		{"2 + 3 * 4", 14},
		{"(2 + 3) * 4", 20},
		{"7 / 2", 3.5},
		{"-7 % 3", 2},
		{"7 % -3", -2},
		{"-(-3)", 3},
		{"sqrt(16) + pow(2, 10)", 1028},
		{"max(1, 9, 4) - min(3, 2)", 7},
		{"round(2.5)", 2},
		{"round(3.14159, 2)", 3.14},
		{"log(8, 2)", 3},
		{"abs(-2.5)", 2.5},
		{"0x10 + 1_000", 1016},
	}
	for _, tt := range tests {
		got, err := Evaluate(tt.expr)
		if err != nil {
			t.Fatalf("Evaluate(%q) failed: %v", tt.expr, err)
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Fatalf("Evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}

	if got, _ := Evaluate("cos(pi)"); math.Abs(got+1) > 1e-12 {
		t.Fatalf("cos(pi) = %v, want -1", got)
	}
}

func TestEvaluateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		want string
	}{
		{"1 / 0", "division by zero"},
		{"5 % 0", "division by zero"},
		{"x + 1", "name 'x' is not defined"},
		{"open(1)", "name 'open' is not defined"},
		{"os.Exit(1)", "only named functions"},
		{`"a" + "b"`, "unsupported literal"},
		{"2 ** 3", "use pow"},
		{"7 // 2", "floor division"},
		{"sqrt(-1)", "math domain error"},
		{"pow(1)", "pow() takes 2 argument(s)"},
		{"1 +", "invalid syntax"},
		{"", "empty"},
		{"pow(10, 400)", "not a finite number"},
	}
	for _, tt := range tests {
		_, err := Evaluate(tt.expr)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Fatalf("Evaluate(%q) error = %v, want containing %q", tt.expr, err, tt.want)
		}
	}
}

func TestComputeTextStats(t *testing.T) {
	t.Parallel()

	got := ComputeTextStats("Hello world! Hello again.\n\nNaïve café")
	want := TextStats{
		TextLength:        37,
		CharacterCount:    37,
		WordCount:         6,
		LineCount:         3,
		AverageWordLength: float64(5+6+5+6+5+4) / 6,
		UniqueWords:       5,
		ParagraphCount:    2,
		WhitespaceCount:   6,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ComputeTextStats mismatch (-want +got):\n%s", diff)
	}

	if empty := ComputeTextStats(""); empty.WordCount != 0 || empty.LineCount != 1 || empty.AverageWordLength != 0 {
		t.Fatalf("unexpected stats for empty text: %+v", empty)
	}
}

func TestFormatters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format, in, want string
	}{
		{"title", "hello wORLD, they're 1st", "Hello World, They'Re 1St"},
		{"capitalize", "hELLO World", "Hello world"},
		{"swapcase", "Hello World", "hELLO wORLD"},
		{"reverse", "héllo", "olléh"},
		{"strip", "  padded \n", "padded"},
		{"upper", "abc", "ABC"},
		{"lower", "ABC", "abc"},
	}
	for _, tt := range tests {
		if got := formatters[tt.format](tt.in); got != tt.want {
			t.Fatalf("%s(%q) = %q, want %q", tt.format, tt.in, got, tt.want)
		}
	}
}

func TestListTools(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, NewServer(), Options{})
	infos, err := c.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}

	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
		if info.Description == "" || info.InputSchema == nil {
			t.Fatalf("tool %s missing description or schema: %+v", info.Name, info)
		}
	}
	for _, want := range []string{ToolCalculate, ToolTextStats, ToolSystemInfo, ToolFormatText} {
		found := false
		for _, n := range names {
			found = found || n == want
		}
		if !found {
			t.Fatalf("expected %s in %v", want, names)
		}
	}
}

func TestCallTools(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestClient(t, NewServer(), Options{})

	res, err := c.CallTool(ctx, ToolCalculate, map[string]any{"expression": "2 + 3 * 4"})
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"expression": "2 + 3 * 4", "result": float64(14), "success": true}, res); diff != "" {
		t.Fatalf("calculate mismatch (-want +got):\n%s", diff)
	}

	res, err = c.CallTool(ctx, ToolCalculate, map[string]any{"expression": "1/0"})
	if err != nil || res["success"] != false || res["error"] != "division by zero" {
		t.Fatalf("expected in-band division error, got %v (err %v)", res, err)
	}

	res, err = c.CallTool(ctx, ToolTextStats, map[string]any{"text": "Hello world! This is a test."})
	if err != nil || res["word_count"] != float64(6) || res["character_count"] != float64(28) {
		t.Fatalf("unexpected text_stats result %v (err %v)", res, err)
	}

	res, err = c.CallTool(ctx, ToolSystemInfo, nil)
	if err != nil || res["system"] == "" || res["timestamp"] == nil {
		t.Fatalf("unexpected system_info result %v (err %v)", res, err)
	}

	res, err = c.CallTool(ctx, ToolFormatText, map[string]any{"text": "hello world"})
	if err != nil || res["formatted"] != "Hello World" || res["format_type"] != "title" {
		t.Fatalf("expected default title format, got %v (err %v)", res, err)
	}

	res, err = c.CallTool(ctx, ToolFormatText, map[string]any{"text": "x", "format_type": "bold"})
	if err != nil || res["success"] != false {
		t.Fatalf("expected unknown format to be reported in-band, got %v (err %v)", res, err)
	}
	if formats, _ := res["available_formats"].([]any); len(formats) != len(formatOrder) {
		t.Fatalf("expected %d available formats, got %v", len(formatOrder), res["available_formats"])
	}
}

func TestCallToolErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestClient(t, NewServer(), Options{})

	if _, err := c.CallTool(ctx, "nope", nil); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	if _, err := c.CallTool(ctx, ToolTextStats, map[string]any{}); !errors.Is(err, ErrToolFailed) {
		t.Fatalf("expected ErrToolFailed for missing text, got %v", err)
	}
}

func TestCallToolNonJSONText(t *testing.T) {
	t.Parallel()

	srv := server.NewMCPServer("plain", "1")
	srv.AddTool(mcp.NewTool("echo"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("just words"), nil
	})
	srv.AddTool(mcp.NewTool("empty"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{Content: []mcp.Content{}}, nil
	})
	c := newTestClient(t, srv, Options{})

	res, err := c.CallTool(context.Background(), "echo", nil)
	if err != nil || res["text"] != "just words" {
		t.Fatalf("expected text fallback, got %v (err %v)", res, err)
	}
	res, err = c.CallTool(context.Background(), "empty", nil)
	if err != nil || res["result"] != "No content returned" {
		t.Fatalf("expected empty-content fallback, got %v (err %v)", res, err)
	}
}

func TestCallToolTimeout(t *testing.T) {
	t.Parallel()

	srv := server.NewMCPServer("slow", "1")
	srv.AddTool(mcp.NewTool("slow"), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
		return mcp.NewToolResultText("{}"), nil
	})
	c := newTestClient(t, srv, Options{CallTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := c.CallTool(context.Background(), "slow", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 2500*time.Millisecond {
		t.Fatalf("timeout took too long: %v", time.Since(start))
	}
}
