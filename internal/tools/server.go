// Package tools hosts the built-in tool server used by the tool-calling demo
// and an in-process client for listing and calling its tools.
package tools

import (
	"context"
	"encoding/json"
	"os"
	"runtime"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server identity reported during the handshake.
const (
	ServerName    = "promptlab-tools"
	ServerVersion = "1.0.0"
)

// Tool names.
const (
	ToolCalculate  = "calculate"
	ToolTextStats  = "text_stats"
	ToolSystemInfo = "system_info"
	ToolFormatText = "format_text"
)

// formatOrder is the order formats are listed in errors.
var formatOrder = []string{"upper", "lower", "title", "capitalize", "swapcase", "reverse", "strip"}

var formatters = map[string]func(string) string{
	"upper":      strings.ToUpper,
	"lower":      strings.ToLower,
	"title":      titleCase,
	"capitalize": capitalize,
	"swapcase":   swapCase,
	"reverse":    reverse,
	"strip":      strings.TrimSpace,
}

// NewServer builds a tool server with the four built-in tools registered.
func NewServer() *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool(ToolCalculate,
		mcp.WithDescription("Evaluate mathematical expressions safely"),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("Arithmetic expression, for example 2 + 3 * 4 or sqrt(16)"),
		),
	), handleCalculate)

	s.AddTool(mcp.NewTool(ToolTextStats,
		mcp.WithDescription("Get statistics about text (word count, character count, etc.)"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to analyze"),
		),
	), handleTextStats)

	s.AddTool(mcp.NewTool(ToolSystemInfo,
		mcp.WithDescription("Get basic system information"),
	), handleSystemInfo)

	s.AddTool(mcp.NewTool(ToolFormatText,
		mcp.WithDescription("Format text in various ways (uppercase, lowercase, title case, etc.)"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to format"),
		),
		mcp.WithString("format_type",
			mcp.Description("One of: "+strings.Join(formatOrder, ", ")),
			mcp.DefaultString("title"),
		),
	), handleFormatText)

	return s
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func handleCalculate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expr, err := req.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := Evaluate(expr)
	if err != nil {
		return jsonResult(map[string]any{"expression": expr, "error": err.Error(), "success": false})
	}
	return jsonResult(map[string]any{"expression": expr, "result": v, "success": true})
}

// TextStats mirrors the text_stats tool output.
type TextStats struct {
	TextLength        int     `json:"text_length"`
	CharacterCount    int     `json:"character_count"`
	WordCount         int     `json:"word_count"`
	LineCount         int     `json:"line_count"`
	AverageWordLength float64 `json:"average_word_length"`
	UniqueWords       int     `json:"unique_words"`
	ParagraphCount    int     `json:"paragraph_count"`
	WhitespaceCount   int     `json:"whitespace_count"`
}

// ComputeTextStats counts characters as runes. Unique words are compared
// lowercased with surrounding punctuation removed; paragraphs are non-blank
// lines.
func ComputeTextStats(text string) TextStats {
	words := strings.Fields(text)
	lines := strings.Split(text, "\n")
	n := utf8.RuneCountInString(text)

	st := TextStats{
		TextLength:     n,
		CharacterCount: n,
		WordCount:      len(words),
		LineCount:      len(lines),
	}

	unique := make(map[string]struct{}, len(words))
	total := 0
	for _, w := range words {
		total += utf8.RuneCountInString(w)
		unique[strings.Trim(strings.ToLower(w), `.,!?;:"()[]{}`)] = struct{}{}
	}
	if len(words) > 0 {
		st.AverageWordLength = float64(total) / float64(len(words))
	}
	st.UniqueWords = len(unique)

	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			st.ParagraphCount++
		}
	}
	for _, r := range text {
		if unicode.IsSpace(r) {
			st.WhitespaceCount++
		}
	}
	return st
}

func handleTextStats(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ComputeTextStats(text))
}

func handleSystemInfo(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hostname, _ := os.Hostname()
	cwd, _ := os.Getwd()
	return jsonResult(map[string]any{
		"platform":          runtime.GOOS + "/" + runtime.GOARCH,
		"system":            runtime.GOOS,
		"machine":           runtime.GOARCH,
		"num_cpu":           runtime.NumCPU(),
		"go_version":        runtime.Version(),
		"hostname":          hostname,
		"current_directory": cwd,
		"timestamp":         time.Now().Format(time.RFC3339Nano),
	})
}

func handleFormatText(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	formatType := req.GetString("format_type", "title")

	f, ok := formatters[formatType]
	if !ok {
		return jsonResult(map[string]any{
			"original":          text,
			"error":             "Unknown format type: " + formatType,
			"available_formats": slices.Clone(formatOrder),
			"success":           false,
		})
	}
	return jsonResult(map[string]any{
		"original":    text,
		"formatted":   f(text),
		"format_type": formatType,
		"success":     true,
	})
}

// titleCase upper-cases the first letter of every run of letters and
// lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inWord := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if inWord {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToTitle(r)
			}
			inWord = true
		} else {
			inWord = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToTitle(r)) + strings.ToLower(s[size:])
}

func swapCase(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsUpper(r):
			return unicode.ToLower(r)
		case unicode.IsLower(r):
			return unicode.ToUpper(r)
		}
		return r
	}, s)
}

func reverse(s string) string {
	r := []rune(s)
	slices.Reverse(r)
	return string(r)
}
