package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/promptlab/internal/chain"
	"github.com/ashureev/promptlab/internal/domain"
	"github.com/ashureev/promptlab/internal/llm"
	"github.com/ashureev/promptlab/internal/session"
	"github.com/ashureev/promptlab/internal/textproc"
	"github.com/ashureev/promptlab/internal/tools"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

func echoModel() llm.Generator {
	return llm.GeneratorFunc(func(_ context.Context, messages []domain.Message, _ llm.Options) (string, error) {
		last := messages[len(messages)-1].Content
		if strings.HasPrefix(last, "Generate a concise title") {
			return "Title", nil
		}
		if strings.HasPrefix(last, "Analyze the context") || strings.HasPrefix(last, "Based on your previous decision") {
			return "reasoning\n\ndecision", nil
		}
		return last, nil
	})
}

func newTestServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()

	gen := echoModel()
	calc := textproc.NewCalculator(gen, session.NewMemoryStore(), textproc.Options{MaxExchanges: 2})
	transformer := textproc.NewTransformer(gen, session.NewMemoryStore(), textproc.Options{MaxExchanges: 4})
	chains := chain.NewService(gen, nil, chain.Config{MaxIterations: 2})

	tc, err := tools.NewClient(context.Background(), tools.NewServer(), tools.Options{})
	if err != nil {
		t.Fatalf("tools.NewClient failed: %v", err)
	}
	t.Cleanup(func() { _ = tc.Close() })

	reg := NewRegistry(nil)
	r := chi.NewRouter()
	NewHandler(calc, transformer, chains, reg, []string{"*"}, false).WithTools(tc).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server, demo string) (context.Context, *websocket.Conn, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + demo
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	ev := readEvent(ctx, t, conn)
	if ev.Type != TypeConnected || ev.SessionID == "" {
		t.Fatalf("expected connected event with session id, got %+v", ev)
	}
	return ctx, conn, ev.SessionID
}

func readEvent(ctx context.Context, t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	var ev Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := wsjson.Write(ctx, conn, v); err != nil {
		t.Fatalf("write message: %v", err)
	}
}

func TestTransformEventSequence(t *testing.T) {
	srv, reg := newTestServer(t)
	ctx, conn, sid := dial(t, srv, DemoTransform)

	if reg.Len() != 1 {
		t.Fatalf("expected 1 registered connection, got %d", reg.Len())
	}

	send(ctx, t, conn, map[string]string{"type": "process_text", "text": "a blue cow"})

	if ev := readEvent(ctx, t, conn); ev.Type != TypeProcessingStart || ev.Status != "started" {
		t.Fatalf("expected processing_start, got %+v", ev)
	}
	if ev := readEvent(ctx, t, conn); ev.Type != TypeProcessingUpdate || ev.Chunk != "a blue cow" {
		t.Fatalf("expected processing_update with echoed text, got %+v", ev)
	}
	ev := readEvent(ctx, t, conn)
	if ev.Type != TypeProcessingComplete || ev.Status != "complete" || ev.SessionID != sid {
		t.Fatalf("expected processing_complete for %s, got %+v", sid, ev)
	}
}

func TestPingAndErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, conn, _ := dial(t, srv, DemoCalculator)

	send(ctx, t, conn, map[string]string{"type": "ping"})
	if ev := readEvent(ctx, t, conn); ev.Type != TypePong {
		t.Fatalf("expected pong, got %+v", ev)
	}

	send(ctx, t, conn, map[string]string{"type": "process_text"})
	if ev := readEvent(ctx, t, conn); ev.Type != TypeError || ev.Message != "Text is required" {
		t.Fatalf("expected Text is required error, got %+v", ev)
	}

	send(ctx, t, conn, map[string]string{"type": "resize"})
	if ev := readEvent(ctx, t, conn); ev.Type != TypeError {
		t.Fatalf("expected error for unknown type, got %+v", ev)
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("write raw: %v", err)
	}
	if ev := readEvent(ctx, t, conn); ev.Type != TypeError || ev.Message != "invalid message" {
		t.Fatalf("expected invalid message error, got %+v", ev)
	}
}

func TestChainEvents(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, conn, _ := dial(t, srv, DemoChain)

	send(ctx, t, conn, map[string]string{"type": "process_text", "text": "choose a database"})

	if ev := readEvent(ctx, t, conn); ev.Type != TypeProcessingStart {
		t.Fatalf("expected processing_start, got %+v", ev)
	}
	for i := 1; i <= 2; i++ {
		ev := readEvent(ctx, t, conn)
		if ev.Type != TypeProcessingUpdate || !strings.HasSuffix(ev.Chunk, "decision") || ev.ChainID == "" {
			t.Fatalf("step %d: unexpected event %+v", i, ev)
		}
	}
	ev := readEvent(ctx, t, conn)
	if ev.Type != TypeProcessingComplete || !strings.Contains(ev.Chunk, "After 2 steps") {
		t.Fatalf("expected processing_complete with final decision, got %+v", ev)
	}

	send(ctx, t, conn, map[string]any{"type": "process_text", "text": "again", "persist": true})
	_ = readEvent(ctx, t, conn)
	if ev := readEvent(ctx, t, conn); ev.Type != TypeError || ev.Message != chain.ErrPersistenceDisabled.Error() {
		t.Fatalf("expected persistence error, got %+v", ev)
	}
}

func TestToolEvents(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, conn, _ := dial(t, srv, DemoTools)

	send(ctx, t, conn, map[string]string{"type": "get_tools"})
	if ev := readEvent(ctx, t, conn); ev.Type != TypeToolsList || len(ev.Tools) != 4 {
		t.Fatalf("expected tools_list with 4 tools, got %+v", ev)
	}

	send(ctx, t, conn, map[string]any{
		"type":      "call_tool",
		"tool_name": "format_text",
		"arguments": map[string]any{"text": "hello world", "format_type": "upper"},
	})
	if ev := readEvent(ctx, t, conn); ev.Type != TypeProcessingStart || ev.ToolName != "format_text" || ev.Status != "started" {
		t.Fatalf("expected processing_start for format_text, got %+v", ev)
	}
	if ev := readEvent(ctx, t, conn); ev.Type != TypeToolResult || ev.Result["formatted"] != "HELLO WORLD" {
		t.Fatalf("expected tool_result, got %+v", ev)
	}
	if ev := readEvent(ctx, t, conn); ev.Type != TypeProcessingComplete || ev.Status != "complete" {
		t.Fatalf("expected processing_complete, got %+v", ev)
	}

	send(ctx, t, conn, map[string]string{"type": "call_tool"})
	if ev := readEvent(ctx, t, conn); ev.Type != TypeError || ev.Message != "Tool name is required" {
		t.Fatalf("expected Tool name is required, got %+v", ev)
	}

	send(ctx, t, conn, map[string]string{"type": "call_tool", "tool_name": "nope"})
	_ = readEvent(ctx, t, conn)
	if ev := readEvent(ctx, t, conn); ev.Type != TypeError || !strings.Contains(ev.Message, "unknown tool") {
		t.Fatalf("expected unknown tool error, got %+v", ev)
	}

	send(ctx, t, conn, map[string]string{"type": "process_text", "text": "x"})
	if ev := readEvent(ctx, t, conn); ev.Type != TypeError {
		t.Fatalf("expected error for process_text on tools demo, got %+v", ev)
	}
}

func TestToolMessagesRejectedOnTextDemos(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, conn, _ := dial(t, srv, DemoCalculator)

	send(ctx, t, conn, map[string]string{"type": "get_tools"})
	if ev := readEvent(ctx, t, conn); ev.Type != TypeError {
		t.Fatalf("expected error, got %+v", ev)
	}
}

func TestToolsDemoDisabled(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil, nil, NewRegistry(nil), []string{"*"}, false).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws/tools")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUnknownDemo(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws/nope")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestOriginCheck(t *testing.T) {
	h := NewHandler(nil, nil, nil, NewRegistry(nil), []string{"https://lab.example"}, false)

	for origin, want := range map[string]bool{
		"":                     true,
		"https://lab.example":  true,
		"https://evil.example": false,
	} {
		r := httptest.NewRequest(http.MethodGet, "/ws/calculator", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		if got := h.checkOrigin(r); got != want {
			t.Fatalf("origin %q: expected %v, got %v", origin, want, got)
		}
	}
}
