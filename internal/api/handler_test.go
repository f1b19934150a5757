//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ashureev/promptlab/internal/chain"
	"github.com/ashureev/promptlab/internal/config"
	"github.com/ashureev/promptlab/internal/domain"
	"github.com/ashureev/promptlab/internal/identity"
	"github.com/ashureev/promptlab/internal/llm"
	"github.com/ashureev/promptlab/internal/session"
	"github.com/ashureev/promptlab/internal/store"
	"github.com/ashureev/promptlab/internal/textproc"
	"github.com/go-chi/chi/v5"
)

// echoModel echoes the last user message, or answers chain steps.
func echoModel() llm.Generator {
	return llm.GeneratorFunc(func(_ context.Context, messages []domain.Message, _ llm.Options) (string, error) {
		last := messages[len(messages)-1].Content
		switch {
		case strings.HasPrefix(last, "Generate a concise title"):
			return "Test Title", nil
		case strings.HasPrefix(last, "Analyze the context") || strings.HasPrefix(last, "Based on your previous decision"):
			return "because\n\ndo it", nil
		case messages[0].Content == textproc.CalculatorPrompt:
			return "You entered: " + last, nil
		}
		return last, nil
	})
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestRouter(t *testing.T, gen llm.Generator) (http.Handler, *store.SQLiteStore) {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	calc := textproc.NewCalculator(gen, session.NewMemoryStore(), textproc.Options{MaxExchanges: 2})
	transformer := textproc.NewTransformer(gen, session.NewMemoryStore(), textproc.Options{MaxExchanges: 4})
	chains := chain.NewService(gen, repo, chain.Config{MaxIterations: 3})

	cfg := &config.Config{SessionBackend: config.SessionBackendMemory}
	cfg.LLM.Provider = config.ProviderOpenAI
	cfg.LLM.ModelName = "gpt-3.5-turbo"
	cfg.Chain.MaxIterations = 3

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	NewTextHandler(calc, transformer).RegisterRoutes(r)
	NewChainHandler(chains).RegisterRoutes(r)
	NewHealthHandler(repo, cfg).RegisterRoutes(r)
	return r, repo
}

func do(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, Envelope, json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var raw struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w, Envelope{Success: raw.Success, Error: raw.Error}, raw.Result
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestTransformProcess(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, echoModel())
	w, env, result := do(t, h, http.MethodPost, "/api/transform/process", map[string]string{
		"text":       "a blue cow",
		"session_id": "tab-1",
	})
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected success, got %d %+v", w.Code, env)
	}

	var res textproc.Result
	if err := json.Unmarshal(result, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Response != "a blue cow" || res.SessionID != "tab-1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestTextRequiresText(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, echoModel())
	for _, path := range []string{"/api/transform/process", "/api/calculator/process"} {
		w, env, _ := do(t, h, http.MethodPost, path, map[string]string{"session_id": "x"})
		if w.Code != http.StatusBadRequest || env.Success || env.Error != "Text is required" {
			t.Fatalf("%s: expected 400 Text is required, got %d %+v", path, w.Code, env)
		}
	}
}

func TestCalculatorInvalidNumber(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, echoModel())
	_, env, result := do(t, h, http.MethodPost, "/api/calculator/process", map[string]string{"text": "ten"})
	if !env.Success {
		t.Fatalf("expected success envelope, got %+v", env)
	}
	var res textproc.Result
	_ = json.Unmarshal(result, &res)
	if res.Response != "Please provide a valid number." {
		t.Fatalf("unexpected response %q", res.Response)
	}
}

func TestModelFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	failing := llm.GeneratorFunc(func(context.Context, []domain.Message, llm.Options) (string, error) {
		return "", &llm.Error{Kind: llm.KindAuth, Provider: "openai", Err: errors.New("invalid key")}
	})
	h, _ := newTestRouter(t, failing)

	w, env, result := do(t, h, http.MethodPost, "/api/transform/process", map[string]string{"text": "hello"})
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected 200 envelope, got %d %+v", w.Code, env)
	}
	var res textproc.Result
	_ = json.Unmarshal(result, &res)
	if !strings.HasPrefix(res.Response, "I encountered an AI processing issue:") || res.ErrorKind != llm.KindAuth {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestTransformReset(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, echoModel())
	do(t, h, http.MethodPost, "/api/transform/process", map[string]string{"text": "a blue cow", "session_id": "tab-9"})

	w, env, _ := do(t, h, http.MethodDelete, "/api/transform/sessions/tab-9", nil)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected reset to succeed, got %d %+v", w.Code, env)
	}
	w, _, _ = do(t, h, http.MethodDelete, "/api/transform/sessions/tab-9", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second reset, got %d", w.Code)
	}
}

func TestChainLifecycle(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, echoModel())

	w, env, result := do(t, h, http.MethodPost, "/api/chains/process", map[string]any{"text": "pick a db", "persist": true})
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected success, got %d %+v", w.Code, env)
	}
	var created ChainResult
	if err := json.Unmarshal(result, &created); err != nil {
		t.Fatalf("decode chain: %v", err)
	}
	if created.StepCount != 3 || created.Title != "Test Title" || created.Status != domain.ChainCompleted {
		t.Fatalf("unexpected chain %+v", created)
	}
	if created.FinalDecision == nil || !strings.HasSuffix(*created.FinalDecision, "do it") {
		t.Fatalf("unexpected final decision %v", created.FinalDecision)
	}

	w, _, result = do(t, h, http.MethodGet, "/api/chains/"+created.ChainID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected stored chain, got %d", w.Code)
	}
	var fetched ChainResult
	_ = json.Unmarshal(result, &fetched)
	if fetched.ChainID != created.ChainID || len(fetched.Steps) != 3 {
		t.Fatalf("unexpected fetched chain %+v", fetched)
	}

	_, _, result = do(t, h, http.MethodGet, "/api/chains?limit=5", nil)
	var recent []ChainResult
	_ = json.Unmarshal(result, &recent)
	if len(recent) != 1 {
		t.Fatalf("expected one recent chain, got %d", len(recent))
	}

	w, _, _ = do(t, h, http.MethodDelete, "/api/chains/"+created.ChainID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected delete to succeed, got %d", w.Code)
	}
	w, env, _ = do(t, h, http.MethodGet, "/api/chains/"+created.ChainID, nil)
	if w.Code != http.StatusNotFound || env.Error != "Chain not found" {
		t.Fatalf("expected 404 Chain not found, got %d %+v", w.Code, env)
	}
}

func TestChainValidation(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, echoModel())

	w, env, _ := do(t, h, http.MethodPost, "/api/chains/process", map[string]any{"text": "  "})
	if w.Code != http.StatusBadRequest || env.Error != "Text is required" {
		t.Fatalf("expected 400 Text is required, got %d %+v", w.Code, env)
	}
	w, env, _ = do(t, h, http.MethodPost, "/api/chains/process", map[string]any{"persist": false})
	if w.Code != http.StatusBadRequest || env.Error != "Text is required" {
		t.Fatalf("expected 400 Text is required for missing text, got %d %+v", w.Code, env)
	}
	for _, n := range []int{-1, 99} {
		w, env, _ = do(t, h, http.MethodPost, "/api/chains/process", map[string]any{"text": "x", "iterations": n})
		if w.Code != http.StatusBadRequest || env.Error != "iterations must be between 0 and 3 (0 = default)" {
			t.Fatalf("iterations %d: expected 400 with range message, got %d %+v", n, w.Code, env)
		}
	}
	w, _, _ = do(t, h, http.MethodGet, "/api/chains?limit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	for _, tt := range []struct {
		name string
		db   Pinger
		want int
	}{
		{"ok", fakePinger{}, http.StatusOK},
		{"down", fakePinger{err: errors.New("gone")}, http.StatusServiceUnavailable},
		{"disabled", nil, http.StatusOK},
	} {
		w := httptest.NewRecorder()
		NewHealthHandler(tt.db, cfg).Health(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		if w.Code != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.name, tt.want, w.Code)
		}
	}
}
