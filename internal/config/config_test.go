package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("SESSION_BACKEND", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.History.CalculatorMaxExchanges != 2 || cfg.History.TransformMaxExchanges != 4 {
		t.Fatalf("unexpected history defaults: %+v", cfg.History)
	}
	if cfg.LLM.MaxTokens != 150 {
		t.Fatalf("expected MAX_TOKENS default 150, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.Chain.MaxIterations != 5 {
		t.Fatalf("expected 5 iterations, got %d", cfg.Chain.MaxIterations)
	}
	if !cfg.Tools.Enabled || cfg.Tools.ListTimeout != 10*time.Second || cfg.Tools.CallTimeout != 30*time.Second {
		t.Fatalf("unexpected tools defaults: %+v", cfg.Tools)
	}
}

func TestLoadRejectsZeroToolTimeout(t *testing.T) {
	t.Setenv("TOOLS_CALL_TIMEOUT", "0s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero tool call timeout")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("LLM_RETRY_BACKOFF", "1s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9000" {
		t.Fatalf("expected port 9000, got %q", cfg.Port)
	}
	if cfg.LLM.Provider != ProviderGemini {
		t.Fatalf("expected gemini provider, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.RetryBackoff != time.Second {
		t.Fatalf("expected 1s backoff, got %v", cfg.LLM.RetryBackoff)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.LogLevel)
	}
}

func TestLoadRejectsBadTemperature(t *testing.T) {
	t.Setenv("TEMPERATURE", "1.5")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for temperature above 1.0")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "llama")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestLoadRejectsUnknownSessionBackend(t *testing.T) {
	t.Setenv("SESSION_BACKEND", "redis")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported session backend")
	}
}
