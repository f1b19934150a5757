// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported model providers.
const (
	ProviderOpenAI   = "openai"
	ProviderGemini   = "gemini"
	ProviderDeepseek = "deepseek"
)

// Supported session backends.
const (
	SessionBackendMemory = "memory"
	SessionBackendSQLite = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	GRPCPort       string // empty disables the admin gRPC server
	DBPath         string
	AllowedOrigins []string
	LogLevel       slog.Level
	SessionBackend string
	LLM            LLMConfig
	History        HistoryConfig
	Chain          ChainConfig
	RateLimit      RateLimitConfig
	Transcript     TranscriptConfig
	Tools          ToolsConfig
}

// LLMConfig selects and tunes the outbound model provider.
type LLMConfig struct {
	Provider          string
	OpenAIAPIKey      string
	OpenAIOrg         string
	OpenAIBaseURL     string
	ModelName         string
	MaxTokens         int
	Temperature       float64
	GeminiAPIKey      string
	GeminiModel       string
	GeminiTemperature float64
	DeepseekAPIKey    string
	DeepseekModel     string
	Timeout           time.Duration
	RetryAttempts     int
	RetryBackoff      time.Duration
}

// HistoryConfig bounds the replayed conversation per demo, in exchanges
// (one user turn plus one assistant turn).
type HistoryConfig struct {
	CalculatorMaxExchanges int
	TransformMaxExchanges  int
}

// ChainConfig controls the decision-chain builder.
type ChainConfig struct {
	MaxIterations int
}

// RateLimitConfig controls the per-caller request limiter.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// TranscriptConfig controls NDJSON conversation transcripts.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// ToolsConfig controls the built-in tool server.
type ToolsConfig struct {
	Enabled     bool
	ListTimeout time.Duration
	CallTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GRPCPort:       getEnv("GRPC_PORT", "9090"),
		DBPath:         getEnv("DB_PATH", "./data/promptlab.db"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendMemory)),
		LLM: LLMConfig{
			Provider:          strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
			OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
			OpenAIOrg:         getEnv("OPENAI_ORG", ""),
			OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			ModelName:         getEnv("MODEL_NAME", "gpt-3.5-turbo"),
			MaxTokens:         getEnvInt("MAX_TOKENS", 150),
			Temperature:       getEnvFloat("TEMPERATURE", 0.7),
			GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
			GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			GeminiTemperature: getEnvFloat("GEMINI_TEMPERATURE", 0.15),
			DeepseekAPIKey:    getEnv("DEEPSEEK_API_KEY", ""),
			DeepseekModel:     getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
			Timeout:           getEnvDuration("LLM_TIMEOUT", 60*time.Second),
			RetryAttempts:     getEnvInt("LLM_RETRY_ATTEMPTS", 2),
			RetryBackoff:      getEnvDuration("LLM_RETRY_BACKOFF", 200*time.Millisecond),
		},
		History: HistoryConfig{
			CalculatorMaxExchanges: getEnvInt("CALCULATOR_MAX_EXCHANGES", 2),
			TransformMaxExchanges:  getEnvInt("TRANSFORM_MAX_EXCHANGES", 4),
		},
		Chain: ChainConfig{
			MaxIterations: getEnvInt("CHAIN_MAX_ITERATIONS", 5),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Transcript: TranscriptConfig{
			Enabled:   getEnvBool("TRANSCRIPT_ENABLED", false),
			Dir:       getEnv("TRANSCRIPT_DIR", "./data/transcripts"),
			QueueSize: getEnvInt("TRANSCRIPT_QUEUE_SIZE", 1000),
		},
		Tools: ToolsConfig{
			Enabled:     getEnvBool("TOOLS_ENABLED", true),
			ListTimeout: getEnvDuration("TOOLS_LIST_TIMEOUT", 10*time.Second),
			CallTimeout: getEnvDuration("TOOLS_CALL_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
//
//nolint:gocyclo // Flat list of independent checks.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.SessionBackend {
	case SessionBackendMemory, SessionBackendSQLite:
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", SessionBackendMemory, SessionBackendSQLite, c.SessionBackend)
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderDeepseek:
	default:
		return fmt.Errorf("LLM_PROVIDER %q is not supported", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("TEMPERATURE must be between 0.0 and 1.0, got %v", c.LLM.Temperature)
	}
	if c.LLM.GeminiTemperature < 0 || c.LLM.GeminiTemperature > 1 {
		return fmt.Errorf("GEMINI_TEMPERATURE must be between 0.0 and 1.0, got %v", c.LLM.GeminiTemperature)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("MAX_TOKENS must be > 0")
	}
	if c.LLM.RetryAttempts < 1 {
		return fmt.Errorf("LLM_RETRY_ATTEMPTS must be >= 1")
	}
	if c.History.CalculatorMaxExchanges < 1 || c.History.TransformMaxExchanges < 1 {
		return fmt.Errorf("history max exchanges must be >= 1")
	}
	if c.Chain.MaxIterations < 1 {
		return fmt.Errorf("CHAIN_MAX_ITERATIONS must be >= 1")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("rate limit requests and window must be > 0")
	}
	if c.Transcript.Enabled && c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_DIR cannot be empty when transcripts are enabled")
	}
	if c.Transcript.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_QUEUE_SIZE must be > 0")
	}
	if c.Tools.Enabled && (c.Tools.ListTimeout <= 0 || c.Tools.CallTimeout <= 0) {
		return fmt.Errorf("TOOLS_LIST_TIMEOUT and TOOLS_CALL_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if any allowed origin points at a local host.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" || strings.Contains(o, "localhost") || strings.Contains(o, "127.0.0.1") {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
