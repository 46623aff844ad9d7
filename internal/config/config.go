package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// Provider names accepted by LYRA_MODEL_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderDummy  = "dummy"
)

// Bounds enforced by Validate.
const (
	MinTemperature      = 0.0
	MaxTemperature      = 1.5
	MinMaxTokens        = 64
	MaxMaxTokens        = 4096
	MinContinuations    = 1
	MaxContinuationsCap = 6
	MinWrapWidth        = 20
	MaxWrapWidth        = 100
)

type OpenAIConfig struct {
	APIKey string
	URL    string
	Model  string
}

type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Enabled reports whether the secondary route has a credential.
func (c OpenRouterConfig) Enabled() bool {
	return c.APIKey != ""
}

// Config holds everything lyra reads from the environment.
type Config struct {
	Env      string
	LogLevel string

	ModelProvider       string
	DummyProviderScript string
	OpenAI              OpenAIConfig
	OpenRouter          OpenRouterConfig
	HTTPTimeout         time.Duration

	DBPath      string
	PersonaFile string
	ListenAddr  string
	WrapWidth   int

	Temperature      float64
	MaxTokens        int
	AutoContinue     bool
	MaxContinuations int
	ContextCeiling   int
	ContextFloor     int
	MaxLog           int
	DisplayLimit     int

	MaxRetries int
	BackoffMin time.Duration
	BackoffMax time.Duration
}

// Load reads configuration from environment variables and validates it.
func Load() (Config, error) {
	cfg, err := Read()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read collects configuration from environment variables without
// validating it, so command-line overrides can be applied first. In
// development a .env file in the working directory is loaded first;
// variables already set win.
func Read() (Config, error) {
	if envOrDefault("LYRA_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:                 envOrDefault("LYRA_ENV", "development"),
		LogLevel:            os.Getenv("LYRA_LOG_LEVEL"),
		ModelProvider:       strings.ToLower(envOrDefault("LYRA_MODEL_PROVIDER", ProviderOpenAI)),
		DummyProviderScript: envOrDefault("LYRA_DUMMY_PROVIDER_SCRIPT", "ok"),
		OpenAI: OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			URL:    envOrDefault("OPENAI_CHAT_COMPLETIONS_URL", "https://api.openai.com/v1/chat/completions"),
			Model:  envOrDefault("OPENAI_MODEL", "gpt-4o"),
		},
		OpenRouter: OpenRouterConfig{
			APIKey:  os.Getenv("OPENROUTER_API_KEY"),
			BaseURL: envOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			Model:   envOrDefault("OPENROUTER_MODEL", "nousresearch/hermes-3-llama-3.1-70b"),
		},
		HTTPTimeout:      time.Duration(envIntOrDefault("LYRA_HTTP_TIMEOUT_SECONDS", 60)) * time.Second,
		DBPath:           envOrDefault("LYRA_DB_PATH", "data/lyra.db"),
		PersonaFile:      os.Getenv("LYRA_PERSONA_FILE"),
		ListenAddr:       envOrDefault("LYRA_LISTEN_ADDR", ":8080"),
		WrapWidth:        envIntOrDefault("LYRA_WRAP_WIDTH", 80),
		Temperature:      envFloatOrDefault("LYRA_TEMPERATURE", 0.7),
		MaxTokens:        envIntOrDefault("LYRA_MAX_TOKENS", 800),
		AutoContinue:     envBoolOrDefault("LYRA_AUTO_CONTINUE", true),
		MaxContinuations: envIntOrDefault("LYRA_MAX_CONTINUATIONS", 3),
		ContextCeiling:   envIntOrDefault("LYRA_CONTEXT_CEILING", 60),
		ContextFloor:     envIntOrDefault("LYRA_CONTEXT_FLOOR", 20),
		MaxLog:           envIntOrDefault("LYRA_MAX_LOG", 500),
		DisplayLimit:     envIntOrDefault("LYRA_DISPLAY_LIMIT", 20000),
		MaxRetries:       envIntOrDefault("LYRA_MAX_RETRIES", 1),
		BackoffMin:       time.Duration(envIntOrDefault("LYRA_BACKOFF_MIN_MS", 500)) * time.Millisecond,
		BackoffMax:       time.Duration(envIntOrDefault("LYRA_BACKOFF_MAX_MS", 3000)) * time.Millisecond,
	}
	return cfg, nil
}

// Validate checks ranges and required credentials.
func (c Config) Validate() error {
	switch c.ModelProvider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return errors.New("OPENAI_API_KEY is required in environment when LYRA_MODEL_PROVIDER=openai")
		}
	case ProviderDummy:
	default:
		return errors.Newf("LYRA_MODEL_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderDummy, c.ModelProvider)
	}
	if c.Temperature < MinTemperature || c.Temperature > MaxTemperature {
		return errors.Newf("LYRA_TEMPERATURE must be within [%.1f, %.1f], got %v", MinTemperature, MaxTemperature, c.Temperature)
	}
	if c.MaxTokens < MinMaxTokens || c.MaxTokens > MaxMaxTokens {
		return errors.Newf("LYRA_MAX_TOKENS must be within [%d, %d], got %d", MinMaxTokens, MaxMaxTokens, c.MaxTokens)
	}
	if c.MaxContinuations < MinContinuations || c.MaxContinuations > MaxContinuationsCap {
		return errors.Newf("LYRA_MAX_CONTINUATIONS must be within [%d, %d], got %d", MinContinuations, MaxContinuationsCap, c.MaxContinuations)
	}
	if c.ContextFloor < 1 || c.ContextFloor > c.ContextCeiling {
		return errors.Newf("LYRA_CONTEXT_FLOOR must be within [1, LYRA_CONTEXT_CEILING=%d], got %d", c.ContextCeiling, c.ContextFloor)
	}
	if c.MaxLog < 2 {
		return errors.Newf("LYRA_MAX_LOG must be at least 2, got %d", c.MaxLog)
	}
	if c.DisplayLimit < 1 {
		return errors.Newf("LYRA_DISPLAY_LIMIT must be positive, got %d", c.DisplayLimit)
	}
	if c.WrapWidth < MinWrapWidth || c.WrapWidth > MaxWrapWidth {
		return errors.Newf("LYRA_WRAP_WIDTH must be within [%d, %d], got %d", MinWrapWidth, MaxWrapWidth, c.WrapWidth)
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("LYRA_HTTP_TIMEOUT_SECONDS must be positive")
	}
	if c.MaxRetries < 0 {
		return errors.Newf("LYRA_MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.BackoffMin <= 0 || c.BackoffMin > c.BackoffMax {
		return errors.Newf("LYRA_BACKOFF_MIN_MS must be positive and not above LYRA_BACKOFF_MAX_MS (%s > %s)", c.BackoffMin, c.BackoffMax)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatOrDefault(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}
