package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

type Config struct {
	Port         string     `env:"PORT" envDefault:"8080"`
	Environment  string     `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelName string     `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel     slog.Level `env:"-"`

	LLMProvider      string  `env:"LLM_PROVIDER" envDefault:"anthropic"`
	ModelName        string  `env:"MODEL_NAME" envDefault:"claude-3-5-haiku-latest"`
	BackendModelName string  `env:"BACKEND_MODEL_NAME"`
	AnthropicAPIKey  string  `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey     string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string  `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	LLMRateLimit     float64 `env:"LLM_RATE_LIMIT" envDefault:"5"`

	RedisURL     string        `env:"REDIS_URL" envDefault:"localhost:6379"`
	StoreBackend string        `env:"STORE_BACKEND" envDefault:"redis"`
	SQLitePath   string        `env:"SQLITE_PATH" envDefault:"data/sessions.db"`
	SessionTTL   time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	CacheSize    int           `env:"CACHE_SIZE" envDefault:"512"`
	LockTTL      time.Duration `env:"LOCK_TTL" envDefault:"2m"`

	ContentDir string `env:"CONTENT_DIR" envDefault:"data/modules"`
	SkillsDir  string `env:"SKILLS_DIR" envDefault:"data/skills"`

	StageTimeout       time.Duration `env:"STAGE_TIMEOUT" envDefault:"30s"`
	UpstreamMaxRetries uint          `env:"UPSTREAM_MAX_RETRIES" envDefault:"2"`
	UpstreamBackoff    time.Duration `env:"UPSTREAM_BACKOFF" envDefault:"500ms"`
	HPDeltaMin         int           `env:"HP_DELTA_MIN" envDefault:"-40"`
	MaxInputChars      int           `env:"MAX_INPUT_CHARS" envDefault:"600"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if cfg.BackendModelName == "" {
		cfg.BackendModelName = cfg.ModelName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
	case "openai":
		if c.OpenAIBaseURL == "" {
			return fmt.Errorf("OPENAI_BASE_URL is required when LLM_PROVIDER=openai")
		}
	case "mock":
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q (supported: anthropic, openai, mock)", c.LLMProvider)
	}

	switch c.StoreBackend {
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_BACKEND=redis")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_BACKEND=sqlite")
		}
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q (supported: redis, sqlite)", c.StoreBackend)
	}

	if c.HPDeltaMin >= 0 {
		return fmt.Errorf("HP_DELTA_MIN must be negative, got %d", c.HPDeltaMin)
	}
	if c.MaxInputChars <= 0 {
		return fmt.Errorf("MAX_INPUT_CHARS must be positive, got %d", c.MaxInputChars)
	}
	if c.StageTimeout <= 0 {
		return fmt.Errorf("STAGE_TIMEOUT must be positive")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("CACHE_SIZE must be positive, got %d", c.CacheSize)
	}
	if c.LLMRateLimit < 0 {
		return fmt.Errorf("LLM_RATE_LIMIT must not be negative")
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
