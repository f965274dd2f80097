package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "mock")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.Equal(t, 30*time.Second, cfg.StageTimeout)
	assert.Equal(t, uint(2), cfg.UpstreamMaxRetries)
	assert.Equal(t, -40, cfg.HPDeltaMin)
	assert.Equal(t, 600, cfg.MaxInputChars)
	assert.Equal(t, cfg.ModelName, cfg.BackendModelName)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/s.db")
	t.Setenv("STAGE_TIMEOUT", "5s")
	t.Setenv("SESSION_TTL", "0s")
	t.Setenv("BACKEND_MODEL_NAME", "judge-model")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLMProvider)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, 5*time.Second, cfg.StageTimeout)
	assert.Zero(t, cfg.SessionTTL)
	assert.Equal(t, "judge-model", cfg.BackendModelName)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"anthropic without key", map[string]string{"LLM_PROVIDER": "anthropic", "ANTHROPIC_API_KEY": ""}},
		{"unknown provider", map[string]string{"LLM_PROVIDER": "venice"}},
		{"unknown store", map[string]string{"LLM_PROVIDER": "mock", "STORE_BACKEND": "postgres"}},
		{"positive hp floor", map[string]string{"LLM_PROVIDER": "mock", "HP_DELTA_MIN": "5"}},
		{"bad duration", map[string]string{"LLM_PROVIDER": "mock", "STAGE_TIMEOUT": "soon"}},
		{"zero input limit", map[string]string{"LLM_PROVIDER": "mock", "MAX_INPUT_CHARS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}
