package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/chat"
	"golang.org/x/time/rate"
)

// LLMService defines the interface for interacting with an LLM API.
type LLMService interface {
	// InitModel prepares the model on startup
	InitModel(ctx context.Context, modelName string) error

	// Chat generates in-character dialogue with the narrative model
	Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)

	// Structured generates a JSON decision with the backend model
	// (judge, director, classifier, coach)
	Structured(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)
}

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderMock      = "mock"
)

// LLMConfig selects and configures a provider.
type LLMConfig struct {
	Provider         string
	APIKey           string
	BaseURL          string
	ModelName        string
	BackendModelName string
	// RequestsPerSecond caps outbound calls across all sessions; zero disables the cap.
	RequestsPerSecond float64
}

// NewLLMService builds the configured provider.
func NewLLMService(cfg LLMConfig, logger *slog.Logger) (LLMService, error) {
	limiter := newLimiter(cfg.RequestsPerSecond)
	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic:
		return NewAnthropicService(cfg.APIKey, cfg.ModelName, cfg.BackendModelName, limiter, logger), nil
	case ProviderOpenAI:
		return NewOpenAIService(cfg.BaseURL, cfg.APIKey, cfg.ModelName, cfg.BackendModelName, limiter, logger), nil
	case ProviderMock:
		logger.Warn("Using mock LLM provider")
		return NewMockLLMAPI(), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := max(1, int(rps))
	return rate.NewLimiter(rate.Limit(rps), burst)
}
