package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/state"
	"golang.org/x/time/rate"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"

	DefaultOpenAITemperature = 0.7
	BackendOpenAITemperature = 0.2
	DefaultOpenAIMaxTokens   = 1024
)

// OpenAIService implements LLMService for any OpenAI-compatible chat
// completions endpoint (OpenAI, Venice, Ollama).
type OpenAIService struct {
	baseURL          string
	apiKey           string
	modelName        string
	backendModelName string
	httpClient       *http.Client
	limiter          *rate.Limiter
	logger           *slog.Logger
}

var _ LLMService = (*OpenAIService)(nil)

type OpenAIResponseFormat struct {
	Type string `json:"type"`
}

type OpenAIChatRequest struct {
	Model          string                `json:"model"`
	Messages       []chat.ChatMessage    `json:"messages"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
	Stream         bool                  `json:"stream"`
	ResponseFormat *OpenAIResponseFormat `json:"response_format,omitempty"`
}

type OpenAIChatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
		Refusal string `json:"refusal,omitempty"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type OpenAIChatResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []OpenAIChatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func NewOpenAIService(baseURL, apiKey, modelName, backendModelName string, limiter *rate.Limiter, logger *slog.Logger) *OpenAIService {
	if baseURL == "" {
		baseURL = openAIBaseURL
	}
	if limiter == nil {
		limiter = newLimiter(0)
	}
	return &OpenAIService{
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           apiKey,
		modelName:        modelName,
		backendModelName: backendModelName,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		limiter: limiter,
		logger:  logger,
	}
}

func (o *OpenAIService) InitModel(ctx context.Context, modelName string) error {
	return nil
}

func (o *OpenAIService) chatCompletion(ctx context.Context, chatReq OpenAIChatRequest) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", state.Upstream(fmt.Errorf("rate limiter: %w", err))
	}

	reqBody, err := json.Marshal(chatReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", state.Upstream(fmt.Errorf("failed to make request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", state.Upstream(fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", state.Upstreamf("chat completion failed with status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp OpenAIChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", state.Upstream(fmt.Errorf("failed to parse response: %w", err))
	}
	if chatResp.Error != nil {
		return "", state.Upstreamf("chat completion error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", state.Upstreamf("chat completion returned no choices")
	}
	choice := chatResp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", state.Upstreamf("model refused: %s", choice.Message.Refusal)
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", state.Upstreamf("chat completion returned empty content")
	}

	o.logger.Debug("Chat completion",
		"model", chatReq.Model,
		"prompt_tokens", chatResp.Usage.PromptTokens,
		"completion_tokens", chatResp.Usage.CompletionTokens)
	return choice.Message.Content, nil
}

func (o *OpenAIService) Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	content, err := o.chatCompletion(ctx, OpenAIChatRequest{
		Model:       o.modelName,
		Messages:    messages,
		Temperature: DefaultOpenAITemperature,
		MaxTokens:   DefaultOpenAIMaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return &chat.ChatResponse{Message: content}, nil
}

func (o *OpenAIService) Structured(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	model := o.modelName
	if o.backendModelName != "" {
		model = o.backendModelName
	}
	content, err := o.chatCompletion(ctx, OpenAIChatRequest{
		Model:          model,
		Messages:       messages,
		Temperature:    BackendOpenAITemperature,
		MaxTokens:      DefaultOpenAIMaxTokens,
		ResponseFormat: &OpenAIResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}
	return &chat.ChatResponse{Message: content}, nil
}
