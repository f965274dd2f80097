package services

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"

	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/prompts"
)

// MockLLMAPI is a mock implementation of LLMService for tests and for
// running the server without a provider. Without overrides it answers
// each decision stage with a plausible canned payload.
type MockLLMAPI struct {
	InitModelFunc  func(ctx context.Context, modelName string) error
	ChatFunc       func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)
	StructuredFunc func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)

	// Track calls for testing
	InitModelCalls  []string
	ChatCalls       []MockCall
	StructuredCalls []MockCall

	mu sync.Mutex // protects the call slices
}

type MockCall struct {
	Messages []chat.ChatMessage
}

var _ LLMService = (*MockLLMAPI)(nil)

func NewMockLLMAPI() *MockLLMAPI {
	return &MockLLMAPI{}
}

func (m *MockLLMAPI) InitModel(ctx context.Context, modelName string) error {
	m.mu.Lock()
	m.InitModelCalls = append(m.InitModelCalls, modelName)
	m.mu.Unlock()

	if m.InitModelFunc != nil {
		return m.InitModelFunc(ctx, modelName)
	}
	return nil
}

// Chat records the call and then invokes ChatFunc outside the lock so
// concurrent callers are not serialized.
func (m *MockLLMAPI) Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	m.mu.Lock()
	m.ChatCalls = append(m.ChatCalls, MockCall{Messages: messages})
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, messages)
	}
	return &chat.ChatResponse{Message: "I hear you. Let's keep this moving."}, nil
}

func (m *MockLLMAPI) Structured(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	m.mu.Lock()
	m.StructuredCalls = append(m.StructuredCalls, MockCall{Messages: messages})
	m.mu.Unlock()

	if m.StructuredFunc != nil {
		return m.StructuredFunc(ctx, messages)
	}
	return &chat.ChatResponse{Message: cannedStructured(messages)}, nil
}

func (m *MockLLMAPI) ChatCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ChatCalls)
}

func (m *MockLLMAPI) StructuredCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.StructuredCalls)
}

// Reset clears all call tracking
func (m *MockLLMAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitModelCalls = nil
	m.ChatCalls = nil
	m.StructuredCalls = nil
}

var rosterLine = regexp.MustCompile(`(?m)^- ([A-Za-z0-9_\-]+) \(`)

func cannedStructured(messages []chat.ChatMessage) string {
	if len(messages) == 0 || messages[0].Role != chat.ChatRoleSystem {
		return `{}`
	}
	system := messages[0].Content
	switch {
	case strings.HasPrefix(system, prompts.EvaluatorSystemPrompt):
		return `{"score": 75, "reasoning": "A reasonable response that could be more specific.", "critical_failure_id": ""}`
	case strings.HasPrefix(system, prompts.InputSafetySystemPrompt):
		return `{"passed": true, "reason": ""}`
	case strings.HasPrefix(system, prompts.DebriefSystemPrompt):
		return `{"summary": "You handled the conversation steadily and kept it professional.", "turn_insights": [], "key_concepts": [], "recommended_followup": []}`
	case strings.HasPrefix(system, prompts.DirectorSystemPrompt):
		var ids []string
		for _, m := range rosterLine.FindAllStringSubmatch(system, -1) {
			ids = append(ids, m[1])
		}
		directives := make(map[string]string, len(ids))
		for _, id := range ids {
			directives[id] = "Respond naturally to what the player just said."
		}
		out := map[string]any{
			"turn_order": ids,
			"directives": directives,
			"situation":  "The conversation continues and everyone waits to see what you do next.",
			"next_choices": []map[string]string{
				{"label": "Summarize the facts and propose a next step", "valence": "positive"},
				{"label": "Ask for a moment to think", "valence": "neutral"},
				{"label": "Change the subject", "valence": "negative"},
			},
			"branch":           "main",
			"early_resolution": false,
		}
		data, _ := json.Marshal(out)
		return string(data)
	}
	return `{}`
}
