package prompts

import (
	"errors"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/chat"
)

// Builder constructs chat messages for LLM interaction using a fluent interface.
// Every decision stage (judge, director, characters, coach) assembles its
// request with it so message ordering stays uniform.
type Builder struct {
	system       []string
	history      []chat.ChatMessage
	historyLimit int
	userMessage  string
	closing      string
}

// New creates a new prompt builder with default settings.
func New() *Builder {
	return &Builder{
		historyLimit: 20,
	}
}

// WithSystemPrompt appends a section to the system prompt. Empty
// sections are ignored.
func (b *Builder) WithSystemPrompt(section string) *Builder {
	if s := strings.TrimSpace(section); s != "" {
		b.system = append(b.system, s)
	}
	return b
}

// WithHistory sets prior conversation messages.
func (b *Builder) WithHistory(history []chat.ChatMessage) *Builder {
	b.history = history
	return b
}

// WithHistoryLimit sets the chat history window size. Zero or less keeps
// the full history.
func (b *Builder) WithHistoryLimit(limit int) *Builder {
	b.historyLimit = limit
	return b
}

// WithUserMessage sets the message for this request.
func (b *Builder) WithUserMessage(message string) *Builder {
	b.userMessage = message
	return b
}

// WithClosingPrompt adds a trailing system reminder after the user message.
func (b *Builder) WithClosingPrompt(prompt string) *Builder {
	b.closing = strings.TrimSpace(prompt)
	return b
}

// Build constructs and returns the final message array for LLM consumption.
func (b *Builder) Build() ([]chat.ChatMessage, error) {
	if len(b.system) == 0 {
		return nil, errors.New("system prompt is required")
	}
	if strings.TrimSpace(b.userMessage) == "" {
		return nil, errors.New("user message is required")
	}

	messages := make([]chat.ChatMessage, 0, len(b.history)+3)
	messages = append(messages, chat.ChatMessage{
		Role:    chat.ChatRoleSystem,
		Content: strings.Join(b.system, "\n\n"),
	})

	history := b.history
	if b.historyLimit > 0 && len(history) > b.historyLimit {
		history = history[len(history)-b.historyLimit:]
	}
	messages = append(messages, history...)

	messages = append(messages, chat.ChatMessage{
		Role:    chat.ChatRoleUser,
		Content: b.userMessage,
	})

	if b.closing != "" {
		messages = append(messages, chat.ChatMessage{
			Role:    chat.ChatRoleSystem,
			Content: b.closing,
		})
	}
	return messages, nil
}
