package character

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jwebster45206/scene-engine/internal/services"
	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/prompts"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

const DefaultMemoryWindow = 20

// DialogueFixer cleans generated lines before they are stored or shown.
type DialogueFixer interface {
	FixDialogue(dialogue, characterID, rating string) string
}

// Agent voices characters. It is stateless; each character's memory
// lives on its CharacterInstance.
type Agent struct {
	llm          services.LLMService
	fixer        DialogueFixer
	memoryWindow int
	logger       *slog.Logger
}

// NewAgent creates an Agent. fixer may be nil.
func NewAgent(llm services.LLMService, fixer DialogueFixer, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{llm: llm, fixer: fixer, memoryWindow: DefaultMemoryWindow, logger: logger}
}

// WithMemoryWindow sets how many memory messages are replayed per call.
func (a *Agent) WithMemoryWindow(n int) *Agent {
	a.memoryWindow = n
	return a
}

// React produces inst's line for the turn. prior is the line inst must
// respond to, or nil. On success the perceived turn and the spoken line
// are appended to inst's memory; on failure inst is unchanged.
func (a *Agent) React(ctx context.Context, inst *state.CharacterInstance, shared SharedContext, prior *state.Reaction, priorName string) (string, error) {
	turn := turnMessage(inst, shared, prior, priorName)

	msgs, err := prompts.New().
		WithSystemPrompt(inst.Persona).
		WithSystemPrompt(shared.ScenarioContext).
		WithSystemPrompt(shared.Roster).
		WithSystemPrompt(shared.Profile).
		WithSystemPrompt(prompts.CharacterInstructions).
		WithHistory(inst.Memory).
		WithHistoryLimit(a.memoryWindow).
		WithUserMessage(turn).
		Build()
	if err != nil {
		return "", err
	}

	resp, err := a.llm.Chat(ctx, msgs)
	if err != nil {
		return "", state.Upstream(err)
	}
	line := strings.TrimSpace(resp.Message)
	if a.fixer != nil {
		line = a.fixer.FixDialogue(line, inst.ID, shared.Rating)
	}
	if line == "" {
		return "", state.Upstreamf("character %s returned an empty line", inst.ID)
	}

	inst.Remember(
		chat.ChatMessage{Role: chat.ChatRoleUser, Content: turn},
		chat.ChatMessage{Role: chat.ChatRoleAssistant, Content: line},
	)
	a.logger.Debug("Character reacted", "character_id", inst.ID, "step", shared.Step, "memory_len", len(inst.Memory))
	return line, nil
}

func turnMessage(inst *state.CharacterInstance, shared SharedContext, prior *state.Reaction, priorName string) string {
	var sb strings.Builder
	if shared.Recent != "" && len(inst.Memory) == 0 {
		// first line this character speaks in the session
		fmt.Fprintf(&sb, "What has happened so far:\n%s\n\n", shared.Recent)
	}
	if shared.PlayerChoice != "" {
		fmt.Fprintf(&sb, "The player said: %q\n", shared.PlayerChoice)
	}
	fmt.Fprintf(&sb, "Situation: %s\n", shared.Situation)
	if prior != nil {
		if priorName == "" {
			priorName = prior.CharacterID
		}
		fmt.Fprintf(&sb, "%s just said: %q\nRespond to that.\n", priorName, prior.Dialogue)
	}
	fmt.Fprintf(&sb, "Your directive: %s\n\nRespond in character. One to three sentences only.", inst.Directive)
	return sb.String()
}
