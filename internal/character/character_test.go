package character

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jwebster45206/scene-engine/internal/director"
	"github.com/jwebster45206/scene-engine/internal/services"
	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/skill"
	"github.com/jwebster45206/scene-engine/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixture(t *testing.T) (*state.Session, *scenario.Scenario) {
	t.Helper()
	scen, err := scenario.LoadFile("../../data/modules/workplace-conduct/scenarios/credit-grab.yaml")
	require.NoError(t, err)
	reg, err := skill.Load("../../data/skills", quietLogger())
	require.NoError(t, err)
	chars, err := Instantiate(scen, reg)
	require.NoError(t, err)
	sess := state.NewSession(state.PlayerProfile{Role: "engineer"}, scen.ModuleID, scen.ID, scen.StartingHP, scen.MaxSteps, scen.EntryState(), chars)
	return sess, scen
}

// speaker identifies which character a request is for from its persona line.
func speaker(msgs []chat.ChatMessage) string {
	system := msgs[0].Content
	switch {
	case strings.HasPrefix(system, "You are Priya"):
		return "priya"
	case strings.HasPrefix(system, "You are Jordan"):
		return "jordan"
	}
	return ""
}

func plan(deps map[string]string) director.Output {
	return director.Output{
		TurnOrder:    []string{"priya", "jordan"},
		Directives:   map[string]string{"priya": "Ask for specifics.", "jordan": "Defend yourself."},
		Dependencies: deps,
		Situation:    "Priya looks between you and Jordan, waiting.",
	}
}

func TestInstantiate(t *testing.T) {
	sess, _ := fixture(t)
	require.Len(t, sess.Characters, 2)

	priya := sess.Character("priya")
	require.NotNil(t, priya)
	assert.Equal(t, []string{"procedural", "empathy"}, priya.Skills)
	assert.Equal(t, []string{"cite_policy", "open_case", "reassure", "schedule_followup"}, priya.Capabilities)
	assert.True(t, strings.HasPrefix(priya.Persona, "You are Priya, the manager."))
	assert.Contains(t, priya.Persona, "Refer to the relevant policy")
	assert.Equal(t, "Open the conversation neutrally and ask what happened from each perspective.", priya.Directive)

	jordan := sess.Character("jordan")
	require.NotNil(t, jordan)
	assert.Equal(t, []string{"direct_honesty"}, jordan.Skills)
	assert.NotContains(t, jordan.Persona, "change the subject")
}

func TestInstantiate_UnknownSkill(t *testing.T) {
	_, scen := fixture(t)
	scen.Actors[0].Skills = []string{"telepathy"}
	reg, err := skill.NewRegistry(quietLogger())
	require.NoError(t, err)
	_, err = Instantiate(scen, reg)
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestAgent_ReactAppendsMemoryOnSuccessOnly(t *testing.T) {
	sess, scen := fixture(t)
	inst := sess.Character("priya")
	inst.Directive = "Ask for specifics."
	shared := NewSharedContext(sess, scen, "Everyone waits.", "I wrote the plan.")

	mock := &services.MockLLMAPI{
		ChatFunc: func(ctx context.Context, msgs []chat.ChatMessage) (*chat.ChatResponse, error) {
			return &chat.ChatResponse{Message: `"Can you walk me through the timeline?"`}, nil
		},
	}
	agent := NewAgent(mock, nil, quietLogger())
	line, err := agent.React(context.Background(), inst, shared, nil, "")
	require.NoError(t, err)
	assert.Equal(t, `"Can you walk me through the timeline?"`, line)
	require.Len(t, inst.Memory, 2)
	assert.Equal(t, chat.ChatRoleUser, inst.Memory[0].Role)
	assert.Contains(t, inst.Memory[0].Content, "Your directive: Ask for specifics.")
	assert.Contains(t, inst.Memory[0].Content, `The player said: "I wrote the plan."`)
	assert.Equal(t, chat.ChatRoleAssistant, inst.Memory[1].Role)

	mock.ChatFunc = func(ctx context.Context, msgs []chat.ChatMessage) (*chat.ChatResponse, error) {
		return nil, errors.New("overloaded")
	}
	_, err = agent.React(context.Background(), inst, shared, nil, "")
	assert.ErrorIs(t, err, state.ErrUpstream)
	assert.Len(t, inst.Memory, 2)
}

func TestAgent_ReactReplaysOwnMemoryOnly(t *testing.T) {
	sess, scen := fixture(t)
	sess.Character("priya").Remember(chat.ChatMessage{Role: chat.ChatRoleUser, Content: "priya-private"})
	jordan := sess.Character("jordan")
	jordan.Remember(
		chat.ChatMessage{Role: chat.ChatRoleUser, Content: "jordan-seen"},
		chat.ChatMessage{Role: chat.ChatRoleAssistant, Content: "jordan-said"},
	)

	mock := services.NewMockLLMAPI()
	_, err := NewAgent(mock, nil, quietLogger()).React(context.Background(), jordan, NewSharedContext(sess, scen, "Tense silence.", ""), nil, "")
	require.NoError(t, err)

	msgs := mock.ChatCalls[0].Messages
	var all []string
	for _, m := range msgs {
		all = append(all, m.Content)
	}
	joined := strings.Join(all, "\n")
	assert.Contains(t, joined, "jordan-said")
	assert.NotContains(t, joined, "priya-private")
	assert.Equal(t, "jordan-seen", msgs[1].Content)
}

type upperFixer struct{}

func (upperFixer) FixDialogue(d, id, rating string) string { return strings.ToUpper(d) }

func TestAgent_FixerAppliedBeforeMemory(t *testing.T) {
	sess, scen := fixture(t)
	inst := sess.Character("jordan")
	mock := &services.MockLLMAPI{
		ChatFunc: func(ctx context.Context, msgs []chat.ChatMessage) (*chat.ChatResponse, error) {
			return &chat.ChatResponse{Message: "fine."}, nil
		},
	}
	line, err := NewAgent(mock, upperFixer{}, quietLogger()).React(context.Background(), inst, NewSharedContext(sess, scen, "x", ""), nil, "")
	require.NoError(t, err)
	assert.Equal(t, "FINE.", line)
	assert.Equal(t, "FINE.", inst.Memory[len(inst.Memory)-1].Content)
}

func TestRunner_IndependentCharactersRunConcurrently(t *testing.T) {
	sess, scen := fixture(t)

	var wg sync.WaitGroup
	wg.Add(2)
	mock := &services.MockLLMAPI{
		ChatFunc: func(ctx context.Context, msgs []chat.ChatMessage) (*chat.ChatResponse, error) {
			// both calls must be in flight at once to get past here
			wg.Done()
			wait := make(chan struct{})
			go func() { wg.Wait(); close(wait) }()
			select {
			case <-wait:
			case <-time.After(2 * time.Second):
				return nil, errors.New("calls were serialized")
			}
			return &chat.ChatResponse{Message: speaker(msgs) + " speaks."}, nil
		},
	}
	runner := NewRunner(NewAgent(mock, nil, quietLogger()), nil, quietLogger())
	reactions, err := runner.Run(context.Background(), sess, scen, plan(nil), "I wrote the plan.")
	require.NoError(t, err)
	assert.Equal(t, []state.Reaction{
		{CharacterID: "priya", Dialogue: "priya speaks."},
		{CharacterID: "jordan", Dialogue: "jordan speaks."},
	}, reactions)
	assert.Equal(t, "Defend yourself.", sess.Character("jordan").Directive)
}

func TestRunner_DependentCharacterReceivesPriorLine(t *testing.T) {
	sess, scen := fixture(t)
	var mu sync.Mutex
	var calls []string
	mock := &services.MockLLMAPI{
		ChatFunc: func(ctx context.Context, msgs []chat.ChatMessage) (*chat.ChatResponse, error) {
			who := speaker(msgs)
			mu.Lock()
			calls = append(calls, who)
			mu.Unlock()
			if who == "jordan" {
				last := msgs[len(msgs)-1].Content
				if !strings.Contains(last, `Priya just said: "When did you draft it?"`) {
					return nil, errors.New("missing prior line")
				}
				return &chat.ChatResponse{Message: "Last Tuesday, but it was a team effort."}, nil
			}
			return &chat.ChatResponse{Message: "When did you draft it?"}, nil
		},
	}
	runner := NewRunner(NewAgent(mock, nil, quietLogger()), nil, quietLogger())
	reactions, err := runner.Run(context.Background(), sess, scen, plan(map[string]string{"jordan": "priya"}), "I wrote the plan.")
	require.NoError(t, err)
	assert.Equal(t, []string{"priya", "jordan"}, calls)
	assert.Equal(t, "Last Tuesday, but it was a team effort.", reactions[1].Dialogue)
}

func TestRunner_FailureFailsTurn(t *testing.T) {
	sess, scen := fixture(t)
	mock := &services.MockLLMAPI{
		ChatFunc: func(ctx context.Context, msgs []chat.ChatMessage) (*chat.ChatResponse, error) {
			if speaker(msgs) == "priya" {
				return nil, errors.New("timeout")
			}
			return &chat.ChatResponse{Message: "ok then."}, nil
		},
	}
	runner := NewRunner(NewAgent(mock, nil, quietLogger()), nil, quietLogger())
	_, err := runner.Run(context.Background(), sess, scen, plan(map[string]string{"jordan": "priya"}), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, state.ErrUpstream)
	assert.Empty(t, sess.Character("priya").Memory)
	assert.Empty(t, sess.Character("jordan").Memory)
}

func TestRunner_OnlyActingCharactersKeepDirectives(t *testing.T) {
	sess, scen := fixture(t)
	sess.Character("jordan").Directive = "Deflect any question about the migration."
	out := plan(nil)
	out.TurnOrder = []string{"priya"}
	delete(out.Directives, "jordan")

	runner := NewRunner(NewAgent(services.NewMockLLMAPI(), nil, quietLogger()), nil, quietLogger())
	reactions, err := runner.Run(context.Background(), sess, scen, out, "x")
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	assert.Empty(t, sess.Character("jordan").Directive)
	assert.Equal(t, out.Directives["priya"], sess.Character("priya").Directive)
	assert.Empty(t, sess.Character("jordan").Memory)
	assert.Len(t, sess.Character("priya").Memory, 2)
}

func TestRunner_PolicyWrapsCalls(t *testing.T) {
	sess, scen := fixture(t)
	attempts := map[string]int{}
	var mu sync.Mutex
	policy := func(ctx context.Context, id string, call func(context.Context) (string, error)) (string, error) {
		var line string
		var err error
		for range 2 {
			mu.Lock()
			attempts[id]++
			mu.Unlock()
			if line, err = call(ctx); err == nil {
				return line, nil
			}
		}
		return "", err
	}
	var failed sync.Once
	mock := &services.MockLLMAPI{
		ChatFunc: func(ctx context.Context, msgs []chat.ChatMessage) (*chat.ChatResponse, error) {
			if speaker(msgs) == "priya" {
				var first bool
				failed.Do(func() { first = true })
				if first {
					return nil, errors.New("blip")
				}
			}
			return &chat.ChatResponse{Message: "Sure."}, nil
		},
	}
	runner := NewRunner(NewAgent(mock, nil, quietLogger()), policy, quietLogger())
	_, err := runner.Run(context.Background(), sess, scen, plan(nil), "x")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts["priya"])
	assert.Equal(t, 1, attempts["jordan"])
	assert.Len(t, sess.Character("priya").Memory, 2)
}
