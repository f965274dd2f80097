package state

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry() Turn {
	return Turn{
		Situation:  "The quarterly review begins.",
		TurnOrder:  []string{"manager"},
		Directives: map[string]string{"manager": "Open the meeting."},
		Reactions:  []Reaction{{CharacterID: "manager", Dialogue: "Let's get started."}},
		Choices: []Choice{
			{Label: "Ask for the agenda", Valence: ValencePositive},
			{Label: "Stay quiet", Valence: ValenceNeutral},
			{Label: "Complain about the schedule", Valence: ValenceNegative},
		},
		Branch: "entry",
	}
}

func testSession(maxSteps int) *Session {
	chars := []CharacterInstance{{ID: "manager", Name: "Dana", Persona: "A blunt manager."}}
	return NewSession(PlayerProfile{Role: "engineer"}, "workplace", "review", 100, maxSteps, testEntry(), chars)
}

func playerTurn(step, delta int, critical bool) Turn {
	t := testEntry()
	t.Step = step
	t.Branch = "main"
	t.PlayerChoice = "Ask for the agenda"
	t.HPDelta = delta
	t.Evaluation = &Evaluation{Score: 70, HPDelta: delta, Reasoning: "fine", IsCriticalFailure: critical}
	return t
}

func TestNewSession(t *testing.T) {
	s := testSession(6)

	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, 100, s.HP)
	assert.Equal(t, 0, s.Step)
	require.Len(t, s.History, 1)
	assert.Nil(t, s.History[0].Evaluation)
	assert.Equal(t, "Open the meeting.", s.Character("manager").Directive)
}

func TestSession_Apply(t *testing.T) {
	tests := []struct {
		name       string
		maxSteps   int
		deltas     []int
		critical   bool
		wantHP     int
		wantStatus Status
	}{
		{name: "drains and stays active", maxSteps: 6, deltas: []int{-10, -10, -15}, wantHP: 65, wantStatus: StatusActive},
		{name: "critical failure loses regardless of hp", maxSteps: 6, deltas: []int{-10, -10, -15, -5}, critical: true, wantHP: 60, wantStatus: StatusLost},
		{name: "hp floor at zero", maxSteps: 6, deltas: []int{-40, -40, -40}, wantHP: 0, wantStatus: StatusLost},
		{name: "reaching max steps wins", maxSteps: 2, deltas: []int{-5, -5}, wantHP: 90, wantStatus: StatusWon},
		{name: "positive delta never heals", maxSteps: 6, deltas: []int{-10, 20}, wantHP: 90, wantStatus: StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSession(tt.maxSteps)
			prev := s.HP
			for i, d := range tt.deltas {
				if s.Status != StatusActive {
					break
				}
				critical := tt.critical && i == len(tt.deltas)-1
				require.NoError(t, s.Apply(playerTurn(s.Step+1, d, critical)))
				assert.LessOrEqual(t, s.HP, prev, "hp must never increase")
				prev = s.HP
			}
			assert.Equal(t, tt.wantHP, s.HP)
			assert.Equal(t, tt.wantStatus, s.Status)
		})
	}
}

func TestSession_ApplyRejectsTerminalAndOutOfOrder(t *testing.T) {
	s := testSession(6)
	err := s.Apply(playerTurn(3, -5, false))
	assert.True(t, errors.Is(err, ErrState))

	require.NoError(t, s.Apply(playerTurn(1, -5, true)))
	assert.Equal(t, StatusLost, s.Status)
	err = s.Apply(playerTurn(2, -5, false))
	assert.True(t, errors.Is(err, ErrState))
}

func TestSession_Reset(t *testing.T) {
	s := testSession(6)
	id := s.ID
	s.Characters[0].Remember(chat.ChatMessage{Role: chat.ChatRoleUser, Content: "hello"})
	require.NoError(t, s.Apply(playerTurn(1, -40, true)))

	s.Reset(testEntry(), []CharacterInstance{{ID: "manager", Name: "Dana"}}, 100, 6)

	assert.Equal(t, id, s.ID)
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, 100, s.HP)
	assert.Equal(t, 0, s.Step)
	require.Len(t, s.History, 1)
	assert.Empty(t, s.Characters[0].Memory)
	assert.Equal(t, "Open the meeting.", s.Characters[0].Directive)
}

func TestSession_Clone(t *testing.T) {
	s := testSession(6)
	c, err := s.Clone()
	require.NoError(t, err)

	c.Characters[0].Remember(chat.ChatMessage{Role: chat.ChatRoleUser, Content: "x"})
	c.History[0].Choices[0].Label = "changed"

	assert.Empty(t, s.Characters[0].Memory)
	assert.Equal(t, "Ask for the agenda", s.History[0].Choices[0].Label)
}

func TestSession_ViewHidesValence(t *testing.T) {
	s := testSession(6)
	s.Characters[0].Remember(chat.ChatMessage{Role: chat.ChatRoleAssistant, Content: "secret memory"})
	require.NoError(t, s.Apply(playerTurn(1, -10, false)))

	data, err := json.Marshal(s.View())
	require.NoError(t, err)
	body := string(data)

	assert.NotContains(t, body, "valence")
	for _, v := range Valences {
		assert.NotContains(t, body, `"`+string(v)+`"`)
	}
	assert.NotContains(t, body, "secret memory")
	assert.NotContains(t, body, "A blunt manager.")

	view := s.View()
	require.NotNil(t, view.Current)
	assert.Len(t, view.Current.Choices, ChoicesPerTurn)
	assert.Equal(t, "Dana", view.Current.Reactions[0].Name)
	require.NotNil(t, view.Current.Score)
	assert.Equal(t, 70, *view.Current.Score)
}

func TestPlayerProfile_Validate(t *testing.T) {
	assert.NoError(t, PlayerProfile{Role: "analyst"}.Validate())
	err := PlayerProfile{Role: "analyst", Context: strings.Repeat("a", 4001)}.Validate()
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestUpstream(t *testing.T) {
	base := errors.New("timeout")
	err := Upstream(base)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.True(t, errors.Is(err, base))
	assert.Equal(t, err, Upstream(err))
	assert.Nil(t, Upstream(nil))
}
