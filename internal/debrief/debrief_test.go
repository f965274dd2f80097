package debrief

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jwebster45206/scene-engine/internal/services"
	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func finishedSession(t *testing.T) (*state.Session, *scenario.Scenario) {
	t.Helper()
	scen, err := scenario.LoadFile("../../data/modules/workplace-conduct/scenarios/credit-grab.yaml")
	require.NoError(t, err)
	sess := state.NewSession(state.PlayerProfile{Role: "engineer"}, scen.ModuleID, scen.ID, 100, 5, scen.EntryState(), nil)

	turns := []struct {
		choice string
		score  int
		delta  int
		crit   bool
	}{
		{"Explain calmly", 70, -10, false},
		{"Ask Jordan for his view", 71, -10, false},
		{"Tell Jordan he is a fraud", 4, -38, true},
	}
	for i, tt := range turns {
		require.NoError(t, sess.Apply(state.Turn{
			Step:         i + 1,
			Situation:    "Situation after step.",
			PlayerChoice: tt.choice,
			Evaluation:   &state.Evaluation{Score: tt.score, HPDelta: tt.delta, Reasoning: "Judge note.", IsCriticalFailure: tt.crit},
			HPDelta:      tt.delta,
		}))
	}
	require.Equal(t, state.StatusLost, sess.Status)
	return sess, scen
}

func TestSkeleton(t *testing.T) {
	sess, _ := finishedSession(t)
	d := Skeleton(sess)
	assert.Equal(t, state.StatusLost, d.Outcome)
	assert.Equal(t, 48, d.OverallScore)
	assert.Equal(t, 42, d.FinalHP)
	require.Len(t, d.TurnBreakdowns, 3)
	assert.Equal(t, 1, d.TurnBreakdowns[0].Step)
	assert.Equal(t, "Judge note.", d.TurnBreakdowns[0].Insight)
	assert.True(t, d.TurnBreakdowns[2].CriticalFailure)
	assert.Equal(t, -38, d.TurnBreakdowns[2].HPDelta)
	assert.Contains(t, d.Summary, "lost")
}

func TestDebrief_MergesCoachWording(t *testing.T) {
	sess, scen := finishedSession(t)
	mock := &services.MockLLMAPI{
		StructuredFunc: func(ctx context.Context, msgs []chat.ChatMessage) (*chat.ChatResponse, error) {
			return &chat.ChatResponse{Message: `{
				"summary": "You started well but lost your composure.",
				"turn_insights": [
					{"step": 1, "what_happened": "You stated the facts.", "insight": "Good use of facts."},
					{"step": 3, "what_happened": "", "insight": "Name-calling ended the conversation."},
					{"step": 9, "what_happened": "Imaginary turn.", "insight": "Should be ignored."}
				],
				"key_concepts": [],
				"recommended_followup": ["reporting-concern", "made-up", "reporting-concern"]
			}`}, nil
		},
	}
	d, err := NewSummarizer(mock, quietLogger()).Debrief(context.Background(), sess, scen, []string{"reporting-concern"})
	require.NoError(t, err)

	assert.Equal(t, "You started well but lost your composure.", d.Summary)
	assert.Equal(t, 48, d.OverallScore)
	require.Len(t, d.TurnBreakdowns, 3)
	assert.Equal(t, "You stated the facts.", d.TurnBreakdowns[0].WhatHappened)
	assert.Equal(t, "Good use of facts.", d.TurnBreakdowns[0].Insight)
	assert.Equal(t, "Judge note.", d.TurnBreakdowns[1].Insight)
	assert.Equal(t, "Situation after step.", d.TurnBreakdowns[2].WhatHappened)
	assert.Equal(t, "Name-calling ended the conversation.", d.TurnBreakdowns[2].Insight)
	assert.Equal(t, scen.Rubric.KeyConcepts, d.KeyConcepts)
	assert.Equal(t, []string{"reporting-concern"}, d.RecommendedFollowup)
}

func TestDebrief_RequiresTerminalSession(t *testing.T) {
	scen, err := scenario.LoadFile("../../data/modules/workplace-conduct/scenarios/credit-grab.yaml")
	require.NoError(t, err)
	sess := state.NewSession(state.PlayerProfile{}, scen.ModuleID, scen.ID, 100, 5, scen.EntryState(), nil)
	mock := services.NewMockLLMAPI()
	_, err = NewSummarizer(mock, quietLogger()).Debrief(context.Background(), sess, scen, nil)
	assert.ErrorIs(t, err, state.ErrState)
	assert.Zero(t, mock.StructuredCallCount())
}

func TestDebrief_UpstreamFailure(t *testing.T) {
	sess, scen := finishedSession(t)
	mock := &services.MockLLMAPI{
		StructuredFunc: func(ctx context.Context, msgs []chat.ChatMessage) (*chat.ChatResponse, error) {
			return nil, errors.New("quota exceeded")
		},
	}
	_, err := NewSummarizer(mock, quietLogger()).Debrief(context.Background(), sess, scen, nil)
	assert.ErrorIs(t, err, state.ErrUpstream)
}
