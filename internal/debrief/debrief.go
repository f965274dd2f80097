package debrief

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/internal/services"
	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/prompts"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Debrief is the post-scenario coaching report.
type Debrief struct {
	SessionID           uuid.UUID       `json:"session_id"`
	ModuleID            string          `json:"module_id"`
	ScenarioID          string          `json:"scenario_id"`
	Outcome             state.Status    `json:"outcome"`
	OverallScore        int             `json:"overall_score"`
	FinalHP             int             `json:"final_hp"`
	MaxHP               int             `json:"max_hp"`
	Summary             string          `json:"summary"`
	TurnBreakdowns      []TurnBreakdown `json:"turn_breakdowns"`
	KeyConcepts         []string        `json:"key_concepts"`
	RecommendedFollowup []string        `json:"recommended_followup"`
}

type TurnBreakdown struct {
	Step            int    `json:"step"`
	PlayerChoice    string `json:"player_choice"`
	WhatHappened    string `json:"what_happened"`
	Insight         string `json:"insight"`
	Score           int    `json:"score"`
	HPDelta         int    `json:"hp_delta"`
	CriticalFailure bool   `json:"critical_failure,omitempty"`
}

type coachReply struct {
	Summary      string `json:"summary"`
	TurnInsights []struct {
		Step         int    `json:"step"`
		WhatHappened string `json:"what_happened"`
		Insight      string `json:"insight"`
	} `json:"turn_insights"`
	KeyConcepts         []string `json:"key_concepts"`
	RecommendedFollowup []string `json:"recommended_followup"`
}

// Summarizer writes debriefs for finished sessions.
type Summarizer struct {
	llm    services.LLMService
	logger *slog.Logger
}

func NewSummarizer(llm services.LLMService, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{llm: llm, logger: logger}
}

// Debrief reviews a terminal session. Outcome, scores and the list of
// breakdowns come from history; the coach model only supplies wording.
// candidates lists scenario ids that may be recommended next.
func (s *Summarizer) Debrief(ctx context.Context, sess *state.Session, scen *scenario.Scenario, candidates []string) (Debrief, error) {
	if !sess.Status.Terminal() {
		return Debrief{}, state.Statef("session %s is still %s", sess.ID, sess.Status)
	}
	d := Skeleton(sess)

	msgs, err := prompts.New().
		WithSystemPrompt(prompts.DebriefSystemPrompt).
		WithSystemPrompt(prompts.ScenarioContext(scen)).
		WithSystemPrompt(prompts.Rubric(scen.Rubric)).
		WithSystemPrompt(prompts.Profile(sess.Profile)).
		WithSystemPrompt(prompts.DebriefInstructions).
		WithUserMessage(reviewMessage(d, candidates)).
		Build()
	if err != nil {
		return Debrief{}, err
	}

	resp, err := s.llm.Structured(ctx, msgs)
	if err != nil {
		return Debrief{}, state.Upstream(err)
	}
	var reply coachReply
	if err := chat.DecodeJSON(resp.Message, &reply); err != nil {
		s.logger.Warn("Coach returned unparsable debrief", "session_id", sess.ID, "error", err)
		return Debrief{}, state.Upstream(fmt.Errorf("debrief output: %w", err))
	}

	if summary := strings.TrimSpace(reply.Summary); summary != "" {
		d.Summary = summary
	}
	for _, ti := range reply.TurnInsights {
		for i := range d.TurnBreakdowns {
			b := &d.TurnBreakdowns[i]
			if b.Step != ti.Step {
				continue
			}
			if w := strings.TrimSpace(ti.WhatHappened); w != "" {
				b.WhatHappened = w
			}
			if in := strings.TrimSpace(ti.Insight); in != "" {
				b.Insight = in
			}
		}
	}
	if kc := nonEmpty(reply.KeyConcepts); len(kc) > 0 {
		d.KeyConcepts = kc
	} else {
		d.KeyConcepts = append([]string{}, scen.Rubric.KeyConcepts...)
	}
	for _, id := range reply.RecommendedFollowup {
		id = strings.TrimSpace(id)
		if slices.Contains(candidates, id) && !slices.Contains(d.RecommendedFollowup, id) {
			d.RecommendedFollowup = append(d.RecommendedFollowup, id)
		}
	}
	return d, nil
}

// Skeleton computes the deterministic part of a debrief with fallback
// wording: evaluation reasoning as insight and the turn's situation as
// what happened.
func Skeleton(sess *state.Session) Debrief {
	d := Debrief{
		SessionID:           sess.ID,
		ModuleID:            sess.ModuleID,
		ScenarioID:          sess.ScenarioID,
		Outcome:             sess.Status,
		FinalHP:             sess.HP,
		MaxHP:               sess.MaxHP,
		TurnBreakdowns:      []TurnBreakdown{},
		KeyConcepts:         []string{},
		RecommendedFollowup: []string{},
	}
	var total int
	for _, t := range sess.History {
		if t.Evaluation == nil {
			continue
		}
		total += t.Evaluation.Score
		d.TurnBreakdowns = append(d.TurnBreakdowns, TurnBreakdown{
			Step:            t.Step,
			PlayerChoice:    t.PlayerChoice,
			WhatHappened:    t.Situation,
			Insight:         t.Evaluation.Reasoning,
			Score:           t.Evaluation.Score,
			HPDelta:         t.HPDelta,
			CriticalFailure: t.Evaluation.IsCriticalFailure,
		})
	}
	if n := len(d.TurnBreakdowns); n > 0 {
		d.OverallScore = int(math.Round(float64(total) / float64(n)))
	}
	d.Summary = fmt.Sprintf("You %s the scenario after %d turns with %d of %d HP remaining.",
		sess.Status, len(d.TurnBreakdowns), sess.HP, sess.MaxHP)
	return d
}

func reviewMessage(d Debrief, candidates []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Outcome: %s. Final HP: %d / %d. Overall score: %d.\n\n", d.Outcome, d.FinalHP, d.MaxHP, d.OverallScore)
	sb.WriteString("Turns:\n")
	for _, b := range d.TurnBreakdowns {
		fmt.Fprintf(&sb, "Step %d: player said %q | score %d | HP delta %d", b.Step, b.PlayerChoice, b.Score, b.HPDelta)
		if b.CriticalFailure {
			sb.WriteString(" | CRITICAL FAILURE")
		}
		fmt.Fprintf(&sb, " | judge: %s\n", b.Insight)
	}
	if len(candidates) > 0 {
		fmt.Fprintf(&sb, "\nCandidate follow-up scenario ids: %s\n", strings.Join(candidates, ", "))
	} else {
		sb.WriteString("\nNo follow-up scenarios are available; return an empty recommended_followup.\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
