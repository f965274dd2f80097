package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/jwebster45206/scene-engine/internal/services"
	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/prompts"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

const historyTurns = 8

// Request is one player response to judge.
type Request struct {
	PlayerChoice string
	Situation    string
	Scenario     *scenario.Scenario
	History      []state.Turn
	Profile      state.PlayerProfile
	// Names maps character ids to display names for the history transcript.
	Names map[string]string
}

// Evaluator scores player responses against a scenario rubric.
type Evaluator struct {
	llm    services.LLMService
	logger *slog.Logger
}

func New(llm services.LLMService, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{llm: llm, logger: logger}
}

type judgement struct {
	Score             float64 `json:"score"`
	Reasoning         string  `json:"reasoning"`
	CriticalFailureID string  `json:"critical_failure_id"`
}

// Score judges req.PlayerChoice. The HP delta is derived from the score
// through the scenario's scoring bands rather than taken from the judge.
// The returned score is unclamped; the guardrail bounds it.
func (e *Evaluator) Score(ctx context.Context, req Request) (state.Evaluation, error) {
	if req.Scenario == nil {
		return state.Evaluation{}, fmt.Errorf("evaluator: scenario is required")
	}
	scen := req.Scenario

	b := prompts.New().
		WithSystemPrompt(prompts.EvaluatorSystemPrompt).
		WithSystemPrompt(prompts.ScenarioContext(scen)).
		WithSystemPrompt(prompts.Roster(scen.Actors)).
		WithSystemPrompt(prompts.Rubric(scen.Rubric)).
		WithSystemPrompt(prompts.Profile(req.Profile))
	if h := prompts.History(req.History, req.Names, historyTurns); h != "" {
		b.WithSystemPrompt("Conversation so far:\n" + h)
	}
	msgs, err := b.
		WithSystemPrompt(prompts.EvaluatorInstructions).
		WithUserMessage(fmt.Sprintf("Current situation: %s\n\nThe player responded: %q", req.Situation, req.PlayerChoice)).
		Build()
	if err != nil {
		return state.Evaluation{}, err
	}

	resp, err := e.llm.Structured(ctx, msgs)
	if err != nil {
		return state.Evaluation{}, state.Upstream(err)
	}

	var j judgement
	if err := chat.DecodeJSON(resp.Message, &j); err != nil {
		e.logger.Warn("Evaluator returned unparsable output", "error", err)
		return state.Evaluation{}, state.Upstream(fmt.Errorf("evaluator output: %w", err))
	}

	eval := state.Evaluation{
		Score:     int(math.Round(j.Score)),
		Reasoning: strings.TrimSpace(j.Reasoning),
	}
	eval.HPDelta = HPDelta(scen.ScoringOrDefault(), min(max(eval.Score, 0), 100))

	if id := strings.TrimSpace(j.CriticalFailureID); id != "" {
		if cf, ok := scen.Rubric.FindCriticalFailure(id); ok {
			eval.IsCriticalFailure = true
			eval.CriticalPatternID = cf.ID
		} else {
			e.logger.Warn("Ignoring unknown critical failure id", "critical_failure_id", id, "scenario_id", scen.ID)
		}
	}
	return eval, nil
}

// HPDelta maps a score in [0,100] to an HP delta by linear interpolation
// inside its band. Fractions round toward less damage and the result is
// bounded by [scoring.HPDeltaMin, 0].
func HPDelta(scoring scenario.Scoring, score int) int {
	floor := scoring.HPDeltaMin
	if floor >= 0 {
		floor = scenario.DefaultHPDeltaMin
	}

	var delta int
	band, ok := scoring.Band(score)
	switch {
	case !ok:
		// gap in the band table: scale over the whole range; integer
		// division truncates toward zero, which is less damage
		delta = floor * (100 - score) / 100
	case band.MaxScore == band.MinScore:
		delta = band.MaxDelta
	default:
		n := (score - band.MinScore) * (band.MaxDelta - band.MinDelta)
		d := band.MaxScore - band.MinScore
		delta = band.MinDelta + (n+d-1)/d
	}
	return min(max(delta, floor), 0)
}
