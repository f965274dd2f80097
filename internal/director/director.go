package director

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jwebster45206/scene-engine/internal/services"
	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/prompts"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

const historyTurns = 6

// Request carries everything the director needs to plan the next turn.
// Session is read only; Evaluation is the clamped score of PlayerChoice.
type Request struct {
	Session      *state.Session
	Scenario     *scenario.Scenario
	PlayerChoice string
	Evaluation   state.Evaluation
}

// Director plans each turn: who reacts, with what intent, what the
// player sees next and which options they get.
type Director struct {
	llm    services.LLMService
	logger *slog.Logger
}

func New(llm services.LLMService, logger *slog.Logger) *Director {
	if logger == nil {
		logger = slog.Default()
	}
	return &Director{llm: llm, logger: logger}
}

// Advance asks the decision model for the next turn plan. The returned
// output is raw: callers must clamp it against the roster before use.
// EarlyResolution is already gated by the scenario's early resolution rules.
func (d *Director) Advance(ctx context.Context, req Request) (Output, error) {
	sess, scen := req.Session, req.Scenario
	if sess == nil || scen == nil {
		return Output{}, fmt.Errorf("director: session and scenario are required")
	}
	step := sess.Step + 1
	phase := Phase(step, sess.MaxSteps)

	names := make(map[string]string, len(sess.Characters))
	actors := make([]scenario.Actor, 0, len(sess.Characters))
	for _, c := range sess.Characters {
		names[c.ID] = c.Name
		actors = append(actors, scenario.Actor{ID: c.ID, Name: c.Name, Role: c.Role})
	}

	b := prompts.New().
		WithSystemPrompt(prompts.DirectorSystemPrompt).
		WithSystemPrompt(prompts.ScenarioContext(scen)).
		WithSystemPrompt(prompts.Roster(actors)).
		WithSystemPrompt(prompts.Profile(sess.Profile))
	if h := prompts.History(sess.History, names, historyTurns); h != "" {
		b.WithSystemPrompt("Story so far:\n" + h)
	}
	msgs, err := b.
		WithSystemPrompt(prompts.DirectorInstructions).
		WithUserMessage(turnMessage(req, step, phase)).
		Build()
	if err != nil {
		return Output{}, err
	}

	resp, err := d.llm.Structured(ctx, msgs)
	if err != nil {
		return Output{}, state.Upstream(err)
	}

	var out Output
	if err := chat.DecodeJSON(resp.Message, &out); err != nil {
		d.logger.Warn("Director returned unparsable output", "session_id", sess.ID, "step", step, "error", err)
		return Output{}, state.Upstream(fmt.Errorf("director output: %w", err))
	}
	if out.Directives == nil {
		out.Directives = map[string]string{}
	}

	requested := out.EarlyResolution
	out.EarlyResolution = EarlyResolutionAllowed(scen, sess.Scores(), req.Evaluation.Score, step, requested)
	if requested != out.EarlyResolution {
		d.logger.Debug("Early resolution overridden", "session_id", sess.ID, "step", step, "requested", requested)
	}

	d.logger.Debug("Director planned turn",
		"session_id", sess.ID,
		"step", step,
		"phase", phase,
		"turn_order", out.TurnOrder,
		"branch", out.Branch,
		"early_resolution", out.EarlyResolution)
	return out, nil
}

func turnMessage(req Request, step int, phase ScenePhase) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Player responded: %q\n", req.PlayerChoice)
	fmt.Fprintf(&sb, "Evaluation score: %d. Reasoning: %s\n", req.Evaluation.Score, req.Evaluation.Reasoning)
	if req.Evaluation.IsCriticalFailure {
		sb.WriteString("The response was a critical failure; the scene should show its consequences.\n")
	}
	fmt.Fprintf(&sb, "Now planning step %d of %d. Phase: %s. %s\n", step, req.Session.MaxSteps, phase, phase.Tone())
	if cur := req.Session.CurrentTurn(); cur != nil {
		fmt.Fprintf(&sb, "Previous situation: %s\n", cur.Situation)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// EarlyResolutionAllowed decides whether the turn being planned may end
// the scenario as won before max steps. prior holds the scores of turns
// already in history and score is the score of the current response.
func EarlyResolutionAllowed(scen *scenario.Scenario, prior []int, score, step int, requested bool) bool {
	er := scen.EarlyResolution
	if !scen.AllowEarlyResolution || step < er.MinSteps {
		return false
	}
	if score < er.MinScore {
		return false
	}
	if requested {
		return true
	}
	if er.Window <= 0 {
		return false
	}
	scores := append(append([]int(nil), prior...), score)
	if len(scores) < er.Window {
		return false
	}
	for _, s := range scores[len(scores)-er.Window:] {
		if s < er.MinScore {
			return false
		}
	}
	return true
}
