package guardrail

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/jwebster45206/scene-engine/internal/director"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// ErrUnrepairable is returned when decision output is too broken to
// clamp into a playable turn.
var ErrUnrepairable = errors.New("unrepairable decision output")

const (
	minSituationChars = 20
	minReasoningChars = 5

	DefaultReasoning = "No reasoning provided."
	DefaultDirective = "React naturally to what just happened, staying in character."
	DefaultBranch    = "main"
)

// ClampEvaluation bounds a raw evaluation to legal values. It never fails.
func (g *Guard) ClampEvaluation(eval state.Evaluation, scoring scenario.Scoring) state.Evaluation {
	floor := max(scoring.HPDeltaMin, g.cfg.HPDeltaMin)

	if eval.Score < 0 || eval.Score > 100 {
		clamped := min(max(eval.Score, 0), 100)
		g.clamped("score", eval.Score, clamped)
		eval.Score = clamped
	}
	if eval.HPDelta > 0 || eval.HPDelta < floor {
		clamped := min(max(eval.HPDelta, floor), 0)
		g.clamped("hp_delta", eval.HPDelta, clamped)
		eval.HPDelta = clamped
	}
	eval.Reasoning = strings.TrimSpace(eval.Reasoning)
	if utf8.RuneCountInString(eval.Reasoning) < minReasoningChars {
		g.clamped("reasoning", eval.Reasoning, DefaultReasoning)
		eval.Reasoning = DefaultReasoning
	}
	if !eval.IsCriticalFailure {
		eval.CriticalPatternID = ""
	}
	return eval
}

// ClampDirection repairs director output against the session roster.
// The returned output always satisfies: turn order is a duplicate-free
// subset of roster, every acting id has a directive and no other id
// does, every dependency points to an earlier actor, and there are
// exactly three choices with one of each valence.
func (g *Guard) ClampDirection(out director.Output, roster []string) (director.Output, error) {
	out = out.Clone()

	order := make([]string, 0, len(out.TurnOrder))
	for _, id := range out.TurnOrder {
		if !slices.Contains(roster, id) || slices.Contains(order, id) {
			g.clamped("turn_order", id, nil)
			continue
		}
		order = append(order, id)
	}
	out.TurnOrder = order

	for _, id := range order {
		if strings.TrimSpace(out.Directives[id]) == "" {
			g.clamped("directives", "", DefaultDirective, "character_id", id)
			out.Directives[id] = DefaultDirective
		}
	}
	for id := range out.Directives {
		if !slices.Contains(order, id) {
			delete(out.Directives, id)
		}
	}

	for id, target := range out.Dependencies {
		i, j := slices.Index(order, id), slices.Index(order, target)
		if i < 0 || j < 0 || j >= i {
			g.clamped("reacts_to", fmt.Sprintf("%s->%s", id, target), nil)
			delete(out.Dependencies, id)
		}
	}

	choices := make([]state.Choice, 0, state.ChoicesPerTurn)
	for _, c := range out.Choices {
		c.Label = strings.TrimSpace(c.Label)
		if c.Label == "" || slices.ContainsFunc(choices, func(o state.Choice) bool { return strings.EqualFold(o.Label, c.Label) }) {
			continue
		}
		choices = append(choices, c)
	}
	if len(choices) > state.ChoicesPerTurn {
		g.clamped("next_choices", len(choices), state.ChoicesPerTurn)
		choices = choices[:state.ChoicesPerTurn]
	}
	if len(choices) < state.ChoicesPerTurn {
		return director.Output{}, fmt.Errorf("%w: %d usable choices", ErrUnrepairable, len(choices))
	}
	out.Choices = g.normalizeValences(choices)

	out.Situation = strings.TrimSpace(out.Situation)
	if utf8.RuneCountInString(out.Situation) < minSituationChars {
		return director.Output{}, fmt.Errorf("%w: situation too short", ErrUnrepairable)
	}
	if strings.TrimSpace(out.Branch) == "" {
		out.Branch = DefaultBranch
	}
	return out, nil
}

// normalizeValences keeps the first valid occurrence of each valence and
// hands the missing valences to the remaining choices in order.
func (g *Guard) normalizeValences(choices []state.Choice) []state.Choice {
	seen := make(map[state.Valence]bool, len(state.Valences))
	var pending []int
	for i, c := range choices {
		if c.Valence.Valid() && !seen[c.Valence] {
			seen[c.Valence] = true
			continue
		}
		pending = append(pending, i)
	}
	for _, v := range state.Valences {
		if seen[v] {
			continue
		}
		i := pending[0]
		pending = pending[1:]
		g.clamped("valence", string(choices[i].Valence), string(v), "label", choices[i].Label)
		choices[i].Valence = v
	}
	return choices
}
