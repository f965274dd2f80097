package scenario

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/skill"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Validate checks a decoded scenario for internal consistency. When
// skills is non-nil every actor skill id must be registered. All
// problems are reported together, wrapped in state.ErrValidation.
func (s *Scenario) Validate(skills *skill.Registry) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(s.ID) == "" {
		add("id is required")
	}
	if strings.TrimSpace(s.Title) == "" {
		add("title is required")
	}
	if s.MaxSteps <= 0 {
		add("max_steps must be positive")
	}
	if s.StartingHP <= 0 {
		add("starting_hp must be positive")
	}
	switch s.Rating {
	case RatingG, RatingPG, RatingPG13, RatingR:
	default:
		add("unknown rating %q", s.Rating)
	}

	// roster
	if len(s.Actors) == 0 || len(s.Actors) > state.MaxCharacters {
		add("scenario must have between 1 and %d actors, has %d", state.MaxCharacters, len(s.Actors))
	}
	roster := make(map[string]bool, len(s.Actors))
	for _, a := range s.Actors {
		if a.ID == "" {
			add("actor with empty actor_id")
			continue
		}
		if roster[a.ID] {
			add("duplicate actor_id %q", a.ID)
		}
		roster[a.ID] = true
		if strings.TrimSpace(a.Persona) == "" {
			add("actor %q: persona is required", a.ID)
		}
		if skills != nil {
			for _, id := range a.Skills {
				if _, ok := skills.Get(id); !ok {
					add("actor %q: unknown skill %q", a.ID, id)
				}
			}
		}
	}

	// entry turn
	et := s.EntryTurn
	if len(strings.TrimSpace(et.Situation)) < 20 {
		add("entry_turn.situation must be at least 20 characters")
	}
	for _, id := range et.TurnOrder {
		if !roster[id] {
			add("entry_turn.turn_order references unknown actor %q", id)
		}
		if strings.TrimSpace(et.Directives[id]) == "" {
			add("entry_turn has no directive for acting actor %q", id)
		}
	}
	for id := range et.Directives {
		if !roster[id] {
			add("entry_turn.directives references unknown actor %q", id)
		}
	}
	for _, r := range et.ActorReactions {
		if !roster[r.ActorID] {
			add("entry_turn.actor_reactions references unknown actor %q", r.ActorID)
		}
	}
	if err := validateChoices(et.ChoicesOffered); err != nil {
		add("entry_turn: %v", err)
	}

	// scoring
	if s.Scoring.HPDeltaMin > 0 {
		add("scoring.hp_delta_min must not be positive")
	}
	for i, b := range s.Scoring.Bands {
		if b.MinScore < 0 || b.MaxScore > 100 || b.MinScore > b.MaxScore {
			add("scoring band %d: invalid score range [%d, %d]", i, b.MinScore, b.MaxScore)
		}
		if b.MinDelta > b.MaxDelta || b.MaxDelta > 0 || b.MinDelta < s.Scoring.HPDeltaMin {
			add("scoring band %d: delta range [%d, %d] outside [%d, 0]", i, b.MinDelta, b.MaxDelta, s.Scoring.HPDeltaMin)
		}
	}

	// rubric
	seen := make(map[string]bool)
	for _, cf := range s.Rubric.CriticalFailures {
		id := strings.ToLower(cf.ID)
		if id == "" {
			add("critical failure with empty id")
			continue
		}
		if seen[id] {
			add("duplicate critical failure id %q", cf.ID)
		}
		seen[id] = true
	}

	if len(errs) > 0 {
		return state.Validationf("scenario %q: %s", s.ID, strings.Join(errs, "; "))
	}
	return nil
}

func validateChoices(choices []EntryChoice) error {
	if len(choices) != state.ChoicesPerTurn {
		return fmt.Errorf("expected exactly %d choices, got %d", state.ChoicesPerTurn, len(choices))
	}
	var found []state.Valence
	for _, c := range choices {
		if strings.TrimSpace(c.Label) == "" {
			return errors.New("choice with empty label")
		}
		if !c.Valence.Valid() {
			return fmt.Errorf("choice %q has invalid valence %q", c.Label, c.Valence)
		}
		if slices.Contains(found, c.Valence) {
			return fmt.Errorf("duplicate valence %q", c.Valence)
		}
		found = append(found, c.Valence)
	}
	return nil
}
