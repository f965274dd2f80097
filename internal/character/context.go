package character

import (
	"github.com/jwebster45206/scene-engine/pkg/prompts"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

const summaryTurns = 4

// SharedContext is what every character may know about the turn. It is
// built from public session data only and never carries another
// character's memory or the hidden valence of offered choices.
type SharedContext struct {
	ScenarioContext string
	Roster          string
	Profile         string
	Rating          string
	// Recent is a transcript of the last few public turns.
	Recent       string
	Situation    string
	PlayerChoice string
	Step         int
}

// NewSharedContext projects the public parts of a session for the turn
// being played.
func NewSharedContext(sess *state.Session, scen *scenario.Scenario, situation, playerChoice string) SharedContext {
	names := make(map[string]string, len(sess.Characters))
	actors := make([]scenario.Actor, 0, len(sess.Characters))
	for _, c := range sess.Characters {
		names[c.ID] = c.Name
		actors = append(actors, scenario.Actor{ID: c.ID, Name: c.Name, Role: c.Role})
	}
	return SharedContext{
		ScenarioContext: prompts.ScenarioContext(scen),
		Roster:          prompts.Roster(actors),
		Profile:         prompts.Profile(sess.Profile),
		Rating:          scen.Rating,
		Recent:          prompts.History(sess.History, names, summaryTurns),
		Situation:       situation,
		PlayerChoice:    playerChoice,
		Step:            sess.Step + 1,
	}
}
