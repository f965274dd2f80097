package state

import (
	"time"

	"github.com/google/uuid"
)

// SessionView is the player-facing projection of a Session. It carries no
// valence, persona text or character memory.
type SessionView struct {
	ID         uuid.UUID       `json:"id"`
	Profile    PlayerProfile   `json:"player_profile"`
	ModuleID   string          `json:"module_id"`
	ScenarioID string          `json:"scenario_id"`
	Roster     []CharacterView `json:"roster"`
	HP         int             `json:"hp"`
	MaxHP      int             `json:"max_hp"`
	Step       int             `json:"step"`
	MaxSteps   int             `json:"max_steps"`
	Status     Status          `json:"status"`
	Version    int64           `json:"version"`
	Current    *TurnView       `json:"current_turn,omitempty"`
	History    []TurnView      `json:"history"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type CharacterView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type ReactionView struct {
	CharacterID string `json:"character_id"`
	Name        string `json:"name"`
	Dialogue    string `json:"dialogue"`
}

// TurnView exposes choice labels only.
type TurnView struct {
	Step            int            `json:"step"`
	Situation       string         `json:"situation"`
	Reactions       []ReactionView `json:"reactions"`
	Choices         []string       `json:"choices"`
	PlayerChoice    string         `json:"player_choice,omitempty"`
	Score           *int           `json:"score,omitempty"`
	Reasoning       string         `json:"reasoning,omitempty"`
	CriticalFailure bool           `json:"critical_failure,omitempty"`
	HPDelta         int            `json:"hp_delta"`
	ResolvedEarly   bool           `json:"resolved_early,omitempty"`
}

// View projects the session for API responses and events.
func (s *Session) View() SessionView {
	v := SessionView{
		ID:         s.ID,
		Profile:    s.Profile,
		ModuleID:   s.ModuleID,
		ScenarioID: s.ScenarioID,
		Roster:     make([]CharacterView, 0, len(s.Characters)),
		HP:         s.HP,
		MaxHP:      s.MaxHP,
		Step:       s.Step,
		MaxSteps:   s.MaxSteps,
		Status:     s.Status,
		Version:    s.Version,
		History:    make([]TurnView, 0, len(s.History)),
		UpdatedAt:  s.UpdatedAt,
	}
	names := make(map[string]string, len(s.Characters))
	for _, c := range s.Characters {
		names[c.ID] = c.Name
		v.Roster = append(v.Roster, CharacterView{ID: c.ID, Name: c.Name, Role: c.Role})
	}
	for _, t := range s.History {
		v.History = append(v.History, t.view(names))
	}
	if n := len(v.History); n > 0 {
		cur := v.History[n-1]
		v.Current = &cur
	}
	return v
}

func (t Turn) view(names map[string]string) TurnView {
	tv := TurnView{
		Step:          t.Step,
		Situation:     t.Situation,
		Reactions:     make([]ReactionView, 0, len(t.Reactions)),
		Choices:       make([]string, 0, len(t.Choices)),
		PlayerChoice:  t.PlayerChoice,
		HPDelta:       t.HPDelta,
		ResolvedEarly: t.ResolvedEarly,
	}
	for _, r := range t.Reactions {
		tv.Reactions = append(tv.Reactions, ReactionView{
			CharacterID: r.CharacterID,
			Name:        names[r.CharacterID],
			Dialogue:    r.Dialogue,
		})
	}
	for _, c := range t.Choices {
		tv.Choices = append(tv.Choices, c.Label)
	}
	if t.Evaluation != nil {
		score := t.Evaluation.Score
		tv.Score = &score
		tv.Reasoning = t.Evaluation.Reasoning
		tv.CriticalFailure = t.Evaluation.IsCriticalFailure
	}
	return tv
}
