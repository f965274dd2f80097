package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/scene-engine/pkg/chat"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive Status = "active"
	StatusWon    Status = "won"
	StatusLost   Status = "lost"
)

// Terminal reports whether no further turns may be submitted.
func (s Status) Terminal() bool {
	return s == StatusWon || s == StatusLost
}

// Valence is the hidden quality tag of an offered choice.
// It is never serialized to the player; see SessionView.
type Valence string

const (
	ValencePositive Valence = "positive"
	ValenceNeutral  Valence = "neutral"
	ValenceNegative Valence = "negative"
)

// Valences lists every valence in canonical order.
var Valences = []Valence{ValencePositive, ValenceNeutral, ValenceNegative}

func (v Valence) Valid() bool {
	switch v {
	case ValencePositive, ValenceNeutral, ValenceNegative:
		return true
	}
	return false
}

// ChoicesPerTurn is the fixed number of options offered every turn.
const ChoicesPerTurn = 3

// MaxCharacters bounds the roster of a single session.
const MaxCharacters = 3

// Choice is an option offered to the player.
type Choice struct {
	Label   string  `json:"label"`
	Valence Valence `json:"valence"`
}

// Evaluation is the judged quality of one player response.
type Evaluation struct {
	Score             int    `json:"score"`
	HPDelta           int    `json:"hp_delta"`
	Reasoning         string `json:"reasoning"`
	IsCriticalFailure bool   `json:"is_critical_failure"`
	CriticalPatternID string `json:"critical_pattern_id,omitempty"`
}

// Reaction is one line of dialogue spoken by a character during a turn.
type Reaction struct {
	CharacterID string `json:"character_id"`
	Dialogue    string `json:"dialogue"`
}

// Turn is one entry in a session's history. The entry turn has step 0,
// no player choice and no evaluation. Every later turn records the
// player's response to the previous situation together with the new
// situation it produced.
type Turn struct {
	Step          int               `json:"step"`
	Situation     string            `json:"situation"`
	TurnOrder     []string          `json:"turn_order"`
	Directives    map[string]string `json:"directives"`
	Reactions     []Reaction        `json:"reactions"`
	Choices       []Choice          `json:"choices"`
	PlayerChoice  string            `json:"player_choice,omitempty"`
	Evaluation    *Evaluation       `json:"evaluation,omitempty"`
	HPDelta       int               `json:"hp_delta"`
	Branch        string            `json:"branch,omitempty"`
	ResolvedEarly bool              `json:"resolved_early,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// PlayerProfile describes who is playing. It tailors prompts but never
// changes scoring.
type PlayerProfile struct {
	Name      string `json:"name,omitempty"`
	Role      string `json:"role"`
	Seniority string `json:"seniority,omitempty"`
	Domain    string `json:"domain,omitempty"`
	Context   string `json:"context,omitempty"`
}

func (p PlayerProfile) Validate() error {
	if len(p.Role) > 200 || len(p.Seniority) > 100 || len(p.Domain) > 200 {
		return Validationf("player profile field too long")
	}
	if len(p.Context) > 4000 {
		return Validationf("player profile context exceeds 4000 characters")
	}
	return nil
}

// CharacterInstance is the live, per-session state of a scenario actor.
type CharacterInstance struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Role         string             `json:"role,omitempty"`
	Persona      string             `json:"persona"`
	Skills       []string           `json:"skills,omitempty"`
	Capabilities []string           `json:"capabilities,omitempty"`
	Memory       []chat.ChatMessage `json:"memory"`
	Directive    string             `json:"directive,omitempty"`
}

// Remember appends to the character's private memory log.
func (c *CharacterInstance) Remember(msgs ...chat.ChatMessage) {
	c.Memory = append(c.Memory, msgs...)
}

// Session is the full persisted record of one playthrough.
type Session struct {
	ID         uuid.UUID           `json:"id"`
	Profile    PlayerProfile       `json:"player_profile"`
	ModuleID   string              `json:"module_id"`
	ScenarioID string              `json:"scenario_id"`
	Characters []CharacterInstance `json:"characters"`
	History    []Turn              `json:"history"`
	HP         int                 `json:"hp"`
	MaxHP      int                 `json:"max_hp"`
	Step       int                 `json:"step"`
	MaxSteps   int                 `json:"max_steps"`
	Status     Status              `json:"status"`
	Version    int64               `json:"version"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// NewSession builds an active session positioned on its entry turn.
func NewSession(profile PlayerProfile, moduleID, scenarioID string, maxHP, maxSteps int, entry Turn, characters []CharacterInstance) *Session {
	now := time.Now()
	s := &Session{
		ID:         uuid.New(),
		Profile:    profile,
		ModuleID:   moduleID,
		ScenarioID: scenarioID,
		CreatedAt:  now,
	}
	s.Reset(entry, characters, maxHP, maxSteps)
	return s
}

// Reset puts the session back on its entry turn with full HP and fresh
// characters. Id, profile and version survive.
func (s *Session) Reset(entry Turn, characters []CharacterInstance, maxHP, maxSteps int) {
	entry.Step = 0
	entry.PlayerChoice = ""
	entry.Evaluation = nil
	entry.HPDelta = 0
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	for i := range characters {
		characters[i].Directive = entry.Directives[characters[i].ID]
	}
	s.Characters = characters
	s.History = []Turn{entry}
	s.HP = maxHP
	s.MaxHP = maxHP
	s.Step = 0
	s.MaxSteps = maxSteps
	s.Status = StatusActive
	s.UpdatedAt = time.Now()
}

// CurrentTurn returns the most recent turn, or nil for an empty history.
func (s *Session) CurrentTurn() *Turn {
	if len(s.History) == 0 {
		return nil
	}
	return &s.History[len(s.History)-1]
}

// Character looks up a roster member by id.
func (s *Session) Character(id string) *CharacterInstance {
	for i := range s.Characters {
		if s.Characters[i].ID == id {
			return &s.Characters[i]
		}
	}
	return nil
}

// RosterIDs returns character ids in roster order.
func (s *Session) RosterIDs() []string {
	ids := make([]string, len(s.Characters))
	for i, c := range s.Characters {
		ids[i] = c.ID
	}
	return ids
}

// Scores returns the evaluation scores of every judged turn in order.
func (s *Session) Scores() []int {
	var scores []int
	for _, t := range s.History {
		if t.Evaluation != nil {
			scores = append(scores, t.Evaluation.Score)
		}
	}
	return scores
}

// Apply commits a completed turn: HP drains by the (never positive)
// delta, the step advances and the terminal status is decided.
func (s *Session) Apply(t Turn) error {
	if s.Status != StatusActive {
		return Statef("session %s is %s", s.ID, s.Status)
	}
	if t.Step != s.Step+1 {
		return Statef("turn step %d does not follow step %d", t.Step, s.Step)
	}
	if t.HPDelta > 0 {
		t.HPDelta = 0
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	s.HP = max(0, s.HP+t.HPDelta)
	s.Step = t.Step
	s.History = append(s.History, t)

	switch {
	case s.HP <= 0 || (t.Evaluation != nil && t.Evaluation.IsCriticalFailure):
		s.Status = StatusLost
	case s.Step >= s.MaxSteps || t.ResolvedEarly:
		s.Status = StatusWon
	}
	s.UpdatedAt = time.Now()
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() (*Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	var c Session
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &c, nil
}
