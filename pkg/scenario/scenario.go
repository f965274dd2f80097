package scenario

import (
	"strings"
	"time"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Content ratings
const (
	RatingG    = "G"
	RatingPG   = "PG"
	RatingPG13 = "PG13"
	RatingR    = "R"
)

const (
	DefaultMaxSteps   = 6
	DefaultStartingHP = 100
	DefaultHPDeltaMin = -40
)

// Scenario is one playable, self-contained narrative situation inside a
// module. Scenarios are loaded once at startup and never mutated.
type Scenario struct {
	ID                   string          `yaml:"id" json:"id"`
	ModuleID             string          `yaml:"module_id" json:"module_id"`
	Title                string          `yaml:"title" json:"title"`
	Version              string          `yaml:"version" json:"version,omitempty"`
	Goal                 string          `yaml:"goal" json:"goal"`
	Setup                string          `yaml:"setup" json:"setup,omitempty"`
	Rating               string          `yaml:"rating" json:"rating,omitempty"`
	MaxSteps             int             `yaml:"max_steps" json:"max_steps"`
	StartingHP           int             `yaml:"starting_hp" json:"starting_hp"`
	AllowEarlyResolution bool            `yaml:"allow_early_resolution" json:"allow_early_resolution"`
	EarlyResolution      EarlyResolution `yaml:"early_resolution" json:"early_resolution"`
	Scoring              Scoring         `yaml:"scoring" json:"scoring"`
	Rubric               Rubric          `yaml:"rubric" json:"rubric"`
	EntryTurn            EntryTurn       `yaml:"entry_turn" json:"entry_turn"`
	Actors               []Actor         `yaml:"actors" json:"actors"`
}

// EarlyResolution governs when a scenario may be won before max steps.
type EarlyResolution struct {
	MinSteps int `yaml:"min_steps" json:"min_steps"`
	Window   int `yaml:"window" json:"window"`
	MinScore int `yaml:"min_score" json:"min_score"`
}

// Scoring maps evaluation scores to HP damage.
type Scoring struct {
	HPDeltaMin int    `yaml:"hp_delta_min" json:"hp_delta_min"`
	Bands      []Band `yaml:"bands" json:"bands"`
}

// Band is an inclusive score range with the HP delta range it maps to.
// MinDelta is the larger loss and pairs with MinScore.
type Band struct {
	MinScore int `yaml:"min_score" json:"min_score"`
	MaxScore int `yaml:"max_score" json:"max_score"`
	MinDelta int `yaml:"min_delta" json:"min_delta"`
	MaxDelta int `yaml:"max_delta" json:"max_delta"`
}

func (b Band) Contains(score int) bool {
	return score >= b.MinScore && score <= b.MaxScore
}

// DefaultBands apply when a scenario declares none.
var DefaultBands = []Band{
	{MinScore: 80, MaxScore: 100, MinDelta: -5, MaxDelta: 0},
	{MinScore: 60, MaxScore: 79, MinDelta: -15, MaxDelta: -6},
	{MinScore: 40, MaxScore: 59, MinDelta: -25, MaxDelta: -16},
	{MinScore: 0, MaxScore: 39, MinDelta: -40, MaxDelta: -26},
}

// Band returns the scoring band containing score.
func (s Scoring) Band(score int) (Band, bool) {
	for _, b := range s.Bands {
		if b.Contains(score) {
			return b, true
		}
	}
	return Band{}, false
}

type Rubric struct {
	Goal             string            `yaml:"goal" json:"goal"`
	KeyConcepts      []string          `yaml:"key_concepts" json:"key_concepts"`
	FewShotExamples  []FewShotExample  `yaml:"few_shot_examples" json:"few_shot_examples"`
	CriticalFailures []CriticalFailure `yaml:"critical_failures" json:"critical_failures"`
}

type FewShotExample struct {
	Choice    string `yaml:"choice" json:"choice"`
	Score     int    `yaml:"score" json:"score"`
	Reasoning string `yaml:"reasoning" json:"reasoning"`
}

// CriticalFailure is an enumerated response pattern that immediately
// ends the session as lost.
type CriticalFailure struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description" json:"description"`
}

// FindCriticalFailure looks up an enumerated pattern by id.
func (r Rubric) FindCriticalFailure(id string) (CriticalFailure, bool) {
	for _, cf := range r.CriticalFailures {
		if strings.EqualFold(cf.ID, id) {
			return cf, true
		}
	}
	return CriticalFailure{}, false
}

type EntryTurn struct {
	Situation      string            `yaml:"situation" json:"situation"`
	TurnOrder      []string          `yaml:"turn_order" json:"turn_order"`
	Directives     map[string]string `yaml:"directives" json:"directives"`
	ActorReactions []EntryReaction   `yaml:"actor_reactions" json:"actor_reactions"`
	ChoicesOffered []EntryChoice     `yaml:"choices_offered" json:"choices_offered"`
}

type EntryReaction struct {
	ActorID  string `yaml:"actor_id" json:"actor_id"`
	Dialogue string `yaml:"dialogue" json:"dialogue"`
}

type EntryChoice struct {
	Label   string        `yaml:"label" json:"label"`
	Valence state.Valence `yaml:"valence" json:"valence"`
}

// Actor is a character template from which CharacterInstances are built.
type Actor struct {
	ID          string   `yaml:"actor_id" json:"actor_id"`
	Name        string   `yaml:"name" json:"name"`
	Persona     string   `yaml:"persona" json:"persona"`
	Role        string   `yaml:"role" json:"role"`
	Personality string   `yaml:"personality" json:"personality"`
	Skills      []string `yaml:"skills" json:"skills"`
	Tools       []string `yaml:"tools" json:"tools"`
}

// Actor looks up a roster member by id.
func (s *Scenario) Actor(id string) (Actor, bool) {
	for _, a := range s.Actors {
		if a.ID == id {
			return a, true
		}
	}
	return Actor{}, false
}

// ActorIDs returns roster ids in declaration order.
func (s *Scenario) ActorIDs() []string {
	ids := make([]string, len(s.Actors))
	for i, a := range s.Actors {
		ids[i] = a.ID
	}
	return ids
}

// ApplyDefaults fills optional fields. The catalog calls it after decoding.
func (s *Scenario) ApplyDefaults() {
	if s.MaxSteps == 0 {
		s.MaxSteps = DefaultMaxSteps
	}
	if s.StartingHP == 0 {
		s.StartingHP = DefaultStartingHP
	}
	if s.Rating == "" {
		s.Rating = RatingPG13
	}
	if s.Goal == "" {
		s.Goal = s.Rubric.Goal
	}
	if s.Rubric.Goal == "" {
		s.Rubric.Goal = s.Goal
	}
	if s.Scoring.HPDeltaMin == 0 {
		s.Scoring.HPDeltaMin = DefaultHPDeltaMin
	}
	if len(s.Scoring.Bands) == 0 {
		s.Scoring.Bands = append([]Band(nil), DefaultBands...)
	}
	er := &s.EarlyResolution
	if er.MinSteps == 0 {
		er.MinSteps = max(2, s.MaxSteps/2)
	}
	if er.Window == 0 {
		er.Window = 2
	}
	if er.MinScore == 0 {
		er.MinScore = 85
	}
	for i := range s.Actors {
		if s.Actors[i].Name == "" {
			s.Actors[i].Name = s.Actors[i].ID
		}
	}
}

// ScoringOrDefault returns the scenario's scoring table, falling back to
// the default floor and bands for fields left empty.
func (s *Scenario) ScoringOrDefault() Scoring {
	sc := s.Scoring
	if sc.HPDeltaMin == 0 {
		sc.HPDeltaMin = DefaultHPDeltaMin
	}
	if len(sc.Bands) == 0 {
		sc.Bands = DefaultBands
	}
	return sc
}

// Band returns the scoring band containing score.
func (s *Scenario) Band(score int) (Band, bool) {
	return s.ScoringOrDefault().Band(score)
}

// EntryState converts the authored entry turn into history turn 0.
func (s *Scenario) EntryState() state.Turn {
	t := state.Turn{
		Step:       0,
		Situation:  s.EntryTurn.Situation,
		TurnOrder:  append([]string(nil), s.EntryTurn.TurnOrder...),
		Directives: make(map[string]string, len(s.EntryTurn.Directives)),
		Reactions:  make([]state.Reaction, 0, len(s.EntryTurn.ActorReactions)),
		Choices:    make([]state.Choice, 0, len(s.EntryTurn.ChoicesOffered)),
		Branch:     "entry",
		CreatedAt:  time.Now(),
	}
	for id, d := range s.EntryTurn.Directives {
		t.Directives[id] = d
	}
	for _, r := range s.EntryTurn.ActorReactions {
		t.Reactions = append(t.Reactions, state.Reaction{CharacterID: r.ActorID, Dialogue: r.Dialogue})
	}
	for _, c := range s.EntryTurn.ChoicesOffered {
		t.Choices = append(t.Choices, state.Choice{Label: c.Label, Valence: c.Valence})
	}
	return t
}
