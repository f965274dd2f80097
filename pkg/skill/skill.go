package skill

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Skill is a reusable behavior fragment that can be attached to a
// scenario character.
type Skill struct {
	ID              string   `yaml:"id" json:"id"`
	Name            string   `yaml:"name" json:"name"`
	Description     string   `yaml:"description" json:"description"`
	PromptInjection string   `yaml:"prompt_injection" json:"prompt_injection"`
	GrantsTools     []string `yaml:"grants_tools" json:"grants_tools,omitempty"`
	ConflictsWith   []string `yaml:"conflicts_with" json:"conflicts_with,omitempty"`
	Priority        int      `yaml:"priority" json:"priority"`
}

// Validate checks a single skill definition in isolation.
func (s Skill) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return state.Validationf("skill id is required")
	}
	if strings.TrimSpace(s.PromptInjection) == "" {
		return state.Validationf("skill %q: prompt_injection is required", s.ID)
	}
	if slices.Contains(s.ConflictsWith, s.ID) {
		return state.Validationf("skill %q conflicts with itself", s.ID)
	}
	return nil
}

// ConflictsWithSkill reports a conflict declared in either direction.
func (s Skill) ConflictsWithSkill(other Skill) bool {
	return slices.Contains(s.ConflictsWith, other.ID) || slices.Contains(other.ConflictsWith, s.ID)
}

// Conflict records a skill dropped during resolution.
type Conflict struct {
	Dropped string `json:"dropped"`
	Kept    string `json:"kept"`
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s dropped in favor of %s", c.Dropped, c.Kept)
}

// Resolved is a conflict-free skill set ready for prompt assembly.
type Resolved struct {
	Skills  []Skill
	Dropped []Conflict
}

// IDs returns the accepted skill ids in resolution order.
func (r Resolved) IDs() []string {
	ids := make([]string, len(r.Skills))
	for i, s := range r.Skills {
		ids[i] = s.ID
	}
	return ids
}

// PromptFragments returns each accepted skill's prompt injection.
func (r Resolved) PromptFragments() []string {
	out := make([]string, 0, len(r.Skills))
	for _, s := range r.Skills {
		out = append(out, strings.TrimSpace(s.PromptInjection))
	}
	return out
}

// Capabilities returns the sorted union of granted tools.
func (r Resolved) Capabilities() []string {
	var out []string
	for _, s := range r.Skills {
		for _, t := range s.GrantsTools {
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
	}
	slices.Sort(out)
	return out
}
