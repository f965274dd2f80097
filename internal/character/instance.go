package character

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/skill"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Instantiate builds fresh character instances for every actor in the
// scenario roster. Skill conflicts are resolved per actor and the
// surviving prompt fragments are folded into the persona text.
func Instantiate(scen *scenario.Scenario, skills *skill.Registry) ([]state.CharacterInstance, error) {
	if len(scen.Actors) > state.MaxCharacters {
		return nil, state.Validationf("scenario %q has %d actors, max %d", scen.ID, len(scen.Actors), state.MaxCharacters)
	}
	out := make([]state.CharacterInstance, 0, len(scen.Actors))
	for _, a := range scen.Actors {
		resolved, err := skills.Resolve(a.Skills)
		if err != nil {
			return nil, fmt.Errorf("actor %q: %w", a.ID, err)
		}
		capabilities := append(resolved.Capabilities(), a.Tools...)
		out = append(out, state.CharacterInstance{
			ID:           a.ID,
			Name:         a.Name,
			Role:         a.Role,
			Persona:      personaText(a, resolved),
			Skills:       resolved.IDs(),
			Capabilities: dedupe(capabilities),
			Memory:       nil,
		})
	}
	return out, nil
}

func personaText(a scenario.Actor, resolved skill.Resolved) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s", a.Name)
	if a.Role != "" {
		fmt.Fprintf(&sb, ", the %s", a.Role)
	}
	sb.WriteString(".\n")
	sb.WriteString(strings.TrimSpace(a.Persona))
	if a.Personality != "" {
		fmt.Fprintf(&sb, "\nPersonality: %s", strings.TrimSpace(a.Personality))
	}
	if frags := resolved.PromptFragments(); len(frags) > 0 {
		sb.WriteString("\nHow you behave:")
		for _, f := range frags {
			sb.WriteString("\n- " + f)
		}
	}
	return sb.String()
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
