package director

import "github.com/jwebster45206/scene-engine/pkg/state"

// Output is the director's plan for one turn. It is clamped by the
// guardrail before anything acts on it.
type Output struct {
	TurnOrder  []string          `json:"turn_order"`
	Directives map[string]string `json:"directives"`
	// Dependencies maps a character id to the id whose line it must
	// react to. The target always acts earlier in TurnOrder.
	Dependencies    map[string]string `json:"reacts_to,omitempty"`
	Situation       string            `json:"situation"`
	Choices         []state.Choice    `json:"next_choices"`
	Branch          string            `json:"branch"`
	EarlyResolution bool              `json:"early_resolution"`
}

// Clone returns a deep copy.
func (o Output) Clone() Output {
	c := o
	c.TurnOrder = append([]string(nil), o.TurnOrder...)
	c.Choices = append([]state.Choice(nil), o.Choices...)
	c.Directives = make(map[string]string, len(o.Directives))
	for k, v := range o.Directives {
		c.Directives[k] = v
	}
	c.Dependencies = make(map[string]string, len(o.Dependencies))
	for k, v := range o.Dependencies {
		c.Dependencies[k] = v
	}
	return c
}
