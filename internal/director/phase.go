package director

// ScenePhase is the narrative stage of a scenario based on progress
// through its steps.
type ScenePhase string

const (
	PhaseOpening    ScenePhase = "opening"
	PhaseRising     ScenePhase = "rising"
	PhaseEscalation ScenePhase = "escalation"
	PhaseClimax     ScenePhase = "climax"
	PhaseResolution ScenePhase = "resolution"
)

var phaseTones = map[ScenePhase]string{
	PhaseOpening:    "Establish the situation and let the characters show their positions.",
	PhaseRising:     "Add a complication that tests the player's approach.",
	PhaseEscalation: "Raise the stakes; characters push harder on what they want.",
	PhaseClimax:     "Bring the central tension to a head and force a real decision.",
	PhaseResolution: "Move toward a conclusion that reflects how the player has handled things.",
}

// Phase buckets step into five equal parts of maxSteps.
func Phase(step, maxSteps int) ScenePhase {
	if maxSteps <= 0 || step <= 1 {
		return PhaseOpening
	}
	if step >= maxSteps {
		return PhaseResolution
	}
	switch p := float64(step) / float64(maxSteps); {
	case p <= 0.2:
		return PhaseOpening
	case p <= 0.4:
		return PhaseRising
	case p <= 0.6:
		return PhaseEscalation
	case p <= 0.8:
		return PhaseClimax
	default:
		return PhaseResolution
	}
}

func (p ScenePhase) Tone() string {
	return phaseTones[p]
}
