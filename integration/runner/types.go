package runner

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Special player_choice values that trigger non-turn actions
const (
	RetrySessionPrompt = "RETRY_SESSION"
	DebriefPrompt      = "DEBRIEF"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name          string              `json:"name"`
	ModuleID      string              `json:"module_id,omitempty"`   // Used for regular tests
	ScenarioID    string              `json:"scenario_id,omitempty"` // Empty picks the module's first scenario
	PlayerProfile state.PlayerProfile `json:"player_profile"`
	Steps         []TestStep          `json:"steps,omitempty"` // Used for regular tests
	Cases         []string            `json:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep defines a single player action and its expected outcomes.
// ChoiceIndex (1-based) picks an offered label from the current turn and
// takes precedence over PlayerChoice.
type TestStep struct {
	Name         string       `json:"name,omitempty"`
	PlayerChoice string       `json:"player_choice,omitempty"`
	ChoiceIndex  int          `json:"choice_index,omitempty"`
	Expectations Expectations `json:"expect"`
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	// Response
	HTTPStatus *int    `json:"http_status,omitempty"` // Defaults to 200
	ErrorCode  *string `json:"error_code,omitempty"`

	// Session properties - aligned with pkg/state/view.go
	Status    *string `json:"status,omitempty"`
	Step      *int    `json:"step,omitempty"`
	HPAtMost  *int    `json:"hp_at_most,omitempty"`
	HPAtLeast *int    `json:"hp_at_least,omitempty"`
	Choices   *int    `json:"choices,omitempty"` // Offered choices on the current turn
	Reactions *int    `json:"reactions,omitempty"`
	Critical  *bool   `json:"critical_failure,omitempty"`

	// Response Analysis over the current situation and reactions
	ResponseContains    []string `json:"response_contains,omitempty"`
	ResponseNotContains []string `json:"response_not_contains,omitempty"`
	ResponseRegex       string   `json:"response_regex,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName     string
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	ResponseText string
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job       TestJob
	Results   []TestResult
	Error     error
	Duration  time.Duration
	SessionID uuid.UUID
}
