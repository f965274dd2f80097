package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jwebster45206/scene-engine/internal/debrief"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running scene-engine API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Logger            func(format string, args ...any)
	ErrorHandlingMode ErrorHandlingMode
	ScenarioOverride  string // If set, overrides the scenario for all test cases
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 3 * time.Minute},
		Logger:            func(string, ...any) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}
		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite starts a session and plays every step against it.
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job:     TestJob{Name: suite.Name, Suite: suite},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	scenarioID := suite.ScenarioID
	if r.ScenarioOverride != "" {
		scenarioID = r.ScenarioOverride
	}
	view, err := r.startSession(ctx, suite.PlayerProfile, suite.ModuleID, scenarioID)
	if err != nil {
		result.Error = fmt.Errorf("failed to start session: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.SessionID = view.ID

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult, next := r.executeStep(ctx, view, step)
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)
		if next != nil {
			view = next
		}

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// executeStep performs one action. It returns the session after the step
// when the response carried one.
func (r *Runner) executeStep(ctx context.Context, view *state.SessionView, step TestStep) (TestResult, *state.SessionView) {
	start := time.Now()
	result := TestResult{StepName: step.Name}
	finish := func(err error) (TestResult, *state.SessionView) {
		result.Error = err
		result.Success = err == nil
		result.Duration = time.Since(start)
		return result, nil
	}

	var (
		path string
		body any
	)
	base := "/v1/sessions/" + view.ID.String()
	switch step.PlayerChoice {
	case RetrySessionPrompt:
		path = base + "/retry"
	case DebriefPrompt:
		path = base + "/debrief"
	default:
		choice := step.PlayerChoice
		if step.ChoiceIndex > 0 {
			if view.Current == nil || step.ChoiceIndex > len(view.Current.Choices) {
				return finish(fmt.Errorf("choice_index %d is not offered", step.ChoiceIndex))
			}
			choice = view.Current.Choices[step.ChoiceIndex-1]
		}
		path = base + "/turns"
		body = map[string]string{"player_choice": choice}
	}

	method := http.MethodPost
	if step.PlayerChoice == DebriefPrompt {
		method = http.MethodGet
	}
	status, raw, err := r.do(ctx, method, path, body)
	if err != nil {
		return finish(err)
	}

	exp := step.Expectations
	want := http.StatusOK
	if exp.HTTPStatus != nil {
		want = *exp.HTTPStatus
	}
	if status != want {
		return finish(fmt.Errorf("expected HTTP %d, got %d: %s", want, status, string(raw)))
	}
	if status >= 400 {
		if exp.ErrorCode != nil {
			var e struct {
				Code string `json:"code"`
			}
			_ = json.Unmarshal(raw, &e)
			if e.Code != *exp.ErrorCode {
				return finish(fmt.Errorf("expected error code %s, got %q", *exp.ErrorCode, e.Code))
			}
		}
		return finish(nil)
	}

	if step.PlayerChoice == DebriefPrompt {
		var d debrief.Debrief
		if err := json.Unmarshal(raw, &d); err != nil {
			return finish(fmt.Errorf("failed to decode debrief: %w", err))
		}
		result.ResponseText = d.Summary
		if exp.Status != nil && string(d.Outcome) != *exp.Status {
			return finish(fmt.Errorf("expected outcome %s, got %s", *exp.Status, d.Outcome))
		}
		return finish(checkResponse(exp, d.Summary))
	}

	var next state.SessionView
	if err := json.Unmarshal(raw, &next); err != nil {
		return finish(fmt.Errorf("failed to decode session: %w", err))
	}
	result.ResponseText = responseText(&next)
	if err := checkExpectations(exp, &next); err != nil {
		res, _ := finish(fmt.Errorf("expectation failed: %w", err))
		return res, &next
	}
	res, _ := finish(nil)
	return res, &next
}

func (r *Runner) startSession(ctx context.Context, profile state.PlayerProfile, moduleID, scenarioID string) (*state.SessionView, error) {
	req := map[string]any{
		"player_profile": profile,
		"module_id":      moduleID,
	}
	if scenarioID != "" {
		req["scenario_id"] = scenarioID
	}
	status, raw, err := r.do(ctx, http.MethodPost, "/v1/sessions", req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("start session returned %d: %s", status, string(raw))
	}
	var view state.SessionView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, fmt.Errorf("failed to decode created session: %w", err)
	}
	return &view, nil
}

func (r *Runner) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to execute %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// responseText joins the current situation and reactions for text checks.
func responseText(v *state.SessionView) string {
	if v.Current == nil {
		return ""
	}
	parts := []string{v.Current.Situation}
	for _, rv := range v.Current.Reactions {
		parts = append(parts, rv.Dialogue)
	}
	return strings.Join(parts, "\n")
}

// checkExpectations validates the step expectations against the session
func checkExpectations(exp Expectations, v *state.SessionView) error {
	if exp.Status != nil && string(v.Status) != *exp.Status {
		return fmt.Errorf("expected status %s, got %s", *exp.Status, v.Status)
	}
	if exp.Step != nil && v.Step != *exp.Step {
		return fmt.Errorf("expected step %d, got %d", *exp.Step, v.Step)
	}
	if exp.HPAtMost != nil && v.HP > *exp.HPAtMost {
		return fmt.Errorf("expected hp <= %d, got %d", *exp.HPAtMost, v.HP)
	}
	if exp.HPAtLeast != nil && v.HP < *exp.HPAtLeast {
		return fmt.Errorf("expected hp >= %d, got %d", *exp.HPAtLeast, v.HP)
	}
	if exp.Choices != nil || exp.Reactions != nil {
		if v.Current == nil {
			return fmt.Errorf("session has no current turn")
		}
		if exp.Choices != nil && len(v.Current.Choices) != *exp.Choices {
			return fmt.Errorf("expected %d choices, got %d", *exp.Choices, len(v.Current.Choices))
		}
		if exp.Reactions != nil && len(v.Current.Reactions) != *exp.Reactions {
			return fmt.Errorf("expected %d reactions, got %d", *exp.Reactions, len(v.Current.Reactions))
		}
	}
	if exp.Critical != nil {
		if v.Current == nil || v.Current.CriticalFailure != *exp.Critical {
			return fmt.Errorf("expected critical_failure %t on the latest turn", *exp.Critical)
		}
	}
	return checkResponse(exp, responseText(v))
}

func checkResponse(exp Expectations, text string) error {
	lower := strings.ToLower(text)
	for _, want := range exp.ResponseContains {
		if !strings.Contains(lower, strings.ToLower(want)) {
			return fmt.Errorf("expected response to contain '%s', but it didn't", want)
		}
	}
	for _, unwanted := range exp.ResponseNotContains {
		if strings.Contains(lower, strings.ToLower(unwanted)) {
			return fmt.Errorf("expected response to NOT contain '%s', but it did", unwanted)
		}
	}
	if exp.ResponseRegex != "" {
		matched, err := regexp.MatchString(exp.ResponseRegex, text)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		if !matched {
			return fmt.Errorf("response didn't match regex pattern: %s", exp.ResponseRegex)
		}
	}
	return nil
}
