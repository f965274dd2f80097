//go:build integration

package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jwebster45206/scene-engine/integration/runner"
)

var caseFlag = flag.String("case", "", "Name of test case to run (from integration/cases/)")
var errFlag = flag.String("err", "continue", "Error handling mode: 'continue' (run all steps) or 'exit' (stop on first failure)")
var runsFlag = flag.Int("runs", 1, "Number of times to run each test suite (model output is non-deterministic)")
var scenarioFlag = flag.String("scenario", "", "Override scenario id for all test cases")

func apiBaseURL() string {
	if v := os.Getenv("API_BASE_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func TestMain(m *testing.M) {
	fmt.Printf("Running Scene Engine Integration Tests\n")
	fmt.Printf("   API Base URL: %s\n", apiBaseURL())
	os.Exit(m.Run())
}

// TestIntegrationSuites runs every case file against a live API.
func TestIntegrationSuites(t *testing.T) {
	if *caseFlag != "" {
		t.Skip("Skipping bulk run while -case is set")
	}
	files, err := discoverTestFiles("cases")
	if err != nil {
		t.Fatalf("Failed to discover test files: %v", err)
	}
	var jobs []runner.TestJob
	for _, file := range files {
		suite, err := runner.LoadTestSuite(file)
		if err != nil {
			t.Errorf("Failed to load test suite %s: %v", file, err)
			continue
		}
		// sequences only regroup other files
		if suite.IsSequence() {
			continue
		}
		jobs = append(jobs, runner.TestJob{Name: suite.Name, Suite: suite, CaseFile: file})
	}
	runJobs(t, jobs, runner.ErrorHandlingContinue, 1)
}

// TestSingleSuite runs the cases named by -case, comma-separated.
func TestSingleSuite(t *testing.T) {
	if *caseFlag == "" {
		t.Skip("Skipping single suite test (use -case flag to run)")
	}
	if *errFlag != "exit" && *errFlag != "continue" {
		t.Fatalf("Invalid -err flag value: %s (must be 'exit' or 'continue')", *errFlag)
	}
	if *runsFlag < 1 {
		t.Fatalf("Number of runs must be >= 1, got: %d", *runsFlag)
	}

	var jobs []runner.TestJob
	for _, name := range strings.Split(*caseFlag, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !strings.HasSuffix(name, ".json") {
			name += ".json"
		}
		expanded, err := runner.LoadTestSuiteWithExpansion(filepath.Join("cases", name), "cases")
		if err != nil {
			t.Fatalf("Failed to load test suite %s: %v", name, err)
		}
		jobs = append(jobs, expanded...)
	}
	runJobs(t, jobs, runner.ErrorHandlingMode(*errFlag), *runsFlag)
}

func runJobs(t *testing.T, jobs []runner.TestJob, mode runner.ErrorHandlingMode, runs int) {
	t.Helper()
	if len(jobs) == 0 {
		t.Fatal("No valid test suites loaded")
	}

	r := runner.NewRunner(apiBaseURL())
	r.ErrorHandlingMode = mode
	r.ScenarioOverride = *scenarioFlag
	r.Logger = func(format string, args ...any) {
		fmt.Printf(format+"\n", args...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	passes := make(map[string]int)
	failures := make(map[string]int)
	for run := 1; run <= runs; run++ {
		if runs > 1 {
			t.Logf("=== RUN %d/%d ===", run, runs)
		}
		for i, job := range jobs {
			t.Logf("[%d/%d] Running test suite: %s (%d steps)", i+1, len(jobs), job.Name, len(job.Suite.Steps))
			result, err := r.RunSuite(ctx, job.Suite)
			t.Logf("Session ID: %s", result.SessionID)
			if err != nil {
				failures[job.Name]++
				t.Errorf("[%d/%d] FAILED: Test suite '%s' failed: %v", i+1, len(jobs), job.Name, err)
			} else {
				passes[job.Name]++
				t.Logf("[%d/%d] PASSED: Test suite '%s' completed in %v", i+1, len(jobs), job.Name, result.Duration)
			}
			for _, step := range result.Results {
				if step.Success {
					t.Logf("   ✓ %s (%v)", step.StepName, step.Duration)
				} else {
					t.Logf("   ✗ %s: %v", step.StepName, step.Error)
				}
			}
		}
	}
	t.Log(buildFinalReport(jobs, passes, failures))
}

// buildFinalReport creates the per-suite pass rate summary
func buildFinalReport(jobs []runner.TestJob, passes, failures map[string]int) string {
	var sb strings.Builder
	sb.WriteString("\nIntegration Test Summary:\n")
	for _, job := range jobs {
		p, f := passes[job.Name], failures[job.Name]
		if p+f == 0 {
			continue
		}
		rate := float64(p) / float64(p+f) * 100
		line := fmt.Sprintf("  %s: %d/%d passes (%.1f%%)", job.Name, p, p+f, rate)
		if p > 0 && f > 0 {
			line += " [flaky]"
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

func discoverTestFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
