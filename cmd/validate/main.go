package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/skill"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <content_dir> [skills_dir]\n", os.Args[0])
		os.Exit(1)
	}

	contentDir := os.Args[1]
	skillsDir := filepath.Join(filepath.Dir(filepath.Clean(contentDir)), "skills")
	if len(os.Args) > 2 {
		skillsDir = os.Args[2]
	}

	validator := &ContentValidator{}
	if err := validator.validate(contentDir, skillsDir); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Content is valid!")
}

type ContentValidator struct {
	errors []string
}

func (v *ContentValidator) validate(contentDir, skillsDir string) error {
	// loader warnings are reported below, not logged
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	fmt.Printf("Validating skills in %s...\n", skillsDir)
	skills, err := skill.Load(skillsDir, quiet)
	if err != nil {
		return fmt.Errorf("skills: %w", err)
	}
	fmt.Printf("  %d skills\n", skills.Len())

	fmt.Printf("Validating scenarios in %s...\n", contentDir)
	catalog, res, err := scenario.LoadStrict(contentDir, skills, quiet)
	if err != nil {
		return err
	}

	v.errors = nil
	paths := make([]string, 0, len(res.Skipped))
	for p := range res.Skipped {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, p := range paths {
		v.addError(fmt.Sprintf("%s: %v", p, res.Skipped[p]))
	}

	for _, mod := range catalog.ListModules() {
		v.validateIDFormat("module ID", mod.ID)
		for _, sum := range mod.Scenarios {
			s, err := catalog.Get(mod.ID, sum.ID)
			if err != nil {
				v.addError(err.Error())
				continue
			}
			v.validateScenario(s)
		}
	}
	fmt.Printf("  %d scenarios loaded\n", res.Loaded)

	if len(v.errors) > 0 {
		return fmt.Errorf("%d problem(s):\n%s", len(v.errors), strings.Join(v.errors, "\n"))
	}
	if res.Loaded == 0 {
		return fmt.Errorf("no scenarios found under %s", contentDir)
	}
	return nil
}

func (v *ContentValidator) validateScenario(s *scenario.Scenario) {
	v.validateIDFormat("scenario ID", s.ID)
	for _, a := range s.Actors {
		v.validateIDFormat(fmt.Sprintf("actor ID in %s", s.ID), a.ID)
	}
	for _, cf := range s.Rubric.CriticalFailures {
		v.validateIDFormat(fmt.Sprintf("critical failure ID in %s", s.ID), cf.ID)
	}
}

func (v *ContentValidator) validateIDFormat(fieldName, id string) {
	if id == "" {
		return
	}
	if !isValidID(id) {
		v.addError(fmt.Sprintf("%s '%s' should be lowercase, using only letters, digits, '-' and '_'", fieldName, id))
	}
}

func (v *ContentValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var validIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*[a-z0-9]$|^[a-z]$`)

func isValidID(id string) bool {
	return validIDRegex.MatchString(id)
}
