package scenario

import (
	"bytes"
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/skill"
	"github.com/jwebster45206/scene-engine/pkg/state"
	"gopkg.in/yaml.v3"
)

const moduleMetaFile = "module.meta.yaml"

// Module groups related scenarios.
type Module struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	Version     string    `yaml:"version" json:"version,omitempty"`
	Scenarios   []Summary `yaml:"-" json:"scenarios"`
}

// Summary is the catalog listing entry for a scenario.
type Summary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Version  string `json:"version,omitempty"`
	MaxSteps int    `json:"max_steps"`
	Actors   int    `json:"actors"`
}

// Catalog is the read-only set of loaded modules and scenarios.
type Catalog struct {
	modules   map[string]*Module
	scenarios map[string]map[string]*Scenario
	order     []string
}

// LoadResult reports files excluded while loading.
type LoadResult struct {
	Loaded  int
	Skipped map[string]error // path -> reason
}

// LoadAll reads <dir>/<module>/module.meta.yaml and
// <dir>/<module>/scenarios/*.yaml. Invalid scenarios are skipped with a
// warning; only an unreadable root directory is fatal.
func LoadAll(dir string, skills *skill.Registry, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, res, err := load(dir, skills, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Scenario catalog loaded",
		"dir", dir,
		"modules", len(c.order),
		"scenarios", res.Loaded,
		"skipped", len(res.Skipped))
	return c, nil
}

// LoadStrict is LoadAll for tooling: it also returns every skipped file
// so callers can report them.
func LoadStrict(dir string, skills *skill.Registry, logger *slog.Logger) (*Catalog, LoadResult, error) {
	return load(dir, skills, logger)
}

func load(dir string, skills *skill.Registry, logger *slog.Logger) (*Catalog, LoadResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	res := LoadResult{Skipped: make(map[string]error)}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, res, fmt.Errorf("failed to read content directory: %w", err)
	}

	c := &Catalog{
		modules:   make(map[string]*Module),
		scenarios: make(map[string]map[string]*Scenario),
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		moduleID := e.Name()
		moduleDir := filepath.Join(dir, moduleID)

		mod, err := loadModuleMeta(moduleDir, moduleID)
		if err != nil {
			logger.Warn("Skipping module with invalid metadata", "module_id", moduleID, "error", err)
			res.Skipped[filepath.Join(moduleDir, moduleMetaFile)] = err
			continue
		}

		files, err := filepath.Glob(filepath.Join(moduleDir, "scenarios", "*.y*ml"))
		if err != nil {
			return nil, res, fmt.Errorf("failed to list scenarios for module %s: %w", moduleID, err)
		}
		slices.Sort(files)

		scenarios := make(map[string]*Scenario)
		for _, path := range files {
			s, err := LoadFile(path)
			if err == nil && s.ModuleID != moduleID {
				err = state.Validationf("module_id %q does not match directory %q", s.ModuleID, moduleID)
			}
			if err == nil {
				err = s.Validate(skills)
			}
			if err == nil && scenarios[s.ID] != nil {
				err = state.Validationf("duplicate scenario id %q", s.ID)
			}
			if err != nil {
				logger.Warn("Skipping invalid scenario", "path", path, "error", err)
				res.Skipped[path] = err
				continue
			}
			scenarios[s.ID] = s
		}
		if len(scenarios) == 0 {
			logger.Warn("Module has no valid scenarios", "module_id", moduleID)
			continue
		}

		for _, s := range scenarios {
			mod.Scenarios = append(mod.Scenarios, Summary{
				ID:       s.ID,
				Title:    s.Title,
				Version:  s.Version,
				MaxSteps: s.MaxSteps,
				Actors:   len(s.Actors),
			})
		}
		slices.SortFunc(mod.Scenarios, func(a, b Summary) int { return cmp.Compare(a.ID, b.ID) })

		c.modules[moduleID] = mod
		c.scenarios[moduleID] = scenarios
		c.order = append(c.order, moduleID)
		res.Loaded += len(scenarios)
	}
	slices.Sort(c.order)
	return c, res, nil
}

func loadModuleMeta(moduleDir, moduleID string) (*Module, error) {
	mod := &Module{ID: moduleID, Name: moduleID}
	data, err := os.ReadFile(filepath.Join(moduleDir, moduleMetaFile))
	if os.IsNotExist(err) {
		return mod, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, mod); err != nil {
		return nil, state.Validationf("%s: %v", moduleMetaFile, err)
	}
	if mod.ID != moduleID {
		return nil, state.Validationf("%s id %q does not match directory %q", moduleMetaFile, mod.ID, moduleID)
	}
	return mod, nil
}

// LoadFile decodes a single scenario file strictly and applies defaults.
// It does not validate.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, state.Validationf("%s: %v", filepath.Base(path), err)
	}
	s.ApplyDefaults()
	return &s, nil
}

// NewCatalog builds a catalog from in-memory scenarios. Each must
// already be valid.
func NewCatalog(modules []Module, scenarios ...*Scenario) *Catalog {
	c := &Catalog{
		modules:   make(map[string]*Module),
		scenarios: make(map[string]map[string]*Scenario),
	}
	for i := range modules {
		m := modules[i]
		c.modules[m.ID] = &m
		c.scenarios[m.ID] = make(map[string]*Scenario)
		c.order = append(c.order, m.ID)
	}
	for _, s := range scenarios {
		if _, ok := c.modules[s.ModuleID]; !ok {
			c.modules[s.ModuleID] = &Module{ID: s.ModuleID, Name: s.ModuleID}
			c.scenarios[s.ModuleID] = make(map[string]*Scenario)
			c.order = append(c.order, s.ModuleID)
		}
		c.scenarios[s.ModuleID][s.ID] = s
		m := c.modules[s.ModuleID]
		m.Scenarios = append(m.Scenarios, Summary{ID: s.ID, Title: s.Title, Version: s.Version, MaxSteps: s.MaxSteps, Actors: len(s.Actors)})
		slices.SortFunc(m.Scenarios, func(a, b Summary) int { return cmp.Compare(a.ID, b.ID) })
	}
	slices.Sort(c.order)
	return c
}

// Get returns a scenario. An empty scenarioID selects the module's
// first scenario by id.
func (c *Catalog) Get(moduleID, scenarioID string) (*Scenario, error) {
	mod, ok := c.modules[moduleID]
	if !ok {
		return nil, state.NotFoundf("module %q", moduleID)
	}
	if scenarioID == "" {
		if len(mod.Scenarios) == 0 {
			return nil, state.NotFoundf("module %q has no scenarios", moduleID)
		}
		scenarioID = mod.Scenarios[0].ID
	}
	s, ok := c.scenarios[moduleID][scenarioID]
	if !ok {
		return nil, state.NotFoundf("scenario %q in module %q", scenarioID, moduleID)
	}
	return s, nil
}

// ListModules returns every module ordered by id.
func (c *Catalog) ListModules() []Module {
	out := make([]Module, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.copyModule(id))
	}
	return out
}

// GetModule returns one module with its scenario summaries.
func (c *Catalog) GetModule(id string) (Module, error) {
	if _, ok := c.modules[id]; !ok {
		return Module{}, state.NotFoundf("module %q", id)
	}
	return c.copyModule(id), nil
}

// Siblings returns the other scenario ids in the same module.
func (c *Catalog) Siblings(moduleID, scenarioID string) []string {
	mod, ok := c.modules[moduleID]
	if !ok {
		return nil
	}
	var ids []string
	for _, s := range mod.Scenarios {
		if s.ID != scenarioID {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func (c *Catalog) copyModule(id string) Module {
	m := *c.modules[id]
	m.Scenarios = slices.Clone(m.Scenarios)
	return m
}
