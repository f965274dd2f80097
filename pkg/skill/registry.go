package skill

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/state"
	"gopkg.in/yaml.v3"
)

// Registry holds every loaded skill keyed by id. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	skills map[string]Skill
	logger *slog.Logger
}

// NewRegistry builds a registry from in-memory definitions.
func NewRegistry(logger *slog.Logger, skills ...Skill) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{skills: make(map[string]Skill, len(skills)), logger: logger}
	for _, s := range skills {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.skills[s.ID]; dup {
			return nil, state.Validationf("duplicate skill id %q", s.ID)
		}
		r.skills[s.ID] = s
	}
	return r, nil
}

// Load reads every *.yaml / *.yml file in dir. A missing directory yields
// an empty registry; malformed entries fail the whole load.
func Load(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Skills directory not found, using empty registry", "dir", dir)
			return NewRegistry(logger)
		}
		return nil, fmt.Errorf("failed to read skills directory: %w", err)
	}

	var skills []Skill
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		s, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		skills = append(skills, s)
	}

	r, err := NewRegistry(logger, skills...)
	if err != nil {
		return nil, err
	}
	logger.Info("Skills loaded", "dir", dir, "count", len(r.skills))
	return r, nil
}

func loadFile(path string) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, fmt.Errorf("failed to read skill file %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Skill
	if err := dec.Decode(&s); err != nil {
		return Skill{}, state.Validationf("skill file %s: %v", filepath.Base(path), err)
	}
	if err := s.Validate(); err != nil {
		return Skill{}, fmt.Errorf("skill file %s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// Get looks up a skill by id.
func (r *Registry) Get(id string) (Skill, bool) {
	s, ok := r.skills[id]
	return s, ok
}

// All returns every skill sorted by id.
func (r *Registry) All() []Skill {
	out := make([]Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Skill) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (r *Registry) Len() int {
	return len(r.skills)
}

// Resolve turns a list of skill ids into a conflict-free set. Candidates
// are considered by priority (highest first), then by id, so the result
// does not depend on input order. A candidate conflicting with an
// already accepted skill is dropped.
func (r *Registry) Resolve(ids []string) (Resolved, error) {
	seen := make(map[string]bool, len(ids))
	candidates := make([]Skill, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		s, ok := r.skills[id]
		if !ok {
			return Resolved{}, state.NotFoundf("unknown skill %q", id)
		}
		candidates = append(candidates, s)
	}

	slices.SortFunc(candidates, func(a, b Skill) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	var res Resolved
	for _, c := range candidates {
		idx := slices.IndexFunc(res.Skills, c.ConflictsWithSkill)
		if idx >= 0 {
			conflict := Conflict{Dropped: c.ID, Kept: res.Skills[idx].ID}
			r.logger.Warn("Skill conflict resolved", "dropped", conflict.Dropped, "kept", conflict.Kept)
			res.Dropped = append(res.Dropped, conflict)
			continue
		}
		res.Skills = append(res.Skills, c)
	}
	return res, nil
}
