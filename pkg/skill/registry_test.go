package skill

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jwebster45206/scene-engine/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return testRegistryWithLogger(t, nil)
}

func testRegistryWithLogger(t *testing.T, logger *slog.Logger) *Registry {
	t.Helper()
	r, err := NewRegistry(logger,
		Skill{ID: "deflection", PromptInjection: "Change the subject when pressed.", ConflictsWith: []string{"direct_honesty"}, Priority: 1, GrantsTools: []string{"change_subject"}},
		Skill{ID: "direct_honesty", PromptInjection: "Answer plainly.", Priority: 3, GrantsTools: []string{"disclose"}},
		Skill{ID: "empathy", PromptInjection: "Acknowledge feelings.", Priority: 3, GrantsTools: []string{"disclose", "reassure"}},
		Skill{ID: "stonewall", PromptInjection: "Refuse to engage.", ConflictsWith: []string{"empathy"}, Priority: 3},
	)
	require.NoError(t, err)
	return r
}

func TestRegistry_ResolveConflictIndependentOfOrder(t *testing.T) {
	var buf bytes.Buffer
	r := testRegistryWithLogger(t, slog.New(slog.NewJSONHandler(&buf, nil)))

	orders := [][]string{
		{"deflection", "direct_honesty"},
		{"direct_honesty", "deflection"},
		{"deflection", "empathy", "direct_honesty"},
		{"empathy", "direct_honesty", "deflection", "deflection"},
	}
	for _, ids := range orders {
		res, err := r.Resolve(ids)
		require.NoError(t, err)
		assert.NotContains(t, res.IDs(), "deflection", "order %v", ids)
		assert.Contains(t, res.IDs(), "direct_honesty", "order %v", ids)
		require.Len(t, res.Dropped, 1)
		assert.Equal(t, Conflict{Dropped: "deflection", Kept: "direct_honesty"}, res.Dropped[0])

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec), "order %v: want exactly one log record", ids)
		assert.Equal(t, "WARN", rec["level"])
		assert.Equal(t, "Skill conflict resolved", rec["msg"])
		assert.Equal(t, "deflection", rec["dropped"])
		assert.Equal(t, "direct_honesty", rec["kept"])
		buf.Reset()
	}
}

func TestRegistry_ResolveTieKeepsLexicallySmaller(t *testing.T) {
	r := testRegistry(t)

	a, err := r.Resolve([]string{"stonewall", "empathy"})
	require.NoError(t, err)
	b, err := r.Resolve([]string{"empathy", "stonewall"})
	require.NoError(t, err)

	assert.Equal(t, []string{"empathy"}, a.IDs())
	assert.Equal(t, a.IDs(), b.IDs())
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	r := testRegistry(t)
	_, err := r.Resolve([]string{"empathy", "telepathy"})
	assert.True(t, errors.Is(err, state.ErrNotFound))
}

func TestResolved_Capabilities(t *testing.T) {
	r := testRegistry(t)
	res, err := r.Resolve([]string{"empathy", "direct_honesty"})
	require.NoError(t, err)

	assert.Equal(t, []string{"disclose", "reassure"}, res.Capabilities())
	assert.Equal(t, []string{"Answer plainly.", "Acknowledge feelings."}, res.PromptFragments())
}

func TestNewRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		skills []Skill
	}{
		{name: "missing id", skills: []Skill{{PromptInjection: "x"}}},
		{name: "missing prompt", skills: []Skill{{ID: "a"}}},
		{name: "self conflict", skills: []Skill{{ID: "a", PromptInjection: "x", ConflictsWith: []string{"a"}}}},
		{name: "duplicate", skills: []Skill{{ID: "a", PromptInjection: "x"}, {ID: "a", PromptInjection: "y"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(nil, tt.skills...)
			assert.True(t, errors.Is(err, state.ErrValidation), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empathy.yaml", `
id: empathy
name: Empathy
description: Reads the room.
prompt_injection: Acknowledge how others feel before responding.
grants_tools: [reassure]
priority: 2
`)
	writeFile(t, dir, "notes.txt", "ignored")

	r, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
	s, ok := r.Get("empathy")
	require.True(t, ok)
	assert.Equal(t, 2, s.Priority)
	assert.Equal(t, []string{"reassure"}, s.GrantsTools)
}

func TestLoad_MalformedFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", "id: bad\nprompt_injection: x\nunknown_field: 1\n")

	_, err := Load(dir, nil)
	assert.True(t, errors.Is(err, state.ErrValidation), "got %v", err)
}

func TestLoad_MissingDir(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "nope"), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
