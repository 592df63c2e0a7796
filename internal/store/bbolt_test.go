package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/codegate/internal/rules"
	"github.com/howard-nolan/codegate/internal/rules/matcher"
)

func TestPersistAndLoad_RoundTripsWorkspacesEndpointsAndPersonas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codegate.db")

	s := New()
	require.NoError(t, s.CreateWorkspace("team-a"))
	require.NoError(t, s.SetActiveWorkspace("team-a"))
	s.UpsertProviderEndpoint(ProviderEndpoint{ID: "ep1", ProviderType: "openai", Endpoint: "https://api.openai.com"})
	require.NoError(t, s.UpsertPersona(Persona{Name: "reviewer", Embedding: []float32{1, 0}}))

	require.NoError(t, s.PersistTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Contains(t, loaded.ListWorkspaces(), "team-a")
	assert.Equal(t, "team-a", loaded.ActiveWorkspace())
	ep, ok := loaded.ProviderEndpoint("ep1")
	require.True(t, ok)
	assert.Equal(t, "openai", ep.ProviderType)
	p, ok := loaded.Persona("reviewer")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, p.Embedding)
}

func TestPersistAndLoad_RoundTripsMuxRuleSpecs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codegate.db")

	s := New()
	reg := rules.New()
	specs := []matcher.Spec{
		{Type: matcher.KindFilename, Priority: 5, Pattern: "*.go", Route: rules.ModelRoute{ProviderID: "p1", ProviderType: "openai", Model: "gpt-4"}},
		{Type: matcher.KindCatchAll, Priority: 0, Route: rules.ModelRoute{ProviderID: "p1", ProviderType: "openai", Model: "gpt-4"}},
	}
	built := make([]rules.Matcher, 0, len(specs))
	for _, spec := range specs {
		m, err := matcher.Build(spec, nil, nil)
		require.NoError(t, err)
		built = append(built, m)
	}
	require.NoError(t, s.SetWorkspaceRules(reg, "default", specs, built))

	require.NoError(t, s.PersistTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)

	gotSpecs, ok := loaded.RuleSpecs("default")
	require.True(t, ok)
	require.Len(t, gotSpecs, 2)
	assert.Equal(t, specs, gotSpecs)

	// The specs alone are useless without rebuilding matchers from
	// them — confirm matcher.Build still accepts what LoadFrom restored.
	for _, spec := range gotSpecs {
		_, err := matcher.Build(spec, nil, nil)
		assert.NoError(t, err)
	}
}

func TestLoadFrom_MissingFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.db")
	s, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "default", s.ActiveWorkspace())
	_, ok := s.RuleSpecs("default")
	assert.False(t, ok)
}
