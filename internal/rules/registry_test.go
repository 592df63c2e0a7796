package rules

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMatcher struct {
	name     string
	priority int
	matches  bool
}

func (s *stubMatcher) Name() string       { return s.name }
func (s *stubMatcher) Priority() int      { return s.priority }
func (s *stubMatcher) Destination() ModelRoute { return ModelRoute{Model: s.name} }
func (s *stubMatcher) Match(context.Context, ThingToMatch) (bool, error) { return s.matches, nil }

func TestRegistry_GetRulesMissingWorkspaceReturnsNotOK(t *testing.T) {
	r := New()

	matchers, ok := r.GetRules("nonexistent")
	assert.False(t, ok)
	assert.Nil(t, matchers)
}

func TestRegistry_SetThenGetRulesRoundTrips(t *testing.T) {
	r := New()
	want := []Matcher{&stubMatcher{name: "a", priority: 1}, &stubMatcher{name: "b", priority: 2}}

	r.SetRules("ws1", want)

	got, ok := r.GetRules("ws1")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Name())
	assert.Equal(t, "b", got[1].Name())
}

func TestRegistry_SetRulesReplacesPreviousList(t *testing.T) {
	r := New()
	r.SetRules("ws1", []Matcher{&stubMatcher{name: "old"}})
	r.SetRules("ws1", []Matcher{&stubMatcher{name: "new"}})

	got, ok := r.GetRules("ws1")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Name())
}

func TestRegistry_GetRulesMutationDoesNotAffectStoredList(t *testing.T) {
	r := New()
	r.SetRules("ws1", []Matcher{&stubMatcher{name: "a"}, &stubMatcher{name: "b"}})

	got, ok := r.GetRules("ws1")
	require.True(t, ok)
	got[0] = &stubMatcher{name: "mutated"}

	again, ok := r.GetRules("ws1")
	require.True(t, ok)
	assert.Equal(t, "a", again[0].Name(), "mutating a caller's copy must not affect the registry's stored list")
}

func TestRegistry_SetRulesCopiesInputSlice(t *testing.T) {
	r := New()
	input := []Matcher{&stubMatcher{name: "a"}}
	r.SetRules("ws1", input)
	input[0] = &stubMatcher{name: "mutated-after-set"}

	got, ok := r.GetRules("ws1")
	require.True(t, ok)
	assert.Equal(t, "a", got[0].Name())
}

func TestRegistry_DeleteRulesRemovesWorkspace(t *testing.T) {
	r := New()
	r.SetRules("ws1", []Matcher{&stubMatcher{name: "a"}})

	r.DeleteRules("ws1")

	_, ok := r.GetRules("ws1")
	assert.False(t, ok)
}

func TestRegistry_DeleteRulesOnMissingWorkspaceIsNoop(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() { r.DeleteRules("never-existed") })
}

func TestRegistry_ActiveDefaultsEmptyThenSettable(t *testing.T) {
	r := New()
	assert.Equal(t, "", r.Active())

	r.SetActive("ws1")
	assert.Equal(t, "ws1", r.Active())

	r.SetActive("ws2")
	assert.Equal(t, "ws2", r.Active())
}

func TestRegistry_RegistriesListsAllWorkspaces(t *testing.T) {
	r := New()
	r.SetRules("ws1", []Matcher{&stubMatcher{name: "a"}})
	r.SetRules("ws2", []Matcher{&stubMatcher{name: "b"}})

	names := r.Registries()
	assert.ElementsMatch(t, []string{"ws1", "ws2"}, names)
}

func TestRegistry_RegistriesEmptyWhenNothingSet(t *testing.T) {
	r := New()
	assert.Empty(t, r.Registries())
}

func TestRegistry_ConcurrentAccessDoesNotRace(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			r.SetRules("ws1", []Matcher{&stubMatcher{name: "a", priority: i}})
		}(i)
		go func() {
			defer wg.Done()
			r.GetRules("ws1")
		}()
		go func() {
			defer wg.Done()
			r.SetActive("ws1")
		}()
	}
	wg.Wait()
}
