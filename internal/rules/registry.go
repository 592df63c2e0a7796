// Package rules implements the Rule Registry (component H): the
// in-memory, atomically-swappable mirror of the persisted muxing rules
// that the Muxing Router consults on every request. It also defines the
// shared vocabulary concrete matchers (internal/rules/matcher) are built
// against: ThingToMatch, ModelRoute, and the Matcher interface itself.
package rules

import (
	"context"
	"sync"

	"github.com/mitchellh/copystructure"
)

// ModelRoute is the resolved destination a winning Matcher returns:
// which provider endpoint, which model, and which credential to dispatch
// the (possibly rewritten) request to.
type ModelRoute struct {
	ProviderID   string
	ProviderType string // openai, anthropic, ollama, vllm, llamacpp, openrouter
	Endpoint     string
	Model        string
	AuthType     string
	AuthBlob     string
}

// ThingToMatch is everything a Matcher may need to decide whether it
// applies to the current request — the typed envelope §4.J's muxing
// router builds before any matcher runs.
type ThingToMatch struct {
	Body         map[string]any
	URLPath      string
	IsFIMRequest bool
	ClientType   string
}

// Matcher is implemented by every concrete rule kind in
// internal/rules/matcher. Matchers are evaluated in priority order by
// the Muxing Router; the first one whose Match returns true wins.
//
// Match takes a context because a persona matcher's evaluation is an
// embedding-inference call (a suspension point per spec §5), and
// returns an error because filename extraction can fail on a body shape
// a matcher's client-specific extractor doesn't recognize — the router
// surfaces that as a MuxMatchingError-equivalent rather than silently
// treating it as a non-match.
type Matcher interface {
	Name() string
	Priority() int
	Match(ctx context.Context, t ThingToMatch) (bool, error)
	Destination() ModelRoute
}

// Registry is the thread-safe `{activeWorkspace, workspace -> ordered
// matchers}` structure described in spec §4.H. The zero value is not
// usable; construct with New.
//
// Locking discipline: the mutex is only ever held for the duration of a
// map operation, never across matcher evaluation or I/O — GetRules
// returns a deep copy specifically so callers can walk the list after
// releasing the lock.
type Registry struct {
	mu       sync.RWMutex
	active   string
	registry map[string][]Matcher
}

// New constructs an empty Registry. Workspaces and Matchers are
// populated by a repopulate call once persistence has loaded, and again
// after every control-plane mutation.
func New() *Registry {
	return &Registry{registry: make(map[string][]Matcher)}
}

// GetRules returns a deep copy of the ordered matcher list for
// workspace, so the router can iterate it without holding the registry
// lock across matcher I/O (persona matchers call the embedder). ok is
// false if the workspace has no registered rules.
func (r *Registry) GetRules(workspace string) (matchers []Matcher, ok bool) {
	r.mu.RLock()
	original, found := r.registry[workspace]
	r.mu.RUnlock()
	if !found {
		return nil, false
	}

	copied, err := copystructure.Copy(original)
	if err != nil {
		// Matcher implementations hold no unexported state that would
		// make a deep copy meaningful beyond the slice header itself
		// (they're immutable after construction); fall back to a plain
		// slice copy rather than surfacing a copy-library error to a
		// caller that has no use for it.
		out := make([]Matcher, len(original))
		copy(out, original)
		return out, true
	}
	return copied.([]Matcher), true
}

// SetRules atomically replaces the matcher list for workspace — an
// all-or-nothing swap, matching the Mux Rule invariant that changing a
// workspace's rules is a single atomic operation.
func (r *Registry) SetRules(workspace string, matchers []Matcher) {
	cp := make([]Matcher, len(matchers))
	copy(cp, matchers)

	r.mu.Lock()
	r.registry[workspace] = cp
	r.mu.Unlock()
}

// DeleteRules removes workspace's rule list entirely (used when a
// workspace is deleted or has no remaining rules).
func (r *Registry) DeleteRules(workspace string) {
	r.mu.Lock()
	delete(r.registry, workspace)
	r.mu.Unlock()
}

// SetActive updates the process-wide active-workspace pointer.
func (r *Registry) SetActive(workspace string) {
	r.mu.Lock()
	r.active = workspace
	r.mu.Unlock()
}

// Active returns the current active workspace name, or "" if none has
// been set yet.
func (r *Registry) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Registries lists every workspace name currently holding rules.
func (r *Registry) Registries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.registry))
	for ws := range r.registry {
		out = append(out, ws)
	}
	return out
}
