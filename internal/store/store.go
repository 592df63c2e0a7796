// Package store implements the control-plane persistence surface: the
// workspaces, provider endpoints, and mux rules an operator manages
// through the CRUD API and that the Muxing Router ultimately consults
// via internal/rules.Registry.
//
// spec.md scopes the real SQL-backed persistence layer out (the original
// runs on a bundled SQLite schema with its own migration chain); this is
// the minimal in-memory stand-in the spec's Non-goals call for, just
// enough to seed rules.Registry and satisfy the control-plane handlers.
package store

import (
	"fmt"
	"sync"

	"github.com/howard-nolan/codegate/internal/embed"
	"github.com/howard-nolan/codegate/internal/rules"
	"github.com/howard-nolan/codegate/internal/rules/matcher"
)

// Workspace is a named collection of mux rules plus the persona
// descriptions available to its persona-matching rules.
type Workspace struct {
	Name string
}

// ProviderEndpoint is one configured upstream backend an operator has
// registered, grounded on db/models.py's ProviderEndpoint.
type ProviderEndpoint struct {
	ID           string
	Name         string
	ProviderType string
	Endpoint     string
	AuthType     string
	AuthBlob     string
}

// Persona is a stored embedding description a persona-matching mux rule
// compares incoming queries against.
type Persona struct {
	Name      string
	Embedding []float32
}

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = fmt.Errorf("store: not found")

// ErrExists is returned by creates that would duplicate a unique key.
var ErrExists = fmt.Errorf("store: already exists")

// Store is the in-memory control-plane persistence surface. All methods
// are safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace
	active     string
	endpoints  map[string]ProviderEndpoint
	personas   map[string]Persona

	// ruleSpecs mirrors what's live in rules.Registry, keyed by
	// workspace, in the wire shape matcher.Build consumes. Registry
	// only ever holds constructed matcher.Matcher values, which aren't
	// serializable (persona matchers close over an embedder); keeping
	// the specs here is what lets PersistTo/LoadFrom survive a restart
	// without losing every configured mux rule.
	ruleSpecs map[string][]matcher.Spec

	// personaDiffThreshold is the minimum cosine distance a new or
	// updated persona's description embedding must keep from every
	// other persona's, mirroring persona.py's persona_diff_desc_threshold:
	// personas whose descriptions are too similar would make mux rules
	// that key off them ambiguous. 0 disables the check.
	personaDiffThreshold float32
}

// New constructs an empty Store with a single "default" workspace
// active, mirroring the original's always-present default workspace.
func New() *Store {
	s := &Store{
		workspaces: map[string]*Workspace{"default": {Name: "default"}},
		active:     "default",
		endpoints:  map[string]ProviderEndpoint{},
		personas:   map[string]Persona{},
		ruleSpecs:  map[string][]matcher.Spec{},
	}
	return s
}

// SetPersonaDiffThreshold configures the minimum-distance-between-
// personas check UpsertPersona enforces going forward.
func (s *Store) SetPersonaDiffThreshold(threshold float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personaDiffThreshold = threshold
}

// ErrPersonaTooSimilar is returned by UpsertPersona when the candidate
// description embedding falls within personaDiffThreshold of an
// existing, differently-named persona.
var ErrPersonaTooSimilar = fmt.Errorf("store: persona description too similar to an existing persona")

// CreateWorkspace adds a new empty workspace.
func (s *Store) CreateWorkspace(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[name]; ok {
		return fmt.Errorf("workspace %q: %w", name, ErrExists)
	}
	s.workspaces[name] = &Workspace{Name: name}
	return nil
}

// WorkspaceExists reports whether name is a known workspace. Its
// signature matches mux.WorkspaceExists so it can be wired in directly.
func (s *Store) WorkspaceExists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.workspaces[name]
	return ok
}

// ListWorkspaces returns every workspace name.
func (s *Store) ListWorkspaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.workspaces))
	for name := range s.workspaces {
		out = append(out, name)
	}
	return out
}

// DeleteWorkspace removes a workspace. The default workspace can't be
// deleted, matching the original's protection of its bootstrap
// workspace.
func (s *Store) DeleteWorkspace(name string) error {
	if name == "default" {
		return fmt.Errorf("store: cannot delete the default workspace")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[name]; !ok {
		return fmt.Errorf("workspace %q: %w", name, ErrNotFound)
	}
	delete(s.workspaces, name)
	delete(s.ruleSpecs, name)
	if s.active == name {
		s.active = "default"
	}
	return nil
}

// SetActiveWorkspace marks name as active; it must already exist.
func (s *Store) SetActiveWorkspace(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[name]; !ok {
		return fmt.Errorf("workspace %q: %w", name, ErrNotFound)
	}
	s.active = name
	return nil
}

// ActiveWorkspace returns the current active workspace's name.
func (s *Store) ActiveWorkspace() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// UpsertProviderEndpoint creates or replaces a provider endpoint by ID.
func (s *Store) UpsertProviderEndpoint(ep ProviderEndpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[ep.ID] = ep
}

// ProviderEndpoint looks up a provider endpoint by ID.
func (s *Store) ProviderEndpoint(id string) (ProviderEndpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[id]
	return ep, ok
}

// DeleteProviderEndpoint removes a provider endpoint by ID.
func (s *Store) DeleteProviderEndpoint(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.endpoints, id)
}

// ListProviderEndpoints returns every registered provider endpoint.
func (s *Store) ListProviderEndpoints() []ProviderEndpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ProviderEndpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		out = append(out, ep)
	}
	return out
}

// UpsertPersona stores a persona's name and embedding for later
// reference by persona-matching mux rules, first checking that its
// description embedding isn't too close to any other persona's —
// persona.py's validate_persona_description_diff check, run here at
// write time since this in-memory store has no database to push the
// cosine-distance computation into.
func (s *Store) UpsertPersona(p Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.personaDiffThreshold > 0 && len(p.Embedding) > 0 {
		for name, existing := range s.personas {
			if name == p.Name || len(existing.Embedding) == 0 {
				continue
			}
			distances, err := embed.CosineDistances([][]float32{p.Embedding}, existing.Embedding)
			if err != nil {
				continue // dimension mismatch between embedder versions; nothing to compare
			}
			if distances[0] < s.personaDiffThreshold {
				return fmt.Errorf("persona %q vs %q (distance %.4f): %w", p.Name, name, distances[0], ErrPersonaTooSimilar)
			}
		}
	}

	s.personas[p.Name] = p
	return nil
}

// Persona looks up a persona by name.
func (s *Store) Persona(name string) (Persona, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.personas[name]
	return p, ok
}

// SetWorkspaceRules replaces a workspace's ordered matcher list in reg,
// after checking the workspace exists.
func (s *Store) SetWorkspaceRules(reg *rules.Registry, workspace string, specs []matcher.Spec, matchers []rules.Matcher) error {
	if !s.WorkspaceExists(workspace) {
		return fmt.Errorf("workspace %q: %w", workspace, ErrNotFound)
	}

	specsCopy := make([]matcher.Spec, len(specs))
	copy(specsCopy, specs)

	s.mu.Lock()
	s.ruleSpecs[workspace] = specsCopy
	s.mu.Unlock()

	reg.SetRules(workspace, matchers)
	return nil
}

// RuleSpecs returns the persisted matcher.Spec list for workspace, as
// last set via SetWorkspaceRules or restored from a bbolt snapshot.
func (s *Store) RuleSpecs(workspace string) ([]matcher.Spec, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	specs, ok := s.ruleSpecs[workspace]
	return specs, ok
}

// AllRuleSpecs returns every workspace's persisted matcher.Spec list,
// keyed by workspace name, for PersistTo to snapshot.
func (s *Store) AllRuleSpecs() map[string][]matcher.Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]matcher.Spec, len(s.ruleSpecs))
	for name, specs := range s.ruleSpecs {
		cp := make([]matcher.Spec, len(specs))
		copy(cp, specs)
		out[name] = cp
	}
	return out
}
