package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/howard-nolan/codegate/internal/rules/matcher"
)

// snapshotBucket is the single bbolt bucket codegate's persistence shim
// uses. The in-memory Store is the system of record during a process's
// lifetime; bbolt here only needs to survive a restart, so a single
// JSON-encoded blob holding every resource kind is enough — there's no query
// pattern that would benefit from bbolt's key ordering, unlike the
// real SQL schema spec.md scopes out of this port.
var snapshotBucket = []byte("codegate")

// snapshot is the on-disk shape persisted to bbolt.
type snapshot struct {
	Workspaces []string                  `json:"workspaces"`
	Active     string                    `json:"active"`
	Endpoints  []ProviderEndpoint        `json:"endpoints"`
	Personas   []Persona                 `json:"personas"`
	Rules      map[string][]matcher.Spec `json:"rules"`
}

// PersistTo opens (creating if needed) a bbolt database at path and
// writes s's current state to it in a single transaction.
func (s *Store) PersistTo(path string) error {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return fmt.Errorf("store: opening bbolt db %s: %w", path, err)
	}
	defer db.Close()

	s.mu.RLock()
	snap := snapshot{
		Workspaces: make([]string, 0, len(s.workspaces)),
		Active:     s.active,
		Endpoints:  make([]ProviderEndpoint, 0, len(s.endpoints)),
		Personas:   make([]Persona, 0, len(s.personas)),
		Rules:      make(map[string][]matcher.Spec, len(s.ruleSpecs)),
	}
	for name := range s.workspaces {
		snap.Workspaces = append(snap.Workspaces, name)
	}
	for _, ep := range s.endpoints {
		snap.Endpoints = append(snap.Endpoints, ep)
	}
	for _, p := range s.personas {
		snap.Personas = append(snap.Personas, p)
	}
	for workspace, specs := range s.ruleSpecs {
		cp := make([]matcher.Spec, len(specs))
		copy(cp, specs)
		snap.Rules[workspace] = cp
	}
	s.mu.RUnlock()

	return db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(snapshotBucket)
		if err != nil {
			return fmt.Errorf("store: creating bucket: %w", err)
		}
		encoded, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("store: encoding snapshot: %w", err)
		}
		return b.Put([]byte("snapshot"), encoded)
	})
}

// LoadFrom returns a new Store holding whatever was last persisted at path.
// A missing file or bucket is not an error — it means a fresh store.
func LoadFrom(path string) (*Store, error) {
	s := New()

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: opening bbolt db %s: %w", path, err)
	}
	defer db.Close()

	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(snapshotBucket)
		if b == nil {
			return nil
		}
		raw := b.Get([]byte("snapshot"))
		if raw == nil {
			return nil
		}
		var snap snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return fmt.Errorf("store: decoding snapshot: %w", err)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.workspaces = make(map[string]*Workspace, len(snap.Workspaces))
		for _, name := range snap.Workspaces {
			s.workspaces[name] = &Workspace{Name: name}
		}
		if len(s.workspaces) == 0 {
			s.workspaces["default"] = &Workspace{Name: "default"}
		}
		if snap.Active != "" {
			s.active = snap.Active
		}
		for _, ep := range snap.Endpoints {
			s.endpoints[ep.ID] = ep
		}
		for _, p := range snap.Personas {
			s.personas[p.Name] = p
		}
		s.ruleSpecs = make(map[string][]matcher.Spec, len(snap.Rules))
		for workspace, specs := range snap.Rules {
			cp := make([]matcher.Spec, len(specs))
			copy(cp, specs)
			s.ruleSpecs[workspace] = cp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}
