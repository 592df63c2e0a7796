// Package packageindex is the in-memory stand-in for the malicious/
// archived-package lookup steps.ContextRetriever and steps.CodeCommentStep
// consult. spec.md scopes the original's vector-similarity package index
// (embeddings over a scraped npm/PyPI/crates.io malicious-package feed)
// out as a Non-goal of this port; this package keeps the same
// ecosystem+name lookup contract so a real backing store can be dropped
// in later without touching the steps package. See DESIGN.md for why a
// map replaces the vector search.
package packageindex

import (
	"context"
	"strings"
	"sync"

	"github.com/howard-nolan/codegate/internal/pipeline/steps"
)

// Index is a concurrent-safe, in-memory steps.PackageIndex keyed by
// ecosystem and lowercased package name.
type Index struct {
	mu      sync.RWMutex
	entries map[string]map[string]steps.PackageInfo
}

// New constructs an empty Index.
func New() *Index {
	return &Index{entries: make(map[string]map[string]steps.PackageInfo)}
}

// Seed is a convenience constructor that loads entries at startup (from
// a config-supplied list, a flat file, whatever the caller has on hand).
func Seed(entries []steps.PackageInfo) *Index {
	idx := New()
	for _, e := range entries {
		idx.Upsert(e)
	}
	return idx
}

// Upsert records or replaces one package's info.
func (idx *Index) Upsert(info steps.PackageInfo) {
	key := strings.ToLower(info.Name)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	byName, ok := idx.entries[info.Ecosystem]
	if !ok {
		byName = make(map[string]steps.PackageInfo)
		idx.entries[info.Ecosystem] = byName
	}
	byName[key] = info
}

// Lookup implements steps.PackageIndex: it returns every entry found for
// packages within ecosystem, silently skipping unknown names — an
// unknown package is not an error, just nothing to warn about.
func (idx *Index) Lookup(_ context.Context, ecosystem string, packages []string) ([]steps.PackageInfo, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	byName := idx.entries[ecosystem]
	if len(byName) == 0 {
		return nil, nil
	}

	out := make([]steps.PackageInfo, 0, len(packages))
	for _, name := range packages {
		if info, ok := byName[strings.ToLower(name)]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}
