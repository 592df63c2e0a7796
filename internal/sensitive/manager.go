// Package sensitive implements the Sensitive-Data Manager (component D):
// a thin, typed wrapper over the Session Store that attaches
// {service, kind} metadata to every stored value, so an unredaction step
// can report what was restored without needing a second lookup.
package sensitive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/howard-nolan/codegate/internal/session"
)

// Entry is the JSON payload stored for every placeholder.
type Entry struct {
	Original string `json:"original"`
	Service  string `json:"service"` // e.g. "aws", "github", "stripe", "pii"
	Type     string `json:"type"`    // e.g. "api_key", "EMAIL_ADDRESS"
}

// Manager wraps a session.Store with the Entry envelope.
type Manager struct {
	store session.Store
}

// New constructs a Manager over store.
func New(store session.Store) *Manager {
	return &Manager{store: store}
}

// Store records original under a fresh placeholder in sessionID,
// tagged with service/kind. Fails closed: an empty sessionID or empty
// original is rejected rather than silently generating a useless
// placeholder.
func (m *Manager) Store(ctx context.Context, sessionID string, kind session.Kind, service, typ, original string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("sensitive: no placeholder: empty session id")
	}
	if original == "" {
		return "", fmt.Errorf("sensitive: no placeholder: empty original value")
	}

	payload, err := json.Marshal(Entry{Original: original, Service: service, Type: typ})
	if err != nil {
		return "", fmt.Errorf("sensitive: encoding entry: %w", err)
	}

	placeholder, err := m.store.AddMapping(ctx, sessionID, kind, string(payload))
	if err != nil {
		return "", fmt.Errorf("sensitive: storing mapping: %w", err)
	}
	return placeholder, nil
}

// GetOriginal returns the Entry stored under placeholder in sessionID.
func (m *Manager) GetOriginal(ctx context.Context, sessionID, placeholder string) (Entry, bool, error) {
	raw, ok, err := m.store.GetMapping(ctx, sessionID, placeholder)
	if err != nil {
		return Entry{}, false, fmt.Errorf("sensitive: reading mapping: %w", err)
	}
	if !ok {
		return Entry{}, false, nil
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry{}, false, fmt.Errorf("sensitive: decoding entry: %w", err)
	}
	return e, true, nil
}

// GetBySession returns every placeholder->Entry mapping in sessionID.
func (m *Manager) GetBySession(ctx context.Context, sessionID string) (map[string]Entry, error) {
	raw, ok, err := m.store.GetBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sensitive: reading session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	out := make(map[string]Entry, len(raw))
	for placeholder, payload := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("sensitive: decoding entry for %q: %w", placeholder, err)
		}
		out[placeholder] = e
	}
	return out, nil
}

// CleanupSession removes every mapping for sessionID. Safe to call
// multiple times and on sessions with no mappings.
func (m *Manager) CleanupSession(ctx context.Context, sessionID string) error {
	if err := m.store.CleanupSession(ctx, sessionID); err != nil {
		return fmt.Errorf("sensitive: cleanup: %w", err)
	}
	return nil
}
