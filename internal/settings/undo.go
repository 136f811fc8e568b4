package settings

import (
	"context"

	"github.com/prefstore/prefstore/internal/history"
	"github.com/prefstore/prefstore/internal/schema"
)

// Undo moves to the previous recorded state, persists it and publishes
// the resulting change events. The history cursor moves; no new entry
// is appended. Returns the public snapshot after the move.
func (m *Manager) Undo(ctx context.Context) (schema.Snapshot, error) {
	m.op.Lock()
	defer m.op.Unlock()

	if err := m.requireLoaded(); err != nil {
		return nil, err
	}
	entry, err := m.history.Undo()
	if err != nil {
		return nil, err
	}
	return m.applyEntry(ctx, entry, "undo")
}

// Redo moves back toward the newest recorded state. The inverse of
// Undo.
func (m *Manager) Redo(ctx context.Context) (schema.Snapshot, error) {
	m.op.Lock()
	defer m.op.Unlock()

	if err := m.requireLoaded(); err != nil {
		return nil, err
	}
	entry, err := m.history.Redo()
	if err != nil {
		return nil, err
	}
	return m.applyEntry(ctx, entry, "redo")
}

// applyEntry replays a history entry: live secret substitution, then
// the shared update path without a history append, then persisting the
// moved cursor.
func (m *Manager) applyEntry(ctx context.Context, entry history.Entry, label string) (schema.Snapshot, error) {
	changes := m.substituteSecrets(entry.Snapshot)
	if _, err := m.update(ctx, changes, WithLabel(label), withoutHistory()); err != nil {
		return nil, err
	}
	m.persistHistory(ctx)
	return m.Snapshot(), nil
}

// substituteSecrets rebuilds usable values from a redacted snapshot.
// History stores only that a sensitive value existed, so a presence
// flag restores the manager's live value when one is still held and
// empties the field otherwise.
func (m *Manager) substituteSecrets(snap schema.Snapshot) map[string]any {
	live := m.liveValues()
	out := make(map[string]any, len(snap))
	for key, value := range snap {
		s := m.registry.Get(key)
		if s == nil {
			continue
		}
		if !s.Sensitive {
			out[key] = value
			continue
		}
		if wasPresent, _ := value.(bool); wasPresent {
			str, _ := live[key].(string)
			out[key] = str
		} else {
			out[key] = ""
		}
	}
	return out
}
