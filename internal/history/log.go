package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prefstore/prefstore/internal/schema"
)

// Common errors for history operations.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// DefaultCapacity bounds the log when no capacity is configured.
const DefaultCapacity = 20

// Entry is one recorded settings state.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Label     string          `json:"label,omitempty"`
	Snapshot  schema.Snapshot `json:"snapshot"`
}

// Log is a bounded newest-first list of entries with a cursor.
// Index 0 is the newest entry; the cursor marks the current state.
type Log struct {
	mu sync.Mutex

	entries []Entry
	cursor  int

	capacity  int
	sensitive map[string]struct{}
}

// New creates a log. Capacity at or below zero falls back to
// DefaultCapacity. Values at the given sensitive keys are redacted to
// presence markers before entries are stored.
func New(capacity int, sensitiveKeys []string) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	sensitive := make(map[string]struct{}, len(sensitiveKeys))
	for _, k := range sensitiveKeys {
		sensitive[k] = struct{}{}
	}
	return &Log{
		capacity:  capacity,
		sensitive: sensitive,
	}
}

// Append records a new current state. Entries newer than the cursor
// (the redo region) are discarded first, then the oldest entries are
// evicted to stay within capacity.
func (l *Log) Append(snap schema.Snapshot, label string) Entry {
	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Label:     label,
		Snapshot:  l.redact(snap),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor > 0 {
		l.entries = l.entries[l.cursor:]
		l.cursor = 0
	}

	l.entries = append([]Entry{entry}, l.entries...)

	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}

	return entry
}

// Undo moves the cursor one entry older and returns that entry.
func (l *Log) Undo() (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor >= len(l.entries)-1 {
		return Entry{}, ErrNothingToUndo
	}
	l.cursor++
	return l.cloneEntry(l.entries[l.cursor]), nil
}

// Redo moves the cursor one entry newer and returns that entry.
func (l *Log) Redo() (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cursor <= 0 {
		return Entry{}, ErrNothingToRedo
	}
	l.cursor--
	return l.cloneEntry(l.entries[l.cursor]), nil
}

// CanUndo reports whether an older entry exists.
func (l *Log) CanUndo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor < len(l.entries)-1
}

// CanRedo reports whether the cursor sits behind the newest entry.
func (l *Log) CanRedo() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor > 0
}

// UndoCount returns the number of undo moves available.
func (l *Log) UndoCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return 0
	}
	return len(l.entries) - 1 - l.cursor
}

// RedoCount returns the number of redo moves available.
func (l *Log) RedoCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor
}

// Current returns the entry at the cursor.
func (l *Log) Current() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.cloneEntry(l.entries[l.cursor]), true
}

// Entries returns the log newest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		result[i] = l.cloneEntry(e)
	}
	return result
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear removes all entries and resets the cursor.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	l.cursor = 0
}

// SetCapacity changes the bound. If the log is larger, the oldest
// entries are evicted; a cursor past the new end moves to the oldest
// surviving entry.
func (l *Log) SetCapacity(capacity int) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.capacity = capacity

	if len(l.entries) > capacity {
		l.entries = l.entries[:capacity]
	}
	if l.cursor > len(l.entries)-1 && len(l.entries) > 0 {
		l.cursor = len(l.entries) - 1
	}
}

// Capacity returns the configured bound.
func (l *Log) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.capacity
}

// Sensitive reports whether a key is redacted in stored entries.
func (l *Log) Sensitive(key string) bool {
	_, ok := l.sensitive[key]
	return ok
}

// record is the persisted form of the log.
type record struct {
	Entries []Entry `json:"entries"`
	Cursor  int     `json:"cursor"`
}

// Marshal serializes the log for persistence.
func (l *Log) Marshal() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := record{
		Entries: make([]Entry, len(l.entries)),
		Cursor:  l.cursor,
	}
	for i, e := range l.entries {
		rec.Entries[i] = l.cloneEntry(e)
	}
	return json.Marshal(rec)
}

// Restore replaces the log's contents from a Marshal payload. Entries
// beyond capacity are dropped oldest first and the cursor is clamped
// into range. Entries were redacted before they were persisted, so no
// re-redaction happens here.
func (l *Log) Restore(data []byte) error {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decode history: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(rec.Entries) > l.capacity {
		rec.Entries = rec.Entries[:l.capacity]
	}
	l.entries = rec.Entries
	l.cursor = rec.Cursor
	if l.cursor < 0 {
		l.cursor = 0
	}
	if l.cursor > len(l.entries)-1 && len(l.entries) > 0 {
		l.cursor = len(l.entries) - 1
	}
	if len(l.entries) == 0 {
		l.cursor = 0
	}
	return nil
}

// redact clones a snapshot, replacing sensitive values with a marker
// for whether a non-empty value was present.
func (l *Log) redact(snap schema.Snapshot) schema.Snapshot {
	out := make(schema.Snapshot, len(snap))
	for key, value := range snap {
		if _, ok := l.sensitive[key]; ok {
			out[key] = value != nil && value != ""
			continue
		}
		out[key] = value
	}
	return out
}

func (l *Log) cloneEntry(e Entry) Entry {
	e.Snapshot = e.Snapshot.Clone()
	return e
}
