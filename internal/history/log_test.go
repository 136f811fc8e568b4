package history

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prefstore/prefstore/internal/schema"
)

func snapWith(theme string) schema.Snapshot {
	return schema.Snapshot{"appearance.theme": theme}
}

func TestLog_Append(t *testing.T) {
	l := New(20, nil)

	entry := l.Append(snapWith("dark"), "save")
	if entry.ID == "" {
		t.Error("expected entry ID")
	}
	if entry.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
	if entry.Label != "save" {
		t.Errorf("label = %s, want save", entry.Label)
	}

	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}

	// Newest first
	l.Append(snapWith("light"), "save")
	entries := l.Entries()
	if entries[0].Snapshot["appearance.theme"] != "light" {
		t.Error("expected newest entry first")
	}
	if entries[1].Snapshot["appearance.theme"] != "dark" {
		t.Error("expected older entry second")
	}
}

func TestLog_UndoRedo(t *testing.T) {
	l := New(20, nil)
	l.Append(snapWith("a"), "save")
	l.Append(snapWith("b"), "save")
	l.Append(snapWith("c"), "save")

	if !l.CanUndo() {
		t.Fatal("expected CanUndo")
	}
	if l.CanRedo() {
		t.Fatal("did not expect CanRedo at the newest entry")
	}

	entry, err := l.Undo()
	if err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if entry.Snapshot["appearance.theme"] != "b" {
		t.Errorf("undo = %v, want b", entry.Snapshot["appearance.theme"])
	}

	entry, err = l.Undo()
	if err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if entry.Snapshot["appearance.theme"] != "a" {
		t.Errorf("undo = %v, want a", entry.Snapshot["appearance.theme"])
	}

	// Oldest entry reached
	if l.CanUndo() {
		t.Error("did not expect CanUndo at the oldest entry")
	}
	if _, err := l.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("expected ErrNothingToUndo, got %v", err)
	}

	// Walk forward again
	entry, err = l.Redo()
	if err != nil {
		t.Fatalf("Redo failed: %v", err)
	}
	if entry.Snapshot["appearance.theme"] != "b" {
		t.Errorf("redo = %v, want b", entry.Snapshot["appearance.theme"])
	}

	entry, err = l.Redo()
	if err != nil {
		t.Fatalf("Redo failed: %v", err)
	}
	if entry.Snapshot["appearance.theme"] != "c" {
		t.Errorf("redo = %v, want c", entry.Snapshot["appearance.theme"])
	}

	if _, err := l.Redo(); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("expected ErrNothingToRedo, got %v", err)
	}
}

func TestLog_AppendAfterUndoDiscardsRedo(t *testing.T) {
	l := New(20, nil)
	l.Append(snapWith("a"), "save")
	l.Append(snapWith("b"), "save")
	l.Append(snapWith("c"), "save")

	if _, err := l.Undo(); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if _, err := l.Undo(); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}

	// Writing from a rewound cursor drops the redo region (c and b)
	l.Append(snapWith("d"), "save")

	entries := l.Entries()
	if len(entries) != 2 {
		t.Fatalf("Len = %d, want 2", len(entries))
	}
	if entries[0].Snapshot["appearance.theme"] != "d" {
		t.Errorf("entries[0] = %v, want d", entries[0].Snapshot["appearance.theme"])
	}
	if entries[1].Snapshot["appearance.theme"] != "a" {
		t.Errorf("entries[1] = %v, want a", entries[1].Snapshot["appearance.theme"])
	}

	if l.CanRedo() {
		t.Error("redo region should be gone after append")
	}
	if !l.CanUndo() {
		t.Error("expected undo to a")
	}
}

func TestLog_Capacity(t *testing.T) {
	l := New(3, nil)
	for i := 0; i < 5; i++ {
		l.Append(snapWith(fmt.Sprintf("t%d", i)), "save")
	}

	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}

	// Oldest entries evicted
	entries := l.Entries()
	if entries[0].Snapshot["appearance.theme"] != "t4" {
		t.Errorf("newest = %v, want t4", entries[0].Snapshot["appearance.theme"])
	}
	if entries[2].Snapshot["appearance.theme"] != "t2" {
		t.Errorf("oldest = %v, want t2", entries[2].Snapshot["appearance.theme"])
	}
}

func TestLog_DefaultCapacity(t *testing.T) {
	l := New(0, nil)
	if l.Capacity() != DefaultCapacity {
		t.Errorf("Capacity = %d, want %d", l.Capacity(), DefaultCapacity)
	}
}

func TestLog_SetCapacity(t *testing.T) {
	l := New(10, nil)
	for i := 0; i < 6; i++ {
		l.Append(snapWith(fmt.Sprintf("t%d", i)), "save")
	}

	l.SetCapacity(2)
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
	if l.Capacity() != 2 {
		t.Errorf("Capacity = %d, want 2", l.Capacity())
	}
}

func TestLog_Counts(t *testing.T) {
	l := New(20, nil)
	if l.UndoCount() != 0 || l.RedoCount() != 0 {
		t.Error("expected zero counts for empty log")
	}

	l.Append(snapWith("a"), "save")
	l.Append(snapWith("b"), "save")
	l.Append(snapWith("c"), "save")

	if l.UndoCount() != 2 {
		t.Errorf("UndoCount = %d, want 2", l.UndoCount())
	}
	if l.RedoCount() != 0 {
		t.Errorf("RedoCount = %d, want 0", l.RedoCount())
	}

	if _, err := l.Undo(); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if l.UndoCount() != 1 {
		t.Errorf("UndoCount = %d, want 1", l.UndoCount())
	}
	if l.RedoCount() != 1 {
		t.Errorf("RedoCount = %d, want 1", l.RedoCount())
	}
}

func TestLog_Current(t *testing.T) {
	l := New(20, nil)

	if _, ok := l.Current(); ok {
		t.Error("expected no current entry for empty log")
	}

	l.Append(snapWith("a"), "save")
	l.Append(snapWith("b"), "save")

	entry, ok := l.Current()
	if !ok || entry.Snapshot["appearance.theme"] != "b" {
		t.Errorf("Current = %v, want b", entry.Snapshot["appearance.theme"])
	}

	if _, err := l.Undo(); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	entry, ok = l.Current()
	if !ok || entry.Snapshot["appearance.theme"] != "a" {
		t.Errorf("Current after undo = %v, want a", entry.Snapshot["appearance.theme"])
	}
}

func TestLog_Clear(t *testing.T) {
	l := New(20, nil)
	l.Append(snapWith("a"), "save")
	l.Append(snapWith("b"), "save")

	l.Clear()
	if l.Len() != 0 {
		t.Errorf("Len = %d, want 0", l.Len())
	}
	if l.CanUndo() || l.CanRedo() {
		t.Error("expected no undo/redo after Clear")
	}
}

func TestLog_RedactsSensitiveKeys(t *testing.T) {
	l := New(20, []string{"provider.apiKey", "privacy.syncToken"})

	l.Append(schema.Snapshot{
		"provider.apiKey":   "sk-abc123",
		"privacy.syncToken": "",
		"appearance.theme":  "dark",
	}, "save")

	entry, ok := l.Current()
	if !ok {
		t.Fatal("expected current entry")
	}

	// Sensitive values become presence markers
	if entry.Snapshot["provider.apiKey"] != true {
		t.Errorf("apiKey = %v, want true marker", entry.Snapshot["provider.apiKey"])
	}
	if entry.Snapshot["privacy.syncToken"] != false {
		t.Errorf("syncToken = %v, want false marker", entry.Snapshot["privacy.syncToken"])
	}

	// Other values stored verbatim
	if entry.Snapshot["appearance.theme"] != "dark" {
		t.Errorf("theme = %v, want dark", entry.Snapshot["appearance.theme"])
	}

	if !l.Sensitive("provider.apiKey") {
		t.Error("expected provider.apiKey to be sensitive")
	}
	if l.Sensitive("appearance.theme") {
		t.Error("did not expect appearance.theme to be sensitive")
	}
}

func TestLog_EntriesAreIsolated(t *testing.T) {
	l := New(20, nil)
	l.Append(snapWith("a"), "save")

	entry, _ := l.Current()
	entry.Snapshot["appearance.theme"] = "mutated"

	again, _ := l.Current()
	if again.Snapshot["appearance.theme"] != "a" {
		t.Error("mutating a returned entry changed the log")
	}
}

func TestLog_MarshalRestore(t *testing.T) {
	l := New(20, nil)
	l.Append(snapWith("a"), "first")
	l.Append(snapWith("b"), "second")
	l.Append(snapWith("c"), "third")
	if _, err := l.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	data, err := l.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	restored := New(20, nil)
	if err := restored.Restore(data); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if restored.Len() != 3 {
		t.Fatalf("Len = %d, want 3", restored.Len())
	}
	entry, ok := restored.Current()
	if !ok {
		t.Fatal("expected a current entry")
	}
	if entry.Snapshot["appearance.theme"] != "b" {
		t.Errorf("current = %v, want b", entry.Snapshot["appearance.theme"])
	}
	if !restored.CanRedo() {
		t.Error("cursor position should survive the round trip")
	}
	if !restored.CanUndo() {
		t.Error("expected undo still available")
	}
}

func TestLog_RestoreClampsToCapacity(t *testing.T) {
	l := New(10, nil)
	for i := 0; i < 8; i++ {
		l.Append(snapWith(fmt.Sprintf("t%d", i)), "save")
	}
	data, err := l.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	small := New(3, nil)
	if err := small.Restore(data); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if small.Len() != 3 {
		t.Errorf("Len = %d, want 3", small.Len())
	}
	entry, _ := small.Current()
	if entry.Snapshot["appearance.theme"] != "t7" {
		t.Errorf("current = %v, want t7 (newest kept)", entry.Snapshot["appearance.theme"])
	}
}

func TestLog_RestoreRejectsGarbage(t *testing.T) {
	l := New(20, nil)
	if err := l.Restore([]byte("not json")); err == nil {
		t.Error("expected decode error")
	}
}
