package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/prefstore/prefstore/internal/event"
	"github.com/prefstore/prefstore/internal/history"
)

func TestUndoRedo_Symmetry(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	if _, err := m.Set(ctx, "appearance.theme", "light"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := m.Set(ctx, "appearance.fontSize", 16); err != nil {
		t.Fatalf("Set: %v", err)
	}

	snap, err := m.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if snap["appearance.fontSize"] != 14.0 {
		t.Errorf("fontSize after undo = %v, want 14.0", snap["appearance.fontSize"])
	}
	if snap["appearance.theme"] != "light" {
		t.Errorf("theme after undo = %v, want light kept", snap["appearance.theme"])
	}
	if !m.CanRedo() {
		t.Error("CanRedo = false after undo")
	}

	snap, err = m.Redo(ctx)
	if err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if snap["appearance.fontSize"] != 16.0 {
		t.Errorf("fontSize after redo = %v, want 16.0", snap["appearance.fontSize"])
	}
	if _, err := m.Redo(ctx); !errors.Is(err, history.ErrNothingToRedo) {
		t.Errorf("Redo at newest = %v, want ErrNothingToRedo", err)
	}
}

func TestUndo_Empty(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Undo(context.Background()); !errors.Is(err, history.ErrNothingToUndo) {
		t.Errorf("Undo = %v, want ErrNothingToUndo", err)
	}
	if _, err := m.Redo(context.Background()); !errors.Is(err, history.ErrNothingToRedo) {
		t.Errorf("Redo = %v, want ErrNothingToRedo", err)
	}
}

func TestUndo_PublishesChangeEvents(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	if _, err := m.Set(ctx, "appearance.theme", "light"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := m.Set(ctx, "appearance.theme", "system"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	rec := &recorder{}
	if _, err := m.Bus().Subscribe(event.SettingChanged, rec); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := m.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	got := rec.on(event.SettingChanged)
	if len(got) != 1 {
		t.Fatalf("setting-changed events = %d, want 1", len(got))
	}
	payload := got[0].Payload.(event.ChangePayload)
	if payload.Key != "appearance.theme" || payload.Value != "light" || payload.Previous != "system" {
		t.Errorf("payload = %+v, want theme light<-system", payload)
	}
}

func TestUndo_NewSaveTruncatesRedo(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	if _, err := m.Set(ctx, "appearance.theme", "light"); err != nil {
		t.Fatalf("Set A: %v", err)
	}
	if _, err := m.Set(ctx, "appearance.fontSize", 16); err != nil {
		t.Fatalf("Set B: %v", err)
	}
	if _, err := m.Set(ctx, "generation.temperature", 0.5); err != nil {
		t.Fatalf("Set C: %v", err)
	}

	if _, err := m.Undo(ctx); err != nil {
		t.Fatalf("Undo 1: %v", err)
	}
	if _, err := m.Undo(ctx); err != nil {
		t.Fatalf("Undo 2: %v", err)
	}

	// A new save from an undone position discards the redo region.
	if _, err := m.Set(ctx, "generation.topP", 0.9); err != nil {
		t.Fatalf("Set D: %v", err)
	}

	entries := m.History().Entries()
	if len(entries) != 2 {
		t.Fatalf("history entries = %d, want 2", len(entries))
	}
	if entries[0].Label != "set generation.topP" {
		t.Errorf("entries[0].Label = %s, want set generation.topP", entries[0].Label)
	}
	if entries[1].Label != "set appearance.theme" {
		t.Errorf("entries[1].Label = %s, want set appearance.theme", entries[1].Label)
	}
	if m.CanRedo() {
		t.Error("CanRedo = true after the redo region was truncated")
	}

	if got, _ := m.Get("appearance.theme"); got != "light" {
		t.Errorf("theme = %v, want light", got)
	}
	if got, _ := m.Get("appearance.fontSize"); got != 14.0 {
		t.Errorf("fontSize = %v, want undone 14.0", got)
	}
	if got, _ := m.Get("generation.temperature"); got != 0.7 {
		t.Errorf("temperature = %v, want undone 0.7", got)
	}
	if got, _ := m.Get("generation.topP"); got != 0.9 {
		t.Errorf("topP = %v, want 0.9", got)
	}
}

func TestUndo_SensitiveSubstitution(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	if _, err := m.Set(ctx, "provider.apiKey", "sk-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := m.Set(ctx, "appearance.theme", "light"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	snap, err := m.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if snap["appearance.theme"] != "dark" {
		t.Errorf("theme = %v, want dark", snap["appearance.theme"])
	}
	// History holds only a presence flag; the live secret fills it in.
	if snap["provider.apiKey"] != true {
		t.Errorf("apiKey presence = %v, want true", snap["provider.apiKey"])
	}
	if got, _ := m.SecretValue("provider.apiKey"); got != "sk-1" {
		t.Errorf("apiKey = %q, want live value kept", got)
	}
}

func TestUndo_ClearedSecretStaysGone(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	if _, err := m.Set(ctx, "provider.apiKey", "sk-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := m.Set(ctx, "provider.apiKey", ""); err != nil {
		t.Fatalf("clear: %v", err)
	}

	// The entry recorded presence, not the value, and the live copy is
	// gone. Undo cannot resurrect it.
	if _, err := m.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if got, _ := m.SecretValue("provider.apiKey"); got != "" {
		t.Errorf("apiKey = %q, want empty", got)
	}
	if got, _ := m.Get("provider.apiKey"); got != false {
		t.Errorf("apiKey presence = %v, want false", got)
	}
}

func TestUndoRedo_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	chain := newTestChain()
	m := newManagerOn(t, chain)

	if _, err := m.Set(ctx, "appearance.fontSize", 16); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := m.Set(ctx, "appearance.fontSize", 18); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := m.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The moved cursor was persisted with the log.
	reloaded := newManagerOn(t, chain)
	if reloaded.CanUndo() {
		t.Error("CanUndo = true, cursor should sit on the oldest entry")
	}
	if !reloaded.CanRedo() {
		t.Error("CanRedo = false after restart")
	}
	if got, _ := reloaded.Get("appearance.fontSize"); got != 16.0 {
		t.Errorf("fontSize = %v, want undone 16.0", got)
	}

	snap, err := reloaded.Redo(ctx)
	if err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if snap["appearance.fontSize"] != 18.0 {
		t.Errorf("fontSize after redo = %v, want 18.0", snap["appearance.fontSize"])
	}
}
