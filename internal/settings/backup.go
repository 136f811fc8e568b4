package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prefstore/prefstore/internal/schema"
	"github.com/prefstore/prefstore/internal/storage"
)

// BackupKind says why a backup was taken.
type BackupKind string

const (
	BackupManual     BackupKind = "manual"
	BackupAuto       BackupKind = "auto"
	BackupPreRestore BackupKind = "pre-restore"
	BackupPreImport  BackupKind = "pre-import"
)

// Backup is one retained settings state. Settings hold the public
// (redacted) snapshot; restoring substitutes live secret values the
// same way undo does.
type Backup struct {
	ID        string         `json:"id"`
	Kind      BackupKind     `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Settings  map[string]any `json:"settings"`
}

// CreateBackup records the current state under the given kind and
// prunes the list to the retention cap.
func (m *Manager) CreateBackup(ctx context.Context, kind BackupKind) (Backup, error) {
	m.op.Lock()
	defer m.op.Unlock()

	if err := m.requireLoaded(); err != nil {
		return Backup{}, err
	}
	return m.createBackup(ctx, kind)
}

// Backups returns the retained backups, newest first.
func (m *Manager) Backups(ctx context.Context) ([]Backup, error) {
	m.op.Lock()
	defer m.op.Unlock()

	if err := m.requireLoaded(); err != nil {
		return nil, err
	}
	return m.loadBackups(ctx), nil
}

// RestoreBackup replaces the current state with a retained backup. A
// pre-restore backup of the current state is taken first, and the
// restore lands in history as a new entry.
func (m *Manager) RestoreBackup(ctx context.Context, id string) (schema.Snapshot, error) {
	m.op.Lock()
	defer m.op.Unlock()

	if err := m.requireLoaded(); err != nil {
		return nil, err
	}

	var target *Backup
	for _, b := range m.loadBackups(ctx) {
		if b.ID == id {
			backup := b
			target = &backup
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackup, id)
	}

	if _, err := m.createBackup(ctx, BackupPreRestore); err != nil {
		return nil, fmt.Errorf("pre-restore backup: %w", err)
	}

	changes := m.substituteSecrets(schema.Snapshot(target.Settings))
	if _, err := m.update(ctx, changes, WithLabel("restore backup "+id)); err != nil {
		return nil, err
	}
	return m.Snapshot(), nil
}

// createBackup appends a backup of the current state. Callers hold op.
func (m *Manager) createBackup(ctx context.Context, kind BackupKind) (Backup, error) {
	backup := Backup{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Version:   m.Version(),
		Settings:  m.Snapshot(),
	}

	list := append([]Backup{backup}, m.loadBackups(ctx)...)
	if len(list) > m.backupCap {
		list = list[:m.backupCap]
	}
	if err := m.saveBackups(ctx, list); err != nil {
		return Backup{}, err
	}
	return backup, nil
}

// autoBackup is the per-save retention hook on the persist path.
// Failures degrade to a log line; the save itself already succeeded or
// failed on its own terms.
func (m *Manager) autoBackup(ctx context.Context, values schema.Snapshot) {
	backup := Backup{
		ID:        uuid.NewString(),
		Kind:      BackupAuto,
		Timestamp: time.Now().UTC(),
		Version:   m.Version(),
		Settings:  m.redact(values),
	}

	list := append([]Backup{backup}, m.loadBackups(ctx)...)
	if len(list) > m.backupCap {
		list = list[:m.backupCap]
	}
	if err := m.saveBackups(ctx, list); err != nil {
		m.log.Warn().Err(err).Msg("auto backup failed")
	}
}

func (m *Manager) loadBackups(ctx context.Context) []Backup {
	data, err := m.chain.Load(ctx, storage.KeyBackups)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.log.Warn().Err(err).Msg("backup list unavailable")
		}
		return nil
	}
	var list []Backup
	if err := json.Unmarshal(data, &list); err != nil {
		m.log.Warn().Err(err).Msg("backup list unreadable")
		return nil
	}
	return list
}

func (m *Manager) saveBackups(ctx context.Context, list []Backup) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode backup list: %w", err)
	}
	if err := m.chain.Save(ctx, storage.KeyBackups, data); err != nil {
		return fmt.Errorf("persist backup list: %w", err)
	}
	return nil
}
