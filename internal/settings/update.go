package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/prefstore/prefstore/internal/event"
	"github.com/prefstore/prefstore/internal/schema"
	"github.com/prefstore/prefstore/internal/storage"
)

// ErrRejected is returned by atomic updates containing any invalid
// field. Nothing was applied or persisted.
var ErrRejected = errors.New("update rejected")

// Result reports the per-field outcome of an update.
type Result struct {
	// Applied lists fields whose value changed.
	Applied []string

	// Defaulted lists fields whose input was unusable and fell back to
	// the schema default.
	Defaulted []string

	// Skipped lists fields that were left untouched: unknown keys and
	// hard validation failures.
	Skipped []string

	// Errors holds the per-field failure for every skipped key.
	Errors map[string]error

	// Persisted reports whether the write reached storage. The
	// in-memory state holds the new values either way.
	Persisted bool
}

// Ok reports whether every field was accepted.
func (r Result) Ok() bool { return len(r.Errors) == 0 }

type updateConfig struct {
	atomic  bool
	label   string
	history bool
}

// UpdateOption adjusts one update call.
type UpdateOption func(*updateConfig)

// Atomic makes the update all-or-nothing: any invalid or defaulted
// field rejects the whole batch with per-field errors and nothing is
// applied. This is the form-save flow; the default is per-field
// containment.
func Atomic() UpdateOption {
	return func(c *updateConfig) { c.atomic = true }
}

// WithLabel names the history entry this update creates.
func WithLabel(label string) UpdateOption {
	return func(c *updateConfig) { c.label = label }
}

func withoutHistory() UpdateOption {
	return func(c *updateConfig) { c.history = false }
}

// Update validates and applies a set of changes, persists them, appends
// history and publishes change events. Calls are serialized; a second
// update waits for the prior one's full span.
func (m *Manager) Update(ctx context.Context, changes map[string]any, opts ...UpdateOption) (Result, error) {
	m.op.Lock()
	defer m.op.Unlock()
	return m.update(ctx, changes, opts...)
}

// update is the locked core shared by Update, Undo/Redo, Import and
// RestoreBackup. Callers hold op.
func (m *Manager) update(ctx context.Context, changes map[string]any, opts ...UpdateOption) (Result, error) {
	if err := m.requireLoaded(); err != nil {
		return Result{}, err
	}

	cfg := updateConfig{label: "update", history: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	next := m.liveValues()
	result := Result{Errors: make(map[string]error)}
	previous := make(map[string]any)
	var changed []string

	for _, key := range sortedKeys(changes) {
		s := m.registry.Get(key)
		if s == nil {
			result.Skipped = append(result.Skipped, key)
			result.Errors[key] = &schema.ValidationError{Key: key, Value: changes[key], Err: schema.ErrUnknownSetting}
			continue
		}

		n := m.registry.Normalize(key, changes[key])
		value := n.Value
		switch {
		case n.Err != nil:
			result.Skipped = append(result.Skipped, key)
			result.Errors[key] = n.Err
			continue
		case n.Outcome == schema.OutcomeDefaulted:
			result.Defaulted = append(result.Defaulted, key)
			value = s.Default
		}

		if next[key] == value {
			continue
		}
		previous[key] = next[key]
		next[key] = value
		changed = append(changed, key)
		result.Applied = append(result.Applied, key)
	}

	if cfg.atomic && (len(result.Errors) > 0 || len(result.Defaulted) > 0) {
		result.Applied = nil
		return result, fmt.Errorf("%w: %d invalid field(s)", ErrRejected, len(result.Errors)+len(result.Defaulted))
	}

	if len(changed) == 0 {
		result.Persisted = true
		return result, nil
	}

	// In-memory state first: storage exhaustion must not lose the
	// caller's values.
	m.setLiveValues(next)
	result.Persisted = m.persist(ctx, next)

	if cfg.history {
		m.history.Append(next, cfg.label)
		m.persistHistory(ctx)
	}
	m.autoBackup(ctx, next)

	for _, key := range changed {
		m.publish(ctx, event.SettingChanged, event.ChangePayload{
			Key:      key,
			Value:    m.eventValue(key, next[key]),
			Previous: m.eventValue(key, previous[key]),
		})
	}
	m.publish(ctx, event.SettingsChanged, event.ChangeSetPayload{ChangedKeys: changed})
	if result.Persisted {
		m.publish(ctx, event.SettingsSaved, nil)
	} else {
		m.publish(ctx, event.Error, event.ErrorPayload{Message: "settings persist failed, keeping in-memory state"})
	}

	return result, nil
}

// Set updates a single key.
func (m *Manager) Set(ctx context.Context, key string, value any) (Result, error) {
	return m.Update(ctx, map[string]any{key: value}, WithLabel("set "+key))
}

// Unset resets a single key to its schema default.
func (m *Manager) Unset(ctx context.Context, key string) (Result, error) {
	s := m.registry.Get(key)
	if s == nil {
		return Result{}, &schema.ValidationError{Key: key, Err: schema.ErrUnknownSetting}
	}
	return m.Update(ctx, map[string]any{key: s.Default}, WithLabel("unset "+key))
}

// ResetDefaults restores every setting to its schema default,
// sensitive values included.
func (m *Manager) ResetDefaults(ctx context.Context) (Result, error) {
	return m.Update(ctx, m.registry.Defaults(), WithLabel("reset to defaults"))
}

// persist writes the data, sensitive and version records through one
// batch. Returns false on any failure; the caller keeps the in-memory
// state and publishes the error.
func (m *Manager) persist(ctx context.Context, values schema.Snapshot) bool {
	data, err := json.MarshalIndent(m.redact(values), "", "  ")
	if err != nil {
		m.log.Error().Err(err).Msg("encode data record")
		return false
	}
	sensitive, err := m.encryptSecrets(values)
	if err != nil {
		m.log.Error().Err(err).Msg("encrypt sensitive record")
		return false
	}
	version, err := json.Marshal(versionRecord{Version: m.Version()})
	if err != nil {
		m.log.Error().Err(err).Msg("encode version record")
		return false
	}

	batch, err := m.chain.BeginBatch(ctx)
	if err != nil {
		m.log.Error().Err(err).Msg("begin persist batch")
		return false
	}
	for _, rec := range []struct {
		key   string
		value []byte
	}{
		{storage.KeyData, data},
		{storage.KeySensitive, sensitive},
		{storage.KeyVersion, version},
	} {
		if err := batch.Save(rec.key, rec.value); err != nil {
			batch.Abort()
			m.log.Error().Err(err).Str("key", rec.key).Msg("stage persist record")
			return false
		}
	}
	if err := batch.Complete(ctx); err != nil {
		m.log.Error().Err(err).Msg("persist batch failed")
		return false
	}
	return true
}

// encryptSecrets builds the sensitive record: an envelope per
// non-empty sensitive value.
func (m *Manager) encryptSecrets(values schema.Snapshot) ([]byte, error) {
	envelopes := make(map[string]string)
	for _, key := range m.registry.SensitiveKeys() {
		str, _ := values[key].(string)
		if str == "" {
			continue
		}
		env, err := m.crypto.Encrypt(str)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s: %w", key, err)
		}
		envelopes[key] = env
	}
	return json.Marshal(envelopes)
}

// persistHistory saves the history record. Failures degrade to the
// in-memory log only.
func (m *Manager) persistHistory(ctx context.Context) {
	data, err := m.history.Marshal()
	if err != nil {
		m.log.Warn().Err(err).Msg("encode history record")
		return
	}
	if err := m.chain.Save(ctx, storage.KeyHistory, data); err != nil {
		m.log.Warn().Err(err).Msg("persist history failed")
	}
}

func sortedKeys(changes map[string]any) []string {
	keys := make([]string, 0, len(changes))
	for key := range changes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
