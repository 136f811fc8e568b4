package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prefstore/prefstore/internal/event"
	"github.com/prefstore/prefstore/internal/history"
	"github.com/prefstore/prefstore/internal/migrate"
	"github.com/prefstore/prefstore/internal/schema"
	"github.com/prefstore/prefstore/internal/secrets"
	"github.com/prefstore/prefstore/internal/storage"
)

// Defaults for manager knobs.
const (
	DefaultBackupCap = 10
	DefaultDebounce  = 300 * time.Millisecond
)

// Manager owns the in-memory snapshot and the history cursor, and
// serializes every mutation against both.
type Manager struct {
	registry *schema.Registry
	chain    *storage.Chain
	crypto   *secrets.Service
	migrator *migrate.Migrator
	history  *history.Log
	bus      *event.Bus
	log      zerolog.Logger

	backupCap int
	delay     time.Duration
	watchFile bool

	// op serializes whole operation spans: state change, persist,
	// history, publishes. Event handlers run inside this span and must
	// not call mutating manager methods synchronously.
	op sync.Mutex

	state  sync.RWMutex
	values schema.Snapshot // live values, secrets in the clear
	loaded bool
	closed bool

	pending *debouncer
	watcher *fileWatcher
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry replaces the default settings catalog.
func WithRegistry(r *schema.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithChain sets the storage chain. Required.
func WithChain(c *storage.Chain) Option {
	return func(m *Manager) { m.chain = c }
}

// WithCrypto replaces the default secrets service.
func WithCrypto(s *secrets.Service) Option {
	return func(m *Manager) { m.crypto = s }
}

// WithMigrator replaces the default version ladder.
func WithMigrator(mg *migrate.Migrator) Option {
	return func(m *Manager) { m.migrator = mg }
}

// WithHistory replaces the default history log.
func WithHistory(h *history.Log) Option {
	return func(m *Manager) { m.history = h }
}

// WithBus replaces the default event bus.
func WithBus(b *event.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithLogger sets the manager logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithBackupCap bounds the retained backup list.
func WithBackupCap(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.backupCap = n
		}
	}
}

// WithDebounce sets the trailing-edge delay for UpdateDebounced.
func WithDebounce(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithFileWatch reloads the manager when the file tier's data file
// changes on disk. No-op when the chain has no file tier.
func WithFileWatch() Option {
	return func(m *Manager) { m.watchFile = true }
}

// New assembles a manager. The storage chain is the only required
// dependency; everything else defaults to the standard stack.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		log:       zerolog.Nop(),
		backupCap: DefaultBackupCap,
		delay:     DefaultDebounce,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.chain == nil {
		return nil, errors.New("settings: storage chain is required")
	}
	if m.registry == nil {
		m.registry = schema.NewWithDefaults()
	}
	if m.crypto == nil {
		m.crypto = secrets.New()
	}
	if m.migrator == nil {
		m.migrator = migrate.DefaultMigrator()
	}
	if m.history == nil {
		m.history = history.New(history.DefaultCapacity, m.registry.SensitiveKeys())
	}
	if m.bus == nil {
		m.bus = event.New(event.WithLogger(m.log))
	}
	m.pending = newDebouncer(m)
	return m, nil
}

// versionRecord is the persisted payload under settings:version.
type versionRecord struct {
	Version string `json:"version"`
}

// Load reads, migrates, normalizes and decrypts the persisted state,
// then publishes Initialized. A cold store yields pure defaults. Load
// never refuses to start: storage exhaustion and migration failures
// degrade to defaults with an Error event.
func (m *Manager) Load(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	if m.isClosed() {
		return ErrClosed
	}

	raw, storedVersion, exhausted := m.loadRaw(ctx)
	if storedVersion != "" {
		raw[migrate.VersionKey] = storedVersion
	}

	migrated, steps, err := m.migrator.Migrate(raw)
	for _, step := range steps {
		m.log.Debug().
			Str("from", step.From.String()).
			Str("to", step.To.String()).
			Bool("success", step.Success).
			Msg(step.Description)
	}
	if err != nil {
		// Keep the rungs that applied; the fill below repairs the rest.
		var stepErr *migrate.Error
		if errors.As(err, &stepErr) {
			m.log.Error().Err(stepErr.Err).
				Str("from", stepErr.From.String()).
				Str("to", stepErr.To.String()).
				Msg("migration step failed, falling back to schema fill")
		} else {
			m.log.Error().Err(err).Msg("migration failed, falling back to schema fill")
		}
	}

	values, defaulted := m.normalizeRegular(migrated)
	for _, key := range defaulted {
		m.log.Warn().Str("key", key).Msg("stored value unusable, reset to default")
	}

	for key, plain := range m.loadSecrets(ctx) {
		values[key] = plain
	}

	if data, err := m.chain.Load(ctx, storage.KeyHistory); err == nil {
		if err := m.history.Restore(data); err != nil {
			m.log.Warn().Err(err).Msg("persisted history unreadable, starting fresh")
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		m.log.Warn().Err(err).Msg("history record unavailable")
	}

	m.state.Lock()
	m.values = values
	m.loaded = true
	m.state.Unlock()

	m.publish(ctx, event.Initialized, m.Snapshot())
	if exhausted {
		m.publish(ctx, event.Error, event.ErrorPayload{Message: "all storage tiers failed during load"})
	}
	m.publishMissingRequired(ctx, values)

	if m.watchFile {
		m.startWatcher()
	}
	return nil
}

// loadRaw reads the data and version records. Both falling to
// ErrNotFound is a first run; exhaustion is reported for the caller's
// Error event.
func (m *Manager) loadRaw(ctx context.Context) (schema.Snapshot, string, bool) {
	exhausted := false

	var storedVersion string
	if data, err := m.chain.Load(ctx, storage.KeyVersion); err == nil {
		var rec versionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			m.log.Warn().Err(err).Msg("version record unreadable")
		} else {
			storedVersion = rec.Version
		}
	} else if errors.Is(err, storage.ErrExhausted) {
		exhausted = true
	}

	raw := make(schema.Snapshot)
	if data, err := m.chain.Load(ctx, storage.KeyData); err == nil {
		if err := json.Unmarshal(data, &raw); err != nil {
			m.log.Warn().Err(err).Msg("data record unreadable, starting from defaults")
			raw = make(schema.Snapshot)
		}
	} else if errors.Is(err, storage.ErrExhausted) {
		exhausted = true
	}

	return raw, storedVersion, exhausted
}

// normalizeRegular builds the non-sensitive half of the live snapshot:
// every registered regular key present, bad or missing fields reset to
// their defaults and reported.
func (m *Manager) normalizeRegular(snap schema.Snapshot) (schema.Snapshot, []string) {
	out := make(schema.Snapshot, len(snap))
	var defaulted []string

	for _, key := range m.registry.Keys() {
		s := m.registry.Get(key)
		if s.Sensitive {
			continue
		}
		value, ok := snap[key]
		if !ok {
			out[key] = s.Default
			continue
		}
		n := m.registry.Normalize(key, value)
		if n.Err != nil || n.Outcome == schema.OutcomeDefaulted {
			out[key] = s.Default
			defaulted = append(defaulted, key)
			continue
		}
		out[key] = n.Value
	}
	return out, defaulted
}

// loadSecrets decrypts the sensitive record into live values. Every
// registered sensitive key gets an entry; undecodable envelopes become
// empty strings.
func (m *Manager) loadSecrets(ctx context.Context) map[string]string {
	envelopes := make(map[string]string)
	if data, err := m.chain.Load(ctx, storage.KeySensitive); err == nil {
		if err := json.Unmarshal(data, &envelopes); err != nil {
			m.log.Warn().Err(err).Msg("sensitive record unreadable")
			envelopes = make(map[string]string)
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		m.log.Warn().Err(err).Msg("sensitive record unavailable")
	}

	out := make(map[string]string)
	for _, key := range m.registry.SensitiveKeys() {
		env := envelopes[key]
		if env == "" {
			out[key] = ""
			continue
		}
		plain := m.crypto.Decrypt(env)
		if plain == "" {
			m.log.Warn().Str("key", key).Msg("sensitive value undecodable, treated as absent")
		}
		out[key] = plain
	}
	return out
}

// publishMissingRequired emits one event per required key that ended
// up empty after load.
func (m *Manager) publishMissingRequired(ctx context.Context, values schema.Snapshot) {
	for _, key := range m.registry.Keys() {
		s := m.registry.Get(key)
		if !s.Required {
			continue
		}
		if str, _ := values[key].(string); str == "" {
			m.publish(ctx, event.MissingRequiredField, event.MissingFieldPayload{Key: key})
		}
	}
}

// Snapshot returns a copy of the current state with sensitive values
// replaced by presence flags.
func (m *Manager) Snapshot() schema.Snapshot {
	m.state.RLock()
	defer m.state.RUnlock()
	return m.redact(m.values)
}

// Get returns the public value for a key.
func (m *Manager) Get(key string) (any, bool) {
	m.state.RLock()
	defer m.state.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, false
	}
	if s := m.registry.Get(key); s != nil && s.Sensitive {
		return present(value), true
	}
	return value, true
}

// SecretValue returns the live decrypted value of a sensitive key. The
// second return is false for unknown or non-sensitive keys.
func (m *Manager) SecretValue(key string) (string, bool) {
	s := m.registry.Get(key)
	if s == nil || !s.Sensitive {
		return "", false
	}
	m.state.RLock()
	defer m.state.RUnlock()

	str, _ := m.values[key].(string)
	return str, true
}

// Loaded reports whether Load has completed.
func (m *Manager) Loaded() bool {
	m.state.RLock()
	defer m.state.RUnlock()
	return m.loaded
}

// Registry exposes the settings catalog.
func (m *Manager) Registry() *schema.Registry { return m.registry }

// Bus exposes the event bus for subscribers.
func (m *Manager) Bus() *event.Bus { return m.bus }

// Version returns the engine's current payload version.
func (m *Manager) Version() string { return m.migrator.CurrentVersion().String() }

// History exposes the undo log.
func (m *Manager) History() *history.Log { return m.history }

// CanUndo reports whether Undo would succeed.
func (m *Manager) CanUndo() bool { return m.history.CanUndo() }

// CanRedo reports whether Redo would succeed.
func (m *Manager) CanRedo() bool { return m.history.CanRedo() }

// Close flushes pending debounced writes and stops the watcher. The
// storage chain and bus are owned by the caller and stay open.
func (m *Manager) Close() error {
	m.op.Lock()
	m.stopWatcher()
	m.op.Unlock()

	m.pending.flush()

	m.state.Lock()
	m.closed = true
	m.state.Unlock()
	return nil
}

func (m *Manager) isClosed() bool {
	m.state.RLock()
	defer m.state.RUnlock()
	return m.closed
}

func (m *Manager) requireLoaded() error {
	m.state.RLock()
	defer m.state.RUnlock()
	if m.closed {
		return ErrClosed
	}
	if !m.loaded {
		return ErrNotLoaded
	}
	return nil
}

// redact projects a live snapshot to its public form.
func (m *Manager) redact(values schema.Snapshot) schema.Snapshot {
	out := make(schema.Snapshot, len(values))
	for key, value := range values {
		if s := m.registry.Get(key); s != nil && s.Sensitive {
			out[key] = present(value)
			continue
		}
		out[key] = value
	}
	return out
}

// present is the presence flag sensitive values collapse to outside
// the live manager.
func present(value any) bool {
	return value != nil && value != ""
}

func (m *Manager) publish(ctx context.Context, t event.Topic, payload any) {
	if err := m.bus.Publish(ctx, t, payload); err != nil {
		m.log.Warn().Err(err).Str("topic", string(t)).Msg("publish failed")
	}
}

// liveValues returns a copy of the internal snapshot, secrets in the
// clear. Callers hold op.
func (m *Manager) liveValues() schema.Snapshot {
	m.state.RLock()
	defer m.state.RUnlock()
	return m.values.Clone()
}

func (m *Manager) setLiveValues(values schema.Snapshot) {
	m.state.Lock()
	m.values = values
	m.state.Unlock()
}

// eventValue redacts sensitive values in event payloads.
func (m *Manager) eventValue(key string, value any) any {
	if s := m.registry.Get(key); s != nil && s.Sensitive {
		return present(value)
	}
	return value
}

func (m *Manager) String() string {
	return fmt.Sprintf("settings.Manager(version=%s)", m.Version())
}
