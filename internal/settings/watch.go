package settings

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/prefstore/prefstore/internal/migrate"
	"github.com/prefstore/prefstore/internal/storage"
)

// watchQuiet is the settle delay after a file event before reloading,
// so editors doing temp-write-rename trigger one reload, not three.
const watchQuiet = 200 * time.Millisecond

// Reload re-reads the persisted records and applies any difference to
// the live state, publishing the usual change events. History is not
// appended: the log tracks in-app edits, not external ones.
func (m *Manager) Reload(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()

	if err := m.requireLoaded(); err != nil {
		return err
	}

	raw, storedVersion, _ := m.loadRaw(ctx)
	if storedVersion != "" {
		raw[migrate.VersionKey] = storedVersion
	}
	migrated, _, err := m.migrator.Migrate(raw)
	if err != nil {
		m.log.Warn().Err(err).Msg("migration during reload failed, filling from schema")
	}
	values, _ := m.normalizeRegular(migrated)
	for key, plain := range m.loadSecrets(ctx) {
		values[key] = plain
	}

	changes := make(map[string]any, len(values))
	for key, value := range values {
		changes[key] = value
	}
	_, err = m.update(ctx, changes, WithLabel("external reload"), withoutHistory())
	return err
}

// startWatcher attaches a reload trigger to the file tier's data file.
// Callers hold op. Silently degrades when the chain has no file tier
// or the watcher cannot start; the engine works without it.
func (m *Manager) startWatcher() {
	if m.watcher != nil {
		return
	}

	var files *storage.FileStore
	for _, backend := range m.chain.Backends() {
		if f, ok := backend.(*storage.FileStore); ok {
			files = f
			break
		}
	}
	if files == nil {
		m.log.Debug().Msg("file watch requested but chain has no file tier")
		return
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		m.log.Warn().Err(err).Msg("file watcher unavailable")
		return
	}
	if err := fsw.Add(files.Dir()); err != nil {
		m.log.Warn().Err(err).Str("dir", files.Dir()).Msg("watch settings directory")
		fsw.Close()
		return
	}

	w := &fileWatcher{
		m:       m,
		watcher: fsw,
		path:    filepath.Clean(files.Path(storage.KeyData)),
		closeCh: make(chan struct{}),
	}
	m.watcher = w
	w.wg.Add(1)
	go w.loop()

	m.log.Debug().Str("path", w.path).Msg("watching settings file")
}

// stopWatcher tears the watcher down. Callers hold op.
func (m *Manager) stopWatcher() {
	if m.watcher == nil {
		return
	}
	m.watcher.stop()
	m.watcher = nil
}

// fileWatcher debounces fsnotify events on the settings data file into
// Reload calls.
type fileWatcher struct {
	m       *Manager
	watcher *fsnotify.Watcher
	path    string
	closeCh chan struct{}
	wg      sync.WaitGroup
}

func (w *fileWatcher) loop() {
	defer w.wg.Done()

	var settle *time.Timer
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.AfterFunc(watchQuiet, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.m.log.Warn().Err(err).Msg("settings file watcher error")
		}
	}
}

func (w *fileWatcher) reload() {
	select {
	case <-w.closeCh:
		return
	default:
	}
	if err := w.m.Reload(context.Background()); err != nil {
		w.m.log.Warn().Err(err).Msg("reload after external change failed")
	}
}

func (w *fileWatcher) stop() {
	close(w.closeCh)
	w.watcher.Close()
	w.wg.Wait()
}
