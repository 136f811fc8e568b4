package settings

import (
	"context"
	"sync"
	"time"
)

// UpdateDebounced queues a single change behind a trailing-edge timer.
// Successive calls within the window supersede the pending flush, with
// the latest value per key winning. Close flushes anything pending.
func (m *Manager) UpdateDebounced(key string, value any) {
	m.pending.queue(key, value)
}

// FlushDebounced applies any pending debounced changes immediately.
func (m *Manager) FlushDebounced() {
	m.pending.flush()
}

// debouncer coalesces keystroke-level updates into one write.
type debouncer struct {
	m *Manager

	mu      sync.Mutex
	timer   *time.Timer
	changes map[string]any
}

func newDebouncer(m *Manager) *debouncer {
	return &debouncer{m: m}
}

func (d *debouncer) queue(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.changes == nil {
		d.changes = make(map[string]any)
	}
	d.changes[key] = value

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.m.delay, d.fire)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	changes := d.changes
	d.changes = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()

	if len(changes) == 0 {
		return
	}
	if _, err := d.m.Update(context.Background(), changes, WithLabel("debounced update")); err != nil {
		d.m.log.Warn().Err(err).Msg("debounced update failed")
	}
}

func (d *debouncer) flush() {
	d.fire()
}
