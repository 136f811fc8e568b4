// Package storage provides the persistence tiers for settings payloads
// and the ordered fallback chain that reads and writes through them.
//
// A Backend stores opaque bytes under logical keys. The Chain tries
// backends most durable first: a save lands on the first backend that
// accepts it, a load returns the first hit and keeps going past both
// misses and failures, and a remove reaches every tier so a deleted key
// cannot resurrect from a stale deeper one.
package storage

import (
	"context"
	"errors"
)

// Logical keys used by the settings engine. Backends may map them to
// file names or row keys internally but always expose these names.
const (
	// KeyData holds the public settings snapshot.
	KeyData = "settings:data"

	// KeySensitive holds the encrypted sensitive-value envelope map.
	KeySensitive = "settings:sensitive"

	// KeyVersion holds the payload format version.
	KeyVersion = "settings:version"

	// KeyHistory holds the persisted undo log.
	KeyHistory = "settings:history"

	// KeyBackups holds the bounded backup list.
	KeyBackups = "settings:backups"
)

// Sentinel errors for storage operations.
var (
	// ErrNotFound distinguishes a missing key from a failing backend.
	ErrNotFound = errors.New("key not found")

	// ErrExhausted is returned when every tier failed or missed.
	ErrExhausted = errors.New("all storage tiers exhausted")

	// ErrBatchOpen is returned when a batch is begun while another is
	// in flight.
	ErrBatchOpen = errors.New("a batch is already open")

	// ErrBatchDone is returned when a completed or aborted batch is used.
	ErrBatchDone = errors.New("batch already completed")

	// ErrClosed is returned by backends after Close.
	ErrClosed = errors.New("store is closed")
)

// Backend is one persistence tier.
type Backend interface {
	// Name identifies the tier in logs and errors.
	Name() string

	// Save stores value under key, overwriting any previous value.
	Save(ctx context.Context, key string, value []byte) error

	// Load retrieves the value for key. A missing key returns
	// ErrNotFound; any other error means the tier failed.
	Load(ctx context.Context, key string) ([]byte, error)

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Close releases the tier's resources.
	Close() error
}

// BackendBatch stages writes for an atomic flush.
type BackendBatch interface {
	// Save stages a write.
	Save(key string, value []byte) error

	// Flush commits all staged writes atomically.
	Flush() error

	// Cancel discards all staged writes.
	Cancel()
}

// Transactional is implemented by backends with atomic batch writes.
type Transactional interface {
	Backend

	// BeginBatch starts a staged write set on this tier.
	BeginBatch(ctx context.Context) (BackendBatch, error)
}
