package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// BadgerStore is the primary tier: an embedded Badger key-value store
// with synchronous writes and native write batches.
type BadgerStore struct {
	db     *badger.DB
	closed atomic.Bool
}

// NewBadgerStore opens (or creates) a Badger database at dir.
func NewBadgerStore(dir string, log zerolog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{log: log.With().Str("component", "badger").Logger()}).
		WithSyncWrites(true).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// Name implements Backend.
func (s *BadgerStore) Name() string { return "badger" }

// Save implements Backend.
func (s *BadgerStore) Save(ctx context.Context, key string, value []byte) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Load implements Backend.
func (s *BadgerStore) Load(ctx context.Context, key string) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Remove implements Backend.
func (s *BadgerStore) Remove(ctx context.Context, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// BeginBatch implements Transactional using Badger's write batches.
func (s *BadgerStore) BeginBatch(ctx context.Context) (BackendBatch, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	return &badgerBatch{wb: s.db.NewWriteBatch()}, nil
}

// Close implements Backend.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *BadgerStore) ready(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

type badgerBatch struct {
	wb *badger.WriteBatch
}

func (b *badgerBatch) Save(key string, value []byte) error {
	return b.wb.Set([]byte(key), value)
}

func (b *badgerBatch) Flush() error { return b.wb.Flush() }

func (b *badgerBatch) Cancel() { b.wb.Cancel() }

// badgerLogger adapts zerolog to badger's logger interface. Badger's
// info output is chatty, so it lands at debug level.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug().Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Trace().Msgf(strings.TrimSpace(format), args...)
}
