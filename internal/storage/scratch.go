package storage

import (
	"fmt"
	"os"
)

// ScratchStore is a session-scoped tier: file storage under a fresh
// temp directory that is deleted on Close. Values written here outlive
// a failing durable tier for the length of the session only.
type ScratchStore struct {
	*FileStore
	dir string
}

// NewScratchStore creates the temp directory and the store over it.
func NewScratchStore() (*ScratchStore, error) {
	dir, err := os.MkdirTemp("", "prefstore-scratch-")
	if err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}
	files, err := NewFileStore(dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return &ScratchStore{FileStore: files, dir: dir}, nil
}

// Name implements Backend.
func (s *ScratchStore) Name() string { return "scratch" }

// Close removes the scratch directory and everything in it.
func (s *ScratchStore) Close() error {
	if err := s.FileStore.Close(); err != nil {
		return err
	}
	return os.RemoveAll(s.dir)
}
