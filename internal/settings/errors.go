package settings

import "errors"

var (
	// ErrNotLoaded is returned when an operation runs before Load.
	ErrNotLoaded = errors.New("settings not loaded")

	// ErrSignatureMismatch is returned when an import file's signature
	// does not match its settings payload and no override was given.
	ErrSignatureMismatch = errors.New("import signature mismatch")

	// ErrUnknownBackup is returned when a backup ID does not exist.
	ErrUnknownBackup = errors.New("unknown backup")

	// ErrClosed is returned after the manager has been closed.
	ErrClosed = errors.New("settings manager closed")
)
