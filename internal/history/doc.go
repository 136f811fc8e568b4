// Package history keeps a bounded log of settings snapshots with a
// cursor for undo and redo. The log holds states, not operations:
// undo moves the cursor toward older entries and hands back the
// snapshot to restore, and writing after an undo discards the entries
// newer than the cursor.
//
// Snapshots are redacted before they enter the log. Sensitive values
// are replaced with presence markers, so restoring an entry never
// resurrects an old secret; the caller keeps the live values for
// those keys.
package history
