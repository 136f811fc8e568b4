// Package migrate upgrades stored settings payloads across format
// versions. A migrator holds an ordered ladder of steps; each step
// transforms a snapshot from one version to the next, and a payload
// missing its version marker is treated as the oldest format and walks
// the whole ladder.
package migrate

import (
	"fmt"
	"sort"

	"github.com/prefstore/prefstore/internal/schema"
)

// VersionKey is the snapshot key carrying the payload format version.
// It is bookkeeping, not a setting, and never reaches the registry.
const VersionKey = "_version"

// Version represents a settings payload format version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// String returns the version as a string.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare compares two versions.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
func (v Version) Compare(other Version) int {
	if v.Major != other.Major {
		if v.Major < other.Major {
			return -1
		}
		return 1
	}
	if v.Minor != other.Minor {
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}
	if v.Patch != other.Patch {
		if v.Patch < other.Patch {
			return -1
		}
		return 1
	}
	return 0
}

// IsZero reports whether the version is the zero version.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0 && v.Patch == 0
}

// ParseVersion parses a "major.minor.patch" string. Malformed input
// yields the zero version, which the migrator treats as the oldest
// format.
func ParseVersion(s string) Version {
	var v Version
	_, _ = fmt.Sscanf(s, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch)
	return v
}

// Step transforms a snapshot from one payload version to the next.
type Step struct {
	// From is the source version.
	From Version

	// To is the target version.
	To Version

	// Description describes what the step does.
	Description string

	// Apply performs the transformation. It may mutate its argument;
	// callers that need the original intact pass a clone.
	Apply func(snap schema.Snapshot) (schema.Snapshot, error)
}

// StepResult records the outcome of a single applied step.
type StepResult struct {
	From        Version
	To          Version
	Description string
	Success     bool
	Err         error
}

// Error reports a failed migration step. The caller decides how to
// recover; the snapshot it holds is whatever the ladder produced up to
// the failing step.
type Error struct {
	From        Version
	To          Version
	Description string
	Err         error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("migration from %s to %s failed: %v", e.From, e.To, e.Err)
}

// Unwrap returns the underlying step error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Migrator holds the version ladder and walks payloads up to the
// current version.
type Migrator struct {
	steps   []Step
	current Version
}

// NewMigrator creates a migrator targeting the given current version.
func NewMigrator(current Version) *Migrator {
	return &Migrator{
		current: current,
		steps:   make([]Step, 0),
	}
}

// CurrentVersion returns the version the migrator upgrades payloads to.
func (m *Migrator) CurrentVersion() Version {
	return m.current
}

// Register adds a step to the ladder.
func (m *Migrator) Register(step Step) {
	m.steps = append(m.steps, step)
	// Keep the ladder ordered by source version
	sort.Slice(m.steps, func(i, j int) bool {
		return m.steps[i].From.Compare(m.steps[j].From) < 0
	})
}

// NeedsMigration reports whether the snapshot's payload version is
// behind the current version.
func (m *Migrator) NeedsMigration(snap schema.Snapshot) bool {
	return m.extractVersion(snap).Compare(m.current) < 0
}

// Migrate walks the snapshot up the ladder to the current version and
// stamps the version key. On a step failure it returns the snapshot as
// transformed so far, the step results including the failure, and an
// *Error; the caller chooses between keeping the partial result and
// rebuilding from the schema.
func (m *Migrator) Migrate(snap schema.Snapshot) (schema.Snapshot, []StepResult, error) {
	from := m.extractVersion(snap)
	results := make([]StepResult, 0)

	for _, step := range m.steps {
		// Skip steps below the payload's position on the ladder
		if step.From.Compare(from) < 0 {
			continue
		}

		// Skip steps that target beyond the current version
		if step.To.Compare(m.current) > 0 {
			continue
		}

		migrated, err := step.Apply(snap)
		result := StepResult{
			From:        step.From,
			To:          step.To,
			Description: step.Description,
		}

		if err != nil {
			result.Err = err
			results = append(results, result)
			return snap, results, &Error{
				From:        step.From,
				To:          step.To,
				Description: step.Description,
				Err:         err,
			}
		}

		result.Success = true
		results = append(results, result)
		snap = migrated
		from = step.To
	}

	snap[VersionKey] = m.current.String()

	return snap, results, nil
}

// extractVersion reads the payload version from a snapshot. A missing
// or malformed marker means the oldest format.
func (m *Migrator) extractVersion(snap schema.Snapshot) Version {
	vStr, ok := snap[VersionKey].(string)
	if !ok {
		return Version{}
	}
	return ParseVersion(vStr)
}

// RenameKey creates a step that renames a single settings key.
func RenameKey(from, to Version, oldKey, newKey, description string) Step {
	return Step{
		From:        from,
		To:          to,
		Description: description,
		Apply: func(snap schema.Snapshot) (schema.Snapshot, error) {
			renameKeys(snap, map[string]string{oldKey: newKey})
			return snap, nil
		},
	}
}

// RenameKeys creates a step that renames settings keys in bulk.
func RenameKeys(from, to Version, renames map[string]string, description string) Step {
	return Step{
		From:        from,
		To:          to,
		Description: description,
		Apply: func(snap schema.Snapshot) (schema.Snapshot, error) {
			renameKeys(snap, renames)
			return snap, nil
		},
	}
}

// AddKey creates a step that introduces a key with a default value.
// Snapshots that already carry the key keep their value.
func AddKey(from, to Version, key string, value any, description string) Step {
	return Step{
		From:        from,
		To:          to,
		Description: description,
		Apply: func(snap schema.Snapshot) (schema.Snapshot, error) {
			if _, exists := snap[key]; !exists {
				snap[key] = value
			}
			return snap, nil
		},
	}
}

// TransformKey creates a step that rewrites the value at a key.
func TransformKey(from, to Version, key, description string, transform func(any) (any, error)) Step {
	return Step{
		From:        from,
		To:          to,
		Description: description,
		Apply: func(snap schema.Snapshot) (schema.Snapshot, error) {
			value, found := snap[key]
			if !found {
				return snap, nil // Nothing to transform
			}

			newValue, err := transform(value)
			if err != nil {
				return nil, fmt.Errorf("transforming %s: %w", key, err)
			}

			snap[key] = newValue
			return snap, nil
		},
	}
}

// DropKey creates a step that removes a key.
func DropKey(from, to Version, key, description string) Step {
	return Step{
		From:        from,
		To:          to,
		Description: description,
		Apply: func(snap schema.Snapshot) (schema.Snapshot, error) {
			delete(snap, key)
			return snap, nil
		},
	}
}

func renameKeys(snap schema.Snapshot, renames map[string]string) {
	for oldKey, newKey := range renames {
		value, found := snap[oldKey]
		if !found {
			continue // Nothing to migrate
		}
		snap[newKey] = value
		delete(snap, oldKey)
	}
}
