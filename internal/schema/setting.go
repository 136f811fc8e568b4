package schema

import "fmt"

// Type is the data type of a setting value.
type Type uint8

const (
	// TypeString is a free-form string value.
	TypeString Type = iota
	// TypeNumber is a float64 value (integers are stored as whole floats).
	TypeNumber
	// TypeBool is a boolean value.
	TypeBool
	// TypeEnum is a string value restricted to a fixed option set.
	TypeEnum
)

// String returns the type name used in error messages and exports.
func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBool:
		return "boolean"
	case TypeEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Setting declares a single configuration key: its shape, default,
// bounds, sensitivity, and the strategies used to sanitize and validate
// candidate values. Settings are registered once at startup and are
// immutable afterwards.
type Setting struct {
	// Key is the dot-separated setting key (e.g. "generation.temperature").
	Key string

	// Type is the setting's data type.
	Type Type

	// Default is the value used when nothing is stored or repair is needed.
	Default any

	// Description is human-readable documentation.
	Description string

	// Category groups the setting for listing and UI layout. When empty
	// it is derived from the first key segment at registration.
	Category string

	// Minimum and Maximum bound numeric values (nil means unbounded).
	// Sanitize clamps into this range rather than rejecting.
	Minimum *float64
	Maximum *float64

	// Step, when set, snaps sanitized numeric values onto the step grid
	// anchored at Minimum (or zero when Minimum is nil).
	Step *float64

	// Options lists the allowed values for enum settings.
	Options []string

	// Sensitive marks values that are encrypted at rest and redacted to a
	// presence flag everywhere outside the live manager.
	Sensitive bool

	// Required marks string settings that must be non-empty after
	// sanitization. Empty required strings are hard validation failures.
	Required bool

	// DependsOn names the keys this setting's visibility depends on.
	// This is the declared list the engine exposes; it is never inferred.
	DependsOn []string

	// VisibleWhen reports whether the setting should be shown given a
	// snapshot. Pure metadata for the UI collaborator; never consulted
	// when persisting. Nil means always visible.
	VisibleWhen func(Snapshot) bool

	// Sanitizers run in order before validation. Populated from the
	// declared metadata at registration; extra custom sanitizers may be
	// declared explicitly.
	Sanitizers []Sanitizer

	// Constraints are the pure predicates a sanitized value must pass.
	// Populated from the declared metadata at registration; extra custom
	// constraints may be declared explicitly.
	Constraints []Constraint
}

// Validate checks value against every constraint. It never mutates.
func (s *Setting) Validate(value any) error {
	for _, c := range s.Constraints {
		if err := c.Check(value); err != nil {
			return err
		}
	}
	return nil
}

// Sanitize runs every sanitizer in order and returns the result. A
// sanitizer error aborts the chain; callers treat that as revert-to-
// default, not as a hard failure.
func (s *Setting) Sanitize(value any) (any, error) {
	v := value
	for _, sz := range s.Sanitizers {
		nv, err := sz.Apply(v)
		if err != nil {
			return nil, fmt.Errorf("sanitize %s: %w", s.Key, err)
		}
		v = nv
	}
	return v, nil
}

// Visible reports whether the setting should be shown for the given
// snapshot. Settings without a VisibleWhen predicate are always visible.
func (s *Setting) Visible(snap Snapshot) bool {
	if s.VisibleWhen == nil {
		return true
	}
	return s.VisibleWhen(snap)
}

// MinValue creates a pointer to a float64 for use as Minimum.
func MinValue(v float64) *float64 {
	return &v
}

// MaxValue creates a pointer to a float64 for use as Maximum.
func MaxValue(v float64) *float64 {
	return &v
}

// StepValue creates a pointer to a float64 for use as Step.
func StepValue(v float64) *float64 {
	return &v
}
