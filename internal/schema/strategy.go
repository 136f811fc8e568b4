package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ConstraintKind identifies a validation strategy.
type ConstraintKind uint8

const (
	// ConstraintType checks the value's data type.
	ConstraintType ConstraintKind = iota
	// ConstraintRange checks numeric bounds.
	ConstraintRange
	// ConstraintEnum checks enum membership.
	ConstraintEnum
	// ConstraintRequired rejects empty required strings.
	ConstraintRequired
	// ConstraintCustom is a named, caller-supplied predicate.
	ConstraintCustom
)

// String returns the constraint kind name.
func (k ConstraintKind) String() string {
	switch k {
	case ConstraintType:
		return "type"
	case ConstraintRange:
		return "range"
	case ConstraintEnum:
		return "enum"
	case ConstraintRequired:
		return "required"
	case ConstraintCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Constraint is a pure validation predicate. Implementations are
// enumerable variants, not opaque closures, so a setting's rules can be
// inspected and tested independently.
type Constraint interface {
	Kind() ConstraintKind
	Check(value any) error
}

// TypeConstraint checks that a value has the declared type.
type TypeConstraint struct {
	Type Type
}

// Kind implements Constraint.
func (c TypeConstraint) Kind() ConstraintKind { return ConstraintType }

// Check implements Constraint.
func (c TypeConstraint) Check(value any) error {
	switch c.Type {
	case TypeString, TypeEnum:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected %s, got %T", c.Type, value)
		}
	case TypeNumber:
		if _, ok := asFloat(value); !ok {
			return fmt.Errorf("expected number, got %T", value)
		}
	case TypeBool:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	}
	return nil
}

// RangeConstraint checks that a numeric value lies within bounds.
// Non-numeric values are skipped; TypeConstraint owns type errors.
type RangeConstraint struct {
	Minimum *float64
	Maximum *float64
}

// Kind implements Constraint.
func (c RangeConstraint) Kind() ConstraintKind { return ConstraintRange }

// Check implements Constraint.
func (c RangeConstraint) Check(value any) error {
	f, ok := asFloat(value)
	if !ok {
		return nil
	}
	if c.Minimum != nil && f < *c.Minimum {
		return fmt.Errorf("value %v is less than minimum %v", value, *c.Minimum)
	}
	if c.Maximum != nil && f > *c.Maximum {
		return fmt.Errorf("value %v is greater than maximum %v", value, *c.Maximum)
	}
	return nil
}

// EnumConstraint checks membership in a fixed option set.
type EnumConstraint struct {
	Options []string
}

// Kind implements Constraint.
func (c EnumConstraint) Kind() ConstraintKind { return ConstraintEnum }

// Check implements Constraint.
func (c EnumConstraint) Check(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected enum string, got %T", value)
	}
	for _, opt := range c.Options {
		if opt == s {
			return nil
		}
	}
	return fmt.Errorf("value %q must be one of %v", s, c.Options)
}

// RequiredConstraint rejects empty strings for required settings.
type RequiredConstraint struct{}

// Kind implements Constraint.
func (c RequiredConstraint) Kind() ConstraintKind { return ConstraintRequired }

// Check implements Constraint.
func (c RequiredConstraint) Check(value any) error {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("required value is empty")
	}
	return nil
}

// CustomConstraint is a named caller-supplied predicate. The name makes
// the rule identifiable in listings and error reports.
type CustomConstraint struct {
	Name string
	Fn   func(value any) error
}

// Kind implements Constraint.
func (c CustomConstraint) Kind() ConstraintKind { return ConstraintCustom }

// Check implements Constraint.
func (c CustomConstraint) Check(value any) error {
	if c.Fn == nil {
		return nil
	}
	if err := c.Fn(value); err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return nil
}

// SanitizerKind identifies a sanitization strategy.
type SanitizerKind uint8

const (
	// SanitizeCoerce converts convertible raw input to the declared type.
	SanitizeCoerce SanitizerKind = iota
	// SanitizeClamp clamps numbers into the declared bounds.
	SanitizeClamp
	// SanitizeSnap snaps numbers onto the declared step grid.
	SanitizeSnap
	// SanitizeTrim trims surrounding whitespace from strings.
	SanitizeTrim
	// SanitizeCustom is a named, caller-supplied transform.
	SanitizeCustom
)

// String returns the sanitizer kind name.
func (k SanitizerKind) String() string {
	switch k {
	case SanitizeCoerce:
		return "coerce"
	case SanitizeClamp:
		return "clamp"
	case SanitizeSnap:
		return "snap"
	case SanitizeTrim:
		return "trim"
	case SanitizeCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Sanitizer repairs raw input before validation. Sanitizers are
// idempotent: applying one to its own output is a no-op.
type Sanitizer interface {
	Kind() SanitizerKind
	Apply(value any) (any, error)
}

// CoerceSanitizer converts raw input toward the declared type where a
// lossless conversion exists ("1.5" -> 1.5, "true" -> true, 3 -> 3.0).
// Unconvertible values pass through unchanged so the type constraint can
// report them as hard failures.
type CoerceSanitizer struct {
	Type Type
}

// Kind implements Sanitizer.
func (s CoerceSanitizer) Kind() SanitizerKind { return SanitizeCoerce }

// Apply implements Sanitizer.
func (s CoerceSanitizer) Apply(value any) (any, error) {
	switch s.Type {
	case TypeNumber:
		if f, ok := asFloat(value); ok {
			return f, nil
		}
		if str, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
				return f, nil
			}
		}
	case TypeBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(str)); err == nil {
				return b, nil
			}
		}
	case TypeString, TypeEnum:
		if str, ok := value.(string); ok {
			return str, nil
		}
	}
	return value, nil
}

// ClampSanitizer clamps numeric values into [Minimum, Maximum].
type ClampSanitizer struct {
	Minimum *float64
	Maximum *float64
}

// Kind implements Sanitizer.
func (s ClampSanitizer) Kind() SanitizerKind { return SanitizeClamp }

// Apply implements Sanitizer.
func (s ClampSanitizer) Apply(value any) (any, error) {
	f, ok := asFloat(value)
	if !ok {
		return value, nil
	}
	if s.Minimum != nil && f < *s.Minimum {
		f = *s.Minimum
	}
	if s.Maximum != nil && f > *s.Maximum {
		f = *s.Maximum
	}
	return f, nil
}

// SnapSanitizer snaps numeric values onto the step grid anchored at the
// minimum (or zero when unbounded below). Snapping after clamping keeps
// the result in range for grids that divide the bounds evenly.
type SnapSanitizer struct {
	Step    float64
	Minimum *float64
}

// Kind implements Sanitizer.
func (s SnapSanitizer) Kind() SanitizerKind { return SanitizeSnap }

// Apply implements Sanitizer.
func (s SnapSanitizer) Apply(value any) (any, error) {
	f, ok := asFloat(value)
	if !ok || s.Step <= 0 {
		return value, nil
	}
	anchor := 0.0
	if s.Minimum != nil {
		anchor = *s.Minimum
	}
	steps := math.Round((f - anchor) / s.Step)
	snapped := anchor + steps*s.Step
	// Round away float artifacts like 0.7000000000000001.
	snapped = math.Round(snapped*1e9) / 1e9
	return snapped, nil
}

// TrimSanitizer trims surrounding whitespace from string values.
type TrimSanitizer struct{}

// Kind implements Sanitizer.
func (s TrimSanitizer) Kind() SanitizerKind { return SanitizeTrim }

// Apply implements Sanitizer.
func (s TrimSanitizer) Apply(value any) (any, error) {
	if str, ok := value.(string); ok {
		return strings.TrimSpace(str), nil
	}
	return value, nil
}

// CustomSanitizer is a named caller-supplied transform.
type CustomSanitizer struct {
	Name string
	Fn   func(value any) (any, error)
}

// Kind implements Sanitizer.
func (s CustomSanitizer) Kind() SanitizerKind { return SanitizeCustom }

// Apply implements Sanitizer.
func (s CustomSanitizer) Apply(value any) (any, error) {
	if s.Fn == nil {
		return value, nil
	}
	v, err := s.Fn(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name, err)
	}
	return v, nil
}

// asFloat converts any numeric value to float64.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
