package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maintains all setting declarations and provides sanitization,
// validation, and default derivation for the rest of the engine.
//
// Registration happens once at process start; Freeze marks the end of
// startup, after which the set of declarations is immutable.
type Registry struct {
	mu         sync.RWMutex
	settings   map[string]*Setting
	categories map[string][]*Setting
	deps       map[string][]string // key -> declared visibility dependencies
	frozen     bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		settings:   make(map[string]*Setting),
		categories: make(map[string][]*Setting),
		deps:       make(map[string][]string),
	}
}

// NewWithDefaults creates a registry with the built-in catalog registered
// and frozen.
func NewWithDefaults() *Registry {
	r := New()
	r.RegisterDefaults()
	r.Freeze()
	return r
}

// Register adds a setting declaration. The declared metadata (type,
// bounds, step, options, required) is compiled into the setting's
// sanitizer and constraint strategies; explicitly supplied custom
// strategies run after the derived ones.
func (r *Registry) Register(setting Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: %s", ErrRegistryFrozen, setting.Key)
	}
	if setting.Key == "" {
		return fmt.Errorf("setting key must not be empty")
	}
	if _, exists := r.settings[setting.Key]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, setting.Key)
	}
	if setting.Category == "" {
		setting.Category = extractCategory(setting.Key)
	}
	if err := compileStrategies(&setting); err != nil {
		return fmt.Errorf("register %s: %w", setting.Key, err)
	}

	s := &setting
	r.settings[s.Key] = s
	r.categories[s.Category] = append(r.categories[s.Category], s)

	deps := make([]string, len(s.DependsOn))
	copy(deps, s.DependsOn)
	r.deps[s.Key] = deps

	return nil
}

// MustRegister registers a setting and panics on error. Used for the
// built-in catalog at startup.
func (r *Registry) MustRegister(setting Setting) {
	if err := r.Register(setting); err != nil {
		panic(err)
	}
}

// Freeze marks the end of startup. Further registrations fail.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Get returns the declaration for key, or nil when unregistered.
func (r *Registry) Get(key string) *Setting {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings[key]
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.settings[key]
	return ok
}

// Keys returns all registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.settings))
	for k := range r.settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// All returns every declaration sorted by key.
func (r *Registry) All() []*Setting {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Setting, 0, len(r.settings))
	for _, s := range r.settings {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// Category returns the declarations in a category, sorted by key.
func (r *Registry) Category(name string) []*Setting {
	r.mu.RLock()
	defer r.mu.RUnlock()

	settings := r.categories[name]
	result := make([]*Setting, len(settings))
	copy(result, settings)
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// Categories returns all category names, sorted.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.categories))
	for c := range r.categories {
		result = append(result, c)
	}
	sort.Strings(result)
	return result
}

// Search finds declarations whose key, description, or category contains
// the query, case-insensitively.
func (r *Registry) Search(query string) []*Setting {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query = strings.ToLower(query)
	var result []*Setting
	for _, s := range r.settings {
		if strings.Contains(strings.ToLower(s.Key), query) ||
			strings.Contains(strings.ToLower(s.Description), query) ||
			strings.Contains(strings.ToLower(s.Category), query) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// SensitiveKeys returns the keys marked sensitive, sorted.
func (r *Registry) SensitiveKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []string
	for k, s := range r.settings {
		if s.Sensitive {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Default returns the default value for key, or nil when unregistered.
func (r *Registry) Default(key string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.settings[key]; ok {
		return s.Default
	}
	return nil
}

// Defaults builds the canonical default snapshot: every registered key
// mapped to its default value.
func (r *Registry) Defaults() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(Snapshot, len(r.settings))
	for k, s := range r.settings {
		snap[k] = s.Default
	}
	return snap
}

// Validate checks value against the declaration for key. It is a pure
// predicate: it never mutates and never repairs.
func (r *Registry) Validate(key string, value any) error {
	r.mu.RLock()
	s, ok := r.settings[key]
	r.mu.RUnlock()

	if !ok {
		return &ValidationError{Key: key, Value: value, Err: ErrUnknownSetting}
	}
	for _, c := range s.Constraints {
		if err := c.Check(value); err != nil {
			return &ValidationError{Key: key, Value: value, Constraint: c.Kind(), Err: err}
		}
	}
	return nil
}

// Sanitize runs the declared sanitizers for key against value. The
// result is idempotent: Sanitize(Sanitize(v)) == Sanitize(v).
func (r *Registry) Sanitize(key string, value any) (any, error) {
	r.mu.RLock()
	s, ok := r.settings[key]
	r.mu.RUnlock()

	if !ok {
		return nil, &ValidationError{Key: key, Value: value, Err: ErrUnknownSetting}
	}
	return s.Sanitize(value)
}

// Outcome describes what Normalize did to a value.
type Outcome uint8

const (
	// OutcomeOK means the value was accepted unchanged.
	OutcomeOK Outcome = iota
	// OutcomeCoerced means the value was converted to the declared type.
	OutcomeCoerced
	// OutcomeClamped means a numeric value was clamped or snapped.
	OutcomeClamped
	// OutcomeDefaulted means sanitization failed and the default was used.
	OutcomeDefaulted
	// OutcomeUnknown means the key is not registered.
	OutcomeUnknown
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeCoerced:
		return "coerced"
	case OutcomeClamped:
		return "clamped"
	case OutcomeDefaulted:
		return "defaulted"
	case OutcomeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// NormalizeResult carries the normalized value, what happened to it, and
// the hard validation error when one remains after sanitization.
type NormalizeResult struct {
	Value   any
	Outcome Outcome
	Err     error
}

// Normalize sanitizes and then validates value for key.
//
// Repairable input never errors: coercion and clamping report their
// outcome, and a sanitizer failure reverts to the default (the
// sanitized-to-default path). Only unrepairable input (a type mismatch
// coercion cannot fix, or an empty required string) carries a hard
// error, and judging how to contain it is the caller's business.
func (r *Registry) Normalize(key string, value any) NormalizeResult {
	r.mu.RLock()
	s, ok := r.settings[key]
	r.mu.RUnlock()

	if !ok {
		return NormalizeResult{
			Value:   nil,
			Outcome: OutcomeUnknown,
			Err:     &ValidationError{Key: key, Value: value, Err: ErrUnknownSetting},
		}
	}

	sanitized, err := s.Sanitize(value)
	if err != nil {
		return NormalizeResult{Value: s.Default, Outcome: OutcomeDefaulted}
	}

	if err := r.Validate(key, sanitized); err != nil {
		return NormalizeResult{Value: sanitized, Outcome: OutcomeOK, Err: err}
	}

	// Classify what the chain did. Comparing against the coerced form
	// separates a range repair (clamp or snap) from a pure conversion:
	// "1.5" coerces to 1.5 and then clamps to 1.0, which must report as
	// clamped, not coerced.
	coerced, _ := CoerceSanitizer{Type: s.Type}.Apply(value)
	outcome := OutcomeOK
	if sanitized != value {
		outcome = OutcomeCoerced
		before, bok := asFloat(coerced)
		after, aok := asFloat(sanitized)
		if bok && aok && before != after {
			outcome = OutcomeClamped
		}
	}
	return NormalizeResult{Value: sanitized, Outcome: outcome}
}

// Fill conforms a snapshot to the registry: every registered key present
// (normalized, defaulting anything missing or unrepairable) and every
// unknown key dropped. Fill is the repair pass run on every load.
func (r *Registry) Fill(snap Snapshot) Snapshot {
	keys := r.Keys()
	out := make(Snapshot, len(keys))
	for _, key := range keys {
		raw, ok := snap[key]
		if !ok {
			out[key] = r.Default(key)
			continue
		}
		res := r.Normalize(key, raw)
		if res.Err != nil || res.Outcome == OutcomeUnknown {
			out[key] = r.Default(key)
			continue
		}
		out[key] = res.Value
	}
	return out
}

// VisibilityDeps returns the declared visibility dependency list for
// key. The list is fixed at registration; it is never inferred from the
// predicate's code.
func (r *Registry) VisibilityDeps(key string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	deps := r.deps[key]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// Visible reports whether key should be shown for the given snapshot.
func (r *Registry) Visible(key string, snap Snapshot) bool {
	r.mu.RLock()
	s, ok := r.settings[key]
	r.mu.RUnlock()

	if !ok {
		return false
	}
	return s.Visible(snap)
}

// compileStrategies derives the sanitizer and constraint chains from a
// setting's declared metadata. Explicit custom strategies are preserved
// and run after the derived ones.
func compileStrategies(s *Setting) error {
	if s.Type == TypeEnum && len(s.Options) == 0 {
		return fmt.Errorf("enum setting has no options")
	}

	custom := s.Sanitizers
	sanitizers := []Sanitizer{CoerceSanitizer{Type: s.Type}}
	switch s.Type {
	case TypeString, TypeEnum:
		sanitizers = append(sanitizers, TrimSanitizer{})
	case TypeNumber:
		if s.Minimum != nil || s.Maximum != nil {
			sanitizers = append(sanitizers, ClampSanitizer{Minimum: s.Minimum, Maximum: s.Maximum})
		}
		if s.Step != nil && *s.Step > 0 {
			sanitizers = append(sanitizers, SnapSanitizer{Step: *s.Step, Minimum: s.Minimum})
		}
	}
	s.Sanitizers = append(sanitizers, custom...)

	customChecks := s.Constraints
	constraints := []Constraint{TypeConstraint{Type: s.Type}}
	if s.Type == TypeEnum {
		constraints = append(constraints, EnumConstraint{Options: s.Options})
	}
	if s.Type == TypeNumber && (s.Minimum != nil || s.Maximum != nil) {
		constraints = append(constraints, RangeConstraint{Minimum: s.Minimum, Maximum: s.Maximum})
	}
	if s.Required {
		constraints = append(constraints, RequiredConstraint{})
	}
	s.Constraints = append(constraints, customChecks...)

	return nil
}

// extractCategory derives the category from the first key segment.
func extractCategory(key string) string {
	if i := strings.Index(key, "."); i >= 0 {
		return key[:i]
	}
	return key
}
