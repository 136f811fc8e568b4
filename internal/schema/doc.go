// Package schema is the single source of truth for the shape of every
// setting the engine persists.
//
// Each setting is declared once, at process start, as a Setting carrying
// its type, default, bounds, enum options, sensitivity, category, and the
// sanitize/validate strategies derived from that metadata. The Registry
// holds all declarations, freezes after startup, and answers every shape
// question the rest of the engine asks:
//
//   - Defaults() builds the canonical default Snapshot.
//   - Sanitize() coerces and clamps raw input; Validate() is the pure
//     predicate a sanitized value must pass.
//   - Normalize() chains the two and reports what happened (coerced,
//     clamped, reverted to default) without failing the caller for
//     repairable input.
//   - Fill() conforms an arbitrary snapshot to the registry: every known
//     key present, unknown keys dropped.
//
// Validation and sanitization are expressed as enumerable strategy values
// (type check, range check, enum membership, clamp, snap, trim, named
// custom hooks) rather than opaque closures, so they can be listed,
// tested, and reasoned about in isolation.
//
// Conditional visibility is declarative: a setting names the keys its
// visibility depends on (DependsOn) and supplies a pure VisibleWhen
// predicate over a snapshot. The registry exposes the declared dependency
// list as-is; it never derives dependencies from code.
package schema
