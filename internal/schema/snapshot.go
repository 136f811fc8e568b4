package schema

// Snapshot is a complete mapping from setting key to value. A valid
// snapshot covers exactly the keys in the registry and every value
// passes validation. Snapshots are replaced, never mutated in place;
// consumers receive clones.
type Snapshot map[string]any

// Clone returns a shallow copy. Values are scalars (string, float64,
// bool), so a shallow copy is a full copy.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Equal reports whether two snapshots hold the same key/value pairs,
// independent of iteration order.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for k, v := range s {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// ChangedKeys returns the keys whose values differ between s and other,
// including keys present in only one of the two. Order is unspecified.
func (s Snapshot) ChangedKeys(other Snapshot) []string {
	var keys []string
	for k, v := range s {
		if ov, ok := other[k]; !ok || ov != v {
			keys = append(keys, k)
		}
	}
	for k := range other {
		if _, ok := s[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}
