package migrate

import "github.com/prefstore/prefstore/internal/schema"

// Current is the payload format version this build reads and writes.
var Current = Version{Major: 3, Minor: 1, Patch: 0}

// DefaultMigrator returns a migrator carrying the built-in ladder.
//
// Format history:
//
//	1.0.0  sectioned maps, settings nested one level under their group
//	2.0.0  flat dot keys
//	3.0.0  groups split into provider/generation/appearance categories
//	3.1.0  generation.topK introduced
func DefaultMigrator() *Migrator {
	m := NewMigrator(Current)

	m.Register(Step{
		From:        Version{Major: 1, Minor: 0, Patch: 0},
		To:          Version{Major: 2, Minor: 0, Patch: 0},
		Description: "Flatten sectioned settings into dot keys",
		Apply:       flattenSections,
	})

	m.Register(RenameKeys(
		Version{Major: 2, Minor: 0, Patch: 0},
		Version{Major: 3, Minor: 0, Patch: 0},
		map[string]string{
			"ai.provider":    "provider.name",
			"ai.model":       "provider.model",
			"ai.apiKey":      "provider.apiKey",
			"ai.baseURL":     "provider.baseURL",
			"ai.temperature": "generation.temperature",
			"ai.topP":        "generation.topP",
			"ai.maxTokens":   "generation.maxTokens",
			"ai.stream":      "generation.streamResponses",
			"ui.theme":       "appearance.theme",
			"ui.fontSize":    "appearance.fontSize",
			"ui.language":    "appearance.language",
		},
		"Split ai and ui groups into provider, generation, and appearance",
	))

	m.Register(AddKey(
		Version{Major: 3, Minor: 0, Patch: 0},
		Version{Major: 3, Minor: 1, Patch: 0},
		"generation.topK", 40.0,
		"Introduce generation.topK with its default",
	))

	return m
}

// flattenSections hoists one level of nesting: {"ai": {"model": x}}
// becomes {"ai.model": x}. Scalar top-level values are kept as is.
func flattenSections(snap schema.Snapshot) (schema.Snapshot, error) {
	sections := make(map[string]map[string]any)
	for key, value := range snap {
		if section, ok := value.(map[string]any); ok {
			sections[key] = section
		}
	}

	for name, section := range sections {
		for key, value := range section {
			snap[name+"."+key] = value
		}
		delete(snap, name)
	}

	return snap, nil
}
