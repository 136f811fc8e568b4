package schema

// RegisterDefaults registers the built-in setting catalog. Categories
// follow the key prefix: provider, generation, appearance, behavior,
// privacy.
func (r *Registry) RegisterDefaults() {
	// Provider settings
	r.MustRegister(Setting{
		Key:         "provider.name",
		Type:        TypeEnum,
		Default:     "anthropic",
		Description: "AI provider backing the assistant",
		Options:     []string{"anthropic", "openai", "google"},
	})
	r.MustRegister(Setting{
		Key:         "provider.model",
		Type:        TypeString,
		Default:     "claude-sonnet-4-20250514",
		Description: "Model identifier sent with each request",
	})
	r.MustRegister(Setting{
		Key:         "provider.apiKey",
		Type:        TypeString,
		Default:     "",
		Description: "API key for the configured provider",
		Sensitive:   true,
		Required:    true,
	})
	r.MustRegister(Setting{
		Key:         "provider.baseURL",
		Type:        TypeString,
		Default:     "",
		Description: "Override endpoint, empty for the provider default",
	})

	// Generation settings
	r.MustRegister(Setting{
		Key:         "generation.temperature",
		Type:        TypeNumber,
		Default:     0.7,
		Description: "Sampling temperature",
		Minimum:     MinValue(0),
		Maximum:     MaxValue(1),
		Step:        StepValue(0.05),
	})
	r.MustRegister(Setting{
		Key:         "generation.topP",
		Type:        TypeNumber,
		Default:     1.0,
		Description: "Nucleus sampling probability mass",
		Minimum:     MinValue(0),
		Maximum:     MaxValue(1),
		Step:        StepValue(0.01),
	})
	r.MustRegister(Setting{
		Key:         "generation.topK",
		Type:        TypeNumber,
		Default:     40.0,
		Description: "Top-K sampling cutoff",
		Minimum:     MinValue(1),
		Maximum:     MaxValue(500),
		Step:        StepValue(1),
		DependsOn:   []string{"provider.name"},
		VisibleWhen: func(snap Snapshot) bool {
			return snap["provider.name"] != "openai"
		},
	})
	r.MustRegister(Setting{
		Key:         "generation.maxTokens",
		Type:        TypeNumber,
		Default:     4096.0,
		Description: "Maximum tokens per response",
		Minimum:     MinValue(1),
		Maximum:     MaxValue(200000),
		Step:        StepValue(1),
	})
	r.MustRegister(Setting{
		Key:         "generation.streamResponses",
		Type:        TypeBool,
		Default:     true,
		Description: "Stream tokens as they arrive",
	})

	// Appearance settings
	r.MustRegister(Setting{
		Key:         "appearance.theme",
		Type:        TypeEnum,
		Default:     "dark",
		Description: "Color theme",
		Options:     []string{"system", "light", "dark"},
	})
	r.MustRegister(Setting{
		Key:         "appearance.fontSize",
		Type:        TypeNumber,
		Default:     14.0,
		Description: "Base font size in points",
		Minimum:     MinValue(8),
		Maximum:     MaxValue(32),
		Step:        StepValue(1),
	})
	r.MustRegister(Setting{
		Key:         "appearance.language",
		Type:        TypeString,
		Default:     "en",
		Description: "Interface language code",
	})

	// Behavior settings
	r.MustRegister(Setting{
		Key:         "behavior.autoSave",
		Type:        TypeBool,
		Default:     true,
		Description: "Persist changes automatically",
	})
	r.MustRegister(Setting{
		Key:         "behavior.autoSaveDelay",
		Type:        TypeNumber,
		Default:     1000.0,
		Description: "Milliseconds of quiet before an automatic save",
		Minimum:     MinValue(100),
		Maximum:     MaxValue(60000),
		Step:        StepValue(100),
		DependsOn:   []string{"behavior.autoSave"},
		VisibleWhen: func(snap Snapshot) bool {
			return snap["behavior.autoSave"] == true
		},
	})
	r.MustRegister(Setting{
		Key:         "behavior.sendOnEnter",
		Type:        TypeBool,
		Default:     true,
		Description: "Enter sends the message, Shift+Enter inserts a newline",
	})
	r.MustRegister(Setting{
		Key:         "behavior.historyLimit",
		Type:        TypeNumber,
		Default:     20.0,
		Description: "Undo history entries to retain",
		Minimum:     MinValue(1),
		Maximum:     MaxValue(100),
		Step:        StepValue(1),
	})
	r.MustRegister(Setting{
		Key:         "behavior.confirmOnClear",
		Type:        TypeBool,
		Default:     true,
		Description: "Ask before clearing a conversation",
	})

	// Privacy settings
	r.MustRegister(Setting{
		Key:         "privacy.telemetry",
		Type:        TypeBool,
		Default:     false,
		Description: "Send anonymous usage metrics",
	})
	r.MustRegister(Setting{
		Key:         "privacy.retainHistory",
		Type:        TypeBool,
		Default:     true,
		Description: "Keep conversation history between sessions",
	})
	r.MustRegister(Setting{
		Key:         "privacy.syncToken",
		Type:        TypeString,
		Default:     "",
		Description: "Token for cross-device settings sync",
		Sensitive:   true,
	})
}
