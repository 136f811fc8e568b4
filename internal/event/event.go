package event

import "time"

// Topic names an event stream.
type Topic string

// All is the wildcard subscription topic.
const All Topic = "*"

// Topics published by the settings engine.
const (
	// Initialized fires once when the engine finishes loading.
	Initialized Topic = "initialized"

	// SettingsChanged fires when one or more values change, carrying
	// the full new snapshot.
	SettingsChanged Topic = "settings-changed"

	// SettingChanged fires per changed key with old and new values.
	SettingChanged Topic = "setting-changed"

	// SettingsSaved fires after a successful persist.
	SettingsSaved Topic = "settings-saved"

	// Error fires when an engine operation fails in a recoverable way.
	Error Topic = "error"

	// MissingRequiredField fires when a required setting has no value.
	MissingRequiredField Topic = "missing-required-field"
)

// Payloads carried on the engine topics. Handlers type-assert
// Event.Payload against these.
type (
	// ChangeSetPayload rides SettingsChanged.
	ChangeSetPayload struct {
		ChangedKeys []string
	}

	// ChangePayload rides SettingChanged, once per changed key.
	ChangePayload struct {
		Key      string
		Value    any
		Previous any
	}

	// ErrorPayload rides Error.
	ErrorPayload struct {
		Message string
	}

	// MissingFieldPayload rides MissingRequiredField.
	MissingFieldPayload struct {
		Key string
	}
)

// Event is a single delivery on the bus.
type Event struct {
	// Topic the event was published to.
	Topic Topic

	// Payload is the publisher's data; handlers type-assert.
	Payload any

	// Seq is the bus-wide publish sequence number.
	Seq uint64

	// Time the event was published.
	Time time.Time

	// Replayed marks a retained event delivered at subscribe time
	// rather than live.
	Replayed bool
}
