// Package settings is the engine's orchestration layer. The Manager
// owns the single in-memory snapshot and the history cursor, and walks
// every operation through the same pipeline: schema normalization,
// sensitive-value encryption, tiered persistence, history, events.
//
// Writes are serialized end to end. A second update cannot begin its
// persist step until the prior one's persist, history append and event
// publishes have completed. Readers always receive copies; event
// handlers may read from the manager but must not mutate it
// synchronously.
package settings
