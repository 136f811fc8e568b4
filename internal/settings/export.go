package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// Signature algorithm names written to export files.
const (
	SignatureHMACSHA256 = "hmac-sha256"
	SignatureRolling    = "rolling-31"
)

// ExportSignature authenticates an export's settings payload.
type ExportSignature struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// ExportFile is the external exchange format.
type ExportFile struct {
	Settings  map[string]any   `json:"settings"`
	Version   string           `json:"version"`
	Timestamp time.Time        `json:"timestamp"`
	Signature *ExportSignature `json:"signature,omitempty"`
}

type exportConfig struct {
	includeSensitive bool
}

// ExportOption adjusts one export.
type ExportOption func(*exportConfig)

// IncludeSensitive exports live secret values instead of zeroing them.
func IncludeSensitive() ExportOption {
	return func(c *exportConfig) { c.includeSensitive = true }
}

// Export builds a signed export of the current state. Sensitive values
// are zeroed to empty strings unless IncludeSensitive is given. The
// signature covers the canonical encoding of the settings object, so
// reformatting an export file does not invalidate it.
func (m *Manager) Export(opts ...ExportOption) (*ExportFile, error) {
	if err := m.requireLoaded(); err != nil {
		return nil, err
	}
	var cfg exportConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	live := m.liveValues()
	out := make(map[string]any, len(live))
	for key, value := range live {
		s := m.registry.Get(key)
		if s == nil {
			continue
		}
		if s.Sensitive && !cfg.includeSensitive {
			out[key] = ""
			continue
		}
		out[key] = value
	}

	payload, err := canonicalSettings(out)
	if err != nil {
		return nil, fmt.Errorf("encode export settings: %w", err)
	}
	return &ExportFile{
		Settings:  out,
		Version:   m.Version(),
		Timestamp: time.Now().UTC(),
		Signature: &ExportSignature{
			Algorithm: m.signatureAlgorithm(),
			Value:     m.crypto.Sign(payload),
		},
	}, nil
}

// canonicalSettings is the byte form signatures are computed over:
// compact JSON with keys in sorted order.
func canonicalSettings(settings map[string]any) ([]byte, error) {
	return json.Marshal(settings)
}

func (m *Manager) signatureAlgorithm() string {
	if m.crypto.IsStrong() {
		return SignatureHMACSHA256
	}
	return SignatureRolling
}

// ImportResult reports what an import did.
type ImportResult struct {
	// Applied lists keys whose value changed.
	Applied []string

	// Skipped lists dropped keys: unknown to the schema or invalid.
	Skipped []string

	// Errors holds the per-key failure for every skipped key.
	Errors map[string]error

	// BackupID names the pre-import backup.
	BackupID string

	// SignatureVerified is true when a signature was present and
	// matched. An overridden mismatch imports with this false.
	SignatureVerified bool

	// Persisted reports whether the applied state reached storage.
	Persisted bool
}

type importConfig struct {
	confirm func() bool
}

// ImportOption adjusts one import.
type ImportOption func(*importConfig)

// ConfirmOverride supplies the explicit confirmation consulted when
// the signature does not match. Without it a mismatch rejects the
// import outright.
func ConfirmOverride(fn func() bool) ImportOption {
	return func(c *importConfig) { c.confirm = fn }
}

// Import applies an export file: signature gate, pre-import backup,
// unknown keys dropped, known keys normalized, only changed keys
// applied. A signature mismatch without a confirmed override changes
// nothing.
func (m *Manager) Import(ctx context.Context, file *ExportFile, opts ...ImportOption) (*ImportResult, error) {
	m.op.Lock()
	defer m.op.Unlock()

	if err := m.requireLoaded(); err != nil {
		return nil, err
	}
	var cfg importConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	verified := false
	if file.Signature != nil {
		payload, err := canonicalSettings(file.Settings)
		if err != nil {
			return nil, fmt.Errorf("encode import settings: %w", err)
		}
		verified = m.crypto.Verify(payload, file.Signature.Value)
		if !verified {
			if cfg.confirm == nil || !cfg.confirm() {
				return nil, ErrSignatureMismatch
			}
			m.log.Warn().Msg("import signature mismatch overridden by caller")
		}
	}

	backup, err := m.createBackup(ctx, BackupPreImport)
	if err != nil {
		return nil, fmt.Errorf("pre-import backup: %w", err)
	}

	changes := make(map[string]any)
	var skippedUnknown []string
	for key, value := range file.Settings {
		s := m.registry.Get(key)
		if s == nil {
			skippedUnknown = append(skippedUnknown, key)
			continue
		}
		// Exports zero sensitive values as a redaction; an empty
		// incoming secret must not wipe the live one.
		if s.Sensitive {
			if str, _ := value.(string); str == "" {
				continue
			}
		}
		changes[key] = value
	}

	result, err := m.update(ctx, changes, WithLabel("import"))
	if err != nil {
		return nil, err
	}

	imported := &ImportResult{
		Applied:           result.Applied,
		Skipped:           append(skippedUnknown, result.Skipped...),
		Errors:            result.Errors,
		BackupID:          backup.ID,
		SignatureVerified: verified,
		Persisted:         result.Persisted,
	}
	return imported, nil
}

// DecodeExport parses export file bytes. Parsing is tolerant: fields
// beyond the known four are ignored, a malformed timestamp or
// signature block is dropped rather than fatal, and settings written
// by older releases as nested category objects are flattened to the
// dotted form.
func DecodeExport(data []byte) (*ExportFile, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("decode export file: not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errors.New("decode export file: top level is not an object")
	}

	file := &ExportFile{Settings: make(map[string]any)}
	file.Version = root.Get("version").String()
	if ts := root.Get("timestamp"); ts.Exists() {
		if t, err := time.Parse(time.RFC3339Nano, ts.String()); err == nil {
			file.Timestamp = t
		}
	}
	if sig := root.Get("signature"); sig.IsObject() {
		value := sig.Get("value").String()
		if value != "" {
			file.Signature = &ExportSignature{
				Algorithm: sig.Get("algorithm").String(),
				Value:     value,
			}
		}
	}

	root.Get("settings").ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if value.IsObject() && !strings.Contains(name, ".") {
			// Legacy exports nest one object per category.
			value.ForEach(func(sub, leaf gjson.Result) bool {
				file.Settings[name+"."+sub.String()] = leaf.Value()
				return true
			})
			return true
		}
		file.Settings[name] = value.Value()
		return true
	})
	return file, nil
}

// EncodeExport renders an export file as indented JSON.
func EncodeExport(file *ExportFile) ([]byte, error) {
	raw, err := canonicalSettings(file.Settings)
	if err != nil {
		return nil, fmt.Errorf("encode export file: %w", err)
	}
	doc := []byte(`{}`)
	if doc, err = sjson.SetRawBytes(doc, "settings", raw); err != nil {
		return nil, fmt.Errorf("encode export file: %w", err)
	}
	if doc, err = sjson.SetBytes(doc, "version", file.Version); err != nil {
		return nil, fmt.Errorf("encode export file: %w", err)
	}
	if doc, err = sjson.SetBytes(doc, "timestamp", file.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, fmt.Errorf("encode export file: %w", err)
	}
	if file.Signature != nil {
		if doc, err = sjson.SetBytes(doc, "signature.algorithm", file.Signature.Algorithm); err != nil {
			return nil, fmt.Errorf("encode export file: %w", err)
		}
		if doc, err = sjson.SetBytes(doc, "signature.value", file.Signature.Value); err != nil {
			return nil, fmt.Errorf("encode export file: %w", err)
		}
	}
	return pretty.Pretty(doc), nil
}
