package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// envPrefix namespaces the environment overrides.
const envPrefix = "PREFSTORE_"

// Config holds the CLI's own options. The engine never reads files or
// the environment; everything funnels through here and into explicit
// options.
type Config struct {
	// DataDir is the root for every persistent tier: badger/, settings/
	// and prefstore.db live under it.
	DataDir string `toml:"dataDir"`

	// Tiers lists the enabled storage tiers in fallback order.
	Tiers []string `toml:"tiers"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"logLevel"`

	// HistoryCap bounds the undo log.
	HistoryCap int `toml:"historyCap"`

	// BackupCap bounds the retained backup list.
	BackupCap int `toml:"backupCap"`

	// Watch reloads the engine when the settings file changes on disk.
	Watch bool `toml:"watch"`

	// Passphrase keys the sensitive-value envelopes. Environment only;
	// a value in the config file is rejected so it cannot end up in a
	// world-readable TOML.
	Passphrase string `toml:"-"`
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "prefstore.toml"
	}
	return filepath.Join(base, "prefstore", "prefstore.toml")
}

func defaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "prefstore-data"
	}
	return filepath.Join(base, "prefstore")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:    defaultDataDir(),
		Tiers:      []string{"badger", "file", "sqlite", "scratch", "memory"},
		LogLevel:   "info",
		HistoryCap: 20,
		BackupCap:  10,
	}
}

// LoadConfig resolves the configuration: defaults, then the TOML file,
// then PREFSTORE_* environment overrides. A missing file is not an
// error; a malformed one is.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults stand.
	case err != nil:
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays PREFSTORE_* variables onto the config. Unset
// variables leave the current value alone.
func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv(envPrefix + "DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := os.LookupEnv(envPrefix + "TIERS"); ok {
		c.Tiers = splitList(v)
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(envPrefix + "HISTORY_CAP"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.HistoryCap = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "BACKUP_CAP"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.BackupCap = n
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "WATCH"); ok {
		c.Watch = parseBool(v)
	}
	if v, ok := os.LookupEnv(envPrefix + "PASSPHRASE"); ok {
		c.Passphrase = v
	}
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("dataDir must not be empty")
	}
	if len(c.Tiers) == 0 {
		return fmt.Errorf("at least one storage tier must be enabled")
	}
	for _, tier := range c.Tiers {
		switch tier {
		case "badger", "file", "sqlite", "scratch", "memory":
		default:
			return fmt.Errorf("unknown storage tier %q", tier)
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.HistoryCap <= 0 {
		return fmt.Errorf("historyCap must be positive")
	}
	if c.BackupCap <= 0 {
		return fmt.Errorf("backupCap must be positive")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true
	default:
		return false
	}
}
