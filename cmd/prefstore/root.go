package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/prefstore/prefstore/internal/event"
	"github.com/prefstore/prefstore/internal/history"
	"github.com/prefstore/prefstore/internal/schema"
	"github.com/prefstore/prefstore/internal/secrets"
	"github.com/prefstore/prefstore/internal/settings"
	"github.com/prefstore/prefstore/internal/storage"
)

// app is the composition root. The engine is assembled exactly once per
// invocation, in setup, and torn down in teardown.
type app struct {
	cfg     *Config
	log     zerolog.Logger
	chain   *storage.Chain
	manager *settings.Manager
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "prefstore",
		Short: "Schema-driven settings store with tiered persistence",
		Long: `prefstore manages application settings against a typed schema:
values are validated and repaired on the way in, encrypted when
sensitive, written through a chain of storage tiers that degrades
instead of failing, and every save is undoable.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipEngine(cmd) {
				return nil
			}
			return a.setup(cmd, cfgFile)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", DefaultConfigPath(), "Configuration file path")
	cmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(
		newListCmd(a),
		newGetCmd(a),
		newSetCmd(a),
		newUnsetCmd(a),
		newUndoCmd(a),
		newRedoCmd(a),
		newHistoryCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newBackupCmd(a),
		newDoctorCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// skipEngine reports whether a command runs without the assembled
// engine. Version and help have no use for storage.
func skipEngine(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion":
		return true
	}
	return false
}

// setup loads the config, builds the logger and the tier chain, and
// assembles and loads the manager.
func (a *app) setup(cmd *cobra.Command, cfgFile string) error {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	a.cfg = cfg
	a.log = newLogger(cfg.LogLevel)

	a.chain = a.openChain()

	registry := schema.NewWithDefaults()
	cryptoOpts := []secrets.Option{secrets.WithServiceLogger(a.log)}
	if cfg.Passphrase != "" {
		cryptoOpts = append(cryptoOpts, secrets.WithPassphrase(cfg.Passphrase))
	}

	managerOpts := []settings.Option{
		settings.WithChain(a.chain),
		settings.WithRegistry(registry),
		settings.WithCrypto(secrets.New(cryptoOpts...)),
		settings.WithHistory(history.New(cfg.HistoryCap, registry.SensitiveKeys())),
		settings.WithBus(event.New(event.WithLogger(a.log))),
		settings.WithBackupCap(cfg.BackupCap),
		settings.WithLogger(a.log),
	}
	if cfg.Watch {
		managerOpts = append(managerOpts, settings.WithFileWatch())
	}

	m, err := settings.New(managerOpts...)
	if err != nil {
		return fmt.Errorf("assemble settings manager: %w", err)
	}
	if err := m.Load(cmd.Context()); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	a.manager = m
	return nil
}

func (a *app) teardown() error {
	if a.manager != nil {
		if err := a.manager.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close manager")
		}
	}
	if a.chain != nil {
		if err := a.chain.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close storage chain")
		}
	}
	return nil
}

// openChain builds the configured tiers in order. A tier that cannot
// start is skipped with a warning; the chain exists to degrade, not to
// refuse. An empty result falls back to memory so the engine always
// has somewhere to live.
func (a *app) openChain() *storage.Chain {
	var backends []storage.Backend
	for _, tier := range a.cfg.Tiers {
		backend, err := a.openTier(tier)
		if err != nil {
			a.log.Warn().Err(err).Str("tier", tier).Msg("storage tier unavailable, skipping")
			continue
		}
		backends = append(backends, backend)
	}
	if len(backends) == 0 {
		a.log.Warn().Msg("no storage tier available, falling back to memory only")
		backends = append(backends, storage.NewMemoryStore())
	}
	return storage.NewChain(backends, storage.WithLogger(a.log))
}

func (a *app) openTier(name string) (storage.Backend, error) {
	switch name {
	case "badger":
		return storage.NewBadgerStore(filepath.Join(a.cfg.DataDir, "badger"), a.log)
	case "file":
		return storage.NewFileStore(filepath.Join(a.cfg.DataDir, "settings"))
	case "sqlite":
		return storage.NewSQLiteStore(filepath.Join(a.cfg.DataDir, "prefstore.db"))
	case "scratch":
		return storage.NewScratchStore()
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown tier %q", name)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch level {
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger()
}
