package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.HistoryCap != 20 || cfg.BackupCap != 10 {
		t.Errorf("caps = %d/%d, want 20/10", cfg.HistoryCap, cfg.BackupCap)
	}
	if len(cfg.Tiers) != 5 || cfg.Tiers[0] != "badger" || cfg.Tiers[4] != "memory" {
		t.Errorf("Tiers = %v, want the full fallback order", cfg.Tiers)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefstore.toml")
	content := `
dataDir = "/var/lib/prefstore"
tiers = ["file", "memory"]
logLevel = "debug"
historyCap = 50
backupCap = 3
watch = true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DataDir != "/var/lib/prefstore" {
		t.Errorf("DataDir = %s", cfg.DataDir)
	}
	if len(cfg.Tiers) != 2 || cfg.Tiers[0] != "file" || cfg.Tiers[1] != "memory" {
		t.Errorf("Tiers = %v, want [file memory]", cfg.Tiers)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.HistoryCap != 50 || cfg.BackupCap != 3 {
		t.Errorf("caps = %d/%d, want 50/3", cfg.HistoryCap, cfg.BackupCap)
	}
	if !cfg.Watch {
		t.Error("Watch = false, want true")
	}
}

func TestLoadConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefstore.toml")
	if err := os.WriteFile(path, []byte("dataDir = [broken"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for malformed TOML")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefstore.toml")
	content := `
logLevel = "debug"
historyCap = 50
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PREFSTORE_LOG_LEVEL", "error")
	t.Setenv("PREFSTORE_TIERS", "memory, scratch")
	t.Setenv("PREFSTORE_BACKUP_CAP", "4")
	t.Setenv("PREFSTORE_WATCH", "yes")
	t.Setenv("PREFSTORE_PASSPHRASE", "hunter2")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %s, env should win over file", cfg.LogLevel)
	}
	if cfg.HistoryCap != 50 {
		t.Errorf("HistoryCap = %d, file value should survive", cfg.HistoryCap)
	}
	if len(cfg.Tiers) != 2 || cfg.Tiers[0] != "memory" || cfg.Tiers[1] != "scratch" {
		t.Errorf("Tiers = %v, want [memory scratch]", cfg.Tiers)
	}
	if cfg.BackupCap != 4 {
		t.Errorf("BackupCap = %d, want 4", cfg.BackupCap)
	}
	if !cfg.Watch {
		t.Error("Watch = false, want true")
	}
	if cfg.Passphrase != "hunter2" {
		t.Errorf("Passphrase = %q, want env value", cfg.Passphrase)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty data dir", `dataDir = ""`},
		{"no tiers", `tiers = []`},
		{"unknown tier", `tiers = ["postgres"]`},
		{"bad log level", `logLevel = "loud"`},
		{"zero history cap", `historyCap = 0`},
		{"negative backup cap", `backupCap = -1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prefstore.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
