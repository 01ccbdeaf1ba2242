package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default("/tmp/waymark.db")
	if cfg.Database.Path != "/tmp/waymark.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "info" || !cfg.Logging.DevFile.Enabled {
		t.Fatalf("unexpected logging defaults %#v", cfg.Logging)
	}
	if !cfg.Ledger.AutoCreateNodes {
		t.Fatal("expected auto-create nodes by default")
	}
	if cfg.Display.TimeZone != "Local" || !cfg.Display.RelativeTimes {
		t.Fatalf("unexpected display defaults %#v", cfg.Display)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	defaults := Default("/tmp/waymark.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != defaults.Database.Path {
		t.Fatalf("expected default db path, got %q", cfg.Database.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[database]
path = "/custom/waymark.db"

[logging]
level = "debug"

[logging.dev_file]
enabled = false
dir = "/var/log/waymark"

[ledger]
auto_create_nodes = false

[display]
time_zone = "UTC"
relative_times = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/custom/waymark.db" {
		t.Fatalf("unexpected db path %q", cfg.Database.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.DevFile.Enabled || cfg.Logging.DevFile.Dir != "/var/log/waymark" {
		t.Fatalf("unexpected logging %#v", cfg.Logging)
	}
	if cfg.Ledger.AutoCreateNodes {
		t.Fatal("expected auto-create disabled from config override")
	}
	if cfg.Display.TimeZone != "UTC" || cfg.Display.RelativeTimes {
		t.Fatalf("unexpected display %#v", cfg.Display)
	}
}

func TestLoadPartialFileKeepsOtherDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[ledger]\nauto_create_nodes = false\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfg, err := Load(path, Default("/tmp/default.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/default.db" || cfg.Logging.Level != "info" {
		t.Fatalf("expected untouched defaults, got %#v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"level":    "[logging]\nlevel = \"loud\"\n",
		"zone":     "[display]\ntime_zone = \"Mars/Olympus\"\n",
		"empty db": "[database]\npath = \"  \"\n",
		"syntax":   "[database\n",
	}
	for name, content := range cases {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		if _, err := Load(path, Default("/tmp/default.db")); err == nil {
			t.Fatalf("%s: expected Load() error", name)
		}
	}
}

func TestEncodeRoundTripsThroughLoad(t *testing.T) {
	cfg := Default("/tmp/waymark.db")
	cfg.Display.TimeZone = "UTC"
	raw, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !strings.Contains(string(raw), "[logging.dev_file]") && !strings.Contains(string(raw), "[logging]") {
		t.Fatalf("unexpected encoding %s", raw)
	}
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := EnsureConfigDir(path); err != nil {
		t.Fatalf("EnsureConfigDir() error = %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	loaded, err := Load(path, Default("/other.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded != cfg {
		t.Fatalf("round trip mismatch %#v vs %#v", loaded, cfg)
	}
}
