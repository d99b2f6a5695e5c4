package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address != "127.0.0.1:9443" || cfg.PingInterval != 30000 {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "address: example.com:9443\nencodings:\n  - cbor\n  - json\nping_interval_ms: 5000\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address != "example.com:9443" || cfg.PingInterval != 5000 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Encodings) != 2 || cfg.Encodings[0] != "cbor" {
		t.Fatalf("Encodings = %v", cfg.Encodings)
	}
	// Fields absent from the file keep their defaults.
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want default", cfg.LogLevel)
	}
}

func TestLoadSucceedsWithWorldReadablePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("address: x:1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// Load must still succeed; the permission warning only goes to stderr.
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestDefaultPathUnderHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	got := DefaultPath()
	want := filepath.Join(home, ".loom", "config.yaml")
	if got != want {
		t.Fatalf("DefaultPath() = %q, want %q", got, want)
	}
}
