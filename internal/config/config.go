// Package config loads loomctl's persisted settings: the peer address to
// dial or listen on, the preferred encoding list advertised in HELLO, the
// ping cadence, and the log level.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds loomctl's configuration.
type Config struct {
	Address      string   `yaml:"address"`
	Encodings    []string `yaml:"encodings"`
	PingInterval uint32   `yaml:"ping_interval_ms"`
	MaxPayload   uint32   `yaml:"max_payload_bytes"`
	LogLevel     string   `yaml:"log_level"`
}

// DefaultPath returns ~/.loom/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".loom", "config.yaml")
	}
	return filepath.Join(home, ".loom", "config.yaml")
}

// Load reads the configuration at path, layering it over defaults. A
// missing file is not an error — it yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Address:      "127.0.0.1:9443",
		Encodings:    []string{"json"},
		PingInterval: 30000,
		MaxPayload:   0,
		LogLevel:     "info",
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		fmt.Fprintf(os.Stderr,
			"warning: config file %s has permissions %04o — expected 0600. "+
				"Peer credentials may be exposed to other users.\n",
			path, perm)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
