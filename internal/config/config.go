// Package config loads the ~/.edlflash/config.toml file holding defaults
// that the spec requires be caller-configurable rather than compiled in:
// the sensitive-partition deny-list, key-table paths, and default
// baud/timeout values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the on-disk config.toml.
type Config struct {
	Baud         int           `toml:"baud,omitempty"`
	HandshakeMs  int           `toml:"handshake_timeout_ms,omitempty"`
	CommandMs    int           `toml:"command_timeout_ms,omitempty"`
	BulkMs       int           `toml:"bulk_timeout_ms,omitempty"`
	ProtectDeny  []string      `toml:"protect_deny_list,omitempty"`
	KeyTablePath string        `toml:"key_table_path,omitempty"`
}

// DefaultDenyList is the spec's literal sensitive-partition glob list
// (spec §4.7), used when no config file or explicit override is present.
var DefaultDenyList = []string{
	"gpt*", "modem*", "sbl*", "xbl*", "aboot*", "devcfg*",
	"qcn", "fsc", "fsg", "modemst1", "modemst2", "persist",
}

// configDirOverride is set by the --config-dir flag.
var configDirOverride string

// SetConfigDir overrides the resolved config directory, used by the CLI's
// --config-dir flag.
func SetConfigDir(dir string) {
	configDirOverride = dir
}

// Dir returns the config directory. Precedence: SetConfigDir >
// EDLFLASH_HOME env > ~/.edlflash.
func Dir() string {
	if configDirOverride != "" {
		return configDirOverride
	}
	if v := os.Getenv("EDLFLASH_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".edlflash")
	}
	return filepath.Join(home, ".edlflash")
}

// Path returns the full path to config.toml.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads config.toml, returning defaults (not an error) if the file
// is absent.
func Load() (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}
	return cfg, nil
}

// Save writes cfg back to config.toml, creating the config directory if
// needed.
func Save(cfg *Config) error {
	if err := os.MkdirAll(Dir(), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(Path(), data, 0o644)
}

// DenyList returns cfg's protect list, or DefaultDenyList if unset.
func (c *Config) DenyList() []string {
	if len(c.ProtectDeny) > 0 {
		return c.ProtectDeny
	}
	return DefaultDenyList
}

// Timeouts resolves the configured (or spec-default, per §5) session
// timeouts.
func (c *Config) Timeouts() (handshake, command, bulk time.Duration) {
	handshake = 30 * time.Second
	command = 5 * time.Second
	bulk = 30 * time.Second
	if c.HandshakeMs > 0 {
		handshake = time.Duration(c.HandshakeMs) * time.Millisecond
	}
	if c.CommandMs > 0 {
		command = time.Duration(c.CommandMs) * time.Millisecond
	}
	if c.BulkMs > 0 {
		bulk = time.Duration(c.BulkMs) * time.Millisecond
	}
	return
}

// BaudOrDefault returns the configured baud rate, or def if unset.
func (c *Config) BaudOrDefault(def int) int {
	if c.Baud > 0 {
		return c.Baud
	}
	return def
}
