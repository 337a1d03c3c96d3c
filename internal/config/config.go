// Package config handles configuration loading, validation, and hot
// reloading for the keyboard pipeline.
package config

import (
	"fmt"
	"os"
	"strconv"

	"keypipe/internal/logging"
)

// Known transport backend names.
var validBackends = map[string]bool{
	"auto": true, "fcitx": true, "fcitx5": true, "ibus": true, "none": true,
}

// Config holds the complete pipeline configuration.
type Config struct {
	// Transport selects and tunes the IME backend connection.
	Transport TransportConfig `toml:"transport" yaml:"transport"`

	// Layout configures keymap sources.
	Layout LayoutConfig `toml:"layout" yaml:"layout"`

	// Compose configures the dead-key/compose engine.
	Compose ComposeConfig `toml:"compose" yaml:"compose"`

	// Sink configures delivery behavior toward the application callback.
	Sink SinkConfig `toml:"sink" yaml:"sink"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" yaml:"logging"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
}

// TransportConfig selects the IME backend.
type TransportConfig struct {
	// Backend is "auto", "fcitx", "ibus", or "none".
	Backend string `toml:"backend" yaml:"backend"`

	// Program is the client name announced to the daemon.
	Program string `toml:"program" yaml:"program"`

	// RequestTimeoutMs is the fixed per-request deadline in milliseconds.
	RequestTimeoutMs int `toml:"request_timeout_ms" yaml:"request_timeout_ms"`
}

// LayoutConfig configures keymap sources.
type LayoutConfig struct {
	// KeymapPath is an optional YAML keymap document for the active
	// layout. Empty selects the builtin US keymap.
	KeymapPath string `toml:"keymap_path" yaml:"keymap_path"`

	// DefaultKeymapPath optionally overrides the hardware baseline layout
	// used for keybinding fallback resolution.
	DefaultKeymapPath string `toml:"default_keymap_path" yaml:"default_keymap_path"`
}

// ComposeConfig configures the compose engine.
type ComposeConfig struct {
	// Enabled turns dead-key composition on.
	Enabled bool `toml:"enabled" yaml:"enabled"`

	// Locale overrides the locale resolved from the environment.
	Locale string `toml:"locale" yaml:"locale"`

	// TablePath overrides compose table discovery with an explicit file.
	TablePath string `toml:"table_path" yaml:"table_path"`
}

// SinkConfig configures event delivery.
type SinkConfig struct {
	// StickyKeys latches key releases so the next state query reports one
	// final press.
	StickyKeys bool `toml:"sticky_keys" yaml:"sticky_keys"`

	// StickyButtons applies the same latching to mouse buttons.
	StickyButtons bool `toml:"sticky_buttons" yaml:"sticky_buttons"`

	// LockKeyMods reports caps-lock and num-lock bits in modifier masks
	// instead of stripping them.
	LockKeyMods bool `toml:"lock_key_mods" yaml:"lock_key_mods"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `toml:"level" yaml:"level"`
	Format   string `toml:"format" yaml:"format"`
	Output   string `toml:"output" yaml:"output"`
	FilePath string `toml:"file_path" yaml:"file_path"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" yaml:"enabled"`
	Namespace string `toml:"namespace" yaml:"namespace"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Backend:          "auto",
			Program:          "keypipe",
			RequestTimeoutMs: 3000,
		},
		Compose: ComposeConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "keypipe",
		},
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if !validBackends[c.Transport.Backend] {
		return fmt.Errorf("config: unknown transport backend %q", c.Transport.Backend)
	}
	if c.Transport.RequestTimeoutMs <= 0 {
		return fmt.Errorf("config: request_timeout_ms must be positive, got %d",
			c.Transport.RequestTimeoutMs)
	}
	if c.Transport.Program == "" {
		return fmt.Errorf("config: transport program must not be empty")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return err
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		return fmt.Errorf("config: logging output \"file\" requires file_path")
	}
	return nil
}

// ApplyEnvOverrides applies KEYPIPE_* environment variables on top of the
// loaded configuration.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("KEYPIPE_TRANSPORT"); v != "" {
		c.Transport.Backend = v
	}
	if v := os.Getenv("KEYPIPE_TRANSPORT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Transport.RequestTimeoutMs = ms
		}
	}
	if v := os.Getenv("KEYPIPE_KEYMAP"); v != "" {
		c.Layout.KeymapPath = v
	}
	if v := os.Getenv("KEYPIPE_COMPOSE_LOCALE"); v != "" {
		c.Compose.Locale = v
	}
	if v := os.Getenv("KEYPIPE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KEYPIPE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}
