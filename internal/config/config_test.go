package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Transport.Backend != "auto" {
		t.Errorf("expected backend auto, got %q", cfg.Transport.Backend)
	}
	if cfg.Transport.RequestTimeoutMs != 3000 {
		t.Errorf("expected 3000ms timeout, got %d", cfg.Transport.RequestTimeoutMs)
	}
	if !cfg.Compose.Enabled {
		t.Error("compose must default to enabled")
	}
	if cfg.Sink.StickyKeys || cfg.Sink.LockKeyMods {
		t.Error("sink toggles must default to off")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Transport.Backend = "scim" }},
		{"zero timeout", func(c *Config) { c.Transport.RequestTimeoutMs = 0 }},
		{"negative timeout", func(c *Config) { c.Transport.RequestTimeoutMs = -5 }},
		{"empty program", func(c *Config) { c.Transport.Program = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"file output without path", func(c *Config) { c.Logging.Output = "file" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[transport]
backend = "fcitx"
request_timeout_ms = 1500

[sink]
sticky_keys = true

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transport.Backend != "fcitx" {
		t.Errorf("expected fcitx, got %q", cfg.Transport.Backend)
	}
	if cfg.Transport.RequestTimeoutMs != 1500 {
		t.Errorf("expected 1500, got %d", cfg.Transport.RequestTimeoutMs)
	}
	if !cfg.Sink.StickyKeys {
		t.Error("sticky_keys not applied")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug, got %q", cfg.Logging.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.Transport.Program != "keypipe" {
		t.Errorf("expected default program, got %q", cfg.Transport.Program)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
transport:
  backend: ibus
compose:
  enabled: true
  locale: de_DE.UTF-8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transport.Backend != "ibus" {
		t.Errorf("expected ibus, got %q", cfg.Transport.Backend)
	}
	if cfg.Compose.Locale != "de_DE.UTF-8" {
		t.Errorf("expected locale override, got %q", cfg.Compose.Locale)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "absent.toml")).Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transport.Backend != "auto" {
		t.Errorf("expected defaults, got backend %q", cfg.Transport.Backend)
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte("x=1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader(path).Load(); err == nil {
		t.Fatal("expected an error for an unsupported format")
	}
}

func TestLoadInvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[transport]\nbackend = \"scim\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader(path).Load(); err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KEYPIPE_TRANSPORT", "ibus")
	t.Setenv("KEYPIPE_TRANSPORT_TIMEOUT_MS", "500")
	t.Setenv("KEYPIPE_LOG_LEVEL", "debug")
	t.Setenv("KEYPIPE_COMPOSE_LOCALE", "ja_JP.UTF-8")

	cfg, err := NewLoader("").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transport.Backend != "ibus" {
		t.Errorf("expected ibus, got %q", cfg.Transport.Backend)
	}
	if cfg.Transport.RequestTimeoutMs != 500 {
		t.Errorf("expected 500, got %d", cfg.Transport.RequestTimeoutMs)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug, got %q", cfg.Logging.Level)
	}
	if cfg.Compose.Locale != "ja_JP.UTF-8" {
		t.Errorf("expected locale override, got %q", cfg.Compose.Locale)
	}
}

func TestEnvOverrideBadNumberIgnored(t *testing.T) {
	t.Setenv("KEYPIPE_TRANSPORT_TIMEOUT_MS", "soon")
	cfg, err := NewLoader("").Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transport.RequestTimeoutMs != 3000 {
		t.Errorf("bad value must keep the default, got %d", cfg.Transport.RequestTimeoutMs)
	}
}

func TestHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[transport]\nbackend = \"fcitx\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer l.Close()

	changed := make(chan *Config, 1)
	l.OnChange(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[transport]\nbackend = \"ibus\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if cfg.Transport.Backend != "ibus" {
			t.Errorf("expected reloaded backend ibus, got %q", cfg.Transport.Backend)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestHotReloadNotifiesEveryCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[transport]\nbackend = \"fcitx\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer l.Close()

	first := make(chan *Config, 1)
	second := make(chan *Config, 1)
	l.OnChange(func(cfg *Config) {
		select {
		case first <- cfg:
		default:
		}
	})
	l.OnChange(func(cfg *Config) {
		select {
		case second <- cfg:
		default:
		}
	})
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[transport]\nbackend = \"ibus\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for name, ch := range map[string]chan *Config{"first": first, "second": second} {
		select {
		case cfg := <-ch:
			if cfg.Transport.Backend != "ibus" {
				t.Errorf("%s callback: expected backend ibus, got %q", name, cfg.Transport.Backend)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s callback", name)
		}
	}
}

func TestHotReloadKeepsConfigOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[transport]\nbackend = \"fcitx\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer l.Close()
	if err := l.Watch(); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("[transport]\nbackend = \"scim\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Give the debounced reload time to fail.
	time.Sleep(300 * time.Millisecond)

	if got := l.Config().Transport.Backend; got != "fcitx" {
		t.Errorf("failed reload must keep the old config, got %q", got)
	}
}
