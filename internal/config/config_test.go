package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.DataDir != "logs" {
		t.Errorf("expected DataDir=logs, got %s", cfg.DataDir)
	}
	if cfg.Cache.Indent != 4 {
		t.Errorf("expected Indent=4, got %d", cfg.Cache.Indent)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("VARIANTCACHE_DATA_DIR", "")
	t.Setenv("VARIANTCACHE_LOG_LEVEL", "")
	t.Setenv("VARIANTCACHE_DEBUG", "")

	path := filepath.Join(t.TempDir(), "cfg", "variantcache.yaml")

	cfg := DefaultConfig()
	cfg.DataDir = "/srv/chats"
	cfg.Watch.Enabled = true
	cfg.Logging.Categories = map[string]bool{"watch": false}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.DataDir != "/srv/chats" {
		t.Errorf("expected DataDir=/srv/chats, got %s", loaded.DataDir)
	}
	if !loaded.Watch.Enabled {
		t.Error("expected watch to be enabled")
	}
	if loaded.Logging.IsCategoryEnabled("watch") {
		t.Error("watch category should be disabled (debug mode off)")
	}
}

func TestConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("VARIANTCACHE_DATA_DIR", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Render.Theme != "dark" {
		t.Errorf("expected default theme, got %s", cfg.Render.Theme)
	}
}

func TestConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("data_dir: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("VARIANTCACHE_DATA_DIR", "/tmp/override")
	t.Setenv("VARIANTCACHE_LOG_LEVEL", "DEBUG")
	t.Setenv("VARIANTCACHE_DEBUG", "true")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	if cfg.DataDir != "/tmp/override" {
		t.Errorf("expected DataDir override, got %s", cfg.DataDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level=debug, got %s", cfg.Logging.Level)
	}
	if !cfg.Logging.DebugMode {
		t.Error("expected debug mode on")
	}
	if !cfg.Logging.Settings().DebugMode {
		t.Error("Settings should carry debug mode")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = " " }},
		{"negative indent", func(c *Config) { c.Cache.Indent = -1 }},
		{"bad file mode", func(c *Config) { c.Cache.FileMode = "rw-r--r--" }},
		{"bad debounce", func(c *Config) { c.Watch.Debounce = "soon" }},
		{"bad theme", func(c *Config) { c.Render.Theme = "neon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_Getters(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.GetWatchDebounce(); got != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", got)
	}
	cfg.Watch.Debounce = "garbage"
	if got := cfg.GetWatchDebounce(); got != 500*time.Millisecond {
		t.Errorf("expected fallback 500ms, got %v", got)
	}

	cfg.Cache.FileMode = "0600"
	if got := cfg.GetFileMode(); got != 0600 {
		t.Errorf("expected 0600, got %o", got)
	}
	cfg.Cache.FileMode = "x"
	if got := cfg.GetFileMode(); got != 0644 {
		t.Errorf("expected fallback 0644, got %o", got)
	}
}
