package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "variantcache.yaml"

// Config holds all variantcache configuration.
type Config struct {
	// Root of the conversation history tree; cache files live beside the
	// history files.
	DataDir string `yaml:"data_dir"`

	Cache   CacheConfig   `yaml:"cache"`
	Watch   WatchConfig   `yaml:"watch"`
	Render  RenderConfig  `yaml:"render"`
	Logging LoggingConfig `yaml:"logging"`
}

// CacheConfig configures the on-disk cache files.
type CacheConfig struct {
	Indent   int    `yaml:"indent"`    // JSON indent width, 0 for compact
	FileMode string `yaml:"file_mode"` // octal, e.g. "0644"
}

// WatchConfig configures the filesystem lifecycle watcher.
type WatchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Debounce string `yaml:"debounce"` // window pairing a rename with its create
}

// RenderConfig configures transcript rendering.
type RenderConfig struct {
	Theme    string `yaml:"theme"`    // dark, light, notty
	Markdown bool   `yaml:"markdown"` // render message bodies with glamour
	Width    int    `yaml:"width"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "logs",
		Cache: CacheConfig{
			Indent:   4,
			FileMode: "0644",
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: "500ms",
		},
		Render: RenderConfig{
			Theme:    "dark",
			Markdown: true,
			Width:    80,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
			Dir:       ".variantcache/logs",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("VARIANTCACHE_DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if lvl := os.Getenv("VARIANTCACHE_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = strings.ToLower(lvl)
	}
	if v := os.Getenv("VARIANTCACHE_DEBUG"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = on
		}
	}
}

// GetWatchDebounce returns the watcher debounce window as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// GetFileMode returns the cache file permissions.
func (c *Config) GetFileMode() os.FileMode {
	m, err := strconv.ParseUint(c.Cache.FileMode, 8, 32)
	if err != nil || m == 0 {
		return 0644
	}
	return os.FileMode(m)
}

// ValidThemes lists the supported render themes.
var ValidThemes = []string{"dark", "light", "notty"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Cache.Indent < 0 || c.Cache.Indent > 16 {
		return fmt.Errorf("cache.indent out of range: %d (0-16)", c.Cache.Indent)
	}
	if _, err := strconv.ParseUint(c.Cache.FileMode, 8, 32); err != nil {
		return fmt.Errorf("invalid cache.file_mode %q: %w", c.Cache.FileMode, err)
	}
	if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return fmt.Errorf("invalid watch.debounce %q: %w", c.Watch.Debounce, err)
	}

	validTheme := false
	for _, th := range ValidThemes {
		if c.Render.Theme == th {
			validTheme = true
			break
		}
	}
	if !validTheme {
		return fmt.Errorf("invalid render theme: %s (valid: %v)", c.Render.Theme, ValidThemes)
	}

	return nil
}
