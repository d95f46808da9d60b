// Package config loads and validates promptforge configuration.
// Configuration lives at <home>/.promptforge/config.json; every field can be
// overridden with a PROMPTFORGE_* environment variable. A missing or
// malformed file yields safe-mode defaults rather than an error, so the CLI
// always starts.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"promptforge/internal/logging"
)

// Config holds all promptforge configuration.
type Config struct {
	LLM     LLMConfig        `yaml:"llm" json:"llm"`
	Quality QualityConfig    `yaml:"quality" json:"quality"`
	Wizard  WizardConfig     `yaml:"wizard" json:"wizard"`
	Cache   CacheConfig      `yaml:"cache" json:"cache"`
	Catalog CatalogConfig    `yaml:"catalog" json:"catalog"`
	History HistoryConfig    `yaml:"history" json:"history"`
	Logging logging.Settings `yaml:"logging" json:"logging"`

	// SafeMode is set when the config file was missing or unreadable and
	// defaults were substituted. Surfaced to the UI, never branched on here.
	SafeMode bool `yaml:"-" json:"-"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	// MaxEntries bounds the in-memory cache; 0 means unbounded.
	MaxEntries int `yaml:"max_entries" json:"max_entries"`

	// TTLSeconds expires entries; 0 means process-lifetime.
	TTLSeconds int `yaml:"ttl_seconds" json:"ttl_seconds"`

	// RedisURL, when set, enables the shared Redis backend instead of the
	// in-process map. Example: "redis://localhost:6379/0".
	RedisURL string `yaml:"redis_url" json:"redis_url"`
}

// CatalogConfig configures the few-shot catalog.
type CatalogConfig struct {
	// Path to a YAML catalog file. Empty means the embedded default corpus.
	Path string `yaml:"path" json:"path"`
}

// HistoryConfig configures the prompt history store.
type HistoryConfig struct {
	// MaxEntries is the compaction cap (default 20).
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
}

// Default returns the safe-mode configuration.
func Default() Config {
	return Config{
		LLM:     DefaultLLMConfig(),
		Quality: DefaultQualityConfig(),
		Wizard:  DefaultWizardConfig(),
		Cache: CacheConfig{
			MaxEntries: 256,
			TTLSeconds: 0,
		},
		History: HistoryConfig{MaxEntries: 20},
		Logging: logging.Settings{Level: "info"},
	}
}

// Dir returns the promptforge state directory (~/.promptforge), creating it
// if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".promptforge")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}

// Path returns the config file path inside Dir().
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config file, applies environment overrides, and validates.
// Any failure to read or parse the file falls back to Default() with
// SafeMode set.
func Load() Config {
	cfg := Default()

	path, err := Path()
	if err != nil {
		cfg.SafeMode = true
		applyEnvOverrides(&cfg)
		return cfg
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[config] Warning: could not read %s: %v (using defaults)\n", path, err)
		}
		cfg.SafeMode = true
		applyEnvOverrides(&cfg)
		return cfg
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "[config] Warning: malformed %s: %v (using defaults)\n", path, err)
		cfg = Default()
		cfg.SafeMode = true
	}

	applyEnvOverrides(&cfg)
	cfg.normalize()
	return cfg
}

// applyEnvOverrides applies PROMPTFORGE_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROMPTFORGE_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("PROMPTFORGE_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("PROMPTFORGE_FALLBACK_MODEL"); v != "" {
		cfg.LLM.FallbackModel = v
	}
	if v := os.Getenv("PROMPTFORGE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LLM.TimeoutMS = n
		}
	}
	if v := os.Getenv("PROMPTFORGE_WIZARD_MODE"); v != "" {
		cfg.Wizard.Mode = v
	}
	if v := os.Getenv("PROMPTFORGE_REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("PROMPTFORGE_CATALOG"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("PROMPTFORGE_DEBUG"); v == "1" || v == "true" {
		cfg.Logging.DebugMode = true
	}
}

// normalize clamps nonsensical values back to defaults.
func (c *Config) normalize() {
	if c.LLM.TimeoutMS <= 0 {
		c.LLM.TimeoutMS = DefaultLLMConfig().TimeoutMS
	}
	if c.LLM.HealthCheckTimeoutMS <= 0 {
		c.LLM.HealthCheckTimeoutMS = DefaultLLMConfig().HealthCheckTimeoutMS
	}
	if c.Quality.MaxQuestions <= 0 {
		c.Quality.MaxQuestions = DefaultQualityConfig().MaxQuestions
	}
	if c.Quality.MaxAssumptions <= 0 {
		c.Quality.MaxAssumptions = DefaultQualityConfig().MaxAssumptions
	}
	if c.Quality.MinPromptLength <= 0 {
		c.Quality.MinPromptLength = DefaultQualityConfig().MinPromptLength
	}
	if c.Wizard.MaxTurns <= 0 {
		c.Wizard.MaxTurns = DefaultWizardConfig().MaxTurns
	}
	if c.History.MaxEntries <= 0 {
		c.History.MaxEntries = 20
	}
}
