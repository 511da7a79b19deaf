// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for the Gatewayz TUI.
//
// Configuration lives in a TOML file under the user config directory, with
// built-in defaults and environment variable overrides applied last.
//
// Precedence, lowest to highest:
//   - Built-in defaults
//   - ~/.config/gatewayz/config.toml
//   - GATEWAYZ_* environment variables
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gatewayz/gatewayz-tui/internal/util"
)

// Environment variable names.
const (
	EnvAPIURL = "GATEWAYZ_API_URL"
	EnvModel  = "GATEWAYZ_MODEL"
	EnvTheme  = "GATEWAYZ_THEME"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete Gatewayz TUI configuration.
type Config struct {
	Version string `toml:"version"`

	API     APIConfig     `toml:"api"`
	Chat    ChatConfig    `toml:"chat"`
	UI      UIConfig      `toml:"ui"`
	Archive ArchiveConfig `toml:"archive"`
}

// APIConfig configures the gateway connection.
type APIConfig struct {
	// BaseURL is the gateway API root, including /v1.
	BaseURL string `toml:"base_url"`
	// TimeoutSecs bounds read requests; writes get double.
	TimeoutSecs int `toml:"timeout_secs"`
	// MaxRetries caps retry attempts for transient read failures.
	MaxRetries int `toml:"max_retries"`
	// RequestsPerSecond throttles outgoing calls, 0 for the default.
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ChatConfig configures chat behavior.
type ChatConfig struct {
	// DefaultModel is used when no session names a model. Accepts friendly
	// aliases ("claude", "mini") or full identifiers.
	DefaultModel string `toml:"default_model"`
	// MaxInputChars caps staged message length.
	MaxInputChars int `toml:"max_input_chars"`
	// SystemPrompt, when set, is prepended to every conversation.
	SystemPrompt string `toml:"system_prompt"`
}

// UIConfig configures rendering.
type UIConfig struct {
	// Theme selects the glamour style: "dark", "light", or "auto".
	Theme string `toml:"theme"`
	// ShowReasoning displays the model's thinking channel when present.
	ShowReasoning bool `toml:"show_reasoning"`
	// CompactMode tightens vertical spacing in the transcript.
	CompactMode bool `toml:"compact_mode"`
}

// ArchiveConfig configures the local history mirror.
type ArchiveConfig struct {
	// Enabled turns on local SQLite mirroring of completed turns.
	Enabled bool `toml:"enabled"`
	// Path overrides the database location, empty for the default.
	Path string `toml:"path"`
}

// =============================================================================
// DEFAULTS AND PATHS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		API: APIConfig{
			BaseURL:           "https://api.gatewayz.ai/v1",
			TimeoutSecs:       15,
			MaxRetries:        3,
			RequestsPerSecond: 10,
		},
		Chat: ChatConfig{
			DefaultModel:  "openai/gpt-3.5-turbo",
			MaxInputChars: 8000,
		},
		UI: UIConfig{
			Theme:         "auto",
			ShowReasoning: true,
		},
		Archive: ArchiveConfig{
			Enabled: true,
		},
	}
}

// Dir returns the configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "gatewayz"), nil
}

// Path returns the configuration file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the config file, falling back to defaults when it does not
// exist. Environment overrides are applied last, then the result validated.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, cfg.Validate()
	}
	return LoadFromPath(path)
}

// LoadFromPath reads a specific config file. A missing file is not an error;
// defaults are used.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
		}
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies GATEWAYZ_* environment variables on top of the
// loaded values. The API key is not handled here; credentials resolve through
// their own chain.
func (c *Config) ApplyEnvOverrides() {
	if u := os.Getenv(EnvAPIURL); u != "" {
		c.API.BaseURL = u
	}
	if m := os.Getenv(EnvModel); m != "" {
		c.Chat.DefaultModel = m
	}
	if t := os.Getenv(EnvTheme); t != "" {
		c.UI.Theme = t
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration for values that would break at runtime.
// Out-of-range numerics are clamped rather than rejected.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url is not a valid URL: %q", c.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must be http or https, got %q", u.Scheme)
	}

	if c.API.TimeoutSecs <= 0 {
		c.API.TimeoutSecs = 15
	}
	if c.API.MaxRetries < 0 {
		c.API.MaxRetries = 0
	}
	if c.API.RequestsPerSecond < 0 {
		c.API.RequestsPerSecond = 0
	}
	if c.Chat.MaxInputChars <= 0 {
		c.Chat.MaxInputChars = 8000
	}

	switch strings.ToLower(c.UI.Theme) {
	case "dark", "light", "auto", "":
	default:
		return fmt.Errorf("ui.theme must be dark, light, or auto, got %q", c.UI.Theme)
	}
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the default location with owner-only
// permissions.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFileWithDir(path, buf.Bytes(), 0o600, 0o700)
}
