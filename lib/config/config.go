// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for wsh.
//
// Configuration is loaded from a single file specified by either the
// WSH_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. No other
// environment variables override config values.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the master configuration for a wshd daemon.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Listen configures the daemon's network-facing endpoints.
	Listen ListenConfig `yaml:"listen"`

	// Auth configures bearer-token authentication.
	Auth AuthConfig `yaml:"auth"`

	// Session configures default per-session limits.
	Session SessionConfig `yaml:"session"`

	// Development, Staging, Production contain per-environment
	// overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Listen  *ListenConfig  `yaml:"listen,omitempty"`
	Auth    *AuthConfig    `yaml:"auth,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty"`
}

// ListenConfig configures the daemon's HTTP/WS listener.
type ListenConfig struct {
	// Address is the TCP listen address, e.g. "127.0.0.1:7670".
	// Binding to a non-loopback address requires Auth.Token to be set.
	Address string `yaml:"address"`

	// SocketPath is a Unix domain socket path. It is loaded,
	// variable-expanded and accepted by Validate in place of Address,
	// but wshd does not listen on it: only Address is served.
	SocketPath string `yaml:"socket_path"`
}

// AuthConfig configures bearer-token authentication for the listener.
type AuthConfig struct {
	// Token is the bearer token required on non-loopback connections.
	// Read from TokenFile when both are set to avoid committing
	// secrets to the config file itself.
	Token string `yaml:"token"`

	// TokenFile is a path to a file containing the bearer token.
	TokenFile string `yaml:"token_file"`
}

// SessionConfig configures default limits applied to new sessions.
type SessionConfig struct {
	// DefaultShell launches when no explicit command is given.
	DefaultShell string `yaml:"default_shell"`

	// ScrollbackLines bounds the scrollback ring per session.
	ScrollbackLines int `yaml:"scrollback_lines"`

	// IdleThreshold is how long output must be quiet before a
	// session is considered quiescent. Parsed as a Go duration
	// string (e.g. "500ms").
	IdleThreshold string `yaml:"idle_threshold"`

	// MaxSessions caps the number of concurrently live sessions.
	// Zero means unlimited.
	MaxSessions int `yaml:"max_sessions"`
}

// IdleThresholdDuration parses SessionConfig.IdleThreshold, defaulting
// to 500ms if unset or unparseable.
func (s SessionConfig) IdleThresholdDuration() time.Duration {
	if s.IdleThreshold == "" {
		return 500 * time.Millisecond
	}
	d, err := time.ParseDuration(s.IdleThreshold)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// Default returns the default configuration. These defaults exist
// primarily to ensure every field has a sensible zero-value, not as a
// fallback — the config file is still required for anything beyond
// loopback-only local use.
func Default() *Config {
	return &Config{
		Environment: Development,
		Listen: ListenConfig{
			Address: "127.0.0.1:7670",
		},
		Session: SessionConfig{
			DefaultShell:    "/bin/sh",
			ScrollbackLines: 10000,
			IdleThreshold:   "500ms",
		},
	}
}

// Load loads configuration from the WSH_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults — if WSH_CONFIG is not set, this
// fails. This ensures deterministic, auditable configuration with no
// hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("WSH_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("WSH_CONFIG environment variable not set; " +
			"set it to the path of your wshd.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	if cfg.Auth.TokenFile != "" {
		data, err := os.ReadFile(cfg.Auth.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("reading token file %s: %w", cfg.Auth.TokenFile, err)
		}
		cfg.Auth.Token = trimTrailingNewline(string(data))
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Listen != nil {
		if overrides.Listen.Address != "" {
			c.Listen.Address = overrides.Listen.Address
		}
		if overrides.Listen.SocketPath != "" {
			c.Listen.SocketPath = overrides.Listen.SocketPath
		}
	}
	if overrides.Auth != nil {
		if overrides.Auth.Token != "" {
			c.Auth.Token = overrides.Auth.Token
		}
		if overrides.Auth.TokenFile != "" {
			c.Auth.TokenFile = overrides.Auth.TokenFile
		}
	}
	if overrides.Session != nil {
		if overrides.Session.DefaultShell != "" {
			c.Session.DefaultShell = overrides.Session.DefaultShell
		}
		if overrides.Session.ScrollbackLines != 0 {
			c.Session.ScrollbackLines = overrides.Session.ScrollbackLines
		}
		if overrides.Session.IdleThreshold != "" {
			c.Session.IdleThreshold = overrides.Session.IdleThreshold
		}
		if overrides.Session.MaxSessions != 0 {
			c.Session.MaxSessions = overrides.Session.MaxSessions
		}
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Listen.SocketPath = expandVars(c.Listen.SocketPath, vars)
	c.Auth.TokenFile = expandVars(c.Auth.TokenFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Listen.Address == "" && c.Listen.SocketPath == "" {
		errs = append(errs, fmt.Errorf("listen.address or listen.socket_path is required"))
	}
	if !isLoopbackAddress(c.Listen.Address) && c.Auth.Token == "" && c.Auth.TokenFile == "" {
		errs = append(errs, fmt.Errorf("auth.token or auth.token_file is required when listen.address is not loopback"))
	}
	if c.Session.ScrollbackLines < 0 {
		errs = append(errs, fmt.Errorf("session.scrollback_lines must be >= 0"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func isLoopbackAddress(address string) bool {
	if address == "" {
		return true
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return false
	}
	return host == "localhost" || host == "127.0.0.1" || host == "::1" || host == ""
}

// BinaryPath resolves a helper binary by name, looking first next to
// the running executable and then falling back to PATH.
func BinaryPath(name string) (string, error) {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return exec.LookPath(name)
}
