// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Listen.Address != "127.0.0.1:7670" {
		t.Errorf("expected listen.address=127.0.0.1:7670, got %s", cfg.Listen.Address)
	}
	if cfg.Session.ScrollbackLines != 10000 {
		t.Errorf("expected scrollback_lines=10000, got %d", cfg.Session.ScrollbackLines)
	}
}

func TestLoad_RequiresWshConfig(t *testing.T) {
	origConfig := os.Getenv("WSH_CONFIG")
	defer os.Setenv("WSH_CONFIG", origConfig)
	os.Unsetenv("WSH_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when WSH_CONFIG not set, got nil")
	}
	expectedMsg := "WSH_CONFIG environment variable not set"
	if got := err.Error(); len(got) < len(expectedMsg) || got[:len(expectedMsg)] != expectedMsg {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, got)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "wshd.yaml")

	configContent := `
environment: staging

listen:
  address: 0.0.0.0:7670

auth:
  token: s3cr3t

session:
  default_shell: /bin/zsh
  scrollback_lines: 5000
  idle_threshold: 250ms
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Listen.Address != "0.0.0.0:7670" {
		t.Errorf("expected listen.address=0.0.0.0:7670, got %s", cfg.Listen.Address)
	}
	if cfg.Auth.Token != "s3cr3t" {
		t.Errorf("expected auth.token=s3cr3t, got %s", cfg.Auth.Token)
	}
	if cfg.Session.DefaultShell != "/bin/zsh" {
		t.Errorf("expected default_shell=/bin/zsh, got %s", cfg.Session.DefaultShell)
	}
	if cfg.Session.IdleThresholdDuration() != 250*time.Millisecond {
		t.Errorf("expected idle_threshold=250ms, got %s", cfg.Session.IdleThresholdDuration())
	}
}

func TestLoadFile_TokenFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	tokenPath := filepath.Join(tmpDir, "token")
	if err := os.WriteFile(tokenPath, []byte("from-file-token\n"), 0600); err != nil {
		t.Fatalf("failed to write token file: %v", err)
	}

	configPath := filepath.Join(tmpDir, "wshd.yaml")
	configContent := "auth:\n  token_file: " + tokenPath + "\n"
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Auth.Token != "from-file-token" {
		t.Errorf("expected token read from token_file, got %q", cfg.Auth.Token)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "wshd.yaml")

	configContent := `
environment: production

listen:
  address: 127.0.0.1:7670

production:
  listen:
    address: 0.0.0.0:7670
  session:
    max_sessions: 16
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Listen.Address != "0.0.0.0:7670" {
		t.Errorf("expected production override to apply, got %s", cfg.Listen.Address)
	}
	if cfg.Session.MaxSessions != 16 {
		t.Errorf("expected max_sessions=16 from production override, got %d", cfg.Session.MaxSessions)
	}
}

func TestExpandVars(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{"${HOME}/wsh.sock", map[string]string{"HOME": "/home/user"}, "/home/user/wsh.sock"},
		{"${MISSING:-default}", map[string]string{}, "default"},
		{"${PRESENT:-default}", map[string]string{"PRESENT": "value"}, "value"},
		{"no variables here", map[string]string{}, "no variables here"},
	}
	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid default config", func(c *Config) {}, false},
		{"invalid environment", func(c *Config) { c.Environment = "invalid" }, true},
		{"non-loopback without token", func(c *Config) {
			c.Listen.Address = "0.0.0.0:7670"
			c.Auth.Token = ""
			c.Auth.TokenFile = ""
		}, true},
		{"non-loopback with token", func(c *Config) {
			c.Listen.Address = "0.0.0.0:7670"
			c.Auth.Token = "x"
		}, false},
		{"negative scrollback", func(c *Config) { c.Session.ScrollbackLines = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
