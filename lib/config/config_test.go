// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}

	if cfg.Ledger.SocketPath != "/run/taskvault/ledger.sock" {
		t.Errorf("expected socket_path=/run/taskvault/ledger.sock, got %s", cfg.Ledger.SocketPath)
	}

	if cfg.Ledger.Compression != "none" {
		t.Errorf("expected compression=none for development, got %s", cfg.Ledger.Compression)
	}

	if cfg.Mirror.PoolSize != 4 {
		t.Errorf("expected pool_size=4, got %d", cfg.Mirror.PoolSize)
	}
}

func TestLoad_RequiresTaskvaultConfig(t *testing.T) {
	origConfig := os.Getenv("TASKVAULT_CONFIG")
	defer os.Setenv("TASKVAULT_CONFIG", origConfig)

	os.Unsetenv("TASKVAULT_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when TASKVAULT_CONFIG not set, got nil")
	}

	expectedMsg := "TASKVAULT_CONFIG environment variable not set"
	if err.Error()[:len(expectedMsg)] != expectedMsg {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithTaskvaultConfig(t *testing.T) {
	origConfig := os.Getenv("TASKVAULT_CONFIG")
	defer os.Setenv("TASKVAULT_CONFIG", origConfig)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "taskvault.yaml")

	configContent := `
environment: staging
paths:
  root: /test/root
ledger:
  socket_path: /test/ledger.sock
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	os.Setenv("TASKVAULT_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.Paths.Root != "/test/root" {
		t.Errorf("expected root=/test/root, got %s", cfg.Paths.Root)
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "taskvault.yaml")

	configContent := `
environment: staging

paths:
  root: /custom/root

ledger:
  socket_path: /custom/ledger.sock
  journal_path: /custom/events.log
  compression: lz4

mirror:
  database_path: /custom/mirror.db
  pool_size: 8

authority:
  actor: authority/arbiter
  token_ttl: 30m
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

	if cfg.Ledger.JournalPath != "/custom/events.log" {
		t.Errorf("expected journal_path=/custom/events.log, got %s", cfg.Ledger.JournalPath)
	}

	if cfg.Ledger.Compression != "lz4" {
		t.Errorf("expected compression=lz4, got %s", cfg.Ledger.Compression)
	}

	if cfg.Mirror.PoolSize != 8 {
		t.Errorf("expected pool_size=8, got %d", cfg.Mirror.PoolSize)
	}

	if cfg.Authority.Actor != "authority/arbiter" {
		t.Errorf("expected actor=authority/arbiter, got %s", cfg.Authority.Actor)
	}

	if cfg.Authority.TokenTTL != "30m" {
		t.Errorf("expected token_ttl=30m, got %s", cfg.Authority.TokenTTL)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "taskvault.yaml")

	configContent := `
environment: production

paths:
  root: /default/root

ledger:
  compression: none

authority:
  actor: authority/arbiter

production:
  paths:
    root: /prod/root
  ledger:
    compression: zstd
  mirror:
    rebuild_on_start: true
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Root != "/prod/root" {
		t.Errorf("expected root=/prod/root, got %s", cfg.Paths.Root)
	}

	if cfg.Ledger.Compression != "zstd" {
		t.Errorf("expected compression=zstd from production override, got %s", cfg.Ledger.Compression)
	}

	if !cfg.Mirror.RebuildOnStart {
		t.Error("expected rebuild_on_start=true from production override")
	}
}

func TestProductionDefaultsApplyWithoutSection(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "taskvault.yaml")

	configContent := `
environment: production
authority:
  actor: authority/arbiter
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Ledger.Compression != "zstd" {
		t.Errorf("expected compression=zstd as implicit production default, got %s", cfg.Ledger.Compression)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	// The config file is the single source of truth for deterministic
	// configuration; environment variables must not override it.
	origRoot := os.Getenv("TASKVAULT_ROOT")
	origSocket := os.Getenv("TASKVAULT_LEDGER_SOCKET")
	defer func() {
		os.Setenv("TASKVAULT_ROOT", origRoot)
		os.Setenv("TASKVAULT_LEDGER_SOCKET", origSocket)
	}()

	os.Setenv("TASKVAULT_ROOT", "/env/root")
	os.Setenv("TASKVAULT_LEDGER_SOCKET", "/env/ledger.sock")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "taskvault.yaml")

	configContent := `
environment: development
paths:
  root: /file/root
ledger:
  socket_path: /file/ledger.sock
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Paths.Root != "/file/root" {
		t.Errorf("expected root=/file/root from file, got %s (env vars should not override)", cfg.Paths.Root)
	}

	if cfg.Ledger.SocketPath != "/file/ledger.sock" {
		t.Errorf("expected socket_path=/file/ledger.sock from file, got %s (env vars should not override)", cfg.Ledger.SocketPath)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/taskvault",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/taskvault",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.Environment = "invalid"
			},
			wantErr: true,
		},
		{
			name: "empty root path",
			modify: func(c *Config) {
				c.Paths.Root = ""
			},
			wantErr: true,
		},
		{
			name: "empty socket path",
			modify: func(c *Config) {
				c.Ledger.SocketPath = ""
			},
			wantErr: true,
		},
		{
			name: "invalid compression",
			modify: func(c *Config) {
				c.Ledger.Compression = "gzip"
			},
			wantErr: true,
		},
		{
			name: "production without authority",
			modify: func(c *Config) {
				c.Environment = Production
			},
			wantErr: true,
		},
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

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.Paths.Root = filepath.Join(tmpDir, "taskvault")
	cfg.Paths.State = filepath.Join(cfg.Paths.Root, "state")
	cfg.Paths.Keys = filepath.Join(cfg.Paths.Root, "keys")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, path := range []string{cfg.Paths.Root, cfg.Paths.State, cfg.Paths.Keys} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}
