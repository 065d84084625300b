// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for Taskvault.
type Config struct {
	// Environment identifies the deployment type (development, staging,
	// production).
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Ledger configures the settlement ledger service.
	Ledger LedgerConfig `yaml:"ledger"`

	// Mirror configures the off-chain SQLite mirror.
	Mirror MirrorConfig `yaml:"mirror"`

	// Authority configures dispute arbitration.
	Authority AuthorityConfig `yaml:"authority"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths     *PathsConfig     `yaml:"paths,omitempty"`
	Ledger    *LedgerConfig    `yaml:"ledger,omitempty"`
	Mirror    *MirrorConfig    `yaml:"mirror,omitempty"`
	Authority *AuthorityConfig `yaml:"authority,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for Taskvault data.
	Root string `yaml:"root"`

	// State is where runtime state is stored: the event journal and
	// the mirror database live here unless overridden per-component.
	State string `yaml:"state"`

	// Keys is where the arbitration signing keypair is stored.
	Keys string `yaml:"keys"`
}

// LedgerConfig configures the settlement ledger service.
type LedgerConfig struct {
	// SocketPath is the Unix socket the service listens on.
	// Default: /run/taskvault/ledger.sock
	SocketPath string `yaml:"socket_path"`

	// JournalPath is the event journal file. Defaults to
	// ${TASKVAULT_ROOT}/state/events.log.
	JournalPath string `yaml:"journal_path"`

	// Compression selects the journal record compression: "none",
	// "lz4", or "zstd". Default: none (development), zstd (production).
	Compression string `yaml:"compression"`
}

// MirrorConfig configures the off-chain SQLite mirror.
type MirrorConfig struct {
	// DatabasePath is the mirror SQLite file. Defaults to
	// ${TASKVAULT_ROOT}/state/mirror.db.
	DatabasePath string `yaml:"database_path"`

	// PoolSize is the SQLite connection pool size. Default: 4.
	PoolSize int `yaml:"pool_size"`

	// RebuildOnStart forces a full journal replay into the mirror at
	// service startup instead of streaming catch-up.
	RebuildOnStart bool `yaml:"rebuild_on_start"`
}

// AuthorityConfig configures dispute arbitration.
type AuthorityConfig struct {
	// Actor is the arbitration authority's identity. Only this actor
	// may resolve disputes. Empty disables dispute resolution.
	Actor string `yaml:"actor"`

	// TokenTTL is how long minted arbitration tokens remain valid.
	// Default: 1h.
	TokenTTL string `yaml:"token_ttl"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "taskvault")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: filepath.Join(defaultRoot, "state"),
			Keys:  filepath.Join(defaultRoot, "keys"),
		},
		Ledger: LedgerConfig{
			SocketPath:  "/run/taskvault/ledger.sock",
			JournalPath: filepath.Join(defaultRoot, "state", "events.log"),
			Compression: "none",
		},
		Mirror: MirrorConfig{
			DatabasePath: filepath.Join(defaultRoot, "state", "mirror.db"),
			PoolSize:     4,
		},
		Authority: AuthorityConfig{
			TokenTTL: "1h",
		},
	}
}

// Load loads configuration from the TASKVAULT_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if TASKVAULT_CONFIG is not set,
// this fails. This ensures deterministic, auditable configuration with
// no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("TASKVAULT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("TASKVAULT_CONFIG environment variable not set; " +
			"set it to the path of your taskvault.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values - this ensures deterministic, auditable
// configuration. The only expansion performed is ${HOME} and similar
// path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: compress the journal.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Ledger: &LedgerConfig{
					Compression: "zstd",
				},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
		if overrides.Paths.Keys != "" {
			c.Paths.Keys = overrides.Paths.Keys
		}
	}

	if overrides.Ledger != nil {
		if overrides.Ledger.SocketPath != "" {
			c.Ledger.SocketPath = overrides.Ledger.SocketPath
		}
		if overrides.Ledger.JournalPath != "" {
			c.Ledger.JournalPath = overrides.Ledger.JournalPath
		}
		if overrides.Ledger.Compression != "" {
			c.Ledger.Compression = overrides.Ledger.Compression
		}
	}

	if overrides.Mirror != nil {
		if overrides.Mirror.DatabasePath != "" {
			c.Mirror.DatabasePath = overrides.Mirror.DatabasePath
		}
		if overrides.Mirror.PoolSize > 0 {
			c.Mirror.PoolSize = overrides.Mirror.PoolSize
		}
		// RebuildOnStart is a bool, so we always apply it from overrides.
		c.Mirror.RebuildOnStart = overrides.Mirror.RebuildOnStart
	}

	if overrides.Authority != nil {
		if overrides.Authority.Actor != "" {
			c.Authority.Actor = overrides.Authority.Actor
		}
		if overrides.Authority.TokenTTL != "" {
			c.Authority.TokenTTL = overrides.Authority.TokenTTL
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"TASKVAULT_ROOT": c.Paths.Root,
		"HOME":           os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["TASKVAULT_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Paths.Keys = expandVars(c.Paths.Keys, vars)
	c.Ledger.SocketPath = expandVars(c.Ledger.SocketPath, vars)
	c.Ledger.JournalPath = expandVars(c.Ledger.JournalPath, vars)
	c.Mirror.DatabasePath = expandVars(c.Mirror.DatabasePath, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
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

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if c.Ledger.SocketPath == "" {
		errs = append(errs, fmt.Errorf("ledger.socket_path is required"))
	}

	if c.Ledger.JournalPath == "" {
		errs = append(errs, fmt.Errorf("ledger.journal_path is required"))
	}

	compressionValues := []string{"none", "lz4", "zstd"}
	if !contains(compressionValues, c.Ledger.Compression) {
		errs = append(errs, fmt.Errorf("ledger.compression must be one of: %v", compressionValues))
	}

	if c.Mirror.DatabasePath == "" {
		errs = append(errs, fmt.Errorf("mirror.database_path is required"))
	}

	if c.Environment == Production && c.Authority.Actor == "" {
		errs = append(errs, fmt.Errorf("authority.actor is required in production"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
		c.Paths.Keys,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
