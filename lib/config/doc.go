// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Taskvault
// components.
//
// Configuration is loaded from a single file specified by either the
// TASKVAULT_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults are stricter:
// journal compression is enabled and an arbitration authority is
// required.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${TASKVAULT_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Ledger, Mirror, Authority
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Taskvault packages.
package config
