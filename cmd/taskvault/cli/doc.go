// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the taskvault binary: a
// small command tree with pflag flag binding, structured help output,
// and typo suggestions for unknown commands and flags.
//
// Commands declare their flags through tagged params structs (see
// [BindFlags]) and their place in the tree through [Command]
// literals. The framework owns parsing, dispatch, and help; commands
// own only their Run functions.
package cli
