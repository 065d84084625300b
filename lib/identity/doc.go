// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity defines actor identifiers for the ledger: task
// creators, bidding agents, and the arbitration authority. An actor is
// an opaque slash-separated name (e.g. "agent/builder-7",
// "org/acme/ops"). The ledger never interprets the structure; it only
// compares actors for equality when enforcing caller roles.
//
// Validation is strict at the boundary so that identities arriving
// over the socket API are always comparable without normalization.
package identity
