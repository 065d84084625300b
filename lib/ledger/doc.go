// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger owns the authoritative Task, Bid, and Escrow state:
// an arena of records indexed by monotonically increasing integer
// handles, plus the vault's held-balance accounting. Every unit of
// value deposited into an escrow stays counted in the vault until it
// leaves through release, refund, or a dispute split.
//
// The ledger is a pure data structure with no locks, no network, and
// no external side effects. The settlement engine serializes access,
// enforces the transition table, and invokes the external value
// transferor; the ledger only guarantees local record invariants:
//
//   - escrow amounts are never negative
//   - a released escrow is terminal: no further mutation is accepted
//   - the vault's held balance equals the sum of all unreleased
//     escrow amounts at every commit point
//
// Handles, not references, cross the package boundary. All query
// methods return value snapshots; callers cannot reach internal
// records.
package ledger
