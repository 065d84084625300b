// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package settlement enforces the task/bid/escrow transition table
// over a [ledger.Ledger] and moves custodied value through the
// external transferor. It is the only writer the ledger ever sees.
//
// # Execution model
//
// Every mutating operation is atomic and serialized. A single
// re-entry guard covers the whole engine: while one mutating call is
// in flight — including the window where the external transferor runs
// — any nested or concurrent mutating call fails immediately with a
// StateError instead of interleaving. Failed calls are no-ops, so
// retrying is always safe and is the caller's responsibility.
//
// Reads take a shared lock and only ever observe fully committed
// state.
//
// # Funds ordering
//
// The ledger is debited before the transferor is invoked
// (checks-effects-interactions). A transferor that calls back into
// the engine therefore finds the balance already gone and the guard
// already held — the classic reentrant-drain shape fails at the
// guard. If the transferor reports failure, the engine restores the
// exact pre-operation records under the still-held guard and returns
// the error; no partial settlement survives.
//
// # Dispute resolution and reconciliation
//
// ResolveDispute is gated on the arbitration authority configured at
// construction; the daemon performs token verification before mapping
// a request to that actor. ReconcileAccept and ReconcileDeposit are
// the idempotent convergence entry points for the off-chain mirror:
// re-applying a request after the ledger reached the target state is
// a no-op that emits no event and never moves funds.
package settlement
