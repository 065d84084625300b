// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the settlement engine and its
// services. Production code injects [Real]; tests inject [Fake] and
// advance time explicitly, which makes createdAt/completedAt stamps
// and token expiry checks deterministic.
//
// The ledger core has no timers, tickers, or background execution —
// every operation completes synchronously — so the interface carries
// only Now.
package clock
