// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// taskvault-ledger-service is the settlement ledger daemon.
//
// It owns the authoritative task/bid/escrow state, journals every
// committed state change to an append-only event log, projects the
// stream into the SQLite mirror, and serves the CBOR socket API that
// the taskvault CLI and the off-chain browse layer talk to.
//
// On startup the daemon replays the journal to rebuild the in-memory
// ledger, so the journal file is the durable record; the mirror
// database is a disposable projection that can always be rebuilt from
// the same journal.
//
// Configuration comes from a single YAML file (TASKVAULT_CONFIG or
// --config). The arbitration keypair is loaded from the configured key
// directory, generated on first start.
package main
