// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the Taskvault-standard SQLite connection
// pool. The settlement mirror is its main consumer; anything else that
// needs local structured storage goes through it too.
//
// It wraps zombiezen.com/go/sqlite with production defaults: WAL
// journal mode, NORMAL synchronous, memory-mapped reads, and a busy
// timeout so write contention degrades to waiting instead of
// SQLITE_BUSY errors. Callers [Pool.Take] a connection, work, and
// [Pool.Put] it back; connections are not safe for concurrent use.
//
// The package is intentionally thin. It applies pragmas and exposes
// the zombiezen types directly — services write SQL with
// sqlitex.Execute and manage transactions with
// sqlitex.ImmediateTransaction. The mirror's source of truth is the
// settlement journal, so losing a mirror database to an OS crash is a
// rebuild, not a data loss; NORMAL synchronous reflects that.
package sqlitepool
