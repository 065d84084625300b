// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Taskvault's standard CBOR encoding. One
// configuration, used everywhere: socket API requests and responses,
// arbitration tokens, and journal records all pass through this
// package rather than importing fxamacker/cbor directly.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): the same
// logical value always produces identical bytes. The journal depends
// on this — each record's BLAKE3 checksum is computed over the encoded
// bytes, and a replay must reproduce them exactly. Token signatures
// depend on it for the same reason.
package codec
