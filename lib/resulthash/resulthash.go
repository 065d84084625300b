// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package resulthash computes BLAKE3 digests for completion results.
// The settlement engine never stores a submitted result — it emits
// only the digest in the task_completed event, which is the audit
// record linking the on-ledger completion to the off-ledger artifact.
//
// Digests use BLAKE3 keyed hashing with a fixed domain key so that a
// result digest can never collide with a digest computed in another
// context over the same bytes.
package resulthash

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest of a completion result.
type Digest [32]byte

// resultDomainKey is the 32-byte BLAKE3 key for the result domain.
// Fixed constant — changing it invalidates every recorded digest. The
// bytes are the ASCII domain name zero-padded to 32, readable in hex
// dumps without weakening the keyed mode.
var resultDomainKey = [32]byte{
	't', 'a', 's', 'k', 'v', 'a', 'u', 'l', 't', '.', 'r', 'e', 's', 'u', 'l', 't',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Sum computes the result-domain digest of data.
func Sum(data []byte) Digest {
	hasher, err := blake3.NewKeyed(resultDomainKey[:])
	if err != nil {
		// NewKeyed fails only on a key that is not 32 bytes.
		panic("resulthash: keyed hasher initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest Digest
	hasher.Digest().Read(digest[:])
	return digest
}

// String returns the canonical hex encoding used in events and logs.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Parse decodes a canonical hex digest string.
func Parse(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing result digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("result digest is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}
