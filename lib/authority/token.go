// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package authority mints and verifies arbitration tokens. Dispute
// resolution is the one privileged entry point of the settlement
// engine; rather than trusting the transport to identify the
// arbitrator, the daemon requires a signed token proving that the
// operator's key delegated the resolve capability to the caller.
//
// A token is deterministic CBOR followed by a 64-byte Ed25519
// signature over the encoded payload. Determinism matters: the bytes
// that were signed are the bytes that get verified, with no
// re-encoding step in between.
package authority

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/taskvault/taskvault/lib/codec"
	"github.com/taskvault/taskvault/lib/identity"
)

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize // 64 bytes

// Audience is the service scope arbitration tokens are minted for. A
// token scoped to another service is rejected here even if its
// signature checks out.
const Audience = "settlement"

// Grant is one delegated capability: which actions the holder may
// perform, optionally restricted to tasks whose creator matches a
// target pattern.
type Grant struct {
	// Actions is a list of action patterns (glob syntax), e.g.
	// "dispute/resolve" or "dispute/*".
	Actions []string `cbor:"1,keyasint"`

	// Targets is a list of actor-name patterns (glob syntax)
	// restricting which task creators the grant covers. Empty means
	// the grant covers no cross-party action.
	Targets []string `cbor:"2,keyasint,omitempty"`
}

// Token is the CBOR payload of an arbitration token.
type Token struct {
	// Subject is the actor the token authenticates. ResolveDispute
	// calls carrying this token act as this actor.
	Subject identity.Actor `cbor:"1,keyasint"`

	// Audience is the service scope, always [Audience] for tokens
	// minted here. Checked on verification so a token for one
	// service cannot be replayed against another.
	Audience string `cbor:"2,keyasint"`

	// Grants are the delegated capabilities.
	Grants []Grant `cbor:"3,keyasint,omitempty"`

	// ID is a unique token identifier (hex string), for audit logs.
	ID string `cbor:"4,keyasint"`

	// IssuedAt is a Unix timestamp (seconds) of minting.
	IssuedAt int64 `cbor:"5,keyasint"`

	// ExpiresAt is a Unix timestamp (seconds) after which the token
	// is no longer valid.
	ExpiresAt int64 `cbor:"6,keyasint"`
}

// Errors returned by Verify and related functions.
var (
	ErrTokenTooShort    = errors.New("authority: token too short for signature")
	ErrInvalidSignature = errors.New("authority: invalid Ed25519 signature")
	ErrTokenExpired     = errors.New("authority: token has expired")
	ErrAudienceMismatch = errors.New("authority: audience does not match")
)

// Mint signs a Token with the operator's private key and returns the
// raw wire-format bytes: CBOR-encoded payload followed by the 64-byte
// Ed25519 signature.
func Mint(privateKey ed25519.PrivateKey, token *Token) ([]byte, error) {
	payload, err := codec.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("authority: encoding token payload: %w", err)
	}

	signature := ed25519.Sign(privateKey, payload)

	result := make([]byte, len(payload)+signatureSize)
	copy(result, payload)
	copy(result[len(payload):], signature)

	return result, nil
}

// Verify splits the raw token bytes, verifies the Ed25519 signature,
// CBOR-decodes the payload, and checks expiry and audience. Returns
// the decoded Token on success.
func Verify(publicKey ed25519.PublicKey, tokenBytes []byte) (*Token, error) {
	return VerifyAt(publicKey, tokenBytes, time.Now())
}

// VerifyAt is like Verify but accepts an explicit time for the expiry
// check. This supports deterministic testing.
func VerifyAt(publicKey ed25519.PublicKey, tokenBytes []byte, now time.Time) (*Token, error) {
	if len(tokenBytes) <= signatureSize {
		return nil, ErrTokenTooShort
	}

	splitPoint := len(tokenBytes) - signatureSize
	payload := tokenBytes[:splitPoint]
	signature := tokenBytes[splitPoint:]

	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var token Token
	if err := codec.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("authority: decoding token payload: %w", err)
	}

	if now.Unix() >= token.ExpiresAt {
		return nil, ErrTokenExpired
	}
	if token.Audience != Audience {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrAudienceMismatch, token.Audience, Audience)
	}

	return &token, nil
}

// GrantsAllow checks whether the token's grants authorize an action
// against a target actor. For actions with no cross-party target
// (empty target), only the action patterns are checked; otherwise
// both the action and the target must match some grant.
func GrantsAllow(grants []Grant, action string, target identity.Actor) bool {
	selfService := target.IsZero()
	for _, grant := range grants {
		if !identity.MatchAnyPattern(grant.Actions, action) {
			continue
		}
		if selfService {
			return true
		}
		if len(grant.Targets) == 0 {
			continue
		}
		if identity.MatchAnyPattern(grant.Targets, target.String()) {
			return true
		}
	}
	return false
}
