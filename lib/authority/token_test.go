// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package authority

import (
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/taskvault/taskvault/lib/identity"
)

func testKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	public, private, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	return public, private
}

func testToken(now time.Time) *Token {
	return &Token{
		Subject:  identity.MustParse("authority/arbiter"),
		Audience: Audience,
		Grants: []Grant{
			{Actions: []string{"dispute/resolve"}, Targets: []string{"creator/**"}},
		},
		ID:        "a1b2c3d4e5f6",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(5 * time.Minute).Unix(),
	}
}

func TestMintAndVerify(t *testing.T) {
	public, private := testKeypair(t)
	now := time.Now()

	tokenBytes, err := Mint(private, testToken(now))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if len(tokenBytes) <= signatureSize {
		t.Fatalf("token too short: %d bytes", len(tokenBytes))
	}

	verified, err := VerifyAt(public, tokenBytes, now)
	if err != nil {
		t.Fatalf("VerifyAt: %v", err)
	}
	if verified.Subject != identity.MustParse("authority/arbiter") {
		t.Errorf("Subject = %q", verified.Subject)
	}
	if verified.ID != "a1b2c3d4e5f6" {
		t.Errorf("ID = %q", verified.ID)
	}
	if len(verified.Grants) != 1 || verified.Grants[0].Actions[0] != "dispute/resolve" {
		t.Errorf("Grants = %+v", verified.Grants)
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	public, private := testKeypair(t)
	now := time.Now()

	tokenBytes, err := Mint(private, testToken(now))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	tokenBytes[0] ^= 0xFF

	if _, err := VerifyAt(public, tokenBytes, now); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered token: got %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	_, private := testKeypair(t)
	otherPublic, _ := testKeypair(t)
	now := time.Now()

	tokenBytes, err := Mint(private, testToken(now))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := VerifyAt(otherPublic, tokenBytes, now); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("wrong key: got %v, want ErrInvalidSignature", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	public, private := testKeypair(t)
	now := time.Now()

	tokenBytes, err := Mint(private, testToken(now))
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := VerifyAt(public, tokenBytes, now.Add(10*time.Minute)); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expired token: got %v, want ErrTokenExpired", err)
	}
}

func TestVerifyAudienceMismatch(t *testing.T) {
	public, private := testKeypair(t)
	now := time.Now()

	token := testToken(now)
	token.Audience = "artifact"
	tokenBytes, err := Mint(private, token)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if _, err := VerifyAt(public, tokenBytes, now); !errors.Is(err, ErrAudienceMismatch) {
		t.Errorf("wrong audience: got %v, want ErrAudienceMismatch", err)
	}
}

func TestVerifyTooShort(t *testing.T) {
	public, _ := testKeypair(t)
	if _, err := Verify(public, make([]byte, signatureSize)); !errors.Is(err, ErrTokenTooShort) {
		t.Errorf("short token: got %v, want ErrTokenTooShort", err)
	}
}

func TestGrantsAllow(t *testing.T) {
	grants := []Grant{
		{Actions: []string{"dispute/resolve"}, Targets: []string{"creator/**"}},
		{Actions: []string{"status"}},
	}

	if !GrantsAllow(grants, "dispute/resolve", identity.MustParse("creator/alice")) {
		t.Error("resolve against creator/alice denied")
	}
	if GrantsAllow(grants, "dispute/resolve", identity.MustParse("agent/bob")) {
		t.Error("resolve against agent/bob allowed")
	}
	if !GrantsAllow(grants, "status", identity.Actor("")) {
		t.Error("self-service status denied")
	}
	// Action matched but grant has no targets: cross-party denied.
	if GrantsAllow(grants, "status", identity.MustParse("creator/alice")) {
		t.Error("targetless grant allowed cross-party action")
	}
	if GrantsAllow(nil, "dispute/resolve", identity.Actor("")) {
		t.Error("empty grants allowed action")
	}
}

func TestNewTokenID(t *testing.T) {
	a, err := NewTokenID()
	if err != nil {
		t.Fatalf("NewTokenID: %v", err)
	}
	b, err := NewTokenID()
	if err != nil {
		t.Fatalf("NewTokenID: %v", err)
	}
	if len(a) != 32 {
		t.Errorf("id length: got %d, want 32", len(a))
	}
	if a == b {
		t.Error("two ids are identical")
	}
}

func TestKeypairRoundTrip(t *testing.T) {
	dir := t.TempDir()

	public, private, generated, err := LoadOrGenerateKeypair(dir)
	if err != nil {
		t.Fatalf("LoadOrGenerateKeypair: %v", err)
	}
	if !generated {
		t.Error("first call did not generate")
	}

	loadedPublic, loadedPrivate, generated, err := LoadOrGenerateKeypair(dir)
	if err != nil {
		t.Fatalf("second LoadOrGenerateKeypair: %v", err)
	}
	if generated {
		t.Error("second call generated a fresh keypair")
	}
	if !public.Equal(loadedPublic) || !private.Equal(loadedPrivate) {
		t.Error("loaded keypair differs from generated one")
	}
}
