// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/taskvault/taskvault/lib/authority"
)

func TestTokenMintRoundTrip(t *testing.T) {
	keyDir := t.TempDir()
	public, private, err := authority.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if err := authority.SaveKeypair(keyDir, public, private); err != nil {
		t.Fatalf("SaveKeypair: %v", err)
	}

	tokenPath := filepath.Join(t.TempDir(), "arbiter.token")
	mint := tokenMintCommand()
	err = mint.Execute([]string{
		"--key-dir", keyDir,
		"--subject", "authority/arbiter",
		"--target", "creator/**",
		"--ttl", "1h",
		"--out", tokenPath,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	tokenBytes, err := os.ReadFile(tokenPath)
	if err != nil {
		t.Fatalf("reading minted token: %v", err)
	}
	token, err := authority.Verify(public, tokenBytes)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if token.Subject.String() != "authority/arbiter" {
		t.Errorf("subject = %s", token.Subject)
	}
	if len(token.Grants) != 1 || token.Grants[0].Actions[0] != "dispute/resolve" {
		t.Errorf("grants = %+v", token.Grants)
	}
}

func TestTokenMintRequiresTarget(t *testing.T) {
	mint := tokenMintCommand()
	err := mint.Execute([]string{
		"--subject", "authority/arbiter",
		"--out", filepath.Join(t.TempDir(), "t.token"),
	})
	if err == nil {
		t.Fatal("mint without --target succeeded")
	}
}
