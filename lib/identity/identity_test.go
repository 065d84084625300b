// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"strings"
	"testing"
)

func TestValidateAccepts(t *testing.T) {
	valid := []string{
		"alice",
		"agent/builder-7",
		"org/acme/ops",
		"a",
		"x_1.y-2/z",
	}
	for _, name := range valid {
		if err := Validate(name); err != nil {
			t.Errorf("Validate(%q): unexpected error: %v", name, err)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	invalid := map[string]string{
		"":          "empty",
		"Alice":     "uppercase",
		"a b":       "space",
		"/agent":    "leading slash",
		"agent/":    "trailing slash",
		"a//b":      "double slash",
		"a/.hidden": "dot-leading segment",
		"a/../b":    "traversal segment",
		strings.Repeat("x", MaxActorLength+1): "too long",
	}
	for name, reason := range invalid {
		if err := Validate(name); err == nil {
			t.Errorf("Validate(%q): expected error (%s), got nil", name, reason)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	actor, err := Parse("agent/builder-7")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if actor.String() != "agent/builder-7" {
		t.Errorf("String: got %q", actor.String())
	}
	if actor.IsZero() {
		t.Error("IsZero: got true for non-empty actor")
	}
	var zero Actor
	if !zero.IsZero() {
		t.Error("IsZero: got false for zero actor")
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse with invalid input did not panic")
		}
	}()
	MustParse("Not Valid")
}
