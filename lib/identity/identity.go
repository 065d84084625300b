// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"fmt"
	"strings"
)

// MaxActorLength bounds actor names. Generous for any reasonable
// naming scheme while keeping event records and error messages small.
const MaxActorLength = 255

// Actor is a validated actor identifier. The zero value is "no actor"
// (e.g. an unassigned task).
type Actor string

// allowedChars is the set of bytes permitted in actor names. Lowercase
// only: actors are compared byte-for-byte, and allowing mixed case
// would make "Agent/x" and "agent/x" distinct callers.
var allowedChars = func() [256]bool {
	var allowed [256]bool
	for c := byte('a'); c <= 'z'; c++ {
		allowed[c] = true
	}
	for c := byte('0'); c <= '9'; c++ {
		allowed[c] = true
	}
	for _, c := range []byte{'.', '_', '-', '/'} {
		allowed[c] = true
	}
	return allowed
}()

// Validate checks that name is a well-formed actor identifier:
// non-empty, within length bounds, lowercase alphanumerics plus
// ./_-/ only, and no empty or dot-leading path segments.
func Validate(name string) error {
	if name == "" {
		return fmt.Errorf("actor name is empty")
	}
	if len(name) > MaxActorLength {
		return fmt.Errorf("actor name is %d characters, maximum is %d", len(name), MaxActorLength)
	}
	for i := 0; i < len(name); i++ {
		if !allowedChars[name[i]] {
			return fmt.Errorf("invalid character %q at position %d (allowed: a-z, 0-9, ., _, -, /)", name[i], i)
		}
	}
	if name[0] == '/' || name[len(name)-1] == '/' {
		return fmt.Errorf("actor name must not start or end with /")
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == "" {
			return fmt.Errorf("actor name contains empty segment (double slash)")
		}
		if segment[0] == '.' {
			return fmt.Errorf("segment %q starts with '.'", segment)
		}
	}
	return nil
}

// Parse validates name and returns it as an Actor.
func Parse(name string) (Actor, error) {
	if err := Validate(name); err != nil {
		return "", err
	}
	return Actor(name), nil
}

// MustParse is Parse for static identifiers in tests and fixtures.
// Panics on invalid input.
func MustParse(name string) Actor {
	actor, err := Parse(name)
	if err != nil {
		panic("identity: " + err.Error())
	}
	return actor
}

// Validate checks the actor against the same rules as [Validate].
func (a Actor) Validate() error { return Validate(string(a)) }

// IsZero reports whether the actor is unset.
func (a Actor) IsZero() bool { return a == "" }

// String returns the actor name.
func (a Actor) String() string { return string(a) }
