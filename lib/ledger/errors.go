// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"errors"
	"fmt"

	"github.com/taskvault/taskvault/lib/identity"
)

// The settlement error taxonomy. Every failed operation returns
// exactly one of these four types, and a failed operation never leaves
// a partial write behind. Callers branch with errors.As:
//
//	var stateErr *ledger.StateError
//	if errors.As(err, &stateErr) { ... }
//
// Entities that do not exist are reported as StateError — from the
// caller's perspective "task 7 does not exist" and "task 7 is not in a
// state that allows this" need the same handling (re-query and retry),
// and distinguishing them would leak whether an id was ever allocated.

// ValidationError reports malformed input: empty title, non-positive
// amount, past deadline, out-of-range percentage. No state change.
type ValidationError struct {
	// Op is the operation that rejected the input.
	Op string
	// Reason describes the first invalid field found.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid input: %s", e.Op, e.Reason)
}

// AuthorizationError reports a caller lacking the required role: not
// the task creator, not the assigned agent, or not the arbitration
// authority. No state change.
type AuthorizationError struct {
	// Op is the operation the caller attempted.
	Op string
	// Actor is the rejected caller.
	Actor identity.Actor
	// Reason names the missing role.
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: actor %q not authorized: %s", e.Op, e.Actor, e.Reason)
}

// StateError reports an operation invalid for the entity's current
// lifecycle state, including operations on entities that do not exist.
// No state change.
type StateError struct {
	// Op is the rejected operation.
	Op string
	// TaskID is the task the operation addressed, 0 if none resolved.
	TaskID uint64
	// Reason describes the conflict (current state, missing entity,
	// or an operation already in flight).
	Reason string
}

func (e *StateError) Error() string {
	if e.TaskID == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s: task %d: %s", e.Op, e.TaskID, e.Reason)
}

// FundsError reports an escrowed balance insufficient for the
// requested obligation. No state change; the funds remain locked and
// recoverable via task cancellation.
type FundsError struct {
	// Op is the rejected operation.
	Op string
	// TaskID is the task whose escrow was consulted.
	TaskID uint64
	// Available is the escrowed balance at the time of the check.
	Available int64
	// Required is the obligation that could not be met.
	Required int64
}

func (e *FundsError) Error() string {
	return fmt.Sprintf("%s: task %d: escrow holds %d, operation requires %d",
		e.Op, e.TaskID, e.Available, e.Required)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsAuthorization reports whether err is an *AuthorizationError.
func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// IsState reports whether err is a *StateError.
func IsState(err error) bool {
	var target *StateError
	return errors.As(err, &target)
}

// IsFunds reports whether err is a *FundsError.
func IsFunds(err error) bool {
	var target *FundsError
	return errors.As(err, &target)
}
