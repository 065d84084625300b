// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package settlement

import (
	"sync"
	"sync/atomic"

	"github.com/taskvault/taskvault/lib/identity"
	"github.com/taskvault/taskvault/lib/ledger"
)

// SimpleVault is the degenerate escrow variant for deployments that
// keep tasks and bids entirely in the external mirror: one deposit
// per task key, one terminal release or refund, recipient supplied at
// release time. It shares the full engine's funds discipline — record
// before transfer, compensate on failure, single re-entry guard — but
// tracks no task lifecycle at all.
type SimpleVault struct {
	transferor Transferor

	busy atomic.Bool
	mu   sync.Mutex

	// deposits is keyed by the mirror's task id, opaque here.
	deposits map[string]simpleDeposit
	held     int64
}

type simpleDeposit struct {
	amount    int64
	depositor identity.Actor
	released  bool
}

// NewSimpleVault returns an empty vault settling through the given
// transferor.
func NewSimpleVault(transferor Transferor) *SimpleVault {
	return &SimpleVault{
		transferor: transferor,
		deposits:   make(map[string]simpleDeposit),
	}
}

func (v *SimpleVault) acquire(op string) error {
	if !v.busy.CompareAndSwap(false, true) {
		return &ledger.StateError{Op: op, Reason: "a vault operation is already in flight"}
	}
	v.mu.Lock()
	return nil
}

func (v *SimpleVault) release() {
	v.mu.Unlock()
	v.busy.Store(false)
}

// Deposit locks amount under key. Exactly one deposit per key; a
// second deposit fails even after release.
func (v *SimpleVault) Deposit(key string, depositor identity.Actor, amount int64) error {
	const op = "vault_deposit"
	if key == "" {
		return &ledger.ValidationError{Op: op, Reason: "key is empty"}
	}
	if amount <= 0 {
		return &ledger.ValidationError{Op: op, Reason: "deposit amount must be positive"}
	}
	if err := v.acquire(op); err != nil {
		return err
	}
	defer v.release()

	if _, exists := v.deposits[key]; exists {
		return &ledger.StateError{Op: op, Reason: "key already has a deposit"}
	}
	v.deposits[key] = simpleDeposit{amount: amount, depositor: depositor}
	v.held += amount

	if err := v.transferor.Collect(depositor, amount); err != nil {
		delete(v.deposits, key)
		v.held -= amount
		return &ledger.FundsError{Op: op, Required: amount}
	}
	return nil
}

// Release pays the full deposit to recipient and marks the key
// terminal.
func (v *SimpleVault) Release(key string, caller identity.Actor, recipient identity.Actor) error {
	return v.settle("vault_release", key, caller, recipient)
}

// Refund returns the full deposit to the depositor and marks the key
// terminal.
func (v *SimpleVault) Refund(key string, caller identity.Actor) error {
	const op = "vault_refund"
	if err := v.acquire(op); err != nil {
		return err
	}
	defer v.release()
	deposit, exists := v.deposits[key]
	if !exists {
		return &ledger.StateError{Op: op, Reason: "no deposit for key"}
	}
	return v.settleLocked(op, key, caller, deposit.depositor)
}

func (v *SimpleVault) settle(op, key string, caller, recipient identity.Actor) error {
	if err := v.acquire(op); err != nil {
		return err
	}
	defer v.release()
	return v.settleLocked(op, key, caller, recipient)
}

// settleLocked drains a live deposit to recipient. Caller holds the
// guard. Only the depositor may settle.
func (v *SimpleVault) settleLocked(op, key string, caller, recipient identity.Actor) error {
	deposit, exists := v.deposits[key]
	if !exists {
		return &ledger.StateError{Op: op, Reason: "no deposit for key"}
	}
	if deposit.released {
		return &ledger.StateError{Op: op, Reason: "deposit is released and terminal"}
	}
	if caller != deposit.depositor {
		return &ledger.AuthorizationError{Op: op, Actor: caller, Reason: "not the depositor"}
	}

	before := deposit
	amount := deposit.amount
	deposit.amount = 0
	deposit.released = true
	v.deposits[key] = deposit
	v.held -= amount

	if err := v.transferor.Disburse([]Credit{{To: recipient, Amount: amount}}); err != nil {
		v.deposits[key] = before
		v.held += amount
		return &ledger.FundsError{Op: op, Available: amount, Required: amount}
	}
	return nil
}

// Balance returns the live amount under key, 0 if none or released.
func (v *SimpleVault) Balance(key string) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deposits[key].amount
}

// Held returns the vault's total custodied value.
func (v *SimpleVault) Held() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.held
}
