// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package settlement

import (
	"github.com/taskvault/taskvault/lib/identity"
	"github.com/taskvault/taskvault/lib/ledger"
)

// Reconciliation entry points for the off-chain mirror. The mirror
// cannot locally distinguish "my request never applied" from "it
// applied but my write-back was lost", so it re-issues requests until
// it observes convergence. Both entry points are idempotent by
// construction: once the ledger is at the target state, re-applying
// the request is a no-op that commits nothing, emits no event, and
// never moves funds.

// ReconcileAccept converges a task onto "this bid is accepted". If
// the task is still open and the bid pending, it performs the
// acceptance exactly as [Engine.AcceptBid] would, including the funds
// check and loser rejection. If the bid is already accepted, it
// returns the current task as a no-op. Anything else — the bid lost,
// the task was cancelled, a different bid won — is unconvergeable and
// fails with a StateError the mirror must surface.
func (e *Engine) ReconcileAccept(bidID uint64, caller identity.Actor) (ledger.Task, error) {
	const op = opReconcileAccept
	if err := e.acquire(op); err != nil {
		return ledger.Task{}, err
	}
	defer e.release()

	bid, exists := e.ledger.Bid(bidID)
	if !exists {
		return ledger.Task{}, &ledger.StateError{Op: op, Reason: "bid does not exist"}
	}
	task, err := e.lookupTask(op, bid.TaskID)
	if err != nil {
		return ledger.Task{}, err
	}

	if bid.Status == ledger.BidAccepted {
		// Already converged. The task may have advanced well past
		// in_progress; that is still the accepted-bid world.
		if caller != task.Creator {
			return ledger.Task{}, &ledger.AuthorizationError{Op: op, Actor: caller, Reason: "not the task creator"}
		}
		e.logger.Debug("reconcile accept: already converged", "task", task.ID, "bid", bidID)
		return task, nil
	}

	return e.acceptBidLocked(op, bidID, caller)
}

// ReconcileDeposit verifies that the ledger already holds at least
// amount for the task on behalf of the caller. It is
// verification-only: the mirror issues it for a deposit it knows
// succeeded, so the funds were collected inside the original
// [Engine.DepositEscrow] commit and must never be collected again. A
// recorded deposit covering the amount is a convergent no-op; a
// missing or smaller one means the original operation never committed
// and the mirror must retract its record.
func (e *Engine) ReconcileDeposit(taskID uint64, caller identity.Actor, amount int64) (ledger.Escrow, error) {
	const op = opReconcileDeposit
	if amount <= 0 {
		return ledger.Escrow{}, &ledger.ValidationError{Op: op, Reason: "deposit amount must be positive"}
	}
	if err := e.acquire(op); err != nil {
		return ledger.Escrow{}, err
	}
	defer e.release()

	task, err := e.lookupTask(op, taskID)
	if err != nil {
		return ledger.Escrow{}, err
	}
	if caller != task.Creator {
		return ledger.Escrow{}, &ledger.AuthorizationError{Op: op, Actor: caller, Reason: "not the task creator"}
	}

	escrow, exists := e.ledger.Escrow(taskID)
	if !exists {
		return ledger.Escrow{}, &ledger.StateError{Op: op, TaskID: taskID, Reason: "no deposit recorded"}
	}
	if escrow.Depositor != caller {
		return ledger.Escrow{}, &ledger.AuthorizationError{Op: op, Actor: caller, Reason: "not the recorded depositor"}
	}
	// A released escrow still proves the deposit happened; the value
	// has since settled through a terminal transition.
	if !escrow.Released && escrow.Amount < amount {
		return ledger.Escrow{}, &ledger.StateError{Op: op, TaskID: taskID, Reason: "recorded deposit is smaller than claimed"}
	}

	e.logger.Debug("reconcile deposit: converged", "task", taskID, "amount", amount)
	return escrow, nil
}
