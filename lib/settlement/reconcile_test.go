// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package settlement

import (
	"testing"

	"github.com/taskvault/taskvault/lib/ledger"
)

func TestReconcileAcceptAppliesWhenPending(t *testing.T) {
	f := newFixture(t)
	task := f.fundedTask(t, 50)
	bid, _ := f.engine.SubmitBid(task.ID, agent, 40, "")

	// The mirror's first request behaves exactly like AcceptBid.
	got, err := f.engine.ReconcileAccept(bid.ID, creator)
	if err != nil {
		t.Fatalf("ReconcileAccept: %v", err)
	}
	if got.Status != ledger.TaskInProgress || got.AssignedAgent != agent {
		t.Errorf("task after reconcile: %+v", got)
	}
}

func TestReconcileAcceptIsIdempotent(t *testing.T) {
	f := newFixture(t)
	task, bid := f.assignedTask(t, 50, 40)
	events := len(f.sink.events)

	// Re-applying after convergence is a no-op however often the
	// mirror retries, and emits nothing.
	for n := 0; n < 3; n++ {
		got, err := f.engine.ReconcileAccept(bid.ID, creator)
		if err != nil {
			t.Fatalf("ReconcileAccept replay: %v", err)
		}
		if got.ID != task.ID || got.Status != ledger.TaskInProgress {
			t.Errorf("replay result: %+v", got)
		}
	}
	if len(f.sink.events) != events {
		t.Errorf("replays emitted %d events", len(f.sink.events)-events)
	}
	f.checkConsistent(t)
}

func TestReconcileAcceptConvergedSurvivesLaterTransitions(t *testing.T) {
	f := newFixture(t)
	task, bid := f.assignedTask(t, 50, 40)
	if _, err := f.engine.CompleteTask(task.ID, agent, []byte("done")); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if _, err := f.engine.ApproveAndRelease(task.ID, creator); err != nil {
		t.Fatalf("ApproveAndRelease: %v", err)
	}
	paid := f.transferor.credited[agent]

	// The task moved past in_progress; the accepted-bid fact stands,
	// so the mirror's stale request still converges — and never
	// re-triggers the payout.
	got, err := f.engine.ReconcileAccept(bid.ID, creator)
	if err != nil {
		t.Fatalf("ReconcileAccept after finalize: %v", err)
	}
	if got.Status != ledger.TaskFinalized {
		t.Errorf("status: got %s, want finalized", got.Status)
	}
	if f.transferor.credited[agent] != paid {
		t.Errorf("agent paid again: got %d, want %d", f.transferor.credited[agent], paid)
	}
}

func TestReconcileAcceptUnconvergeable(t *testing.T) {
	f := newFixture(t)
	task := f.fundedTask(t, 50)
	loser, _ := f.engine.SubmitBid(task.ID, rival, 45, "")
	winner, _ := f.engine.SubmitBid(task.ID, agent, 40, "")
	if _, err := f.engine.AcceptBid(winner.ID, creator); err != nil {
		t.Fatalf("AcceptBid: %v", err)
	}

	// A different bid won: the loser can never become accepted.
	if _, err := f.engine.ReconcileAccept(loser.ID, creator); !ledger.IsState(err) {
		t.Errorf("reconcile of rejected bid: got %v, want StateError", err)
	}

	// Cancelled task: same story for a still-pending bid.
	other := f.fundedTask(t, 50)
	pending, _ := f.engine.SubmitBid(other.ID, agent, 40, "")
	if _, err := f.engine.CancelTask(other.ID, creator); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}
	if _, err := f.engine.ReconcileAccept(pending.ID, creator); !ledger.IsState(err) {
		t.Errorf("reconcile on cancelled task: got %v, want StateError", err)
	}

	if _, err := f.engine.ReconcileAccept(99, creator); !ledger.IsState(err) {
		t.Errorf("reconcile of missing bid: got %v, want StateError", err)
	}
}

func TestReconcileDepositVerifiesWithoutCollecting(t *testing.T) {
	f := newFixture(t)
	task := f.fundedTask(t, 50)
	collected := f.transferor.collected[creator]

	for n := 0; n < 3; n++ {
		escrow, err := f.engine.ReconcileDeposit(task.ID, creator, 50)
		if err != nil {
			t.Fatalf("ReconcileDeposit: %v", err)
		}
		if escrow.Amount != 50 {
			t.Errorf("escrow: %+v", escrow)
		}
	}
	// Verification never collects a second time.
	if f.transferor.collected[creator] != collected {
		t.Errorf("collected changed: got %d, want %d", f.transferor.collected[creator], collected)
	}

	// A smaller recorded claim also converges.
	if _, err := f.engine.ReconcileDeposit(task.ID, creator, 30); err != nil {
		t.Errorf("partial claim: %v", err)
	}
}

func TestReconcileDepositRejectsUnrecorded(t *testing.T) {
	f := newFixture(t)
	task, _ := f.engine.CreateTask(creator, f.spec())

	if _, err := f.engine.ReconcileDeposit(task.ID, creator, 50); !ledger.IsState(err) {
		t.Errorf("unrecorded deposit: got %v, want StateError", err)
	}

	funded := f.fundedTask(t, 30)
	if _, err := f.engine.ReconcileDeposit(funded.ID, creator, 50); !ledger.IsState(err) {
		t.Errorf("over-claimed deposit: got %v, want StateError", err)
	}
	if _, err := f.engine.ReconcileDeposit(funded.ID, agent, 30); !ledger.IsAuthorization(err) {
		t.Errorf("non-creator reconcile: got %v, want AuthorizationError", err)
	}
}

func TestReconcileDepositAfterSettlement(t *testing.T) {
	f := newFixture(t)
	task := f.fundedTask(t, 25)
	if _, err := f.engine.CancelTask(task.ID, creator); err != nil {
		t.Fatalf("CancelTask: %v", err)
	}

	// The escrow is released, but the deposit demonstrably happened:
	// still a convergent no-op.
	escrow, err := f.engine.ReconcileDeposit(task.ID, creator, 25)
	if err != nil {
		t.Fatalf("ReconcileDeposit after cancel: %v", err)
	}
	if !escrow.Released {
		t.Errorf("escrow: %+v", escrow)
	}
	if f.engine.HeldBalance() != 0 {
		t.Errorf("held: got %d, want 0", f.engine.HeldBalance())
	}
}
