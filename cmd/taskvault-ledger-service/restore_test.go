// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/taskvault/taskvault/lib/clock"
	"github.com/taskvault/taskvault/lib/eventlog"
	"github.com/taskvault/taskvault/lib/identity"
	"github.com/taskvault/taskvault/lib/ledger"
	"github.com/taskvault/taskvault/lib/settlement"
)

var (
	restoreCreator = identity.MustParse("creator/alice")
	restoreAgent   = identity.MustParse("agent/bob")
	restoreRival   = identity.MustParse("agent/carol")
	restoreArbiter = identity.MustParse("authority/arbiter")
)

// runJournaled drives a settlement engine wired to a real journal,
// returning the journal path for restore.
func runJournaled(t *testing.T, drive func(*settlement.Engine, *Accounts)) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.log")
	journal, err := eventlog.Open(path, eventlog.Options{})
	if err != nil {
		t.Fatalf("eventlog.Open: %v", err)
	}

	accounts := NewAccounts()
	engine, err := settlement.New(settlement.Config{
		Ledger:     ledger.New(),
		Clock:      clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Transferor: accounts,
		Sink:       journal,
		Authority:  restoreArbiter,
	})
	if err != nil {
		t.Fatalf("settlement.New: %v", err)
	}

	drive(engine, accounts)

	if err := journal.Err(); err != nil {
		t.Fatalf("journal: %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("journal.Close: %v", err)
	}
	return path
}

func restoreSpec(reward int64) settlement.TaskSpec {
	return settlement.TaskSpec{
		Title:    "index the archive",
		Reward:   reward,
		Deadline: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRestoreFullLifecycle(t *testing.T) {
	path := runJournaled(t, func(engine *settlement.Engine, accounts *Accounts) {
		accounts.Credit(restoreCreator, 100)

		task, err := engine.CreateTask(restoreCreator, restoreSpec(50))
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		if _, err := engine.DepositEscrow(task.ID, restoreCreator, 50); err != nil {
			t.Fatalf("DepositEscrow: %v", err)
		}
		bid, err := engine.SubmitBid(task.ID, restoreAgent, 40, "can do")
		if err != nil {
			t.Fatalf("SubmitBid: %v", err)
		}
		if _, err := engine.SubmitBid(task.ID, restoreRival, 45, ""); err != nil {
			t.Fatalf("SubmitBid rival: %v", err)
		}
		if _, err := engine.AcceptBid(bid.ID, restoreCreator); err != nil {
			t.Fatalf("AcceptBid: %v", err)
		}
		if _, err := engine.CompleteTask(task.ID, restoreAgent, []byte("done")); err != nil {
			t.Fatalf("CompleteTask: %v", err)
		}
		if _, err := engine.ApproveAndRelease(task.ID, restoreCreator); err != nil {
			t.Fatalf("ApproveAndRelease: %v", err)
		}
	})

	restored, count, err := restoreLedger(path)
	if err != nil {
		t.Fatalf("restoreLedger: %v", err)
	}
	if count == 0 {
		t.Fatal("no events replayed")
	}

	task, exists := restored.Task(1)
	if !exists {
		t.Fatal("task 1 missing after restore")
	}
	if task.Status != ledger.TaskFinalized {
		t.Errorf("status = %s, want finalized", task.Status)
	}
	if task.Title != "index the archive" {
		t.Errorf("title = %q", task.Title)
	}
	if task.AssignedAgent != restoreAgent {
		t.Errorf("assigned agent = %s", task.AssignedAgent)
	}
	if task.Reward != 40 {
		t.Errorf("reward = %d, want 40 (re-pinned)", task.Reward)
	}

	bids := restored.BidsForTask(1)
	if len(bids) != 2 {
		t.Fatalf("got %d bids, want 2", len(bids))
	}
	if bids[0].Status != ledger.BidAccepted || bids[1].Status != ledger.BidRejected {
		t.Errorf("bid statuses = %s/%s", bids[0].Status, bids[1].Status)
	}
	if bids[0].Message != "can do" {
		t.Errorf("bid message = %q", bids[0].Message)
	}

	escrow, hasEscrow := restored.Escrow(1)
	if !hasEscrow {
		t.Fatal("escrow missing after restore")
	}
	if !escrow.Released || escrow.Amount != 0 {
		t.Errorf("escrow released=%v amount=%d", escrow.Released, escrow.Amount)
	}
	if got := restored.HeldBalance(); got != 0 {
		t.Errorf("held balance = %d, want 0", got)
	}
}

func TestRestoreMidLifecycleHoldsFunds(t *testing.T) {
	path := runJournaled(t, func(engine *settlement.Engine, accounts *Accounts) {
		accounts.Credit(restoreCreator, 100)

		task, err := engine.CreateTask(restoreCreator, restoreSpec(50))
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		if _, err := engine.DepositEscrow(task.ID, restoreCreator, 50); err != nil {
			t.Fatalf("DepositEscrow: %v", err)
		}
		bid, err := engine.SubmitBid(task.ID, restoreAgent, 40, "")
		if err != nil {
			t.Fatalf("SubmitBid: %v", err)
		}
		if _, err := engine.AcceptBid(bid.ID, restoreCreator); err != nil {
			t.Fatalf("AcceptBid: %v", err)
		}
	})

	restored, _, err := restoreLedger(path)
	if err != nil {
		t.Fatalf("restoreLedger: %v", err)
	}

	task, _ := restored.Task(1)
	if task.Status != ledger.TaskInProgress {
		t.Errorf("status = %s, want in_progress", task.Status)
	}
	if got := restored.HeldBalance(); got != 50 {
		t.Errorf("held balance = %d, want 50", got)
	}

	// The restored ledger must accept further operations: a new
	// engine completes and settles the task.
	accounts := NewAccounts()
	accounts.vault = 50 // matches the restored held balance
	engine, err := settlement.New(settlement.Config{
		Ledger:     restored,
		Clock:      clock.Fake(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)),
		Transferor: accounts,
	})
	if err != nil {
		t.Fatalf("settlement.New: %v", err)
	}
	if _, err := engine.CompleteTask(1, restoreAgent, []byte("done")); err != nil {
		t.Fatalf("CompleteTask after restore: %v", err)
	}
	if _, err := engine.ApproveAndRelease(1, restoreCreator); err != nil {
		t.Fatalf("ApproveAndRelease after restore: %v", err)
	}
	if got := accounts.Balance(restoreAgent); got != 40 {
		t.Errorf("agent paid %d after restore, want 40", got)
	}
}

func TestRestoreDisputeAndCancellation(t *testing.T) {
	path := runJournaled(t, func(engine *settlement.Engine, accounts *Accounts) {
		accounts.Credit(restoreCreator, 100)

		// Task 1: disputed and resolved 60/40.
		task, err := engine.CreateTask(restoreCreator, restoreSpec(50))
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		if _, err := engine.DepositEscrow(task.ID, restoreCreator, 50); err != nil {
			t.Fatalf("DepositEscrow: %v", err)
		}
		bid, err := engine.SubmitBid(task.ID, restoreAgent, 50, "")
		if err != nil {
			t.Fatalf("SubmitBid: %v", err)
		}
		if _, err := engine.AcceptBid(bid.ID, restoreCreator); err != nil {
			t.Fatalf("AcceptBid: %v", err)
		}
		if _, err := engine.RaiseDispute(task.ID, restoreAgent); err != nil {
			t.Fatalf("RaiseDispute: %v", err)
		}
		if _, err := engine.ResolveDispute(task.ID, restoreArbiter, restoreAgent, 60); err != nil {
			t.Fatalf("ResolveDispute: %v", err)
		}

		// Task 2: funded then cancelled.
		task2, err := engine.CreateTask(restoreCreator, restoreSpec(25))
		if err != nil {
			t.Fatalf("CreateTask 2: %v", err)
		}
		if _, err := engine.DepositEscrow(task2.ID, restoreCreator, 25); err != nil {
			t.Fatalf("DepositEscrow 2: %v", err)
		}
		if _, err := engine.CancelTask(task2.ID, restoreCreator); err != nil {
			t.Fatalf("CancelTask: %v", err)
		}
	})

	restored, _, err := restoreLedger(path)
	if err != nil {
		t.Fatalf("restoreLedger: %v", err)
	}

	task1, _ := restored.Task(1)
	if task1.Status != ledger.TaskFinalized {
		t.Errorf("task 1 status = %s, want finalized", task1.Status)
	}
	escrow1, _ := restored.Escrow(1)
	if !escrow1.Released || escrow1.Recipient != restoreAgent {
		t.Errorf("escrow 1 released=%v recipient=%s", escrow1.Released, escrow1.Recipient)
	}

	task2, _ := restored.Task(2)
	if task2.Status != ledger.TaskCancelled {
		t.Errorf("task 2 status = %s, want cancelled", task2.Status)
	}
	if got := restored.HeldBalance(); got != 0 {
		t.Errorf("held balance = %d, want 0", got)
	}
}

func TestRestoreMissingJournalIsEmpty(t *testing.T) {
	restored, count, err := restoreLedger(filepath.Join(t.TempDir(), "absent.log"))
	if err != nil {
		t.Fatalf("restoreLedger: %v", err)
	}
	if count != 0 {
		t.Errorf("replayed %d events from missing journal", count)
	}
	if stats := restored.Stats(); stats.Tasks != 0 {
		t.Errorf("restored %d tasks from missing journal", stats.Tasks)
	}
}
