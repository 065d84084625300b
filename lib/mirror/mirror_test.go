// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package mirror_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/taskvault/taskvault/lib/eventlog"
	"github.com/taskvault/taskvault/lib/identity"
	"github.com/taskvault/taskvault/lib/ledger"
	"github.com/taskvault/taskvault/lib/mirror"
)

var (
	mirrorCreator = identity.MustParse("creator/alice")
	mirrorAgent   = identity.MustParse("agent/bob")
	mirrorRival   = identity.MustParse("agent/carol")
)

func openTestMirror(t *testing.T) *mirror.Mirror {
	t.Helper()
	m, err := mirror.Open(mirror.Config{
		Path: filepath.Join(t.TempDir(), "mirror.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return m
}

// lifecycleEvents is the event stream of one full task lifecycle:
// create, fund 50, two bids, accept the 40 bid (rejecting the other),
// complete, release 40 to the agent and 10 back to the creator.
func lifecycleEvents() []ledger.Event {
	const ts = "2026-03-01T12:00:00Z"
	return []ledger.Event{
		{Seq: 1, Kind: ledger.EventTaskCreated, TaskID: 1, TaskStatus: ledger.TaskOpen,
			Actor: mirrorCreator, Amount: 50, Title: "index the archive", Timestamp: ts},
		{Seq: 2, Kind: ledger.EventEscrowDeposited, TaskID: 1, TaskStatus: ledger.TaskOpen,
			Actor: mirrorCreator, Amount: 50, Timestamp: ts},
		{Seq: 3, Kind: ledger.EventBidSubmitted, TaskID: 1, BidID: 1, TaskStatus: ledger.TaskOpen,
			BidStatus: ledger.BidPending, Actor: mirrorAgent, Amount: 40, Timestamp: ts},
		{Seq: 4, Kind: ledger.EventBidSubmitted, TaskID: 1, BidID: 2, TaskStatus: ledger.TaskOpen,
			BidStatus: ledger.BidPending, Actor: mirrorRival, Amount: 45, Timestamp: ts},
		{Seq: 5, Kind: ledger.EventBidAccepted, TaskID: 1, BidID: 1, TaskStatus: ledger.TaskInProgress,
			BidStatus: ledger.BidAccepted, Actor: mirrorCreator, Amount: 40, Timestamp: ts},
		{Seq: 6, Kind: ledger.EventBidRejected, TaskID: 1, BidID: 2, TaskStatus: ledger.TaskInProgress,
			BidStatus: ledger.BidRejected, Actor: mirrorCreator, Timestamp: ts},
		{Seq: 7, Kind: ledger.EventTaskCompleted, TaskID: 1, TaskStatus: ledger.TaskCompleted,
			Actor: mirrorAgent, ResultDigest: "deadbeef", Timestamp: ts},
		{Seq: 8, Kind: ledger.EventEscrowReleased, TaskID: 1, TaskStatus: ledger.TaskFinalized,
			Actor: mirrorCreator, AgentAmount: 40, CreatorAmount: 10, Timestamp: ts},
	}
}

func applyAll(t *testing.T, m *mirror.Mirror, events []ledger.Event) {
	t.Helper()
	ctx := context.Background()
	for _, event := range events {
		if err := m.Apply(ctx, event); err != nil {
			t.Fatalf("Apply seq %d (%s): %v", event.Seq, event.Kind, err)
		}
	}
}

func TestFullLifecycleProjection(t *testing.T) {
	m := openTestMirror(t)
	ctx := context.Background()
	applyAll(t, m, lifecycleEvents())

	task, found, err := m.Task(ctx, 1)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if !found {
		t.Fatal("task 1 not found")
	}
	if task.Status != ledger.TaskFinalized {
		t.Errorf("task status = %s, want finalized", task.Status)
	}
	if task.Title != "index the archive" {
		t.Errorf("title = %q", task.Title)
	}
	if task.AssignedAgent != mirrorAgent {
		t.Errorf("assigned agent = %s, want %s", task.AssignedAgent, mirrorAgent)
	}
	if task.Reward != 40 {
		t.Errorf("reward = %d, want 40 (re-pinned to accepted bid)", task.Reward)
	}
	if task.ResultDigest != "deadbeef" {
		t.Errorf("result digest = %q", task.ResultDigest)
	}

	bids, err := m.BidsForTask(ctx, 1)
	if err != nil {
		t.Fatalf("BidsForTask: %v", err)
	}
	if len(bids) != 2 {
		t.Fatalf("got %d bids, want 2", len(bids))
	}
	if bids[0].Status != ledger.BidAccepted || bids[1].Status != ledger.BidRejected {
		t.Errorf("bid statuses = %s/%s, want accepted/rejected", bids[0].Status, bids[1].Status)
	}

	escrow, found, err := m.Escrow(ctx, 1)
	if err != nil {
		t.Fatalf("Escrow: %v", err)
	}
	if !found {
		t.Fatal("escrow not found")
	}
	if !escrow.Released || escrow.Amount != 0 {
		t.Errorf("escrow released=%v amount=%d, want true/0", escrow.Released, escrow.Amount)
	}
	if escrow.AgentAmount != 40 || escrow.CreatorAmount != 10 {
		t.Errorf("split = %d/%d, want 40/10", escrow.AgentAmount, escrow.CreatorAmount)
	}
	if escrow.Recipient != mirrorAgent {
		t.Errorf("recipient = %s, want %s", escrow.Recipient, mirrorAgent)
	}

	seq, err := m.LastSeq(ctx)
	if err != nil {
		t.Fatalf("LastSeq: %v", err)
	}
	if seq != 8 {
		t.Errorf("LastSeq = %d, want 8", seq)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	m := openTestMirror(t)
	ctx := context.Background()
	events := lifecycleEvents()
	applyAll(t, m, events)

	// Replaying the whole stream over the live mirror must change
	// nothing: every event is at or below the high-water mark.
	applyAll(t, m, events)

	escrow, _, err := m.Escrow(ctx, 1)
	if err != nil {
		t.Fatalf("Escrow: %v", err)
	}
	if escrow.Amount != 0 || escrow.AgentAmount != 40 {
		t.Errorf("replay changed escrow: amount=%d agent_amount=%d", escrow.Amount, escrow.AgentAmount)
	}
	bids, err := m.BidsForTask(ctx, 1)
	if err != nil {
		t.Fatalf("BidsForTask: %v", err)
	}
	if len(bids) != 2 {
		t.Errorf("replay duplicated bids: got %d", len(bids))
	}
}

func TestApplyRejectsSequenceGap(t *testing.T) {
	m := openTestMirror(t)
	events := lifecycleEvents()
	applyAll(t, m, events[:2])

	// Seq 4 after seq 2 means a lost event; the mirror must refuse to
	// apply past the gap rather than silently diverge.
	if err := m.Apply(context.Background(), events[3]); err == nil {
		t.Fatal("Apply accepted an event past a sequence gap")
	}
}

func TestApplyRejectsUnsequencedEvent(t *testing.T) {
	m := openTestMirror(t)
	event := lifecycleEvents()[0]
	event.Seq = 0
	if err := m.Apply(context.Background(), event); err == nil {
		t.Fatal("Apply accepted an event without a sequence number")
	}
}

func TestCancellationRefund(t *testing.T) {
	m := openTestMirror(t)
	ctx := context.Background()
	const ts = "2026-03-01T12:00:00Z"
	applyAll(t, m, []ledger.Event{
		{Seq: 1, Kind: ledger.EventTaskCreated, TaskID: 1, TaskStatus: ledger.TaskOpen,
			Actor: mirrorCreator, Amount: 25, Timestamp: ts},
		{Seq: 2, Kind: ledger.EventEscrowDeposited, TaskID: 1, TaskStatus: ledger.TaskOpen,
			Actor: mirrorCreator, Amount: 25, Timestamp: ts},
		{Seq: 3, Kind: ledger.EventTaskCancelled, TaskID: 1, TaskStatus: ledger.TaskCancelled,
			Actor: mirrorCreator, CreatorAmount: 25, Timestamp: ts},
	})

	task, _, err := m.Task(ctx, 1)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if task.Status != ledger.TaskCancelled {
		t.Errorf("task status = %s, want cancelled", task.Status)
	}
	escrow, _, err := m.Escrow(ctx, 1)
	if err != nil {
		t.Fatalf("Escrow: %v", err)
	}
	if !escrow.Released || escrow.CreatorAmount != 25 {
		t.Errorf("refund: released=%v creator_amount=%d, want true/25", escrow.Released, escrow.CreatorAmount)
	}
	if escrow.Recipient != mirrorCreator {
		t.Errorf("refund recipient = %s, want depositor", escrow.Recipient)
	}
}

func TestDisputeResolutionProjection(t *testing.T) {
	m := openTestMirror(t)
	ctx := context.Background()
	events := lifecycleEvents()[:7]
	applyAll(t, m, events)
	applyAll(t, m, []ledger.Event{
		{Seq: 8, Kind: ledger.EventDisputeRaised, TaskID: 1, TaskStatus: ledger.TaskDisputed,
			Actor: mirrorAgent, Timestamp: "2026-03-01T12:00:00Z"},
		{Seq: 9, Kind: ledger.EventDisputeResolved, TaskID: 1, TaskStatus: ledger.TaskFinalized,
			Actor: identity.MustParse("authority/arbiter"), Winner: mirrorAgent,
			CreatorPercent: 60, CreatorAmount: 30, AgentAmount: 20,
			Timestamp: "2026-03-01T12:00:00Z"},
	})

	escrow, _, err := m.Escrow(ctx, 1)
	if err != nil {
		t.Fatalf("Escrow: %v", err)
	}
	if escrow.CreatorAmount != 30 || escrow.AgentAmount != 20 {
		t.Errorf("dispute split = %d/%d, want 30/20", escrow.CreatorAmount, escrow.AgentAmount)
	}
	if escrow.Recipient != mirrorAgent {
		t.Errorf("dispute recipient = %s, want advisory winner", escrow.Recipient)
	}
	task, _, err := m.Task(ctx, 1)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if task.Status != ledger.TaskFinalized {
		t.Errorf("task status = %s, want finalized", task.Status)
	}
}

func TestHeldBalance(t *testing.T) {
	m := openTestMirror(t)
	ctx := context.Background()
	const ts = "2026-03-01T12:00:00Z"
	applyAll(t, m, []ledger.Event{
		{Seq: 1, Kind: ledger.EventTaskCreated, TaskID: 1, TaskStatus: ledger.TaskOpen,
			Actor: mirrorCreator, Amount: 50, Timestamp: ts},
		{Seq: 2, Kind: ledger.EventEscrowDeposited, TaskID: 1, TaskStatus: ledger.TaskOpen,
			Actor: mirrorCreator, Amount: 50, Timestamp: ts},
		{Seq: 3, Kind: ledger.EventTaskCreated, TaskID: 2, TaskStatus: ledger.TaskOpen,
			Actor: mirrorCreator, Amount: 30, Timestamp: ts},
		{Seq: 4, Kind: ledger.EventEscrowDeposited, TaskID: 2, TaskStatus: ledger.TaskOpen,
			Actor: mirrorCreator, Amount: 30, Timestamp: ts},
	})

	held, err := m.HeldBalance(ctx)
	if err != nil {
		t.Fatalf("HeldBalance: %v", err)
	}
	if held != 80 {
		t.Errorf("held = %d, want 80", held)
	}
}

func TestTasksByStatus(t *testing.T) {
	m := openTestMirror(t)
	ctx := context.Background()
	const ts = "2026-03-01T12:00:00Z"
	applyAll(t, m, []ledger.Event{
		{Seq: 1, Kind: ledger.EventTaskCreated, TaskID: 1, TaskStatus: ledger.TaskOpen,
			Actor: mirrorCreator, Amount: 50, Timestamp: ts},
		{Seq: 2, Kind: ledger.EventTaskCreated, TaskID: 2, TaskStatus: ledger.TaskOpen,
			Actor: mirrorCreator, Amount: 30, Timestamp: ts},
		{Seq: 3, Kind: ledger.EventTaskCancelled, TaskID: 2, TaskStatus: ledger.TaskCancelled,
			Actor: mirrorCreator, Timestamp: ts},
	})

	open, err := m.TasksByStatus(ctx, ledger.TaskOpen)
	if err != nil {
		t.Fatalf("TasksByStatus: %v", err)
	}
	if len(open) != 1 || open[0].ID != 1 {
		t.Errorf("open tasks = %v, want [task 1]", open)
	}
}

func TestRebuildFromJournal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "events.log")

	journal, err := eventlog.Open(journalPath, eventlog.Options{})
	if err != nil {
		t.Fatalf("eventlog.Open: %v", err)
	}
	for _, event := range lifecycleEvents() {
		event.Seq = 0 // the journal assigns sequence numbers
		journal.Record(event)
	}
	if err := journal.Err(); err != nil {
		t.Fatalf("journal: %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("journal.Close: %v", err)
	}

	m := openTestMirror(t)
	if err := m.Rebuild(ctx, journalPath); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	seq, err := m.LastSeq(ctx)
	if err != nil {
		t.Fatalf("LastSeq: %v", err)
	}
	if seq != 8 {
		t.Errorf("LastSeq after rebuild = %d, want 8", seq)
	}
	task, found, err := m.Task(ctx, 1)
	if err != nil || !found {
		t.Fatalf("Task after rebuild: found=%v err=%v", found, err)
	}
	if task.Status != ledger.TaskFinalized {
		t.Errorf("task status after rebuild = %s, want finalized", task.Status)
	}

	// A second rebuild wipes and replays to the same end state.
	if err := m.Rebuild(ctx, journalPath); err != nil {
		t.Fatalf("second Rebuild: %v", err)
	}
	bids, err := m.BidsForTask(ctx, 1)
	if err != nil {
		t.Fatalf("BidsForTask: %v", err)
	}
	if len(bids) != 2 {
		t.Errorf("second rebuild duplicated bids: got %d", len(bids))
	}
}
