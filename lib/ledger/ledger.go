// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"fmt"
	"slices"

	"github.com/taskvault/taskvault/lib/identity"
)

// Filter controls which tasks [Ledger.ListTasks] returns. Zero-value
// fields mean "no filter"; all non-zero fields must match.
type Filter struct {
	// Status matches tasks with this exact status.
	Status TaskStatus

	// Creator matches tasks posted by this actor.
	Creator identity.Actor

	// AssignedAgent matches tasks assigned to this actor.
	AssignedAgent identity.Actor
}

// Stats holds aggregate counts across the ledger.
type Stats struct {
	Tasks      int                `cbor:"tasks" json:"tasks"`
	Bids       int                `cbor:"bids" json:"bids"`
	ByStatus   map[TaskStatus]int `cbor:"by_status" json:"by_status"`
	HeldAmount int64              `cbor:"held_amount" json:"held_amount"`
}

// Ledger is the arena of tasks, bids, and escrows plus the vault's
// held-balance counter. Construct with [New]. Not safe for concurrent
// use — the settlement engine serializes all access.
type Ledger struct {
	tasks   map[uint64]Task
	bids    map[uint64]Bid
	escrows map[uint64]Escrow

	// bidsByTask maps a task handle to its bid handles in submission
	// order. Maintained by AddBid; never reordered.
	bidsByTask map[uint64][]uint64

	// byExternalRef maps mirror-supplied opaque task identifiers to
	// task handles.
	byExternalRef map[string]uint64

	// nextTaskID and nextBidID are the next handles to assign.
	// Handles start at 1 so that 0 always means "none".
	nextTaskID uint64
	nextBidID  uint64

	// held is the vault balance: the sum of all unreleased escrow
	// amounts. Adjusted only by the escrow methods below, in the
	// same step as the escrow record, so the two can never drift.
	held int64
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		tasks:         make(map[uint64]Task),
		bids:          make(map[uint64]Bid),
		escrows:       make(map[uint64]Escrow),
		bidsByTask:    make(map[uint64][]uint64),
		byExternalRef: make(map[string]uint64),
		nextTaskID:    1,
		nextBidID:     1,
	}
}

// --- Tasks ---

// AddTask assigns the next task handle, stores the record, and
// returns the stored snapshot. The caller (settlement engine) has
// already validated the fields. If the task carries an ExternalRef
// that is already bound to another task, AddTask fails.
func (l *Ledger) AddTask(task Task) (Task, error) {
	if task.ExternalRef != "" {
		if existing, bound := l.byExternalRef[task.ExternalRef]; bound {
			return Task{}, fmt.Errorf("external ref %q already bound to task %d", task.ExternalRef, existing)
		}
	}
	task.ID = l.nextTaskID
	l.nextTaskID++
	l.tasks[task.ID] = task
	if task.ExternalRef != "" {
		l.byExternalRef[task.ExternalRef] = task.ID
	}
	return task, nil
}

// Task returns a snapshot of the task with the given handle. The
// second return value is false if the handle was never assigned.
func (l *Ledger) Task(id uint64) (Task, bool) {
	task, exists := l.tasks[id]
	return task, exists
}

// TaskByExternalRef resolves a mirror-supplied opaque identifier to a
// task snapshot.
func (l *Ledger) TaskByExternalRef(ref string) (Task, bool) {
	id, bound := l.byExternalRef[ref]
	if !bound {
		return Task{}, false
	}
	return l.Task(id)
}

// PutTask replaces an existing task record. The replacement must keep
// the same handle and external ref, and must satisfy the assignment
// invariant (AssignedAgent set iff the status requires it). Fails if
// the handle does not exist.
func (l *Ledger) PutTask(task Task) error {
	current, exists := l.tasks[task.ID]
	if !exists {
		return fmt.Errorf("task %d does not exist", task.ID)
	}
	if task.ExternalRef != current.ExternalRef {
		return fmt.Errorf("task %d: external ref is immutable", task.ID)
	}
	if task.Status.assignable() != !task.AssignedAgent.IsZero() {
		return fmt.Errorf("task %d: status %s with assigned agent %q violates assignment invariant",
			task.ID, task.Status, task.AssignedAgent)
	}
	l.tasks[task.ID] = task
	return nil
}

// ListTasks returns snapshots of tasks matching the filter, ordered
// by handle (creation order).
func (l *Ledger) ListTasks(filter Filter) []Task {
	var result []Task
	for _, task := range l.tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if !filter.Creator.IsZero() && task.Creator != filter.Creator {
			continue
		}
		if !filter.AssignedAgent.IsZero() && task.AssignedAgent != filter.AssignedAgent {
			continue
		}
		result = append(result, task)
	}
	slices.SortFunc(result, func(a, b Task) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return result
}

// --- Bids ---

// AddBid assigns the next bid handle, stores the record, and indexes
// it under its task. Returns the stored snapshot.
func (l *Ledger) AddBid(bid Bid) Bid {
	bid.ID = l.nextBidID
	l.nextBidID++
	l.bids[bid.ID] = bid
	l.bidsByTask[bid.TaskID] = append(l.bidsByTask[bid.TaskID], bid.ID)
	return bid
}

// Bid returns a snapshot of the bid with the given handle.
func (l *Ledger) Bid(id uint64) (Bid, bool) {
	bid, exists := l.bids[id]
	return bid, exists
}

// PutBid replaces an existing bid record. The replacement must keep
// the same handle and task. Fails if the handle does not exist.
func (l *Ledger) PutBid(bid Bid) error {
	current, exists := l.bids[bid.ID]
	if !exists {
		return fmt.Errorf("bid %d does not exist", bid.ID)
	}
	if bid.TaskID != current.TaskID {
		return fmt.Errorf("bid %d: task binding is immutable", bid.ID)
	}
	l.bids[bid.ID] = bid
	return nil
}

// BidsForTask returns snapshots of all bids on a task in submission
// order.
func (l *Ledger) BidsForTask(taskID uint64) []Bid {
	handles := l.bidsByTask[taskID]
	result := make([]Bid, 0, len(handles))
	for _, id := range handles {
		result = append(result, l.bids[id])
	}
	return result
}

// AcceptedBid returns the accepted bid on a task, if any. At most one
// exists; acceptance rejects every other pending bid in the same
// operation.
func (l *Ledger) AcceptedBid(taskID uint64) (Bid, bool) {
	for _, id := range l.bidsByTask[taskID] {
		if bid := l.bids[id]; bid.Status == BidAccepted {
			return bid, true
		}
	}
	return Bid{}, false
}

// --- Escrow and vault accounting ---
//
// These are the only entry points that touch escrow amounts or the
// held counter. Each adjusts both in one step, which is what keeps the
// vault invariant (held == sum of unreleased escrow amounts) true by
// construction.

// DepositEscrow creates the escrow for a task, or increases an
// existing one, and raises the vault's held balance by the same
// amount. Fails on non-positive amounts, on a released escrow, and on
// a depositor mismatch with an existing escrow.
func (l *Ledger) DepositEscrow(taskID uint64, depositor identity.Actor, amount int64) (Escrow, error) {
	if amount <= 0 {
		return Escrow{}, fmt.Errorf("deposit amount must be positive, got %d", amount)
	}
	escrow, exists := l.escrows[taskID]
	if exists {
		if escrow.Released {
			return Escrow{}, fmt.Errorf("escrow for task %d is released and terminal", taskID)
		}
		if escrow.Depositor != depositor {
			return Escrow{}, fmt.Errorf("escrow for task %d belongs to depositor %q", taskID, escrow.Depositor)
		}
		escrow.Amount += amount
	} else {
		escrow = Escrow{TaskID: taskID, Amount: amount, Depositor: depositor}
	}
	l.escrows[taskID] = escrow
	l.held += amount
	return escrow, nil
}

// Escrow returns a snapshot of the escrow for a task. The zero value
// (Exists() == false) means no escrow was ever deposited.
func (l *Ledger) Escrow(taskID uint64) (Escrow, bool) {
	escrow, exists := l.escrows[taskID]
	return escrow, exists
}

// DrainEscrow zeroes the escrow's remaining balance, lowers the
// vault's held balance by the same amount, marks the escrow released
// with the given recipient, and returns the drained amount. This is
// the single exit path for custodied value — release, refund, and
// dispute split all settle through it, differing only in how the
// drained amount is divided afterward.
//
// Fails on a missing or already-released escrow.
func (l *Ledger) DrainEscrow(taskID uint64, recipient identity.Actor) (int64, error) {
	escrow, exists := l.escrows[taskID]
	if !exists {
		return 0, fmt.Errorf("no escrow for task %d", taskID)
	}
	if escrow.Released {
		return 0, fmt.Errorf("escrow for task %d is released and terminal", taskID)
	}
	drained := escrow.Amount
	escrow.Amount = 0
	escrow.Released = true
	escrow.Recipient = recipient
	l.escrows[taskID] = escrow
	l.held -= drained
	return drained, nil
}

// RestoreEscrow reinstates a drained escrow record exactly as it was
// before a failed settlement attempt: the compensation path when the
// external value transfer reports failure after the ledger was
// debited. The settlement engine holds its re-entry guard across the
// whole attempt, so no other operation can observe the intermediate
// state.
func (l *Ledger) RestoreEscrow(escrow Escrow) {
	previous, exists := l.escrows[escrow.TaskID]
	if exists && !previous.Released {
		l.held -= previous.Amount
	}
	l.escrows[escrow.TaskID] = escrow
	if !escrow.Released {
		l.held += escrow.Amount
	}
}

// RemoveEscrow deletes an escrow record and lowers the vault's held
// balance by its remaining amount. This is compensation for a failed
// initial deposit only — the external collection failed after the
// record was created, so the record must vanish entirely rather than
// be restored to a prior state that never existed.
func (l *Ledger) RemoveEscrow(taskID uint64) {
	escrow, exists := l.escrows[taskID]
	if !exists {
		return
	}
	if !escrow.Released {
		l.held -= escrow.Amount
	}
	delete(l.escrows, taskID)
}

// HeldBalance returns the vault's held balance: the total custodied
// value across all unreleased escrows.
func (l *Ledger) HeldBalance() int64 { return l.held }

// --- Consistency ---

// CheckConsistency verifies the cross-record invariants: the vault
// balance matches the escrow sum, no escrow is negative, task
// assignment matches status, and at most one bid per task is
// accepted. Used by tests and by the daemon's startup self-check
// after a journal replay.
func (l *Ledger) CheckConsistency() error {
	var sum int64
	for taskID, escrow := range l.escrows {
		if escrow.Amount < 0 {
			return fmt.Errorf("escrow for task %d has negative amount %d", taskID, escrow.Amount)
		}
		if escrow.Released && escrow.Amount != 0 {
			return fmt.Errorf("escrow for task %d is released with non-zero amount %d", taskID, escrow.Amount)
		}
		if !escrow.Released {
			sum += escrow.Amount
		}
	}
	if sum != l.held {
		return fmt.Errorf("vault holds %d but unreleased escrows sum to %d", l.held, sum)
	}
	for id, task := range l.tasks {
		if task.Status.assignable() != !task.AssignedAgent.IsZero() {
			return fmt.Errorf("task %d: status %s with assigned agent %q", id, task.Status, task.AssignedAgent)
		}
	}
	for taskID := range l.bidsByTask {
		accepted := 0
		for _, bidID := range l.bidsByTask[taskID] {
			if l.bids[bidID].Status == BidAccepted {
				accepted++
			}
		}
		if accepted > 1 {
			return fmt.Errorf("task %d has %d accepted bids", taskID, accepted)
		}
	}
	return nil
}

// Stats returns aggregate counts across the ledger.
func (l *Ledger) Stats() Stats {
	stats := Stats{
		Tasks:      len(l.tasks),
		Bids:       len(l.bids),
		ByStatus:   make(map[TaskStatus]int),
		HeldAmount: l.held,
	}
	for _, task := range l.tasks {
		stats.ByStatus[task.Status]++
	}
	return stats
}
