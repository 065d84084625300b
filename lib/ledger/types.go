// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"time"

	"github.com/taskvault/taskvault/lib/identity"
)

// TaskStatus is the lifecycle state of a task. Transitions are
// enforced by the settlement engine's transition table, not here.
type TaskStatus string

const (
	// TaskOpen: created, accepting bids and deposits.
	TaskOpen TaskStatus = "open"

	// TaskInProgress: a bid was accepted; the assigned agent is
	// working.
	TaskInProgress TaskStatus = "in_progress"

	// TaskCompleted: the assigned agent submitted a result; awaiting
	// the creator's approval.
	TaskCompleted TaskStatus = "completed"

	// TaskDisputed: creator or agent raised a dispute; awaiting the
	// arbitration authority.
	TaskDisputed TaskStatus = "disputed"

	// TaskFinalized: settled by approval or dispute resolution.
	// Terminal.
	TaskFinalized TaskStatus = "finalized"

	// TaskCancelled: cancelled by the creator; escrow refunded.
	// Terminal.
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskFinalized || s == TaskCancelled
}

// assignable reports whether the status requires AssignedAgent to be
// set. The task invariant is: AssignedAgent is non-zero if and only
// if assignable(status).
func (s TaskStatus) assignable() bool {
	switch s {
	case TaskInProgress, TaskCompleted, TaskDisputed, TaskFinalized:
		return true
	}
	return false
}

// BidStatus is the lifecycle state of a bid.
type BidStatus string

const (
	// BidPending: submitted, not yet decided.
	BidPending BidStatus = "pending"

	// BidAccepted: chosen by the task creator. At most one bid per
	// task ever holds this status.
	BidAccepted BidStatus = "accepted"

	// BidRejected: passed over when another bid was accepted.
	BidRejected BidStatus = "rejected"
)

// Task is a unit of work with a reward held in escrow. Tasks are
// value snapshots at the API boundary; mutate only through the
// settlement engine.
type Task struct {
	// ID is the arena handle, strictly increasing from 1.
	ID uint64 `cbor:"id" json:"id"`

	// ExternalRef is an opaque identifier supplied by the off-chain
	// mirror when it pre-created its own record for this task. The
	// ledger never interprets it; it exists so reconciliation
	// requests can address tasks by the mirror's key.
	ExternalRef string `cbor:"external_ref,omitempty" json:"external_ref,omitempty"`

	// Creator posted the task and is the only actor allowed to
	// deposit escrow, accept bids, approve release, or cancel.
	Creator identity.Actor `cbor:"creator" json:"creator"`

	// AssignedAgent is the agent whose bid was accepted. Zero while
	// the task is Open or Cancelled-from-Open; set for InProgress,
	// Completed, Disputed, and Finalized.
	AssignedAgent identity.Actor `cbor:"assigned_agent,omitempty" json:"assigned_agent,omitempty"`

	// Title is a short summary. Required.
	Title string `cbor:"title" json:"title"`

	// Description is the full work statement.
	Description string `cbor:"description,omitempty" json:"description,omitempty"`

	// Reward is the amount owed to the agent on release, in base
	// units. Set at creation, then overwritten with the accepted
	// bid's amount.
	Reward int64 `cbor:"reward" json:"reward"`

	// Deadline is informational only: it is validated to be in the
	// future at creation and never auto-expires the task.
	Deadline time.Time `cbor:"deadline" json:"deadline"`

	// Status is the lifecycle state.
	Status TaskStatus `cbor:"status" json:"status"`

	// CreatedAt is the creation commit time.
	CreatedAt time.Time `cbor:"created_at" json:"created_at"`

	// CompletedAt is set when the task reaches Completed. Zero
	// until then.
	CompletedAt time.Time `cbor:"completed_at" json:"completed_at"`
}

// Bid is a competing proposal from an agent to perform a task for a
// stated amount.
type Bid struct {
	// ID is the arena handle, strictly increasing from 1. Bid
	// handles share one sequence across all tasks.
	ID uint64 `cbor:"id" json:"id"`

	// TaskID references the task the bid was placed on.
	TaskID uint64 `cbor:"task_id" json:"task_id"`

	// Agent placed the bid and becomes the assigned agent if the
	// bid is accepted.
	Agent identity.Actor `cbor:"agent" json:"agent"`

	// Amount is the price the agent asks, in base units.
	Amount int64 `cbor:"amount" json:"amount"`

	// Status is the bid lifecycle state.
	Status BidStatus `cbor:"status" json:"status"`

	// Message is a free-form pitch accompanying the bid.
	Message string `cbor:"message,omitempty" json:"message,omitempty"`

	// CreatedAt is the submission commit time.
	CreatedAt time.Time `cbor:"created_at" json:"created_at"`
}

// Escrow is the custodied balance locked against a task. One escrow
// per task. Once Released is true the record is terminal — the ledger
// refuses every further mutation of it.
type Escrow struct {
	// TaskID keys the escrow.
	TaskID uint64 `cbor:"task_id" json:"task_id"`

	// Amount is the remaining locked balance, in base units. Never
	// negative.
	Amount int64 `cbor:"amount" json:"amount"`

	// Depositor locked the funds (always the task creator).
	Depositor identity.Actor `cbor:"depositor" json:"depositor"`

	// Recipient is set only when the escrow is closed: the assigned
	// agent on release, the creator on refund, the advisory winner
	// on a dispute split.
	Recipient identity.Actor `cbor:"recipient,omitempty" json:"recipient,omitempty"`

	// Released marks the terminal state.
	Released bool `cbor:"released" json:"released"`
}

// Exists is a convenience for the query surface: the zero Escrow
// (TaskID 0) means "no escrow for this task".
func (e Escrow) Exists() bool { return e.TaskID != 0 }
