// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"fmt"

	"github.com/taskvault/taskvault/lib/identity"
)

// EventKind identifies a committed state change. One event is emitted
// per commit — reconciliation no-ops commit nothing and therefore
// emit nothing.
type EventKind string

const (
	// EventTaskCreated: a new task entered the ledger, status open.
	EventTaskCreated EventKind = "task_created"

	// EventEscrowDeposited: the creator locked funds against a task.
	// Amount carries the deposited value.
	EventEscrowDeposited EventKind = "escrow_deposited"

	// EventBidSubmitted: an agent placed a bid. BidID and Amount are
	// set.
	EventBidSubmitted EventKind = "bid_submitted"

	// EventBidAccepted: the creator accepted a bid; the task moved
	// to in_progress and its reward was re-pinned to the bid amount.
	EventBidAccepted EventKind = "bid_accepted"

	// EventBidRejected: a still-pending bid was passed over in the
	// same commit that accepted another bid on the task.
	EventBidRejected EventKind = "bid_rejected"

	// EventTaskCompleted: the assigned agent submitted a result.
	// ResultDigest carries the audit digest; the ledger stores no
	// mutable copy of the result.
	EventTaskCompleted EventKind = "task_completed"

	// EventEscrowReleased: the creator approved; the reward went to
	// the agent (AgentAmount) and any surplus back to the creator
	// (CreatorAmount). Task finalized, escrow terminal.
	EventEscrowReleased EventKind = "escrow_released"

	// EventTaskCancelled: the creator cancelled; the full remaining
	// escrow (CreatorAmount) was refunded. Task cancelled, escrow
	// terminal if one existed.
	EventTaskCancelled EventKind = "task_cancelled"

	// EventDisputeRaised: creator or agent escalated to the
	// arbitration authority.
	EventDisputeRaised EventKind = "dispute_raised"

	// EventDisputeResolved: the authority split the remaining
	// balance. CreatorAmount and AgentAmount record the split,
	// Winner and CreatorPercent the advisory resolution metadata.
	EventDisputeResolved EventKind = "dispute_resolved"
)

// Event is one committed state change, carrying everything the
// off-chain mirror needs to rebuild its copy without re-deriving
// business rules: the entity handles, the new state, the acting
// party, and the amounts that moved.
type Event struct {
	// Seq is the journal sequence number, assigned at append time.
	// Zero until journaled.
	Seq uint64 `cbor:"seq" json:"seq"`

	// Kind identifies the state change.
	Kind EventKind `cbor:"kind" json:"kind"`

	// TaskID is the task the change applies to.
	TaskID uint64 `cbor:"task_id" json:"task_id"`

	// BidID is set for bid events.
	BidID uint64 `cbor:"bid_id,omitempty" json:"bid_id,omitempty"`

	// TaskStatus is the task's lifecycle state after the commit.
	TaskStatus TaskStatus `cbor:"task_status" json:"task_status"`

	// BidStatus is the bid's lifecycle state after the commit, for
	// bid events.
	BidStatus BidStatus `cbor:"bid_status,omitempty" json:"bid_status,omitempty"`

	// Actor performed the operation.
	Actor identity.Actor `cbor:"actor" json:"actor"`

	// Title, Description, Deadline, and ExternalRef carry the task's
	// descriptive fields on task_created events, so a journal replay
	// restores the full record. Deadline is RFC 3339 UTC.
	Title       string `cbor:"title,omitempty" json:"title,omitempty"`
	Description string `cbor:"description,omitempty" json:"description,omitempty"`
	Deadline    string `cbor:"deadline,omitempty" json:"deadline,omitempty"`
	ExternalRef string `cbor:"external_ref,omitempty" json:"external_ref,omitempty"`

	// Message is the bid's pitch, on bid_submitted events.
	Message string `cbor:"message,omitempty" json:"message,omitempty"`

	// Amount is the value attached to the operation itself: the
	// deposit amount, the bid amount.
	Amount int64 `cbor:"amount,omitempty" json:"amount,omitempty"`

	// AgentAmount is the value paid to the assigned agent in this
	// commit.
	AgentAmount int64 `cbor:"agent_amount,omitempty" json:"agent_amount,omitempty"`

	// CreatorAmount is the value paid back to the creator in this
	// commit (surplus refund, cancellation refund, dispute share).
	CreatorAmount int64 `cbor:"creator_amount,omitempty" json:"creator_amount,omitempty"`

	// ResultDigest is the hex BLAKE3 digest of the completion
	// result, on task_completed events.
	ResultDigest string `cbor:"result_digest,omitempty" json:"result_digest,omitempty"`

	// Winner is the advisory winner named by the arbitration
	// authority on dispute_resolved events. It does not affect the
	// split.
	Winner identity.Actor `cbor:"winner,omitempty" json:"winner,omitempty"`

	// CreatorPercent is the split percentage on dispute_resolved
	// events.
	CreatorPercent int64 `cbor:"creator_percent,omitempty" json:"creator_percent,omitempty"`

	// Timestamp is the commit time, RFC 3339 UTC.
	Timestamp string `cbor:"timestamp" json:"timestamp"`
}

// Validate checks the structural requirements shared by all event
// kinds. The journal refuses malformed events rather than persisting
// them.
func (e *Event) Validate() error {
	if e.Kind == "" {
		return fmt.Errorf("event: kind is required")
	}
	if e.TaskID == 0 {
		return fmt.Errorf("event: task_id is required")
	}
	if e.TaskStatus == "" {
		return fmt.Errorf("event: task_status is required")
	}
	if e.Actor.IsZero() {
		return fmt.Errorf("event: actor is required")
	}
	if e.Timestamp == "" {
		return fmt.Errorf("event: timestamp is required")
	}
	switch e.Kind {
	case EventBidSubmitted, EventBidAccepted, EventBidRejected:
		if e.BidID == 0 {
			return fmt.Errorf("event: bid_id is required for %s", e.Kind)
		}
	case EventTaskCompleted:
		if e.ResultDigest == "" {
			return fmt.Errorf("event: result_digest is required for %s", e.Kind)
		}
	}
	return nil
}
