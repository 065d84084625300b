// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package settlement

import (
	"time"

	"github.com/taskvault/taskvault/lib/identity"
	"github.com/taskvault/taskvault/lib/ledger"
	"github.com/taskvault/taskvault/lib/resulthash"
)

// TaskSpec carries the caller-supplied fields of a new task.
type TaskSpec struct {
	// Title is a short summary. Required.
	Title string

	// Description is the full work statement. Optional.
	Description string

	// Reward is the amount the creator offers, in base units. Must
	// be positive. Re-pinned to the accepted bid's amount later.
	Reward int64

	// Deadline must be in the future at creation time. Informational
	// only; nothing auto-expires.
	Deadline time.Time

	// ExternalRef is the mirror's opaque identifier for a record it
	// pre-created, if any. Bound immutably to the task.
	ExternalRef string
}

// CreateTask posts a new open task. No funds move; escrow is a
// separate deposit.
func (e *Engine) CreateTask(creator identity.Actor, spec TaskSpec) (ledger.Task, error) {
	const op = opCreateTask
	if err := creator.Validate(); err != nil {
		return ledger.Task{}, &ledger.ValidationError{Op: op, Reason: "creator: " + err.Error()}
	}
	if spec.Title == "" {
		return ledger.Task{}, &ledger.ValidationError{Op: op, Reason: "title is empty"}
	}
	if spec.Reward <= 0 {
		return ledger.Task{}, &ledger.ValidationError{Op: op, Reason: "reward must be positive"}
	}
	if err := e.acquire(op); err != nil {
		return ledger.Task{}, err
	}
	defer e.release()

	now := e.clock.Now().UTC()
	if !spec.Deadline.After(now) {
		return ledger.Task{}, &ledger.ValidationError{Op: op, Reason: "deadline is not in the future"}
	}

	task, err := e.ledger.AddTask(ledger.Task{
		ExternalRef: spec.ExternalRef,
		Creator:     creator,
		Title:       spec.Title,
		Description: spec.Description,
		Reward:      spec.Reward,
		Deadline:    spec.Deadline,
		Status:      ledger.TaskOpen,
		CreatedAt:   now,
	})
	if err != nil {
		return ledger.Task{}, &ledger.ValidationError{Op: op, Reason: err.Error()}
	}

	e.emit(ledger.Event{
		Kind:        ledger.EventTaskCreated,
		TaskID:      task.ID,
		TaskStatus:  task.Status,
		Actor:       creator,
		Amount:      task.Reward,
		Title:       task.Title,
		Description: task.Description,
		Deadline:    task.Deadline.UTC().Format(timeFormat),
		ExternalRef: task.ExternalRef,
		Timestamp:   e.timestamp(),
	})
	e.logger.Info("task created", "task", task.ID, "creator", creator, "reward", task.Reward)
	return task, nil
}

// DepositEscrow locks amount from the task creator into the task's
// escrow. The ledger records the balance before the transferor is
// asked to collect; a failed collection removes or restores the
// record so no phantom balance survives.
func (e *Engine) DepositEscrow(taskID uint64, caller identity.Actor, amount int64) (ledger.Escrow, error) {
	const op = opDepositEscrow
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
	if err := checkTransition(op, task); err != nil {
		return ledger.Escrow{}, err
	}
	if caller != task.Creator {
		return ledger.Escrow{}, &ledger.AuthorizationError{Op: op, Actor: caller, Reason: "not the task creator"}
	}

	before, existed := e.ledger.Escrow(taskID)
	escrow, err := e.ledger.DepositEscrow(taskID, caller, amount)
	if err != nil {
		return ledger.Escrow{}, &ledger.StateError{Op: op, TaskID: taskID, Reason: err.Error()}
	}

	if err := e.transferor.Collect(caller, amount); err != nil {
		if existed {
			e.ledger.RestoreEscrow(before)
		} else {
			e.ledger.RemoveEscrow(taskID)
		}
		e.logger.Warn("escrow collection failed", "task", taskID, "amount", amount, "error", err)
		return ledger.Escrow{}, &ledger.FundsError{Op: op, TaskID: taskID, Required: amount}
	}

	e.emit(ledger.Event{
		Kind:       ledger.EventEscrowDeposited,
		TaskID:     taskID,
		TaskStatus: task.Status,
		Actor:      caller,
		Amount:     amount,
		Timestamp:  e.timestamp(),
	})
	e.logger.Info("escrow deposited", "task", taskID, "amount", amount, "total", escrow.Amount)
	return escrow, nil
}

// SubmitBid places a pending bid on an open task. The creator cannot
// bid on their own task.
func (e *Engine) SubmitBid(taskID uint64, agent identity.Actor, amount int64, message string) (ledger.Bid, error) {
	const op = opSubmitBid
	if err := agent.Validate(); err != nil {
		return ledger.Bid{}, &ledger.ValidationError{Op: op, Reason: "agent: " + err.Error()}
	}
	if amount <= 0 {
		return ledger.Bid{}, &ledger.ValidationError{Op: op, Reason: "bid amount must be positive"}
	}
	if err := e.acquire(op); err != nil {
		return ledger.Bid{}, err
	}
	defer e.release()

	task, err := e.lookupTask(op, taskID)
	if err != nil {
		return ledger.Bid{}, err
	}
	if err := checkTransition(op, task); err != nil {
		return ledger.Bid{}, err
	}
	if agent == task.Creator {
		return ledger.Bid{}, &ledger.AuthorizationError{Op: op, Actor: agent, Reason: "creator cannot bid on own task"}
	}

	bid := e.ledger.AddBid(ledger.Bid{
		TaskID:    taskID,
		Agent:     agent,
		Amount:    amount,
		Status:    ledger.BidPending,
		Message:   message,
		CreatedAt: e.clock.Now().UTC(),
	})

	e.emit(ledger.Event{
		Kind:       ledger.EventBidSubmitted,
		TaskID:     taskID,
		BidID:      bid.ID,
		TaskStatus: task.Status,
		BidStatus:  bid.Status,
		Actor:      agent,
		Amount:     amount,
		Message:    message,
		Timestamp:  e.timestamp(),
	})
	e.logger.Info("bid submitted", "task", taskID, "bid", bid.ID, "agent", agent, "amount", amount)
	return bid, nil
}

// AcceptBid assigns the bidding agent to the task, re-pins the reward
// to the bid amount, and rejects every other pending bid in the same
// commit. Requires the escrow to already cover the bid amount, so the
// agent never starts work against an underfunded task. No funds move.
func (e *Engine) AcceptBid(bidID uint64, caller identity.Actor) (ledger.Task, error) {
	const op = opAcceptBid
	if err := e.acquire(op); err != nil {
		return ledger.Task{}, err
	}
	defer e.release()
	return e.acceptBidLocked(op, bidID, caller)
}

// acceptBidLocked is the acceptance core, shared with the
// reconciliation entry point. Caller holds the guard.
func (e *Engine) acceptBidLocked(op string, bidID uint64, caller identity.Actor) (ledger.Task, error) {
	bid, exists := e.ledger.Bid(bidID)
	if !exists {
		return ledger.Task{}, &ledger.StateError{Op: op, Reason: "bid does not exist"}
	}
	task, err := e.lookupTask(op, bid.TaskID)
	if err != nil {
		return ledger.Task{}, err
	}
	if err := checkTransition(opAcceptBid, task); err != nil {
		return ledger.Task{}, err
	}
	if caller != task.Creator {
		return ledger.Task{}, &ledger.AuthorizationError{Op: op, Actor: caller, Reason: "not the task creator"}
	}
	if bid.Status != ledger.BidPending {
		return ledger.Task{}, &ledger.StateError{Op: op, TaskID: task.ID, Reason: "bid is not pending"}
	}
	escrow, _ := e.ledger.Escrow(task.ID)
	if escrow.Amount < bid.Amount {
		return ledger.Task{}, &ledger.FundsError{Op: op, TaskID: task.ID, Available: escrow.Amount, Required: bid.Amount}
	}

	bid.Status = ledger.BidAccepted
	if err := e.ledger.PutBid(bid); err != nil {
		return ledger.Task{}, &ledger.StateError{Op: op, TaskID: task.ID, Reason: err.Error()}
	}
	task.AssignedAgent = bid.Agent
	task.Reward = bid.Amount
	task.Status = ledger.TaskInProgress
	if err := e.ledger.PutTask(task); err != nil {
		return ledger.Task{}, &ledger.StateError{Op: op, TaskID: task.ID, Reason: err.Error()}
	}

	timestamp := e.timestamp()
	e.emit(ledger.Event{
		Kind:       ledger.EventBidAccepted,
		TaskID:     task.ID,
		BidID:      bid.ID,
		TaskStatus: task.Status,
		BidStatus:  bid.Status,
		Actor:      caller,
		Amount:     bid.Amount,
		Timestamp:  timestamp,
	})

	// Losers are rejected in the same commit, in submission order.
	for _, other := range e.ledger.BidsForTask(task.ID) {
		if other.ID == bid.ID || other.Status != ledger.BidPending {
			continue
		}
		other.Status = ledger.BidRejected
		if err := e.ledger.PutBid(other); err != nil {
			return ledger.Task{}, &ledger.StateError{Op: op, TaskID: task.ID, Reason: err.Error()}
		}
		e.emit(ledger.Event{
			Kind:       ledger.EventBidRejected,
			TaskID:     task.ID,
			BidID:      other.ID,
			TaskStatus: task.Status,
			BidStatus:  other.Status,
			Actor:      caller,
			Timestamp:  timestamp,
		})
	}

	e.logger.Info("bid accepted", "task", task.ID, "bid", bid.ID, "agent", bid.Agent, "reward", bid.Amount)
	return task, nil
}

// CompleteTask records the assigned agent's completion. The result is
// never stored; only its digest is emitted as the audit record.
func (e *Engine) CompleteTask(taskID uint64, caller identity.Actor, result []byte) (ledger.Task, error) {
	const op = opCompleteTask
	if err := e.acquire(op); err != nil {
		return ledger.Task{}, err
	}
	defer e.release()

	task, err := e.lookupTask(op, taskID)
	if err != nil {
		return ledger.Task{}, err
	}
	if err := checkTransition(op, task); err != nil {
		return ledger.Task{}, err
	}
	if caller != task.AssignedAgent {
		return ledger.Task{}, &ledger.AuthorizationError{Op: op, Actor: caller, Reason: "not the assigned agent"}
	}

	digest := resulthash.Sum(result)
	task.Status = ledger.TaskCompleted
	task.CompletedAt = e.clock.Now().UTC()
	if err := e.ledger.PutTask(task); err != nil {
		return ledger.Task{}, &ledger.StateError{Op: op, TaskID: taskID, Reason: err.Error()}
	}

	e.emit(ledger.Event{
		Kind:         ledger.EventTaskCompleted,
		TaskID:       taskID,
		TaskStatus:   task.Status,
		Actor:        caller,
		ResultDigest: digest.String(),
		Timestamp:    e.timestamp(),
	})
	e.logger.Info("task completed", "task", taskID, "agent", caller, "result_digest", digest)
	return task, nil
}

// ApproveAndRelease settles a completed task: the reward goes to the
// assigned agent and any escrow surplus returns to the creator. The
// escrow is drained and the task finalized before the transferor
// runs; a failed disbursement restores both exactly.
func (e *Engine) ApproveAndRelease(taskID uint64, caller identity.Actor) (ledger.Task, error) {
	const op = opApproveRelease
	if err := e.acquire(op); err != nil {
		return ledger.Task{}, err
	}
	defer e.release()

	task, err := e.lookupTask(op, taskID)
	if err != nil {
		return ledger.Task{}, err
	}
	if err := checkTransition(op, task); err != nil {
		return ledger.Task{}, err
	}
	if caller != task.Creator {
		return ledger.Task{}, &ledger.AuthorizationError{Op: op, Actor: caller, Reason: "not the task creator"}
	}
	escrow, exists := e.ledger.Escrow(taskID)
	if !exists || escrow.Amount < task.Reward {
		return ledger.Task{}, &ledger.FundsError{Op: op, TaskID: taskID, Available: escrow.Amount, Required: task.Reward}
	}

	taskBefore := task
	escrowBefore := escrow
	drained, err := e.ledger.DrainEscrow(taskID, task.AssignedAgent)
	if err != nil {
		return ledger.Task{}, &ledger.StateError{Op: op, TaskID: taskID, Reason: err.Error()}
	}
	agentAmount := task.Reward
	surplus := drained - agentAmount

	task.Status = ledger.TaskFinalized
	if err := e.ledger.PutTask(task); err != nil {
		e.ledger.RestoreEscrow(escrowBefore)
		return ledger.Task{}, &ledger.StateError{Op: op, TaskID: taskID, Reason: err.Error()}
	}

	credits := []Credit{{To: task.AssignedAgent, Amount: agentAmount}}
	if surplus > 0 {
		credits = append(credits, Credit{To: task.Creator, Amount: surplus})
	}
	if err := e.transferor.Disburse(credits); err != nil {
		e.ledger.RestoreEscrow(escrowBefore)
		if restoreErr := e.ledger.PutTask(taskBefore); restoreErr != nil {
			panic("settlement: release compensation failed: " + restoreErr.Error())
		}
		e.logger.Warn("release disbursement failed", "task", taskID, "error", err)
		return ledger.Task{}, &ledger.FundsError{Op: op, TaskID: taskID, Available: drained, Required: drained}
	}

	e.emit(ledger.Event{
		Kind:          ledger.EventEscrowReleased,
		TaskID:        taskID,
		TaskStatus:    task.Status,
		Actor:         caller,
		AgentAmount:   agentAmount,
		CreatorAmount: surplus,
		Timestamp:     e.timestamp(),
	})
	e.logger.Info("escrow released", "task", taskID, "agent_amount", agentAmount, "surplus", surplus)
	return task, nil
}

// CancelTask cancels an open or in-progress task and refunds the full
// remaining escrow to the creator. Cancelling from in_progress clears
// the assigned agent; their accepted bid stays accepted as the
// historical record.
func (e *Engine) CancelTask(taskID uint64, caller identity.Actor) (ledger.Task, error) {
	const op = opCancelTask
	if err := e.acquire(op); err != nil {
		return ledger.Task{}, err
	}
	defer e.release()

	task, err := e.lookupTask(op, taskID)
	if err != nil {
		return ledger.Task{}, err
	}
	if err := checkTransition(op, task); err != nil {
		return ledger.Task{}, err
	}
	if caller != task.Creator {
		return ledger.Task{}, &ledger.AuthorizationError{Op: op, Actor: caller, Reason: "not the task creator"}
	}

	taskBefore := task
	var refund int64
	escrowBefore, hasEscrow := e.ledger.Escrow(taskID)
	if hasEscrow {
		refund, err = e.ledger.DrainEscrow(taskID, task.Creator)
		if err != nil {
			return ledger.Task{}, &ledger.StateError{Op: op, TaskID: taskID, Reason: err.Error()}
		}
	}

	task.Status = ledger.TaskCancelled
	task.AssignedAgent = identity.Actor("")
	if err := e.ledger.PutTask(task); err != nil {
		if hasEscrow {
			e.ledger.RestoreEscrow(escrowBefore)
		}
		return ledger.Task{}, &ledger.StateError{Op: op, TaskID: taskID, Reason: err.Error()}
	}

	if refund > 0 {
		if err := e.transferor.Disburse([]Credit{{To: task.Creator, Amount: refund}}); err != nil {
			e.ledger.RestoreEscrow(escrowBefore)
			if restoreErr := e.ledger.PutTask(taskBefore); restoreErr != nil {
				panic("settlement: cancellation compensation failed: " + restoreErr.Error())
			}
			e.logger.Warn("refund disbursement failed", "task", taskID, "error", err)
			return ledger.Task{}, &ledger.FundsError{Op: op, TaskID: taskID, Available: refund, Required: refund}
		}
	}

	e.emit(ledger.Event{
		Kind:          ledger.EventTaskCancelled,
		TaskID:        taskID,
		TaskStatus:    task.Status,
		Actor:         caller,
		CreatorAmount: refund,
		Timestamp:     e.timestamp(),
	})
	e.logger.Info("task cancelled", "task", taskID, "refund", refund)
	return task, nil
}

// RaiseDispute escalates an in-progress or completed task to the
// arbitration authority. Callable by the creator or the assigned
// agent. Funds stay locked until resolution.
func (e *Engine) RaiseDispute(taskID uint64, caller identity.Actor) (ledger.Task, error) {
	const op = opRaiseDispute
	if err := e.acquire(op); err != nil {
		return ledger.Task{}, err
	}
	defer e.release()

	task, err := e.lookupTask(op, taskID)
	if err != nil {
		return ledger.Task{}, err
	}
	if err := checkTransition(op, task); err != nil {
		return ledger.Task{}, err
	}
	if caller != task.Creator && caller != task.AssignedAgent {
		return ledger.Task{}, &ledger.AuthorizationError{Op: op, Actor: caller, Reason: "neither creator nor assigned agent"}
	}

	task.Status = ledger.TaskDisputed
	if err := e.ledger.PutTask(task); err != nil {
		return ledger.Task{}, &ledger.StateError{Op: op, TaskID: taskID, Reason: err.Error()}
	}

	e.emit(ledger.Event{
		Kind:       ledger.EventDisputeRaised,
		TaskID:     taskID,
		TaskStatus: task.Status,
		Actor:      caller,
		Timestamp:  e.timestamp(),
	})
	e.logger.Info("dispute raised", "task", taskID, "by", caller)
	return task, nil
}
