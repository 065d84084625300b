// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package settlement

import (
	"github.com/taskvault/taskvault/lib/identity"
	"github.com/taskvault/taskvault/lib/ledger"
)

// ResolveDispute is the authority-gated override of normal
// settlement. The remaining escrow balance is split by percentage:
// the creator receives floor(balance * creatorPercent / 100) and the
// agent the remainder, so the balance is always exhausted exactly.
//
// winner names the party the authority found for. It is advisory
// metadata on the emitted event and the escrow record; it never
// affects the split.
func (e *Engine) ResolveDispute(taskID uint64, caller identity.Actor, winner identity.Actor, creatorPercent int64) (ledger.Task, error) {
	const op = opResolveDispute
	if creatorPercent < 0 || creatorPercent > 100 {
		return ledger.Task{}, &ledger.ValidationError{Op: op, Reason: "creator percent must be in [0, 100]"}
	}
	if err := e.acquire(op); err != nil {
		return ledger.Task{}, err
	}
	defer e.release()

	if e.authority.IsZero() || caller != e.authority {
		return ledger.Task{}, &ledger.AuthorizationError{Op: op, Actor: caller, Reason: "not the arbitration authority"}
	}
	task, err := e.lookupTask(op, taskID)
	if err != nil {
		return ledger.Task{}, err
	}
	if err := checkTransition(op, task); err != nil {
		return ledger.Task{}, err
	}
	if winner != task.Creator && winner != task.AssignedAgent {
		return ledger.Task{}, &ledger.ValidationError{Op: op, Reason: "winner must be the creator or the assigned agent"}
	}

	taskBefore := task
	var balance int64
	escrowBefore, hasEscrow := e.ledger.Escrow(taskID)
	if hasEscrow {
		balance, err = e.ledger.DrainEscrow(taskID, winner)
		if err != nil {
			return ledger.Task{}, &ledger.StateError{Op: op, TaskID: taskID, Reason: err.Error()}
		}
	}
	creatorAmount := balance * creatorPercent / 100
	agentAmount := balance - creatorAmount

	task.Status = ledger.TaskFinalized
	if err := e.ledger.PutTask(task); err != nil {
		if hasEscrow {
			e.ledger.RestoreEscrow(escrowBefore)
		}
		return ledger.Task{}, &ledger.StateError{Op: op, TaskID: taskID, Reason: err.Error()}
	}

	var credits []Credit
	if creatorAmount > 0 {
		credits = append(credits, Credit{To: task.Creator, Amount: creatorAmount})
	}
	if agentAmount > 0 {
		credits = append(credits, Credit{To: task.AssignedAgent, Amount: agentAmount})
	}
	if len(credits) > 0 {
		if err := e.transferor.Disburse(credits); err != nil {
			e.ledger.RestoreEscrow(escrowBefore)
			if restoreErr := e.ledger.PutTask(taskBefore); restoreErr != nil {
				panic("settlement: dispute compensation failed: " + restoreErr.Error())
			}
			e.logger.Warn("dispute disbursement failed", "task", taskID, "error", err)
			return ledger.Task{}, &ledger.FundsError{Op: op, TaskID: taskID, Available: balance, Required: balance}
		}
	}

	e.emit(ledger.Event{
		Kind:           ledger.EventDisputeResolved,
		TaskID:         taskID,
		TaskStatus:     task.Status,
		Actor:          caller,
		AgentAmount:    agentAmount,
		CreatorAmount:  creatorAmount,
		Winner:         winner,
		CreatorPercent: creatorPercent,
		Timestamp:      e.timestamp(),
	})
	e.logger.Info("dispute resolved", "task", taskID,
		"winner", winner, "creator_amount", creatorAmount, "agent_amount", agentAmount)
	return task, nil
}
