// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/taskvault/taskvault/lib/eventlog"
	"github.com/taskvault/taskvault/lib/identity"
	"github.com/taskvault/taskvault/lib/ledger"
)

// restoreLedger replays the journal at path into a fresh ledger,
// applying each event directly with the ledger primitives. No
// transferor is involved: the external transfers already happened in
// the process that journaled the events, so replay only rebuilds the
// records and the held-balance counter.
//
// Arena handles are assigned in insertion order by the ledger and in
// commit order by the original process, so replayed ids must line up
// with the ids the events carry. A mismatch means the journal and the
// ledger code disagree and the restore is aborted.
func restoreLedger(path string) (*ledger.Ledger, int, error) {
	led := ledger.New()
	count := 0

	err := eventlog.Replay(path, func(event ledger.Event) error {
		count++
		if err := applyToLedger(led, event); err != nil {
			return fmt.Errorf("event %d (%s): %w", event.Seq, event.Kind, err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	if err := led.CheckConsistency(); err != nil {
		return nil, 0, fmt.Errorf("restored ledger inconsistent: %w", err)
	}
	return led, count, nil
}

func applyToLedger(led *ledger.Ledger, event ledger.Event) error {
	switch event.Kind {
	case ledger.EventTaskCreated:
		createdAt, err := time.Parse(time.RFC3339, event.Timestamp)
		if err != nil {
			return fmt.Errorf("parsing timestamp: %w", err)
		}
		var deadline time.Time
		if event.Deadline != "" {
			deadline, err = time.Parse(time.RFC3339, event.Deadline)
			if err != nil {
				return fmt.Errorf("parsing deadline: %w", err)
			}
		}
		task, err := led.AddTask(ledger.Task{
			ExternalRef: event.ExternalRef,
			Creator:     event.Actor,
			Title:       event.Title,
			Description: event.Description,
			Reward:      event.Amount,
			Deadline:    deadline,
			Status:      event.TaskStatus,
			CreatedAt:   createdAt,
		})
		if err != nil {
			return err
		}
		if task.ID != event.TaskID {
			return fmt.Errorf("replayed task id %d, journal says %d", task.ID, event.TaskID)
		}
		return nil

	case ledger.EventEscrowDeposited:
		_, err := led.DepositEscrow(event.TaskID, event.Actor, event.Amount)
		return err

	case ledger.EventBidSubmitted:
		createdAt, err := time.Parse(time.RFC3339, event.Timestamp)
		if err != nil {
			return fmt.Errorf("parsing timestamp: %w", err)
		}
		bid := led.AddBid(ledger.Bid{
			TaskID:    event.TaskID,
			Agent:     event.Actor,
			Amount:    event.Amount,
			Status:    event.BidStatus,
			Message:   event.Message,
			CreatedAt: createdAt,
		})
		if bid.ID != event.BidID {
			return fmt.Errorf("replayed bid id %d, journal says %d", bid.ID, event.BidID)
		}
		return nil

	case ledger.EventBidAccepted:
		bid, exists := led.Bid(event.BidID)
		if !exists {
			return fmt.Errorf("bid %d not found", event.BidID)
		}
		bid.Status = event.BidStatus
		if err := led.PutBid(bid); err != nil {
			return err
		}
		return updateTask(led, event.TaskID, func(task *ledger.Task) {
			task.AssignedAgent = bid.Agent
			task.Reward = event.Amount
			task.Status = event.TaskStatus
		})

	case ledger.EventBidRejected:
		bid, exists := led.Bid(event.BidID)
		if !exists {
			return fmt.Errorf("bid %d not found", event.BidID)
		}
		bid.Status = event.BidStatus
		return led.PutBid(bid)

	case ledger.EventTaskCompleted:
		completedAt, err := time.Parse(time.RFC3339, event.Timestamp)
		if err != nil {
			return fmt.Errorf("parsing timestamp: %w", err)
		}
		return updateTask(led, event.TaskID, func(task *ledger.Task) {
			task.Status = event.TaskStatus
			task.CompletedAt = completedAt
		})

	case ledger.EventEscrowReleased:
		task, exists := led.Task(event.TaskID)
		if !exists {
			return fmt.Errorf("task %d not found", event.TaskID)
		}
		if _, err := led.DrainEscrow(event.TaskID, task.AssignedAgent); err != nil {
			return err
		}
		return updateTask(led, event.TaskID, func(task *ledger.Task) {
			task.Status = event.TaskStatus
		})

	case ledger.EventTaskCancelled:
		task, exists := led.Task(event.TaskID)
		if !exists {
			return fmt.Errorf("task %d not found", event.TaskID)
		}
		if escrow, hasEscrow := led.Escrow(event.TaskID); hasEscrow && !escrow.Released {
			if _, err := led.DrainEscrow(event.TaskID, task.Creator); err != nil {
				return err
			}
		}
		return updateTask(led, event.TaskID, func(task *ledger.Task) {
			task.Status = event.TaskStatus
			task.AssignedAgent = identity.Actor("")
		})

	case ledger.EventDisputeRaised:
		return updateTask(led, event.TaskID, func(task *ledger.Task) {
			task.Status = event.TaskStatus
		})

	case ledger.EventDisputeResolved:
		if _, err := led.DrainEscrow(event.TaskID, event.Winner); err != nil {
			return err
		}
		return updateTask(led, event.TaskID, func(task *ledger.Task) {
			task.Status = event.TaskStatus
		})

	default:
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}
}

func updateTask(led *ledger.Ledger, taskID uint64, mutate func(*ledger.Task)) error {
	task, exists := led.Task(taskID)
	if !exists {
		return fmt.Errorf("task %d not found", taskID)
	}
	mutate(&task)
	return led.PutTask(task)
}
