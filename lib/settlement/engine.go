// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package settlement

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/taskvault/taskvault/lib/clock"
	"github.com/taskvault/taskvault/lib/identity"
	"github.com/taskvault/taskvault/lib/ledger"
)

// Operation names. These appear in every error and are the keys of
// the transition table.
const (
	opCreateTask       = "create_task"
	opDepositEscrow    = "deposit_escrow"
	opSubmitBid        = "submit_bid"
	opAcceptBid        = "accept_bid"
	opCompleteTask     = "complete_task"
	opApproveRelease   = "approve_and_release"
	opCancelTask       = "cancel_task"
	opRaiseDispute     = "raise_dispute"
	opResolveDispute   = "resolve_dispute"
	opReconcileAccept  = "reconcile_accept"
	opReconcileDeposit = "reconcile_deposit"
)

// allowedStates is the transition table: for each mutating operation,
// the task states it may start from. Consulted at the entry of every
// operation instead of scattering per-function status checks.
// create_task has no row because it addresses no existing task.
var allowedStates = map[string][]ledger.TaskStatus{
	opDepositEscrow:   {ledger.TaskOpen},
	opSubmitBid:       {ledger.TaskOpen},
	opAcceptBid:       {ledger.TaskOpen},
	opCompleteTask:    {ledger.TaskInProgress},
	opApproveRelease:  {ledger.TaskCompleted},
	opCancelTask:      {ledger.TaskOpen, ledger.TaskInProgress},
	opRaiseDispute:    {ledger.TaskInProgress, ledger.TaskCompleted},
	opResolveDispute:  {ledger.TaskDisputed},
	opReconcileAccept: {ledger.TaskOpen},
}

// checkTransition returns a StateError unless the task's current
// status is in the operation's allowed set.
func checkTransition(op string, task ledger.Task) error {
	for _, allowed := range allowedStates[op] {
		if task.Status == allowed {
			return nil
		}
	}
	return &ledger.StateError{
		Op:     op,
		TaskID: task.ID,
		Reason: fmt.Sprintf("not allowed from status %q", task.Status),
	}
}

// Credit is one payout leg of a settlement.
type Credit struct {
	// To receives the value.
	To identity.Actor

	// Amount is the value in base units. Always positive; zero legs
	// are dropped before the transferor sees them.
	Amount int64
}

// Transferor moves value between the vault and external accounts. The
// engine debits the ledger before calling either method; a transferor
// that reports failure triggers exact restoration of the pre-call
// records.
//
// Implementations must apply each call atomically (all legs or none)
// and must not call back into the engine — a callback that attempts a
// mutation fails at the re-entry guard.
type Transferor interface {
	// Collect withdraws amount from the actor's external account
	// into the vault. Called by deposit operations.
	Collect(from identity.Actor, amount int64) error

	// Disburse pays the listed credits out of the vault. Called by
	// release, refund, and dispute-split operations.
	Disburse(credits []Credit) error
}

// EventSink receives one event per committed state change. The
// journal implementation assigns sequence numbers and fans events out
// to the mirror; tests use an in-memory recorder.
type EventSink interface {
	Record(event ledger.Event)
}

// nopSink discards events. Used when no sink is configured.
type nopSink struct{}

func (nopSink) Record(ledger.Event) {}

// Config holds the engine's collaborators. Ledger, Clock, and
// Transferor are required; Sink defaults to a discard sink and Logger
// to a disabled logger.
type Config struct {
	// Ledger is the authoritative state. The engine must be its
	// only writer.
	Ledger *ledger.Ledger

	// Clock stamps createdAt/completedAt and event timestamps.
	Clock clock.Clock

	// Transferor moves external value.
	Transferor Transferor

	// Sink receives committed events.
	Sink EventSink

	// Authority is the arbitration authority permitted to resolve
	// disputes. If zero, every ResolveDispute call fails
	// authorization.
	Authority identity.Actor

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Engine is the settlement engine. Construct with [New]. Safe for
// concurrent use: mutating operations are serialized by the re-entry
// guard, reads are shared-locked.
type Engine struct {
	ledger     *ledger.Ledger
	clock      clock.Clock
	transferor Transferor
	sink       EventSink
	authority  identity.Actor
	logger     *slog.Logger

	// busy is the re-entry guard. Set for the full extent of every
	// mutating operation, including the external transferor call.
	// A mutating call that finds it set fails with a StateError
	// rather than block: blocking would turn a reentrant callback
	// into a self-deadlock.
	busy atomic.Bool

	// mu makes committed state visible to readers: mutations hold
	// the write lock, queries the read lock.
	mu sync.RWMutex
}

// New validates the configuration and returns an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("settlement: Ledger is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("settlement: Clock is required")
	}
	if cfg.Transferor == nil {
		return nil, fmt.Errorf("settlement: Transferor is required")
	}
	sink := cfg.Sink
	if sink == nil {
		sink = nopSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		ledger:     cfg.Ledger,
		clock:      cfg.Clock,
		transferor: cfg.Transferor,
		sink:       sink,
		authority:  cfg.Authority,
		logger:     logger,
	}, nil
}

// acquire takes the re-entry guard and the write lock. Every exit
// path of a mutating operation must go through release — callers
// defer it immediately on success.
func (e *Engine) acquire(op string) error {
	if !e.busy.CompareAndSwap(false, true) {
		return &ledger.StateError{
			Op:     op,
			Reason: "a settlement operation is already in flight",
		}
	}
	e.mu.Lock()
	return nil
}

// release drops the write lock and clears the re-entry guard.
func (e *Engine) release() {
	e.mu.Unlock()
	e.busy.Store(false)
}

// lookupTask resolves a task handle under the held lock.
func (e *Engine) lookupTask(op string, taskID uint64) (ledger.Task, error) {
	task, exists := e.ledger.Task(taskID)
	if !exists {
		return ledger.Task{}, &ledger.StateError{
			Op:     op,
			TaskID: taskID,
			Reason: "task does not exist",
		}
	}
	return task, nil
}

// emit validates and records a committed event. Events are built by
// the engine itself, so a validation failure is a bug, not input.
func (e *Engine) emit(event ledger.Event) {
	if err := event.Validate(); err != nil {
		panic("settlement: malformed event: " + err.Error())
	}
	e.sink.Record(event)
}

// timestamp returns the current commit time in the event wire format.
func (e *Engine) timestamp() string {
	return e.clock.Now().UTC().Format(timeFormat)
}

// timeFormat is RFC 3339 with second precision, matching the journal
// and mirror schema.
const timeFormat = "2006-01-02T15:04:05Z07:00"

// --- Read surface ---
//
// Queries return value snapshots of committed state. They never
// block behind the re-entry guard, only behind an in-flight write
// lock.

// GetTask returns a snapshot of the task with the given handle.
func (e *Engine) GetTask(taskID uint64) (ledger.Task, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Task(taskID)
}

// GetTaskByExternalRef resolves a mirror-supplied opaque identifier.
func (e *Engine) GetTaskByExternalRef(ref string) (ledger.Task, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.TaskByExternalRef(ref)
}

// GetBid returns a snapshot of the bid with the given handle.
func (e *Engine) GetBid(bidID uint64) (ledger.Bid, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Bid(bidID)
}

// GetEscrow returns a snapshot of the escrow for a task. The second
// return value is false if no escrow was ever deposited.
func (e *Engine) GetEscrow(taskID uint64) (ledger.Escrow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Escrow(taskID)
}

// ListTasks returns snapshots of tasks matching the filter in
// creation order.
func (e *Engine) ListTasks(filter ledger.Filter) []ledger.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.ListTasks(filter)
}

// BidsForTask returns snapshots of all bids on a task in submission
// order.
func (e *Engine) BidsForTask(taskID uint64) []ledger.Bid {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.BidsForTask(taskID)
}

// Stats returns aggregate ledger counts.
func (e *Engine) Stats() ledger.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Stats()
}

// HeldBalance returns the vault's custodied total.
func (e *Engine) HeldBalance() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.HeldBalance()
}

// CheckConsistency runs the ledger's cross-record invariant check.
func (e *Engine) CheckConsistency() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.CheckConsistency()
}
