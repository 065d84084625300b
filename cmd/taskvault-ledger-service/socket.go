// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskvault/taskvault/lib/authority"
	"github.com/taskvault/taskvault/lib/clock"
	"github.com/taskvault/taskvault/lib/codec"
	"github.com/taskvault/taskvault/lib/eventlog"
	"github.com/taskvault/taskvault/lib/identity"
	"github.com/taskvault/taskvault/lib/ledger"
	"github.com/taskvault/taskvault/lib/mirror"
	"github.com/taskvault/taskvault/lib/service"
	"github.com/taskvault/taskvault/lib/settlement"
)

// resolveAction is the capability an arbitration token must grant to
// resolve a dispute against a task's creator.
const resolveAction = "dispute/resolve"

// LedgerService is the daemon's core state: the settlement engine and
// its collaborators, plus what the status action reports.
type LedgerService struct {
	engine   *settlement.Engine
	journal  *eventlog.Journal
	mirror   *mirror.Mirror
	accounts *Accounts
	clock    clock.Clock

	// signingKey verifies arbitration tokens on dispute-resolve.
	signingKey ed25519.PublicKey

	startedAt time.Time
	logger    *slog.Logger
}

// classifyError maps the settlement error taxonomy to the wire codes
// clients switch on.
func classifyError(err error) string {
	switch {
	case ledger.IsValidation(err):
		return "validation"
	case ledger.IsAuthorization(err):
		return "authorization"
	case ledger.IsState(err):
		return "state"
	case ledger.IsFunds(err):
		return "funds"
	}
	return ""
}

// registerActions wires every socket action onto the server.
func (ls *LedgerService) registerActions(server *service.SocketServer) {
	server.ClassifyErrors(classifyError)

	server.Handle("task-create", ls.handleTaskCreate)
	server.Handle("escrow-deposit", ls.handleEscrowDeposit)
	server.Handle("bid-submit", ls.handleBidSubmit)
	server.Handle("bid-accept", ls.handleBidAccept)
	server.Handle("task-complete", ls.handleTaskComplete)
	server.Handle("task-approve", ls.handleTaskApprove)
	server.Handle("task-cancel", ls.handleTaskCancel)
	server.Handle("dispute-raise", ls.handleDisputeRaise)
	server.Handle("dispute-resolve", ls.handleDisputeResolve)
	server.Handle("reconcile-accept", ls.handleReconcileAccept)
	server.Handle("reconcile-deposit", ls.handleReconcileDeposit)

	server.Handle("task-get", ls.handleTaskGet)
	server.Handle("task-list", ls.handleTaskList)
	server.Handle("bid-get", ls.handleBidGet)
	server.Handle("bid-list", ls.handleBidList)
	server.Handle("escrow-get", ls.handleEscrowGet)
	server.Handle("stats", ls.handleStats)
	server.Handle("status", ls.handleStatus)

	server.Handle("account-credit", ls.handleAccountCredit)
	server.Handle("account-balance", ls.handleAccountBalance)
}

// checkJournal refuses mutations once the journal has latched a write
// failure: committing state changes that cannot be made durable would
// silently fork the ledger from its own record.
func (ls *LedgerService) checkJournal() error {
	if err := ls.journal.Err(); err != nil {
		return fmt.Errorf("journal failed, mutations disabled: %w", err)
	}
	return nil
}

func (ls *LedgerService) handleTaskCreate(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Creator     identity.Actor `cbor:"creator"`
		Title       string         `cbor:"title"`
		Description string         `cbor:"description"`
		Reward      int64          `cbor:"reward"`
		Deadline    string         `cbor:"deadline"`
		ExternalRef string         `cbor:"external_ref"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := ls.checkJournal(); err != nil {
		return nil, err
	}

	deadline, err := time.Parse(time.RFC3339, request.Deadline)
	if err != nil {
		return nil, &ledger.ValidationError{Op: "create_task", Reason: "deadline: " + err.Error()}
	}

	return ls.engine.CreateTask(request.Creator, settlement.TaskSpec{
		Title:       request.Title,
		Description: request.Description,
		Reward:      request.Reward,
		Deadline:    deadline,
		ExternalRef: request.ExternalRef,
	})
}

func (ls *LedgerService) handleEscrowDeposit(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		TaskID uint64         `cbor:"task_id"`
		Caller identity.Actor `cbor:"caller"`
		Amount int64          `cbor:"amount"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := ls.checkJournal(); err != nil {
		return nil, err
	}
	return ls.engine.DepositEscrow(request.TaskID, request.Caller, request.Amount)
}

func (ls *LedgerService) handleBidSubmit(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		TaskID  uint64         `cbor:"task_id"`
		Agent   identity.Actor `cbor:"agent"`
		Amount  int64          `cbor:"amount"`
		Message string         `cbor:"message"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := ls.checkJournal(); err != nil {
		return nil, err
	}
	return ls.engine.SubmitBid(request.TaskID, request.Agent, request.Amount, request.Message)
}

func (ls *LedgerService) handleBidAccept(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		BidID  uint64         `cbor:"bid_id"`
		Caller identity.Actor `cbor:"caller"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := ls.checkJournal(); err != nil {
		return nil, err
	}
	return ls.engine.AcceptBid(request.BidID, request.Caller)
}

func (ls *LedgerService) handleTaskComplete(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		TaskID uint64         `cbor:"task_id"`
		Caller identity.Actor `cbor:"caller"`
		Result []byte         `cbor:"result"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := ls.checkJournal(); err != nil {
		return nil, err
	}
	return ls.engine.CompleteTask(request.TaskID, request.Caller, request.Result)
}

func (ls *LedgerService) handleTaskApprove(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		TaskID uint64         `cbor:"task_id"`
		Caller identity.Actor `cbor:"caller"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := ls.checkJournal(); err != nil {
		return nil, err
	}
	return ls.engine.ApproveAndRelease(request.TaskID, request.Caller)
}

func (ls *LedgerService) handleTaskCancel(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		TaskID uint64         `cbor:"task_id"`
		Caller identity.Actor `cbor:"caller"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := ls.checkJournal(); err != nil {
		return nil, err
	}
	return ls.engine.CancelTask(request.TaskID, request.Caller)
}

func (ls *LedgerService) handleDisputeRaise(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		TaskID uint64         `cbor:"task_id"`
		Caller identity.Actor `cbor:"caller"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := ls.checkJournal(); err != nil {
		return nil, err
	}
	return ls.engine.RaiseDispute(request.TaskID, request.Caller)
}

// handleDisputeResolve is the one token-gated action. The token's
// subject becomes the acting arbitrator; the engine additionally
// checks that subject against its configured authority, so a valid
// token minted for the wrong actor still fails.
func (ls *LedgerService) handleDisputeResolve(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Token          []byte         `cbor:"token"`
		TaskID         uint64         `cbor:"task_id"`
		Winner         identity.Actor `cbor:"winner"`
		CreatorPercent int64          `cbor:"creator_percent"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := ls.checkJournal(); err != nil {
		return nil, err
	}
	if len(request.Token) == 0 {
		return nil, &ledger.AuthorizationError{Op: "resolve_dispute", Reason: "arbitration token required"}
	}

	token, err := authority.VerifyAt(ls.signingKey, request.Token, ls.clock.Now())
	if err != nil {
		return nil, &ledger.AuthorizationError{Op: "resolve_dispute", Reason: err.Error()}
	}

	task, exists := ls.engine.GetTask(request.TaskID)
	if !exists {
		return nil, &ledger.StateError{Op: "resolve_dispute", TaskID: request.TaskID, Reason: "task does not exist"}
	}
	if !authority.GrantsAllow(token.Grants, resolveAction, task.Creator) {
		return nil, &ledger.AuthorizationError{
			Op:     "resolve_dispute",
			Actor:  token.Subject,
			Reason: fmt.Sprintf("token does not grant %s for tasks of %s", resolveAction, task.Creator),
		}
	}

	ls.logger.Info("arbitration token accepted",
		"token", token.ID,
		"subject", token.Subject,
		"task", request.TaskID,
	)
	return ls.engine.ResolveDispute(request.TaskID, token.Subject, request.Winner, request.CreatorPercent)
}

func (ls *LedgerService) handleReconcileAccept(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		BidID  uint64         `cbor:"bid_id"`
		Caller identity.Actor `cbor:"caller"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := ls.checkJournal(); err != nil {
		return nil, err
	}
	return ls.engine.ReconcileAccept(request.BidID, request.Caller)
}

func (ls *LedgerService) handleReconcileDeposit(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		TaskID uint64         `cbor:"task_id"`
		Caller identity.Actor `cbor:"caller"`
		Amount int64          `cbor:"amount"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := ls.checkJournal(); err != nil {
		return nil, err
	}
	return ls.engine.ReconcileDeposit(request.TaskID, request.Caller, request.Amount)
}

func (ls *LedgerService) handleTaskGet(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		TaskID      uint64 `cbor:"task_id"`
		ExternalRef string `cbor:"external_ref"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}

	var task ledger.Task
	var exists bool
	switch {
	case request.TaskID != 0:
		task, exists = ls.engine.GetTask(request.TaskID)
	case request.ExternalRef != "":
		task, exists = ls.engine.GetTaskByExternalRef(request.ExternalRef)
	default:
		return nil, fmt.Errorf("task_id or external_ref is required")
	}
	if !exists {
		return nil, &ledger.StateError{Op: "get_task", TaskID: request.TaskID, Reason: "task does not exist"}
	}
	return task, nil
}

func (ls *LedgerService) handleTaskList(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Status        ledger.TaskStatus `cbor:"status"`
		Creator       identity.Actor    `cbor:"creator"`
		AssignedAgent identity.Actor    `cbor:"assigned_agent"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	tasks := ls.engine.ListTasks(ledger.Filter{
		Status:        request.Status,
		Creator:       request.Creator,
		AssignedAgent: request.AssignedAgent,
	})
	return map[string]any{"tasks": tasks}, nil
}

func (ls *LedgerService) handleBidGet(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		BidID uint64 `cbor:"bid_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	bid, exists := ls.engine.GetBid(request.BidID)
	if !exists {
		return nil, &ledger.StateError{Op: "get_bid", Reason: "bid does not exist"}
	}
	return bid, nil
}

func (ls *LedgerService) handleBidList(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		TaskID uint64 `cbor:"task_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if _, exists := ls.engine.GetTask(request.TaskID); !exists {
		return nil, &ledger.StateError{Op: "list_bids", TaskID: request.TaskID, Reason: "task does not exist"}
	}
	return map[string]any{"bids": ls.engine.BidsForTask(request.TaskID)}, nil
}

func (ls *LedgerService) handleEscrowGet(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		TaskID uint64 `cbor:"task_id"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	escrow, exists := ls.engine.GetEscrow(request.TaskID)
	if !exists {
		return nil, &ledger.StateError{Op: "get_escrow", TaskID: request.TaskID, Reason: "no escrow for task"}
	}
	return escrow, nil
}

func (ls *LedgerService) handleStats(ctx context.Context, raw []byte) (any, error) {
	return ls.engine.Stats(), nil
}

// statusResponse is what the status action reports.
type statusResponse struct {
	UptimeSeconds int64  `cbor:"uptime_seconds" json:"uptime_seconds"`
	JournalSeq    uint64 `cbor:"journal_seq" json:"journal_seq"`
	JournalError  string `cbor:"journal_error,omitempty" json:"journal_error,omitempty"`
	MirrorSeq     uint64 `cbor:"mirror_seq" json:"mirror_seq"`
	MirrorLag     uint64 `cbor:"mirror_lag" json:"mirror_lag"`
	HeldBalance   int64  `cbor:"held_balance" json:"held_balance"`
	VaultBalance  int64  `cbor:"vault_balance" json:"vault_balance"`
	Consistent    bool   `cbor:"consistent" json:"consistent"`
}

func (ls *LedgerService) handleStatus(ctx context.Context, raw []byte) (any, error) {
	mirrorSeq, err := ls.mirror.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading mirror sequence: %w", err)
	}

	// NextSeq is the next sequence to assign, so the last committed
	// event is one behind it.
	journalSeq := ls.journal.NextSeq() - 1

	status := statusResponse{
		UptimeSeconds: int64(ls.clock.Now().Sub(ls.startedAt).Seconds()),
		JournalSeq:    journalSeq,
		MirrorSeq:     mirrorSeq,
		HeldBalance:   ls.engine.HeldBalance(),
		VaultBalance:  ls.accounts.VaultBalance(),
		Consistent:    ls.engine.CheckConsistency() == nil,
	}
	if journalSeq > mirrorSeq {
		status.MirrorLag = journalSeq - mirrorSeq
	}
	if err := ls.journal.Err(); err != nil {
		status.JournalError = err.Error()
	}
	return status, nil
}

func (ls *LedgerService) handleAccountCredit(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Actor  identity.Actor `cbor:"actor"`
		Amount int64          `cbor:"amount"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := request.Actor.Validate(); err != nil {
		return nil, &ledger.ValidationError{Op: "credit_account", Reason: "actor: " + err.Error()}
	}
	if err := ls.accounts.Credit(request.Actor, request.Amount); err != nil {
		return nil, &ledger.ValidationError{Op: "credit_account", Reason: err.Error()}
	}
	return map[string]int64{"balance": ls.accounts.Balance(request.Actor)}, nil
}

func (ls *LedgerService) handleAccountBalance(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Actor identity.Actor `cbor:"actor"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	return map[string]int64{"balance": ls.accounts.Balance(request.Actor)}, nil
}
