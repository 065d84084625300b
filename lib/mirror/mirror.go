// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

// Package mirror maintains the off-chain SQLite copy of the ledger.
// It consumes the settlement event stream and projects each event
// into relational rows — tasks, bids, escrows — that the REST/browse
// layer queries without touching the authoritative engine.
//
// The mirror holds only what events carry. It never re-derives
// business rules: a bid_accepted event tells it the new task status,
// the assigned agent, and the re-pinned reward, so applying it is a
// row update, not a re-run of acceptance logic.
//
// Events apply idempotently by sequence number: each Apply inside one
// transaction also advances the high-water mark, and an event at or
// below the mark is skipped. A mirror that crashed mid-stream can
// therefore be pointed back at the journal and fed everything from
// the start.
package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/taskvault/taskvault/lib/eventlog"
	"github.com/taskvault/taskvault/lib/identity"
	"github.com/taskvault/taskvault/lib/ledger"
	"github.com/taskvault/taskvault/lib/sqlitepool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id             INTEGER PRIMARY KEY,
		title          TEXT NOT NULL DEFAULT '',
		creator        TEXT NOT NULL,
		assigned_agent TEXT,
		reward         INTEGER NOT NULL,
		status         TEXT NOT NULL,
		result_digest  TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_creator ON tasks(creator);

	CREATE TABLE IF NOT EXISTS bids (
		id         INTEGER PRIMARY KEY,
		task_id    INTEGER NOT NULL,
		agent      TEXT NOT NULL,
		amount     INTEGER NOT NULL,
		status     TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bids_task ON bids(task_id);

	CREATE TABLE IF NOT EXISTS escrows (
		task_id        INTEGER PRIMARY KEY,
		amount         INTEGER NOT NULL,
		depositor      TEXT NOT NULL,
		recipient      TEXT,
		released       INTEGER NOT NULL DEFAULT 0,
		agent_amount   INTEGER NOT NULL DEFAULT 0,
		creator_amount INTEGER NOT NULL DEFAULT 0
	);
`

// Config holds the parameters for opening a mirror.
type Config struct {
	// Path is the SQLite database file.
	Path string

	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Mirror is the SQLite projection of the event stream. Safe for
// concurrent use.
type Mirror struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens or creates the mirror database.
func Open(cfg Config) (*Mirror, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mirror: %w", err)
	}

	return &Mirror{pool: pool, logger: logger}, nil
}

// Close closes the underlying pool.
func (m *Mirror) Close() error {
	return m.pool.Close()
}

// LastSeq returns the highest applied event sequence number, 0 for an
// empty mirror.
func (m *Mirror) LastSeq(ctx context.Context) (uint64, error) {
	conn, err := m.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer m.pool.Put(conn)
	return lastSeq(conn)
}

func lastSeq(conn *sqlite.Conn) (uint64, error) {
	var seq int64
	err := sqlitex.Execute(conn, "SELECT value FROM meta WHERE key = 'last_seq'", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			seq = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("mirror: reading last_seq: %w", err)
	}
	return uint64(seq), nil
}

// Apply projects one event into the mirror. Events at or below the
// high-water mark are skipped, so replaying the full journal over a
// live mirror converges instead of corrupting. Events must otherwise
// arrive in sequence order.
func (m *Mirror) Apply(ctx context.Context, event ledger.Event) (err error) {
	if event.Seq == 0 {
		return fmt.Errorf("mirror: event has no sequence number")
	}

	conn, err := m.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer m.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("mirror: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	mark, err := lastSeq(conn)
	if err != nil {
		return err
	}
	if event.Seq <= mark {
		// Already applied; convergent no-op.
		return nil
	}
	if event.Seq != mark+1 {
		return fmt.Errorf("mirror: sequence gap: event %d follows %d", event.Seq, mark)
	}

	if err := applyEvent(conn, event); err != nil {
		return err
	}

	err = sqlitex.Execute(conn,
		"INSERT INTO meta (key, value) VALUES ('last_seq', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		&sqlitex.ExecOptions{Args: []any{int64(event.Seq)}})
	if err != nil {
		return fmt.Errorf("mirror: advancing last_seq: %w", err)
	}
	return nil
}

func applyEvent(conn *sqlite.Conn, event ledger.Event) error {
	switch event.Kind {
	case ledger.EventTaskCreated:
		return execute(conn, `INSERT INTO tasks
			(id, title, creator, reward, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			int64(event.TaskID), event.Title, event.Actor.String(), event.Amount,
			string(event.TaskStatus), event.Timestamp, event.Timestamp)

	case ledger.EventEscrowDeposited:
		return execute(conn, `INSERT INTO escrows (task_id, amount, depositor)
			VALUES (?, ?, ?)
			ON CONFLICT(task_id) DO UPDATE SET amount = amount + excluded.amount`,
			int64(event.TaskID), event.Amount, event.Actor.String())

	case ledger.EventBidSubmitted:
		return execute(conn, `INSERT INTO bids
			(id, task_id, agent, amount, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			int64(event.BidID), int64(event.TaskID), event.Actor.String(),
			event.Amount, string(event.BidStatus), event.Timestamp)

	case ledger.EventBidAccepted:
		// The event carries the accepted bid's agent only indirectly:
		// the bid row already holds it.
		if err := execute(conn, "UPDATE bids SET status = ? WHERE id = ?",
			string(event.BidStatus), int64(event.BidID)); err != nil {
			return err
		}
		return execute(conn, `UPDATE tasks SET
			status = ?,
			reward = ?,
			assigned_agent = (SELECT agent FROM bids WHERE id = ?),
			updated_at = ?
			WHERE id = ?`,
			string(event.TaskStatus), event.Amount, int64(event.BidID),
			event.Timestamp, int64(event.TaskID))

	case ledger.EventBidRejected:
		return execute(conn, "UPDATE bids SET status = ? WHERE id = ?",
			string(event.BidStatus), int64(event.BidID))

	case ledger.EventTaskCompleted:
		return execute(conn, `UPDATE tasks SET status = ?, result_digest = ?, updated_at = ?
			WHERE id = ?`,
			string(event.TaskStatus), event.ResultDigest, event.Timestamp, int64(event.TaskID))

	case ledger.EventEscrowReleased:
		if err := execute(conn, `UPDATE escrows SET
			amount = 0, released = 1, agent_amount = ?, creator_amount = ?,
			recipient = (SELECT assigned_agent FROM tasks WHERE id = task_id)
			WHERE task_id = ?`,
			event.AgentAmount, event.CreatorAmount, int64(event.TaskID)); err != nil {
			return err
		}
		return execute(conn, "UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?",
			string(event.TaskStatus), event.Timestamp, int64(event.TaskID))

	case ledger.EventTaskCancelled:
		if err := execute(conn, `UPDATE escrows SET
			amount = 0, released = 1, creator_amount = ?, recipient = depositor
			WHERE task_id = ? AND released = 0`,
			event.CreatorAmount, int64(event.TaskID)); err != nil {
			return err
		}
		return execute(conn, `UPDATE tasks SET status = ?, assigned_agent = NULL, updated_at = ?
			WHERE id = ?`,
			string(event.TaskStatus), event.Timestamp, int64(event.TaskID))

	case ledger.EventDisputeRaised:
		return execute(conn, "UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?",
			string(event.TaskStatus), event.Timestamp, int64(event.TaskID))

	case ledger.EventDisputeResolved:
		if err := execute(conn, `UPDATE escrows SET
			amount = 0, released = 1, agent_amount = ?, creator_amount = ?, recipient = ?
			WHERE task_id = ?`,
			event.AgentAmount, event.CreatorAmount, event.Winner.String(),
			int64(event.TaskID)); err != nil {
			return err
		}
		return execute(conn, "UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?",
			string(event.TaskStatus), event.Timestamp, int64(event.TaskID))

	default:
		return fmt.Errorf("mirror: unknown event kind %q", event.Kind)
	}
}

func execute(conn *sqlite.Conn, query string, args ...any) error {
	if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return fmt.Errorf("mirror: %s: %w", query[:min(40, len(query))], err)
	}
	return nil
}

// Rebuild wipes the mirror and replays the full journal at
// journalPath into it. Used on startup when the mirror database is
// missing or behind beyond streaming catch-up.
func (m *Mirror) Rebuild(ctx context.Context, journalPath string) error {
	conn, err := m.pool.Take(ctx)
	if err != nil {
		return err
	}
	err = sqlitex.ExecuteScript(conn, `
		DELETE FROM tasks;
		DELETE FROM bids;
		DELETE FROM escrows;
		DELETE FROM meta;
	`, nil)
	m.pool.Put(conn)
	if err != nil {
		return fmt.Errorf("mirror: wiping for rebuild: %w", err)
	}

	count := 0
	err = eventlog.Replay(journalPath, func(event ledger.Event) error {
		count++
		return m.Apply(ctx, event)
	})
	if err != nil {
		return fmt.Errorf("mirror: rebuild: %w", err)
	}
	m.logger.Info("mirror rebuilt", "events", count)
	return nil
}

// TaskRow is the mirror's view of a task. Only event-carried fields
// are present; full descriptions live on the authoritative side and
// in the external browse layer's own records.
type TaskRow struct {
	ID            uint64
	Title         string
	Creator       identity.Actor
	AssignedAgent identity.Actor
	Reward        int64
	Status        ledger.TaskStatus
	ResultDigest  string
	CreatedAt     string
	UpdatedAt     string
}

// BidRow is the mirror's view of a bid.
type BidRow struct {
	ID        uint64
	TaskID    uint64
	Agent     identity.Actor
	Amount    int64
	Status    ledger.BidStatus
	CreatedAt string
}

// EscrowRow is the mirror's view of an escrow, including the final
// split amounts once settled.
type EscrowRow struct {
	TaskID        uint64
	Amount        int64
	Depositor     identity.Actor
	Recipient     identity.Actor
	Released      bool
	AgentAmount   int64
	CreatorAmount int64
}

// scanTaskRow reads one row from the shared task column list:
// id, title, creator, assigned_agent, reward, status, result_digest,
// created_at, updated_at.
func scanTaskRow(stmt *sqlite.Stmt) TaskRow {
	return TaskRow{
		ID:            uint64(stmt.ColumnInt64(0)),
		Title:         stmt.ColumnText(1),
		Creator:       identity.Actor(stmt.ColumnText(2)),
		AssignedAgent: identity.Actor(stmt.ColumnText(3)),
		Reward:        stmt.ColumnInt64(4),
		Status:        ledger.TaskStatus(stmt.ColumnText(5)),
		ResultDigest:  stmt.ColumnText(6),
		CreatedAt:     stmt.ColumnText(7),
		UpdatedAt:     stmt.ColumnText(8),
	}
}

// Task returns the mirror's row for a task.
func (m *Mirror) Task(ctx context.Context, taskID uint64) (TaskRow, bool, error) {
	conn, err := m.pool.Take(ctx)
	if err != nil {
		return TaskRow{}, false, err
	}
	defer m.pool.Put(conn)

	var row TaskRow
	var found bool
	err = sqlitex.Execute(conn, `SELECT id, title, creator, assigned_agent, reward, status,
		result_digest, created_at, updated_at FROM tasks WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{int64(taskID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				row = scanTaskRow(stmt)
				return nil
			},
		})
	if err != nil {
		return TaskRow{}, false, fmt.Errorf("mirror: query task: %w", err)
	}
	return row, found, nil
}

// TasksByStatus returns mirror task rows with the given status,
// ordered by id.
func (m *Mirror) TasksByStatus(ctx context.Context, status ledger.TaskStatus) ([]TaskRow, error) {
	conn, err := m.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer m.pool.Put(conn)

	var rows []TaskRow
	err = sqlitex.Execute(conn, `SELECT id, title, creator, assigned_agent, reward, status,
		result_digest, created_at, updated_at FROM tasks WHERE status = ? ORDER BY id`,
		&sqlitex.ExecOptions{
			Args: []any{string(status)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rows = append(rows, scanTaskRow(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("mirror: query tasks by status: %w", err)
	}
	return rows, nil
}

// BidsForTask returns mirror bid rows for a task, ordered by id.
func (m *Mirror) BidsForTask(ctx context.Context, taskID uint64) ([]BidRow, error) {
	conn, err := m.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer m.pool.Put(conn)

	var rows []BidRow
	err = sqlitex.Execute(conn, `SELECT id, task_id, agent, amount, status, created_at
		FROM bids WHERE task_id = ? ORDER BY id`,
		&sqlitex.ExecOptions{
			Args: []any{int64(taskID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rows = append(rows, BidRow{
					ID:        uint64(stmt.ColumnInt64(0)),
					TaskID:    uint64(stmt.ColumnInt64(1)),
					Agent:     identity.Actor(stmt.ColumnText(2)),
					Amount:    stmt.ColumnInt64(3),
					Status:    ledger.BidStatus(stmt.ColumnText(4)),
					CreatedAt: stmt.ColumnText(5),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("mirror: query bids: %w", err)
	}
	return rows, nil
}

// Escrow returns the mirror's row for a task's escrow.
func (m *Mirror) Escrow(ctx context.Context, taskID uint64) (EscrowRow, bool, error) {
	conn, err := m.pool.Take(ctx)
	if err != nil {
		return EscrowRow{}, false, err
	}
	defer m.pool.Put(conn)

	var row EscrowRow
	var found bool
	err = sqlitex.Execute(conn, `SELECT task_id, amount, depositor, recipient, released,
		agent_amount, creator_amount FROM escrows WHERE task_id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{int64(taskID)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				row = EscrowRow{
					TaskID:        uint64(stmt.ColumnInt64(0)),
					Amount:        stmt.ColumnInt64(1),
					Depositor:     identity.Actor(stmt.ColumnText(2)),
					Recipient:     identity.Actor(stmt.ColumnText(3)),
					Released:      stmt.ColumnInt64(4) != 0,
					AgentAmount:   stmt.ColumnInt64(5),
					CreatorAmount: stmt.ColumnInt64(6),
				}
				return nil
			},
		})
	if err != nil {
		return EscrowRow{}, false, fmt.Errorf("mirror: query escrow: %w", err)
	}
	return row, found, nil
}

// HeldBalance returns the sum of unreleased escrow amounts in the
// mirror. Compared against the engine's held balance as a lag and
// divergence check.
func (m *Mirror) HeldBalance(ctx context.Context) (int64, error) {
	conn, err := m.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer m.pool.Put(conn)

	var held int64
	err = sqlitex.Execute(conn,
		"SELECT COALESCE(SUM(amount), 0) FROM escrows WHERE released = 0",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				held = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("mirror: held balance: %w", err)
	}
	return held, nil
}
