// Package persistence provides the SQLite interaction journal and the
// compressed per-tick log. Neither is read back into the simulation.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/mini-tycoon/internal/agents"
	"github.com/talgya/mini-tycoon/internal/engine"
)

// Journal is an append-only archive of conversations, deals and wins,
// grouped into runs (one per process start).
type Journal struct {
	conn *sqlx.DB

	mu    sync.Mutex
	runID string
}

// Open opens or creates a SQLite journal at the given path.
func Open(path string) (*Journal, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	j := &Journal{conn: conn}
	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.conn.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		note TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES runs(id),
		epoch INTEGER NOT NULL,
		minute INTEGER NOT NULL,
		clock TEXT NOT NULL,
		agent_a TEXT NOT NULL,
		agent_b TEXT NOT NULL,
		lines_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		interaction_id TEXT PRIMARY KEY REFERENCES interactions(id),
		payer_id TEXT NOT NULL,
		payee_id TEXT NOT NULL,
		amount REAL NOT NULL,
		item TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		epoch INTEGER NOT NULL,
		agent_id TEXT NOT NULL,
		name TEXT NOT NULL,
		money REAL NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_interactions_run ON interactions(run_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_interactions_pair ON interactions(agent_a, agent_b);
	`
	_, err := j.conn.Exec(schema)
	return err
}

// BeginRun starts a new run; later records are filed under it.
func (j *Journal) BeginRun(ctx context.Context, note string) (string, error) {
	id := uuid.NewString()
	_, err := j.conn.ExecContext(ctx,
		"INSERT INTO runs (id, started_at, note) VALUES (?, ?, ?)",
		id, time.Now().UTC().Format(time.RFC3339Nano), note,
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}

	j.mu.Lock()
	j.runID = id
	j.mu.Unlock()

	slog.Info("journal run started", "run", id)
	return id, nil
}

func (j *Journal) currentRun() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.runID == "" {
		return "", fmt.Errorf("no run started")
	}
	return j.runID, nil
}

// RecordInteraction appends a finished conversation and its deal, if any.
func (j *Journal) RecordInteraction(ctx context.Context, epoch uint64, rec engine.Interaction) error {
	run, err := j.currentRun()
	if err != nil {
		return err
	}
	linesJSON, err := json.Marshal(rec.Lines)
	if err != nil {
		return fmt.Errorf("encode lines: %w", err)
	}

	tx, err := j.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO interactions
		(id, run_id, epoch, minute, clock, agent_a, agent_b, lines_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, run, int64(epoch), rec.Minute, rec.Clock,
		string(rec.Participants[0]), string(rec.Participants[1]),
		string(linesJSON), rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert interaction %s: %w", rec.ID, err)
	}

	if t := rec.Transaction; t != nil {
		_, err = tx.ExecContext(ctx, `INSERT INTO transactions
			(interaction_id, payer_id, payee_id, amount, item) VALUES (?, ?, ?, ?, ?)`,
			rec.ID, string(t.PayerID), string(t.PayeeID), t.Amount, t.Item,
		)
		if err != nil {
			return fmt.Errorf("insert transaction %s: %w", rec.ID, err)
		}
	}

	return tx.Commit()
}

// RecordWin stores the agent that crossed the win threshold.
func (j *Journal) RecordWin(ctx context.Context, epoch uint64, winner agents.Agent) error {
	run, err := j.currentRun()
	if err != nil {
		return err
	}
	_, err = j.conn.ExecContext(ctx,
		"INSERT INTO wins (run_id, epoch, agent_id, name, money, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		run, int64(epoch), string(winner.ID), winner.Name, winner.Stats.Money,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert win: %w", err)
	}
	return nil
}

// Entry is one journaled conversation.
type Entry struct {
	ID        string   `db:"id" json:"id"`
	RunID     string   `db:"run_id" json:"run_id"`
	Epoch     int64    `db:"epoch" json:"epoch"`
	Clock     string   `db:"clock" json:"clock"`
	AgentA    string   `db:"agent_a" json:"agent_a"`
	AgentB    string   `db:"agent_b" json:"agent_b"`
	LinesJSON string   `db:"lines_json" json:"-"`
	CreatedAt string   `db:"created_at" json:"created_at"`
	PayerID   *string  `db:"payer_id" json:"payer_id,omitempty"`
	PayeeID   *string  `db:"payee_id" json:"payee_id,omitempty"`
	Amount    *float64 `db:"amount" json:"amount,omitempty"`
	Item      *string  `db:"item" json:"item,omitempty"`

	Lines []engine.DialogueLine `db:"-" json:"lines"`
}

// RecentInteractions returns the most recent N conversations across all
// runs, newest first.
func (j *Journal) RecentInteractions(ctx context.Context, limit int) ([]Entry, error) {
	var entries []Entry
	err := j.conn.SelectContext(ctx, &entries, `
		SELECT i.id, i.run_id, i.epoch, i.clock, i.agent_a, i.agent_b, i.lines_json, i.created_at,
		       t.payer_id, t.payee_id, t.amount, t.item
		FROM interactions i
		LEFT JOIN transactions t ON t.interaction_id = i.id
		ORDER BY i.created_at DESC, i.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select interactions: %w", err)
	}

	for i := range entries {
		if err := json.Unmarshal([]byte(entries[i].LinesJSON), &entries[i].Lines); err != nil {
			return nil, fmt.Errorf("decode lines of %s: %w", entries[i].ID, err)
		}
	}
	return entries, nil
}

// Wins returns the number of wins recorded for a run.
func (j *Journal) Wins(ctx context.Context, runID string) (int, error) {
	var n int
	err := j.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM wins WHERE run_id = ?", runID)
	return n, err
}
