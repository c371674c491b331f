// Package store keeps the bot's small amount of persistent state in sqlite:
// key/value bot configuration used by command sync, and the history of
// background worker runs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	MsgDatabasePragmaError = "failed to set pragma %s: %w"
	MsgDatabaseTableError  = "failed to create table: %w"
)

// Keys used in the bot_config table.
const (
	KeyLastCommandHash = "last_cmd_hash"
	KeyLastRegMode     = "last_reg_mode"
	KeyLastGuildID     = "last_guild_id"
)

type Store struct {
	db *sql.DB
}

// Open connects to the sqlite database at dsn and creates missing tables.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)

	s := &Store{db: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := s.db.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := s.db.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS worker_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			worker TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			duration_ms INTEGER NOT NULL,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_worker_runs_worker ON worker_runs(worker, started_at)`,
	}
	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// GetBotConfig returns the stored value for key, or "" when unset.
func (s *Store) GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *Store) SetBotConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// WorkerRun is one recorded execution of a background worker.
type WorkerRun struct {
	Worker    string
	StartedAt time.Time
	Duration  time.Duration
	Err       string
}

func (s *Store) RecordWorkerRun(ctx context.Context, run WorkerRun) error {
	var errText sql.NullString
	if run.Err != "" {
		errText = sql.NullString{String: run.Err, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO worker_runs (worker, started_at, duration_ms, error) VALUES (?, ?, ?, ?)",
		run.Worker, run.StartedAt.UTC(), run.Duration.Milliseconds(), errText)
	return err
}

// RecentWorkerRuns returns up to limit runs of worker, newest first.
func (s *Store) RecentWorkerRuns(ctx context.Context, worker string, limit int) ([]WorkerRun, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT worker, started_at, duration_ms, error FROM worker_runs WHERE worker = ? ORDER BY started_at DESC, id DESC LIMIT ?",
		worker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []WorkerRun
	for rows.Next() {
		var r WorkerRun
		var ms int64
		var errText sql.NullString
		if err := rows.Scan(&r.Worker, &r.StartedAt, &ms, &errText); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		r.Err = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PruneWorkerRuns deletes runs started before cutoff.
func (s *Store) PruneWorkerRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM worker_runs WHERE started_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
