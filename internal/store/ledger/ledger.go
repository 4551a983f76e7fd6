// Package ledger mirrors lookup progress into SQLite: the latest state of
// every post id, the records extracted for it, and a summary per run.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite ledger database.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared across calls
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS lookups (
	  post_id TEXT PRIMARY KEY,
	  state TEXT NOT NULL,
	  attempts INTEGER NOT NULL DEFAULT 0,
	  last_error TEXT,
	  updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lookups_state ON lookups(state);
	CREATE TABLE IF NOT EXISTS records (
	  post_id TEXT PRIMARY KEY,
	  pass TEXT NOT NULL,
	  body TEXT NOT NULL,
	  stored_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS runs (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  started_at INTEGER NOT NULL,
	  finished_at INTEGER,
	  input TEXT,
	  total INTEGER NOT NULL DEFAULT 0,
	  succeeded INTEGER NOT NULL DEFAULT 0,
	  failed INTEGER NOT NULL DEFAULT 0,
	  recovered INTEGER NOT NULL DEFAULT 0
	);
	`)
	return err
}

// Track upserts the latest state of a lookup.
func (d *DB) Track(ctx context.Context, postID, state string, attempts int, lastErr string) error {
	var errStr *string
	if lastErr != "" {
		errStr = &lastErr
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO lookups(post_id, state, attempts, last_error, updated_at) VALUES(?,?,?,?,?)
	ON CONFLICT(post_id) DO UPDATE SET state=excluded.state, attempts=excluded.attempts, last_error=excluded.last_error, updated_at=excluded.updated_at`,
		postID, state, attempts, errStr, time.Now().UTC().UnixNano())
	return err
}

// PutRecord stores the JSON form of an extracted record; a later pass overwrites.
func (d *DB) PutRecord(ctx context.Context, postID, pass string, record any) error {
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx, `INSERT INTO records(post_id, pass, body, stored_at) VALUES(?,?,?,?)
	ON CONFLICT(post_id) DO UPDATE SET pass=excluded.pass, body=excluded.body, stored_at=excluded.stored_at`,
		postID, pass, string(b), time.Now().UTC().Unix())
	return err
}

// LoadRecord returns the stored JSON body for postID.
func (d *DB) LoadRecord(ctx context.Context, postID string) (string, error) {
	var body string
	err := d.sql.QueryRowContext(ctx, `SELECT body FROM records WHERE post_id=?`, postID).Scan(&body)
	return body, err
}

// Lookup is the stored state of one post id.
type Lookup struct {
	PostID    string
	State     string
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

func (d *DB) LoadLookup(ctx context.Context, postID string) (Lookup, error) {
	var l Lookup
	var lastErr sql.NullString
	var ts int64
	err := d.sql.QueryRowContext(ctx, `SELECT post_id, state, attempts, last_error, updated_at FROM lookups WHERE post_id=?`, postID).
		Scan(&l.PostID, &l.State, &l.Attempts, &lastErr, &ts)
	if err != nil {
		return l, err
	}
	l.LastError = lastErr.String
	l.UpdatedAt = time.Unix(0, ts).UTC()
	return l, nil
}

// CountByState returns the number of lookups per state.
func (d *DB) CountByState(ctx context.Context) (map[string]int, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT state, COUNT(*) FROM lookups GROUP BY state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		out[state] = n
	}
	return out, rows.Err()
}

// IDsInState lists post ids currently in state, oldest update first.
func (d *DB) IDsInState(ctx context.Context, state string) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT post_id FROM lookups WHERE state=? ORDER BY updated_at, post_id`, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Run is one recorded pipeline run.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Input      string
	Total      int
	Succeeded  int
	Failed     int
	Recovered  int
}

func (d *DB) BeginRun(ctx context.Context, input string, total int) (int64, error) {
	res, err := d.sql.ExecContext(ctx, `INSERT INTO runs(started_at, input, total) VALUES(?,?,?)`, time.Now().UTC().Unix(), input, total)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (d *DB) FinishRun(ctx context.Context, id int64, succeeded, failed, recovered int) error {
	_, err := d.sql.ExecContext(ctx, `UPDATE runs SET finished_at=?, succeeded=?, failed=?, recovered=? WHERE id=?`,
		time.Now().UTC().Unix(), succeeded, failed, recovered, id)
	return err
}

// LastRun returns the most recently started run.
func (d *DB) LastRun(ctx context.Context) (Run, error) {
	var r Run
	var started int64
	var finished sql.NullInt64
	var input sql.NullString
	err := d.sql.QueryRowContext(ctx, `SELECT id, started_at, finished_at, input, total, succeeded, failed, recovered FROM runs ORDER BY id DESC LIMIT 1`).
		Scan(&r.ID, &started, &finished, &input, &r.Total, &r.Succeeded, &r.Failed, &r.Recovered)
	if errors.Is(err, sql.ErrNoRows) {
		return r, errors.New("no runs recorded")
	}
	if err != nil {
		return r, err
	}
	r.StartedAt = time.Unix(started, 0).UTC()
	if finished.Valid {
		r.FinishedAt = time.Unix(finished.Int64, 0).UTC()
	}
	r.Input = input.String
	return r, nil
}
