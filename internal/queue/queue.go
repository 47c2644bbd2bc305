// Package queue is the durable, ordered store of actions dispatched while
// offline. Entries survive restarts; each is removed only after its own
// replay has been acknowledged.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/marcus/agencysync/internal/state"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS queue_entries (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	action_type TEXT NOT NULL,
	action      JSON NOT NULL,
	enqueued_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS replay_state (
	id                INTEGER PRIMARY KEY CHECK (id = 1),
	last_replayed_seq INTEGER NOT NULL DEFAULT 0,
	last_replay_at    TEXT
);
INSERT OR IGNORE INTO replay_state (id, last_replayed_seq) VALUES (1, 0);
`

// Entry is one queued action with its sequence key.
type Entry struct {
	Seq        int64
	Action     state.Action
	EnqueuedAt time.Time
}

// Queue wraps the sqlite file holding pending actions.
type Queue struct {
	conn *sql.DB
	path string
	lock *fileLock
}

// Options tunes Open.
type Options struct {
	// LockTimeout bounds how long Open waits for another owner to let go.
	LockTimeout time.Duration
}

// Open opens (creating if needed) the queue at path and takes exclusive
// ownership of it.
func Open(path string, opts Options) (*Queue, error) {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}

	lock := newFileLock(path)
	if err := lock.acquire(opts.LockTimeout); err != nil {
		return nil, err
	}

	conn, err := openConn(path)
	if err != nil {
		lock.release()
		return nil, err
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		lock.release()
		return nil, fmt.Errorf("create queue schema: %w", err)
	}

	return &Queue{conn: conn, path: path, lock: lock}, nil
}

// OpenReadOnly opens an existing queue for inspection without taking
// ownership, so it works while another process owns the queue.
func OpenReadOnly(path string) (*Queue, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("queue not found: %w", err)
	}
	conn, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	return &Queue{conn: conn, path: path}, nil
}

func openConn(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	// One writer; keeps Ack's cursor update and delete serialized.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=500"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	// FULL so an acknowledged enqueue survives power loss, not only a crash.
	conn.Exec("PRAGMA synchronous=FULL")
	return conn, nil
}

// Path returns the queue file location.
func (q *Queue) Path() string { return q.path }

// Close releases the database and the ownership lock.
func (q *Queue) Close() error {
	err := q.conn.Close()
	if q.lock != nil {
		if lerr := q.lock.release(); err == nil {
			err = lerr
		}
	}
	return err
}

// Enqueue appends a with the next sequence key.
func (q *Queue) Enqueue(ctx context.Context, a state.Action) (Entry, error) {
	data, err := state.MarshalAction(a)
	if err != nil {
		return Entry{}, fmt.Errorf("enqueue: %w", err)
	}
	now := time.Now().UTC()
	res, err := q.conn.ExecContext(ctx,
		`INSERT INTO queue_entries (action_type, action, enqueued_at) VALUES (?, ?, ?)`,
		string(a.Type()), string(data), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("enqueue %s: %w", a.Type(), err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("enqueue: last insert id: %w", err)
	}
	slog.Debug("queue: enqueued", "seq", seq, "type", a.Type())
	return Entry{Seq: seq, Action: a, EnqueuedAt: now}, nil
}

// All returns every entry past the replay cursor in insertion order.
func (q *Queue) All(ctx context.Context) ([]Entry, error) {
	rows, err := q.conn.QueryContext(ctx, `
		SELECT seq, action_type, action, enqueued_at
		FROM queue_entries
		WHERE seq > (SELECT last_replayed_seq FROM replay_state WHERE id = 1)
		ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			actionType string
			raw        string
			ts         string
		)
		if err := rows.Scan(&e.Seq, &actionType, &raw, &ts); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		e.Action, err = state.UnmarshalAction([]byte(raw))
		if err != nil {
			// Keep the entry so replay can move past it instead of stalling.
			slog.Warn("queue: undecodable entry", "seq", e.Seq, "type", actionType, "err", err)
			e.Action = state.Unknown{Kind: state.Type(actionType)}
		}
		if e.EnqueuedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse enqueued_at seq=%d: %w", e.Seq, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return entries, nil
}

// Ack records that the entry with seq, and every entry before it, has been
// replayed. The cursor moves and the entries are removed in one transaction.
func (q *Queue) Ack(ctx context.Context, seq int64) error {
	tx, err := q.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ack seq=%d: begin: %w", seq, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE replay_state SET last_replayed_seq = MAX(last_replayed_seq, ?), last_replay_at = ? WHERE id = 1`,
		seq, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("ack seq=%d: advance cursor: %w", seq, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE seq <= ?`, seq); err != nil {
		return fmt.Errorf("ack seq=%d: delete: %w", seq, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ack seq=%d: commit: %w", seq, err)
	}
	return nil
}

// Clear drops every pending entry without replaying it.
func (q *Queue) Clear(ctx context.Context) (int64, error) {
	res, err := q.conn.ExecContext(ctx, `DELETE FROM queue_entries`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Len returns the number of entries waiting for replay.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM queue_entries
		WHERE seq > (SELECT last_replayed_seq FROM replay_state WHERE id = 1)`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}

// Cursor is the replay position: the last acknowledged sequence key and when
// it was acknowledged (nil if never).
type Cursor struct {
	LastReplayedSeq int64
	LastReplayAt    *time.Time
}

// Cursor returns the replay position.
func (q *Queue) Cursor(ctx context.Context) (Cursor, error) {
	var (
		c  Cursor
		at sql.NullString
	)
	err := q.conn.QueryRowContext(ctx,
		`SELECT last_replayed_seq, last_replay_at FROM replay_state WHERE id = 1`,
	).Scan(&c.LastReplayedSeq, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("read cursor: %w", err)
	}
	if at.Valid {
		t, err := time.Parse(time.RFC3339Nano, at.String)
		if err != nil {
			return Cursor{}, fmt.Errorf("parse last_replay_at: %w", err)
		}
		c.LastReplayAt = &t
	}
	return c, nil
}
