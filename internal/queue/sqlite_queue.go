// Package queue provides a WAL-mode SQLite-backed durable queue standing in
// front of the agent's HTTP sink. It persists every outbound report before
// handing it to the in-memory sink, and acknowledges it once delivered, so
// that a crash between enqueue and delivery does not lose a report: on
// restart, the agent replays every unacknowledged row back into the sink.
//
// # WAL mode
//
// The database is opened with PRAGMA journal_mode = WAL so that concurrent
// readers and a single writer can proceed without blocking each other. This
// matters because the reporting jobs may enqueue reports (through the sink's
// persist hook) concurrently with the sink's delivery worker acknowledging
// earlier ones.
//
// # At-least-once delivery
//
// The delivered column is set to 1 only when Ack is called. If the process
// crashes between Enqueue and Ack, Pending returns the row again after
// restart, ensuring every report eventually reaches the central ingestion
// API even across agent restarts.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fieldmesh/beacon/internal/sink"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver with database/sql
)

// Queue is a WAL-mode SQLite-backed durable request queue. It is safe for
// concurrent use.
type Queue struct {
	db    *sql.DB
	depth atomic.Int64
}

// New opens (or creates) the SQLite database at path, enables WAL journal
// mode, and applies the schema. If path is ":memory:", an in-memory
// database is used; this is suitable for tests but loses all data when
// closed.
//
// New seeds the internal depth counter from the number of rows currently
// marked as pending (delivered = 0), so Depth() is accurate immediately
// after a crash-recovery restart.
func New(path string) (*Queue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("queue: open %q: %w", path, err)
	}

	// SQLite allows only one writer at a time. Limiting the pool to a
	// single connection avoids "database is locked" errors when multiple
	// goroutines call Enqueue concurrently; each call serialises through
	// this connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queue: set WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queue: set synchronous = NORMAL: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queue: apply schema: %w", err)
	}

	q := &Queue{db: db}

	var count int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM sink_requests WHERE delivered = 0`).Scan(&count); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queue: count pending rows: %w", err)
	}
	q.depth.Store(count)

	return q, nil
}

const ddl = `
CREATE TABLE IF NOT EXISTS sink_requests (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT    NOT NULL UNIQUE,
    method      TEXT    NOT NULL,
    url         TEXT    NOT NULL,
    body        BLOB    NOT NULL DEFAULT (x''),
    enqueued_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    delivered   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sink_requests_pending
    ON sink_requests (delivered, seq);
`

// Enqueue persists req durably with delivered = 0. If req.ID is empty, a
// UUID is assigned, matching sink.Enqueue's own ID-assignment behaviour so
// the same ID can be used to Ack the row once sink delivery succeeds.
func (q *Queue) Enqueue(ctx context.Context, req sink.Request) (sink.Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO sink_requests (id, method, url, body) VALUES (?, ?, ?, ?)`,
		req.ID, req.Method, req.URL, req.Body,
	)
	if err != nil {
		return sink.Request{}, fmt.Errorf("queue: enqueue: %w", err)
	}

	q.depth.Add(1)
	return req, nil
}

// PendingRequest is an unacknowledged durable-queue row, adapted back into
// the shape sink.Enqueue expects.
type PendingRequest struct {
	ID     string
	Method string
	URL    string
	Body   []byte
}

// Pending returns up to n unacknowledged rows in insertion order (oldest
// first). It does not mark rows as delivered; call Ack with the returned
// IDs once the sink confirms delivery. If n <= 0, Pending returns nil
// without querying the database.
func (q *Queue) Pending(ctx context.Context, n int) ([]PendingRequest, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := q.db.QueryContext(ctx,
		`SELECT id, method, url, body
		 FROM   sink_requests
		 WHERE  delivered = 0
		 ORDER  BY seq
		 LIMIT  ?`, n)
	if err != nil {
		return nil, fmt.Errorf("queue: pending query: %w", err)
	}
	defer rows.Close()

	var out []PendingRequest
	for rows.Next() {
		var pr PendingRequest
		if err := rows.Scan(&pr.ID, &pr.Method, &pr.URL, &pr.Body); err != nil {
			return nil, fmt.Errorf("queue: pending scan: %w", err)
		}
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue: pending rows: %w", err)
	}
	return out, nil
}

// Ack marks the rows identified by ids as delivered. Acknowledged rows are
// excluded from subsequent Pending results. Ack is idempotent: calling it
// multiple times with the same IDs is safe.
func (q *Queue) Ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := q.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE sink_requests SET delivered = 1 WHERE id IN (%s) AND delivered = 0`, placeholders),
		args...,
	)
	if err != nil {
		return fmt.Errorf("queue: ack: %w", err)
	}

	n, _ := result.RowsAffected()
	q.depth.Add(-n)
	return nil
}

// Depth returns the number of pending (unacknowledged) rows. It reads from
// an atomic counter updated by Enqueue and Ack, so it never blocks.
func (q *Queue) Depth() int {
	return int(q.depth.Load())
}

// Close closes the underlying database connection. Subsequent calls to any
// method are undefined; callers must not use the queue after Close returns.
func (q *Queue) Close() error {
	return q.db.Close()
}
