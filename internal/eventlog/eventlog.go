// Package eventlog persists Device Monitor events (spec.md §4.5) to a local
// sqlite database, so `airwave devices --history` can answer "what changed
// and when" across restarts.
//
// Adapted from abra5umente-blackbox/internal/db/db.go's connection setup
// (WAL mode, foreign_keys pragma, bounded connection pool). That file's
// file-based migration runner is not carried over: eventlog has exactly one
// table and one schema version, so a single CREATE TABLE IF NOT EXISTS
// replaces the migrations directory/schema_migrations machinery that
// existed to version a much larger multi-table schema.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"airwave/internal/audiohost"
)

const schema = `
CREATE TABLE IF NOT EXISTS device_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	endpoint_id TEXT NOT NULL,
	flow TEXT NOT NULL,
	new_state TEXT,
	observed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Log is a sqlite-backed history of device events.
type Log struct {
	db *sql.DB
}

// Open creates (if needed) and opens the event log at dbPath.
func Open(dbPath string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: create schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database connection.
func (l *Log) Close() error { return l.db.Close() }

// Record appends one device event to the log.
func (l *Log) Record(ctx context.Context, ev audiohost.DeviceEvent) error {
	flow := "render"
	if ev.Flow == audiohost.FlowCapture {
		flow = "capture"
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO device_events (kind, endpoint_id, flow, new_state) VALUES (?, ?, ?, ?)`,
		ev.Kind.String(), ev.ID, flow, ev.NewState)
	return err
}

// Entry is one recorded device event, as returned by Recent.
type Entry struct {
	Kind       string
	EndpointID string
	Flow       string
	NewState   string
	ObservedAt time.Time
}

// Recent returns the most recent limit events, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT kind, endpoint_id, flow, COALESCE(new_state, ''), observed_at
		 FROM device_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Kind, &e.EndpointID, &e.Flow, &e.NewState, &e.ObservedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
