// Package storage persists scan sessions, matched events, and hardware
// snapshots in SQLite. The detection core never touches this package; the
// monitor hands finished sessions over for storage and the history/API
// surfaces read from it.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ptnguyen/devsentry/internal/model"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	// Pre-create the file: some environments restrict SQLite creating new
	// files but allow opening existing ones.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("precreate db %s: %w", path, err)
	}
	_ = f.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS scan_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			events_found INTEGER NOT NULL DEFAULT 0,
			events_examined INTEGER NOT NULL DEFAULT 0,
			cap_reached INTEGER NOT NULL DEFAULT 0,
			hw_devices_found INTEGER NOT NULL DEFAULT 0,
			llm_performed INTEGER NOT NULL DEFAULT 0,
			summary TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES scan_sessions(id),
			timestamp TEXT NOT NULL,
			source TEXT NOT NULL,
			event_id INTEGER NOT NULL,
			message TEXT NOT NULL,
			llm_analysis TEXT NOT NULL DEFAULT '',
			abnormal INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id)`,
		`CREATE TABLE IF NOT EXISTS hardware (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL REFERENCES scan_sessions(id),
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			device_id TEXT NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
	}
	return nil
}

// BeginSession inserts a new scan session row and returns its ID.
func (s *Store) BeginSession(startedAt time.Time) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO scan_sessions (started_at) VALUES (?)`,
		startedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	return res.LastInsertId()
}

// SessionClose carries the final figures written when a session ends.
type SessionClose struct {
	EndedAt        time.Time
	EventsFound    int
	EventsExamined int
	CapReached     bool
	HWDevicesFound int
	LLMPerformed   bool
	Summary        string
}

// EndSession records the final state of a finished session.
func (s *Store) EndSession(id int64, c SessionClose) error {
	_, err := s.db.Exec(
		`UPDATE scan_sessions
		 SET ended_at=?, events_found=?, events_examined=?, cap_reached=?, hw_devices_found=?, llm_performed=?, summary=?
		 WHERE id=?`,
		c.EndedAt.UTC().Format(time.RFC3339),
		c.EventsFound, c.EventsExamined, boolToInt(c.CapReached),
		c.HWDevicesFound, boolToInt(c.LLMPerformed), c.Summary, id,
	)
	if err != nil {
		return fmt.Errorf("closing session %d: %w", id, err)
	}
	return nil
}

// StoreEvents persists a session's matched events along with the session's
// classification text and abnormal flag, returning the stored count.
func (s *Store) StoreEvents(sessionID int64, events []model.RawEvent, analysis string, abnormal bool) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO events (session_id, timestamp, source, event_id, message, llm_analysis, abnormal)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.Exec(
			sessionID, ev.Timestamp.UTC().Format(time.RFC3339),
			ev.Source, ev.EventID, ev.Message, analysis, boolToInt(abnormal),
		); err != nil {
			return 0, fmt.Errorf("inserting event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(events), nil
}

// StoreHardware persists a session's hardware snapshot, returning the stored
// count.
func (s *Store) StoreHardware(sessionID int64, devices []model.HardwareDevice) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO hardware (session_id, kind, name, description, device_id) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, d := range devices {
		if _, err := stmt.Exec(sessionID, d.Kind, d.Name, d.Description, d.DeviceID); err != nil {
			return 0, fmt.Errorf("inserting hardware: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(devices), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
