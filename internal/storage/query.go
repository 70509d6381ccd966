package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// StoredEvent is one persisted event row joined with its verdict.
type StoredEvent struct {
	ID          int64  `json:"id"`
	SessionID   int64  `json:"session_id"`
	Timestamp   string `json:"timestamp"`
	Source      string `json:"source"`
	EventID     int    `json:"event_id"`
	Message     string `json:"message"`
	LLMAnalysis string `json:"llm_analysis,omitempty"`
	Abnormal    bool   `json:"abnormal"`
}

// SessionRow is one persisted scan session.
type SessionRow struct {
	ID             int64  `json:"id"`
	StartedAt      string `json:"started_at"`
	EndedAt        string `json:"ended_at,omitempty"`
	EventsFound    int    `json:"events_found"`
	EventsExamined int    `json:"events_examined"`
	CapReached     bool   `json:"cap_reached"`
	HWDevicesFound int    `json:"hw_devices_found"`
	LLMPerformed   bool   `json:"llm_performed"`
	Summary        string `json:"summary"`
}

// RecentEvents returns events at or after since, newest first, at most limit
// rows.
func (s *Store) RecentEvents(since time.Time, limit int) ([]StoredEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, timestamp, source, event_id, message, llm_analysis, abnormal
		 FROM events WHERE timestamp >= ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		since.UTC().Format(time.RFC3339), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// SessionEvents returns a session's events in insertion order.
func (s *Store) SessionEvents(sessionID int64) ([]StoredEvent, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, timestamp, source, event_id, message, llm_analysis, abnormal
		 FROM events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying session events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RecentSessions returns the most recent sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]SessionRow, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, COALESCE(ended_at, ''), events_found, events_examined,
		        cap_reached, hw_devices_found, llm_performed, summary
		 FROM scan_sessions ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var capReached, llmPerformed int
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.EndedAt, &r.EventsFound, &r.EventsExamined,
			&capReached, &r.HWDevicesFound, &llmPerformed, &r.Summary); err != nil {
			return nil, err
		}
		r.CapReached = capReached != 0
		r.LLMPerformed = llmPerformed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Session returns one session row by ID; sql.ErrNoRows if absent.
func (s *Store) Session(id int64) (SessionRow, error) {
	var r SessionRow
	var capReached, llmPerformed int
	err := s.db.QueryRow(
		`SELECT id, started_at, COALESCE(ended_at, ''), events_found, events_examined,
		        cap_reached, hw_devices_found, llm_performed, summary
		 FROM scan_sessions WHERE id = ?`, id,
	).Scan(&r.ID, &r.StartedAt, &r.EndedAt, &r.EventsFound, &r.EventsExamined,
		&capReached, &r.HWDevicesFound, &llmPerformed, &r.Summary)
	if err != nil {
		return SessionRow{}, err
	}
	r.CapReached = capReached != 0
	r.LLMPerformed = llmPerformed != 0
	return r, nil
}

func scanEvents(rows *sql.Rows) ([]StoredEvent, error) {
	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var abnormal int
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Timestamp, &e.Source, &e.EventID,
			&e.Message, &e.LLMAnalysis, &abnormal); err != nil {
			return nil, err
		}
		e.Abnormal = abnormal != 0
		out = append(out, e)
	}
	return out, rows.Err()
}
