package ragstream

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var _ Recorder = (*EventLog)(nil)

// EventLog persists the ordered raw event log of every session to SQLite so
// a stream can be replayed for debugging after the fact. Rows are append-only
// and keyed by (session_id, seq); an event is never revised once written.
type EventLog struct {
	db *sql.DB
}

// NewEventLog opens (and if needed initializes) the event log database at
// the given path.
func NewEventLog(dbPath string) (*EventLog, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log := &EventLog{db: db}
	if err := log.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return log, nil
}

func (l *EventLog) initDB() error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS session_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(session_id, seq)
	);`

	_, err := l.db.Exec(createTableSQL)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// Append writes one event at the given sequence number.
func (l *EventLog) Append(sessionID string, seq int, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	_, err = l.db.Exec(
		"INSERT INTO session_events (session_id, seq, event_type, payload) VALUES (?, ?, ?, ?)",
		sessionID, seq, string(ev.Type), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// Replay returns the full event sequence of a session in arrival order.
func (l *EventLog) Replay(sessionID string) ([]Event, error) {
	rows, err := l.db.Query(
		"SELECT payload FROM session_events WHERE session_id = ? ORDER BY seq ASC",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close closes the underlying database.
func (l *EventLog) Close() error {
	return l.db.Close()
}
