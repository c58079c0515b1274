// Package store persists device preferences and the device event
// history in SQLite.
//
// Preferences (brightness, mode) survive daemon restarts and are pushed
// back to the deck when a session connects. The event history records
// connect/disconnect/state transitions for the status surface.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/deckd/internal/protocol"
)

// Preference keys in the device_preferences table.
const (
	prefBrightness = "brightness"
	prefMode       = "mode"
)

// historyKeep is how many event rows are retained; older rows are
// pruned on insert.
const historyKeep = 1000

// Preferences are the persisted device settings. Nil fields were never
// saved.
type Preferences struct {
	Brightness *uint8
	Mode       *protocol.DeviceMode
}

// Event is one row of the device event history.
type Event struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SQLiteStore reads and writes the deckd tables.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a store on an open database.
func New(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Preferences loads the saved device settings. Keys that were never
// saved come back nil; a corrupt value is an error, not a default.
func (s *SQLiteStore) Preferences(ctx context.Context) (Preferences, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM device_preferences")
	if err != nil {
		return Preferences{}, fmt.Errorf("querying preferences: %w", err)
	}
	defer rows.Close()

	var prefs Preferences
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Preferences{}, fmt.Errorf("scanning preference row: %w", err)
		}
		switch key {
		case prefBrightness:
			level, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return Preferences{}, fmt.Errorf("parsing brightness %q: %w", value, err)
			}
			v := uint8(level)
			prefs.Brightness = &v
		case prefMode:
			mode, err := protocol.DeviceModeFromString(value)
			if err != nil {
				return Preferences{}, fmt.Errorf("parsing mode: %w", err)
			}
			prefs.Mode = &mode
		}
	}
	if err := rows.Err(); err != nil {
		return Preferences{}, fmt.Errorf("iterating preferences: %w", err)
	}
	return prefs, nil
}

// SaveBrightness upserts the persisted brightness level.
func (s *SQLiteStore) SaveBrightness(ctx context.Context, level uint8) error {
	return s.savePreference(ctx, prefBrightness, strconv.Itoa(int(level)))
}

// SaveMode upserts the persisted device mode name.
func (s *SQLiteStore) SaveMode(ctx context.Context, mode string) error {
	if _, err := protocol.DeviceModeFromString(mode); err != nil {
		return err
	}
	return s.savePreference(ctx, prefMode, mode)
}

func (s *SQLiteStore) savePreference(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_preferences (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving preference %s: %w", key, err)
	}
	return nil
}

// RecordEvent appends one event to the history and prunes rows beyond
// the retention window.
func (s *SQLiteStore) RecordEvent(ctx context.Context, kind, detail string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO device_events (kind, detail, created_at) VALUES (?, ?, ?)",
		kind, detail, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording event: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM device_events
		WHERE id NOT IN (SELECT id FROM device_events ORDER BY id DESC LIMIT ?)
	`, historyKeep)
	if err != nil {
		return fmt.Errorf("pruning events: %w", err)
	}
	return nil
}

// History returns the most recent events, newest first. A non-positive
// limit selects the default page size of 50; limits above 200 are
// clamped.
func (s *SQLiteStore) History(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, detail, created_at
		FROM device_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}
