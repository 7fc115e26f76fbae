// Package store persists canonical events, tasks and ingestion runs in an
// embedded sqlite database.
//
// Ingested records are looked up by their (sheet_id, sheet_row_index)
// provenance key, one partition per category: events are only matched
// against events, tasks against tasks. The create-vs-update decision for
// those records lives here and nowhere else.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"sheetsync/internal/models"
)

// Action reports what an upsert did.
type Action string

const (
	Created Action = "created"
	Updated Action = "updated"
)

// ErrRunInProgress is returned when a new ingestion run is requested while
// another run for the same sheet is still pending.
var ErrRunInProgress = errors.New("an ingestion run is already in progress for this sheet")

// Store wraps the sqlite connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and initializes the
// schema. The caller must Close when done.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		date TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		is_online INTEGER NOT NULL DEFAULT 0,
		location TEXT,
		meeting_link TEXT,
		notes TEXT,
		sheet_id TEXT,
		sheet_row_index INTEGER,
		user_id TEXT,  -- always NULL for ingested records
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		date TEXT NOT NULL,
		start_time TEXT,
		end_time TEXT,
		is_completed INTEGER NOT NULL DEFAULT 0,
		priority TEXT NOT NULL DEFAULT 'medium',
		notes TEXT,
		sheet_id TEXT,
		sheet_row_index INTEGER,
		user_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ingestion_runs (
		id TEXT PRIMARY KEY,
		sheet_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		started_at TEXT NOT NULL,
		completed_at TEXT,
		items_processed INTEGER NOT NULL DEFAULT 0,
		items_created INTEGER NOT NULL DEFAULT 0,
		items_updated INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		metadata TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_events_sheet_row
	    ON events(sheet_id, sheet_row_index) WHERE sheet_id IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_sheet_row
	    ON tasks(sheet_id, sheet_row_index) WHERE sheet_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_runs_sheet_status
	    ON ingestion_runs(sheet_id, status);
	CREATE INDEX IF NOT EXISTS idx_runs_started
	    ON ingestion_runs(started_at);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// UpsertEvent reconciles one ingested event against the events table.
// A row matching the provenance key is fully overwritten (replace, not
// merge); otherwise a new row is inserted. Returns the action taken and
// the record id.
func (s *Store) UpsertEvent(ctx context.Context, ev models.Event) (Action, string, error) {
	existing, err := s.lookup(ctx, "events", ev.Source)
	if err != nil {
		return "", "", err
	}
	now := time.Now().UTC().Format(time.RFC3339)

	if existing != "" {
		_, err := s.conn.ExecContext(ctx, `
			UPDATE events SET
				title = ?, description = ?, date = ?, start_time = ?,
				end_time = ?, is_online = ?, location = ?, meeting_link = ?,
				notes = ?, updated_at = ?
			WHERE id = ?`,
			ev.Title, nullable(ev.Description), ev.Date, ev.StartTime,
			ev.EndTime, boolToInt(ev.IsOnline), nullable(ev.Location), nullable(ev.MeetingLink),
			nullable(ev.Notes), now, existing,
		)
		if err != nil {
			return "", "", fmt.Errorf("failed to update event row %d: %w", ev.Source.RowIndex, err)
		}
		return Updated, existing, nil
	}

	id := uuid.New().String()
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO events (
			id, title, description, date, start_time, end_time, is_online,
			location, meeting_link, notes, sheet_id, sheet_row_index,
			user_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		id, ev.Title, nullable(ev.Description), ev.Date, ev.StartTime,
		ev.EndTime, boolToInt(ev.IsOnline), nullable(ev.Location), nullable(ev.MeetingLink),
		nullable(ev.Notes), ev.Source.SheetID, ev.Source.RowIndex, now, now,
	)
	if err != nil {
		return "", "", fmt.Errorf("failed to insert event row %d: %w", ev.Source.RowIndex, err)
	}
	return Created, id, nil
}

// UpsertTask reconciles one ingested task against the tasks table, with the
// same replace-on-match semantics as UpsertEvent.
func (s *Store) UpsertTask(ctx context.Context, task models.Task) (Action, string, error) {
	existing, err := s.lookup(ctx, "tasks", task.Source)
	if err != nil {
		return "", "", err
	}
	now := time.Now().UTC().Format(time.RFC3339)

	if existing != "" {
		_, err := s.conn.ExecContext(ctx, `
			UPDATE tasks SET
				title = ?, description = ?, date = ?, start_time = ?,
				end_time = ?, is_completed = ?, priority = ?, notes = ?,
				updated_at = ?
			WHERE id = ?`,
			task.Title, nullable(task.Description), task.Date, nullable(task.StartTime),
			nullable(task.EndTime), boolToInt(task.IsCompleted), string(task.Priority), nullable(task.Notes),
			now, existing,
		)
		if err != nil {
			return "", "", fmt.Errorf("failed to update task row %d: %w", task.Source.RowIndex, err)
		}
		return Updated, existing, nil
	}

	id := uuid.New().String()
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO tasks (
			id, title, description, date, start_time, end_time, is_completed,
			priority, notes, sheet_id, sheet_row_index, user_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		id, task.Title, nullable(task.Description), task.Date, nullable(task.StartTime),
		nullable(task.EndTime), boolToInt(task.IsCompleted), string(task.Priority), nullable(task.Notes),
		task.Source.SheetID, task.Source.RowIndex, now, now,
	)
	if err != nil {
		return "", "", fmt.Errorf("failed to insert task row %d: %w", task.Source.RowIndex, err)
	}
	return Created, id, nil
}

// ListIngestedEvents returns all events carrying provenance for the given
// sheet, in row order. Used by the publish command; read-only.
func (s *Store) ListIngestedEvents(ctx context.Context, sheetID string) ([]models.Event, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, title, description, date, start_time, end_time, is_online,
		       location, meeting_link, notes, sheet_id, sheet_row_index
		FROM events
		WHERE sheet_id = ?
		ORDER BY sheet_row_index ASC`, sheetID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingested events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		var description, location, meetingLink, notes sql.NullString
		var online int
		if err := rows.Scan(
			&ev.ID, &ev.Title, &description, &ev.Date, &ev.StartTime, &ev.EndTime, &online,
			&location, &meetingLink, &notes, &ev.Source.SheetID, &ev.Source.RowIndex,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Description = description.String
		ev.Location = location.String
		ev.MeetingLink = meetingLink.String
		ev.Notes = notes.String
		ev.IsOnline = online != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

// lookup finds the id of the record with the given provenance key in the
// given category table, or "" when none exists.
func (s *Store) lookup(ctx context.Context, table string, src models.SourceRef) (string, error) {
	var id string
	err := s.conn.QueryRowContext(ctx,
		"SELECT id FROM "+table+" WHERE sheet_id = ? AND sheet_row_index = ?",
		src.SheetID, src.RowIndex,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up %s row %d: %w", table, src.RowIndex, err)
	}
	return id, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
