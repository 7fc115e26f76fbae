package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sheetsync/internal/models"
)

// ErrRunNotFound is returned when no ingestion run exists for an id.
var ErrRunNotFound = errors.New("ingestion run not found")

// pendingRunMaxAge is how long a pending run may sit before it is presumed
// abandoned (process crashed between start and finish) and expired, so a
// wedged sheet unblocks itself.
const pendingRunMaxAge = time.Hour

// StartRun inserts a pending run for the sheet and returns it. Starting is
// refused with ErrRunInProgress while another run for the same sheet is
// still pending; this is the advisory lock between concurrent triggers.
// Pending runs older than pendingRunMaxAge are failed first and do not
// hold the lock.
func (s *Store) StartRun(ctx context.Context, sheetID string) (*models.IngestionRun, error) {
	now := time.Now().UTC()
	_, err := s.conn.ExecContext(ctx, `
		UPDATE ingestion_runs SET
			status = 'failed', completed_at = ?,
			error_message = 'run abandoned: process exited before completion'
		WHERE sheet_id = ? AND status = 'pending' AND started_at <= ?`,
		now.Format(time.RFC3339), sheetID, now.Add(-pendingRunMaxAge).Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale runs: %w", err)
	}

	var pending int
	err = s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ingestion_runs WHERE sheet_id = ? AND status = 'pending'",
		sheetID,
	).Scan(&pending)
	if err != nil {
		return nil, fmt.Errorf("failed to check for pending runs: %w", err)
	}
	if pending > 0 {
		return nil, ErrRunInProgress
	}

	run := &models.IngestionRun{
		ID:        uuid.New().String(),
		SheetID:   sheetID,
		Status:    models.RunPending,
		StartedAt: now,
		Metadata:  models.RunMetadata{SheetID: sheetID},
	}

	meta, err := json.Marshal(run.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run metadata: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO ingestion_runs (id, sheet_id, status, started_at, metadata)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.SheetID, string(run.Status), run.StartedAt.Format(time.RFC3339), string(meta),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert ingestion run: %w", err)
	}
	return run, nil
}

// FinishRun moves a run to its terminal state, recording completion time,
// final counters, merged metadata and (for failed runs) the error message.
// Runs are never deleted; this is the single mutation after StartRun.
func (s *Store) FinishRun(ctx context.Context, run *models.IngestionRun) error {
	run.CompletedAt = time.Now().UTC()

	meta, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal run metadata: %w", err)
	}

	res, err := s.conn.ExecContext(ctx, `
		UPDATE ingestion_runs SET
			status = ?, completed_at = ?, items_processed = ?,
			items_created = ?, items_updated = ?, error_message = ?,
			metadata = ?
		WHERE id = ?`,
		string(run.Status), run.CompletedAt.Format(time.RFC3339), run.ItemsProcessed,
		run.ItemsCreated, run.ItemsUpdated, nullable(run.ErrorMessage),
		string(meta), run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish ingestion run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// GetRun returns one ingestion run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*models.IngestionRun, error) {
	runs, err := s.queryRuns(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return &runs[0], nil
}

// ListRuns returns the most recent ingestion runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.IngestionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryRuns(ctx, "ORDER BY started_at DESC LIMIT ?", limit)
}

func (s *Store) queryRuns(ctx context.Context, clause string, args ...any) ([]models.IngestionRun, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, sheet_id, status, started_at, completed_at,
		       items_processed, items_created, items_updated,
		       error_message, metadata
		FROM ingestion_runs `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingestion runs: %w", err)
	}
	defer rows.Close()

	var runs []models.IngestionRun
	for rows.Next() {
		var run models.IngestionRun
		var startedAt string
		var completedAt, errMsg, meta sql.NullString
		if err := rows.Scan(
			&run.ID, &run.SheetID, &run.Status, &startedAt, &completedAt,
			&run.ItemsProcessed, &run.ItemsCreated, &run.ItemsUpdated,
			&errMsg, &meta,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ingestion run: %w", err)
		}
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if completedAt.Valid {
			run.CompletedAt, _ = time.Parse(time.RFC3339, completedAt.String)
		}
		run.ErrorMessage = errMsg.String
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &run.Metadata)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
