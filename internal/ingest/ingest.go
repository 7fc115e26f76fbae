// Package ingest runs the spreadsheet ingestion pipeline: fetch the raw
// rows, classify each one, normalize its date and time, map it to a
// canonical record and reconcile it into the store, auditing the whole
// pass as one ingestion run.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sheetsync/internal/classify"
	"sheetsync/internal/mapper"
	"sheetsync/internal/models"
	"sheetsync/internal/parse"
	"sheetsync/internal/store"
)

// SourceFetcher retrieves the raw rectangular cell range from the external
// source. The first row is the sheet header.
type SourceFetcher interface {
	Fetch(ctx context.Context) ([][]string, error)
}

// Storage is the slice of the store the orchestrator drives: run
// bookkeeping plus record reconciliation. *store.Store satisfies it.
type Storage interface {
	StartRun(ctx context.Context, sheetID string) (*models.IngestionRun, error)
	FinishRun(ctx context.Context, run *models.IngestionRun) error
	UpsertEvent(ctx context.Context, ev models.Event) (store.Action, string, error)
	UpsertTask(ctx context.Context, task models.Task) (store.Action, string, error)
}

// Result is the payload returned to the trigger layer after a run.
type Result struct {
	Success         bool   `json:"success"`
	ItemsProcessed  int    `json:"items_processed"`
	ItemsCreated    int    `json:"items_created"`
	ItemsUpdated    int    `json:"items_updated"`
	EventsProcessed int    `json:"events_processed"`
	TasksProcessed  int    `json:"tasks_processed"`
	SyncLogID       string `json:"sync_log_id"`
}

// Ingestor drives one ingestion run at a time for a single sheet.
type Ingestor struct {
	logger  *slog.Logger
	fetcher SourceFetcher
	store   Storage
	sheetID string
	year    int
}

// NewIngestor creates an Ingestor. year is the assumed year applied to
// day-month date cells such as "28-Apr".
func NewIngestor(logger *slog.Logger, fetcher SourceFetcher, st Storage, sheetID string, year int) *Ingestor {
	return &Ingestor{
		logger:  logger,
		fetcher: fetcher,
		store:   st,
		sheetID: sheetID,
		year:    year,
	}
}

// Run executes one sequential ingestion pass. Rows are processed strictly
// in source order, one at a time; row N fully completes before row N+1
// begins, so reconciliation's lookup-then-write never races with itself.
//
// The run is audited start to finish: a pending run row is inserted before
// the fetch (and refused with store.ErrRunInProgress while another run for
// the sheet is pending), and moved to success or failed exactly once at
// the end. A fetch failure fails the run with zero items processed.
func (ing *Ingestor) Run(ctx context.Context) (*Result, error) {
	run, err := ing.store.StartRun(ctx, ing.sheetID)
	if err != nil {
		return nil, err
	}
	ing.logger.Info("Starting ingestion run", "runID", run.ID, "sheetID", ing.sheetID)

	rows, err := ing.fetcher.Fetch(ctx)
	if err != nil {
		return nil, ing.fail(ctx, run, fmt.Errorf("failed to fetch sheet: %w", err))
	}

	// First row is the header; fewer than two rows means nothing to ingest.
	if len(rows) >= 2 {
		ing.processRows(ctx, run, rows[1:])
	}

	run.Status = models.RunSuccess
	if err := ing.store.FinishRun(ctx, run); err != nil {
		// The run row stays pending until the stale-run cutoff expires it.
		ing.logger.Error("Failed to record run completion, run row left pending", "runID", run.ID, "error", err)
		return nil, fmt.Errorf("failed to record run completion: %w", err)
	}

	ing.logger.Info("Ingestion run finished",
		"runID", run.ID,
		"processed", run.ItemsProcessed,
		"created", run.ItemsCreated,
		"updated", run.ItemsUpdated,
	)
	return resultFromRun(run), nil
}

// processRows walks the data rows in order, applying the classify ->
// normalize -> map -> reconcile pipeline to each. Only two per-row failure
// modes are tolerated: an unparseable date skips the row without counting
// it at all, and a reconcile error counts the row as processed but neither
// created nor updated.
func (ing *Ingestor) processRows(ctx context.Context, run *models.IngestionRun, data [][]string) {
	for i, cells := range data {
		rowNum := i + 2 // 1-based position in the sheet, after the header

		if !populated(cells) {
			continue
		}

		category := classify.Row(cells)
		if category == classify.Skip {
			continue
		}

		date, ok := parse.Date(cell(cells, 1), ing.year)
		if !ok {
			ing.logger.Warn("Skipping row with unparseable date", "row", rowNum, "date", cell(cells, 1))
			continue
		}

		// Best-effort; an unparseable time falls back to mapper defaults.
		startTime, _ := parse.Time(cell(cells, 2))

		src := models.SourceRef{SheetID: ing.sheetID, RowIndex: rowNum}

		var action store.Action
		var upsertErr error
		switch category {
		case classify.Event:
			action, _, upsertErr = ing.store.UpsertEvent(ctx, mapper.ToEvent(cells, date, startTime, src))
			run.Metadata.EventsProcessed++
		case classify.Task:
			action, _, upsertErr = ing.store.UpsertTask(ctx, mapper.ToTask(cells, date, startTime, src))
			run.Metadata.TasksProcessed++
		}

		run.ItemsProcessed++
		if upsertErr != nil {
			ing.logger.Error("Failed to reconcile row", "row", rowNum, "category", category.String(), "error", upsertErr)
			continue
		}
		switch action {
		case store.Created:
			run.ItemsCreated++
		case store.Updated:
			run.ItemsUpdated++
		}
	}
}

// fail moves the run to its failed terminal state, keeping whatever
// partial counters accumulated, and returns the cause to the caller.
func (ing *Ingestor) fail(ctx context.Context, run *models.IngestionRun, cause error) error {
	run.Status = models.RunFailed
	run.ErrorMessage = cause.Error()
	if err := ing.store.FinishRun(ctx, run); err != nil {
		ing.logger.Error("Failed to record run failure", "runID", run.ID, "error", err)
	}
	return cause
}

func resultFromRun(run *models.IngestionRun) *Result {
	return &Result{
		Success:         run.Status == models.RunSuccess,
		ItemsProcessed:  run.ItemsProcessed,
		ItemsCreated:    run.ItemsCreated,
		ItemsUpdated:    run.ItemsUpdated,
		EventsProcessed: run.Metadata.EventsProcessed,
		TasksProcessed:  run.Metadata.TasksProcessed,
		SyncLogID:       run.ID,
	}
}

// populated reports whether the row's two leading cells hold text. Rows
// failing this are invisible to the audit trail, not counted as processed.
func populated(cells []string) bool {
	return len(cells) >= 2 &&
		strings.TrimSpace(cells[0]) != "" &&
		strings.TrimSpace(cells[1]) != ""
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}
