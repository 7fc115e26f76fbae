package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sheetsync/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEvent(row int) models.Event {
	return models.Event{
		Title:     "Lecture: Intro",
		Date:      "2025-04-28",
		StartTime: "10:00:00",
		EndTime:   "11:00:00",
		Location:  "Campus",
		Source:    models.SourceRef{SheetID: "sheet-1", RowIndex: row},
	}
}

func TestUpsertEvent_CreateThenUpdate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	action, id, err := s.UpsertEvent(ctx, testEvent(2))
	if err != nil {
		t.Fatalf("UpsertEvent() failed: %v", err)
	}
	if action != Created {
		t.Errorf("first upsert action = %q, want %q", action, Created)
	}
	if id == "" {
		t.Fatal("first upsert returned empty id")
	}

	// Same provenance key, changed fields: must overwrite, not insert.
	ev := testEvent(2)
	ev.Title = "Lecture: Intro (rescheduled)"
	ev.StartTime = "14:00:00"
	ev.EndTime = "15:00:00"

	action, id2, err := s.UpsertEvent(ctx, ev)
	if err != nil {
		t.Fatalf("second UpsertEvent() failed: %v", err)
	}
	if action != Updated {
		t.Errorf("second upsert action = %q, want %q", action, Updated)
	}
	if id2 != id {
		t.Errorf("second upsert id = %q, want original id %q", id2, id)
	}

	var title, start string
	err = s.conn.QueryRow("SELECT title, start_time FROM events WHERE id = ?", id).Scan(&title, &start)
	if err != nil {
		t.Fatalf("failed to read back event: %v", err)
	}
	if title != ev.Title || start != ev.StartTime {
		t.Errorf("stored (title, start) = (%q, %q), want (%q, %q)", title, start, ev.Title, ev.StartTime)
	}

	var count int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("event count = %d, want 1", count)
	}
}

func TestUpsert_CategoryPartition(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// An event and a task sharing a row index live in separate partitions
	// and must not shadow each other.
	if action, _, err := s.UpsertEvent(ctx, testEvent(5)); err != nil || action != Created {
		t.Fatalf("UpsertEvent() = (%q, %v), want created", action, err)
	}

	task := models.Task{
		Title:    "Buy groceries",
		Date:     "2025-04-28",
		Priority: models.PriorityMedium,
		Source:   models.SourceRef{SheetID: "sheet-1", RowIndex: 5},
	}
	action, _, err := s.UpsertTask(ctx, task)
	if err != nil {
		t.Fatalf("UpsertTask() failed: %v", err)
	}
	if action != Created {
		t.Errorf("task upsert action = %q, want %q despite shared row index", action, Created)
	}
}

func TestUpsertTask_NullableFields(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	task := models.Task{
		Title:    "Buy groceries",
		Date:     "2025-04-29",
		Priority: models.PriorityHigh,
		Source:   models.SourceRef{SheetID: "sheet-1", RowIndex: 3},
	}
	_, id, err := s.UpsertTask(ctx, task)
	if err != nil {
		t.Fatalf("UpsertTask() failed: %v", err)
	}

	var startTime, endTime, userID any
	var priority string
	err = s.conn.QueryRow(
		"SELECT start_time, end_time, user_id, priority FROM tasks WHERE id = ?", id,
	).Scan(&startTime, &endTime, &userID, &priority)
	if err != nil {
		t.Fatalf("failed to read back task: %v", err)
	}
	if startTime != nil || endTime != nil {
		t.Errorf("(start_time, end_time) = (%v, %v), want NULLs", startTime, endTime)
	}
	if userID != nil {
		t.Errorf("user_id = %v, ingested records must be ownerless", userID)
	}
	if priority != "high" {
		t.Errorf("priority = %q, want high", priority)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run, err := s.StartRun(ctx, "sheet-1")
	if err != nil {
		t.Fatalf("StartRun() failed: %v", err)
	}
	if run.Status != models.RunPending {
		t.Errorf("new run status = %q, want pending", run.Status)
	}

	// Advisory lock: a second start for the same sheet is refused.
	if _, err := s.StartRun(ctx, "sheet-1"); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second StartRun() error = %v, want ErrRunInProgress", err)
	}
	// A different sheet is unaffected.
	if _, err := s.StartRun(ctx, "sheet-2"); err != nil {
		t.Errorf("StartRun() for another sheet failed: %v", err)
	}

	run.Status = models.RunSuccess
	run.ItemsProcessed = 2
	run.ItemsCreated = 2
	run.Metadata.EventsProcessed = 1
	run.Metadata.TasksProcessed = 1
	if err := s.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.Status != models.RunSuccess {
		t.Errorf("status = %q, want success", got.Status)
	}
	if got.CompletedAt.IsZero() {
		t.Error("CompletedAt is zero after finish")
	}
	if got.ItemsProcessed != 2 || got.ItemsCreated != 2 {
		t.Errorf("counters = (%d, %d), want (2, 2)", got.ItemsProcessed, got.ItemsCreated)
	}
	if got.Metadata.EventsProcessed != 1 || got.Metadata.TasksProcessed != 1 {
		t.Errorf("metadata counters = %+v", got.Metadata)
	}

	// The terminal run no longer blocks new runs for its sheet.
	if _, err := s.StartRun(ctx, "sheet-1"); err != nil {
		t.Errorf("StartRun() after finish failed: %v", err)
	}
}

func TestFinishRun_Failed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run, err := s.StartRun(ctx, "sheet-1")
	if err != nil {
		t.Fatalf("StartRun() failed: %v", err)
	}

	run.Status = models.RunFailed
	run.ErrorMessage = "failed to fetch sheet: 500"
	if err := s.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.Status != models.RunFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage != run.ErrorMessage {
		t.Errorf("error message = %q, want %q", got.ErrorMessage, run.ErrorMessage)
	}
	if got.ItemsProcessed != 0 {
		t.Errorf("items processed = %d, want 0", got.ItemsProcessed)
	}
}

func TestStartRun_ExpiresAbandonedRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	stale, err := s.StartRun(ctx, "sheet-1")
	if err != nil {
		t.Fatalf("StartRun() failed: %v", err)
	}

	// Age the pending row past the cutoff, as if the process had crashed
	// before finishing.
	aged := time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339)
	if _, err := s.conn.Exec("UPDATE ingestion_runs SET started_at = ? WHERE id = ?", aged, stale.ID); err != nil {
		t.Fatalf("failed to age run: %v", err)
	}

	// The abandoned run no longer holds the lock.
	fresh, err := s.StartRun(ctx, "sheet-1")
	if err != nil {
		t.Fatalf("StartRun() after abandonment failed: %v", err)
	}
	if fresh.ID == stale.ID {
		t.Fatal("StartRun() reused the abandoned run")
	}

	got, err := s.GetRun(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetRun() failed: %v", err)
	}
	if got.Status != models.RunFailed {
		t.Errorf("abandoned run status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Error("abandoned run has no error message")
	}
	if got.CompletedAt.IsZero() {
		t.Error("abandoned run CompletedAt is zero")
	}
}

func TestFinishRun_UnknownID(t *testing.T) {
	s := testStore(t)

	run := &models.IngestionRun{ID: "missing", Status: models.RunSuccess}
	if err := s.FinishRun(context.Background(), run); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun() error = %v, want ErrRunNotFound", err)
	}
}

func TestListIngestedEvents_RowOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, row := range []int{7, 2, 4} {
		if _, _, err := s.UpsertEvent(ctx, testEvent(row)); err != nil {
			t.Fatalf("UpsertEvent(row=%d) failed: %v", row, err)
		}
	}

	events, err := s.ListIngestedEvents(ctx, "sheet-1")
	if err != nil {
		t.Fatalf("ListIngestedEvents() failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	for i, want := range []int{2, 4, 7} {
		if events[i].Source.RowIndex != want {
			t.Errorf("events[%d].Source.RowIndex = %d, want %d", i, events[i].Source.RowIndex, want)
		}
	}
}
