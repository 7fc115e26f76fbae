package models

// SourceRef identifies where a persisted record came from. SheetID is the
// external spreadsheet document and RowIndex is the 1-based physical row
// within it (header included). At most one record exists per (SheetID,
// RowIndex) pair within each category; this is the reconciliation key.
type SourceRef struct {
	SheetID  string
	RowIndex int
}

// Priority levels for tasks. Ingestion only ever assigns medium or high;
// low exists for records created elsewhere in the system.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Event is the canonical calendar event shape persisted by ingestion.
// Date, StartTime and EndTime are ISO strings ("2006-01-02", "15:04:05").
// Optional text fields use "" for absent; ingested events carry no owner.
type Event struct {
	ID          string
	Title       string
	Description string
	Date        string
	StartTime   string
	EndTime     string
	IsOnline    bool
	Location    string
	MeetingLink string
	Notes       string
	Source      SourceRef
}

// Task is the canonical task shape persisted by ingestion. StartTime and
// EndTime are optional ("" when absent); tasks never get a synthesized
// end time.
type Task struct {
	ID          string
	Title       string
	Description string
	Date        string
	StartTime   string
	EndTime     string
	IsCompleted bool
	Priority    Priority
	Notes       string
	Source      SourceRef
}
