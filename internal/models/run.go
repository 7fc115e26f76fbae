package models

import "time"

// RunStatus is the lifecycle state of an ingestion run.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	// RunSkipped is reserved by the schema for other sync types; the
	// ingestion pipeline never produces it.
	RunSkipped RunStatus = "skipped"
)

// RunMetadata holds per-category counters attached to a finished run.
type RunMetadata struct {
	EventsProcessed int    `json:"events_processed"`
	TasksProcessed  int    `json:"tasks_processed"`
	SheetID         string `json:"sheet_id,omitempty"`
}

// IngestionRun is the audit record for one end-to-end pipeline execution.
// It is inserted in pending state when the run starts, updated exactly once
// to a terminal state (success or failed) when it ends, and never deleted.
type IngestionRun struct {
	ID             string
	SheetID        string
	Status         RunStatus
	StartedAt      time.Time
	CompletedAt    time.Time // zero until the run reaches a terminal state
	ItemsProcessed int
	ItemsCreated   int
	ItemsUpdated   int
	ErrorMessage   string
	Metadata       RunMetadata
}
