package dto

import "time"

// ImportResult summarises one timetable import.
type ImportResult struct {
	Status        string `json:"status"`
	ParserVersion string `json:"parserVersion"`
	Imported      int    `json:"imported"`
	SkippedRows   int    `json:"skippedRows"`
	Replaced      bool   `json:"replaced"`
}

// SyncAccepted is returned when a portal sync was queued.
type SyncAccepted struct {
	JobID   string `json:"jobId"`
	OwnerID string `json:"ownerId"`
}

// ScheduledJob is one entry of the scheduler registry.
type ScheduledJob struct {
	Key     string     `json:"key"`
	NextRun *time.Time `json:"nextRun,omitempty"`
}
