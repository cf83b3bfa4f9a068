package model

import "time"

// IngestRun records one ingestion run for auditing.
type IngestRun struct {
	StartedAt  time.Time
	FinishedAt time.Time
	ID         string
	Failures   []IngestFailure
	Discovered int
	Succeeded  int
	Failed     int
}

// IngestFailure records why one event was skipped during a run.
type IngestFailure struct {
	EventID string
	Kind    string
	Message string
}
