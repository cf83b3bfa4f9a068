// Package model defines the core domain models used throughout the application.
package model

// UnknownLabel is the label assigned when an event carries no diagnostic label.
const UnknownLabel = "UNKNOWN"

// EventMetadata is the normalized content of one event_*.json document.
type EventMetadata struct {
	// ExplicitOnset is the EventIndex field when present and usable.
	ExplicitOnset *int
	// OnsetTime is the raw EventOccuredTime value, empty when absent.
	OnsetTime   string
	Label       string
	PatientID   string
	StartSample int
	IsRejected  bool
}

// CanonicalEvent is one catalog row. It is created once per ingestion run and never mutated.
type CanonicalEvent struct {
	EventID     string
	PatientID   string
	EventName   string
	ECGPath     string
	StartSample int
	IsRejected  bool
}

// PatientSummary aggregates catalog rows for one patient.
type PatientSummary struct {
	PatientID    string
	EpisodeCount int
}

// Episode is the per-patient listing shape of an event.
type Episode struct {
	EventID     string
	EventName   string
	StartSample int
	IsRejected  bool
}
