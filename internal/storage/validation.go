// Package storage provides the SQLite event catalog and ingestion run history.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/trifetch/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrInvalidEvent = errors.New("invalid event")
	ErrInvalidRun   = errors.New("invalid ingest run")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateEvent validates a catalog row before it is staged.
func validateEvent(event *model.CanonicalEvent) error {
	if event == nil {
		return fmt.Errorf("%w: event", ErrNilParameter)
	}
	if strings.TrimSpace(event.EventID) == "" {
		return fmt.Errorf("%w: missing event ID", ErrInvalidEvent)
	}
	if strings.TrimSpace(event.ECGPath) == "" {
		return fmt.Errorf("%w: missing ECG path for %s", ErrInvalidEvent, event.EventID)
	}
	return nil
}

// validateRun validates an ingestion run record.
func validateRun(run *model.IngestRun) error {
	if run == nil {
		return fmt.Errorf("%w: run", ErrNilParameter)
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidRun)
	}
	if run.StartedAt.IsZero() {
		return fmt.Errorf("%w: missing start time", ErrInvalidRun)
	}
	if run.FinishedAt.Before(run.StartedAt) {
		return fmt.Errorf("%w: finished before it started", ErrInvalidRun)
	}
	if run.Succeeded < 0 || run.Failed < 0 || run.Succeeded+run.Failed > run.Discovered {
		return fmt.Errorf("%w: counts do not add up (%d discovered, %d succeeded, %d failed)",
			ErrInvalidRun, run.Discovered, run.Succeeded, run.Failed)
	}
	for i, failure := range run.Failures {
		if strings.TrimSpace(failure.EventID) == "" {
			return fmt.Errorf("%w: failure at index %d has no event ID", ErrInvalidRun, i)
		}
	}
	return nil
}
