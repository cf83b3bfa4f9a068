package ingest

import (
	"time"

	"github.com/Veraticus/trifetch/internal/model"
)

// Failure records one skipped event.
type Failure struct {
	Err     error
	EventID string
	Kind    string
}

// Summary describes the outcome of one ingestion run.
type Summary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	RunID      string
	Failures   []Failure
	Discovered int
	Succeeded  int
	Failed     int
}

// Duration returns how long the run took.
func (s *Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// FailuresByKind counts failures per error kind.
func (s *Summary) FailuresByKind() map[string]int {
	counts := make(map[string]int)
	for _, f := range s.Failures {
		counts[f.Kind]++
	}
	return counts
}

// Run converts the summary into its persisted form.
func (s *Summary) Run() *model.IngestRun {
	run := &model.IngestRun{
		ID:         s.RunID,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Discovered: s.Discovered,
		Succeeded:  s.Succeeded,
		Failed:     s.Failed,
		Failures:   make([]model.IngestFailure, 0, len(s.Failures)),
	}
	for _, f := range s.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		run.Failures = append(run.Failures, model.IngestFailure{
			EventID: f.EventID,
			Kind:    f.Kind,
			Message: msg,
		})
	}
	return run
}

type eventResult struct {
	failure   *Failure
	processed bool
}

// collect folds per-event results into the counters. Unprocessed entries only
// exist after cancellation.
func (s *Summary) collect(results []eventResult) {
	s.Succeeded, s.Failed, s.Failures = 0, 0, nil
	for _, r := range results {
		if !r.processed {
			continue
		}
		if r.failure == nil {
			s.Succeeded++
			continue
		}
		s.Failed++
		s.Failures = append(s.Failures, *r.failure)
	}
}
