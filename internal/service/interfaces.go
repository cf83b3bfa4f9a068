// Package service defines the interfaces shared between the pipeline stages.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/trifetch/internal/model"
)

// Catalog is the persistence contract for canonical events.
// It is written only by ingestion and read by everything else.
type Catalog interface {
	// BeginRefresh starts a full replacement of the catalog. Readers keep seeing the
	// previous catalog until the returned Refresh is committed.
	BeginRefresh(ctx context.Context) (Refresh, error)

	GetEvent(ctx context.Context, eventID string) (*model.CanonicalEvent, error)
	ListEvents(ctx context.Context) ([]model.CanonicalEvent, error)
	ListPatients(ctx context.Context) ([]model.PatientSummary, error)
	ListEpisodes(ctx context.Context, patientID string) ([]model.Episode, error)

	// Run history
	SaveRun(ctx context.Context, run *model.IngestRun) error
	GetRun(ctx context.Context, id string) (*model.IngestRun, error)
	LatestRun(ctx context.Context) (*model.IngestRun, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Refresh is an in-progress staged catalog replacement.
// Stage may be called from one goroutine at a time.
type Refresh interface {
	Stage(ctx context.Context, event model.CanonicalEvent) error
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// WaveformLoader reads a canonical waveform artifact.
type WaveformLoader interface {
	Load(path string) (model.Waveform, error)
}

// RetryOptions configures retry behavior.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// ReportWriter defines the interface for exporting classification reports.
type ReportWriter interface {
	Write(ctx context.Context, rows []model.ReportRow, summary *ReportSummary) error
}

// ReportSummary contains aggregate information for the report.
type ReportSummary struct {
	GeneratedAt time.Time
	ByOutcome   map[model.Outcome]int
	ByLabel     map[string]LabelSummary
	Total       int
	Accepted    int
	Agreed      int
}

// LabelSummary aggregates report rows sharing one ground-truth label.
type LabelSummary struct {
	Count    int
	Accepted int
	Agreed   int
}

// NewReportSummary aggregates rows. Agreement only counts accepted model answers,
// since every fallback reports the ground truth.
func NewReportSummary(rows []model.ReportRow, generatedAt time.Time) *ReportSummary {
	s := &ReportSummary{
		GeneratedAt: generatedAt,
		ByOutcome:   make(map[model.Outcome]int),
		ByLabel:     make(map[string]LabelSummary),
		Total:       len(rows),
	}
	for _, row := range rows {
		s.ByOutcome[row.Outcome]++

		label := s.ByLabel[row.GroundTruth]
		label.Count++
		if row.Outcome == model.OutcomeAccepted {
			s.Accepted++
			label.Accepted++
			if row.Agrees() {
				s.Agreed++
				label.Agreed++
			}
		}
		s.ByLabel[row.GroundTruth] = label
	}
	return s
}

// AgreementRate is the share of accepted answers matching the ground truth.
func (s *ReportSummary) AgreementRate() float64 {
	if s.Accepted == 0 {
		return 0
	}
	return float64(s.Agreed) / float64(s.Accepted)
}
