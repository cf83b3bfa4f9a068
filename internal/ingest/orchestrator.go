// Package ingest discovers raw event folders and turns them into canonical waveform
// artifacts and catalog rows, replacing the catalog as a whole on every run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/metadata"
	"github.com/Veraticus/trifetch/internal/metrics"
	"github.com/Veraticus/trifetch/internal/model"
	"github.com/Veraticus/trifetch/internal/service"
	"github.com/Veraticus/trifetch/internal/waveform"
)

// MetadataPattern identifies a raw event folder by its metadata document.
const MetadataPattern = "event_*.json"

// Config holds configuration options for an ingestion run.
type Config struct {
	RawRoot     string
	ArtifactDir string
	Workers     int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Workers: 1,
	}
}

// Progress is called after each event is processed.
type Progress func(done, total int)

// Orchestrator drives one full-refresh ingestion run.
type Orchestrator struct {
	catalog   service.Catalog
	assembler *waveform.Assembler
	logger    *slog.Logger
	progress  Progress
	now       func() time.Time
	config    Config
}

// New creates an orchestrator writing to catalog.
func New(catalog service.Catalog, config Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	return &Orchestrator{
		catalog:   catalog,
		assembler: waveform.NewAssembler(config.ArtifactDir, logger),
		logger:    logger,
		now:       time.Now,
		config:    config,
	}
}

// OnProgress registers a progress callback. It is invoked from one goroutine at a time.
func (o *Orchestrator) OnProgress(p Progress) {
	o.progress = p
}

// Discover returns every metadata document under root, sorted by path.
func Discover(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		matched, err := filepath.Match(MetadataPattern, d.Name())
		if err != nil {
			return err
		}
		if matched {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan raw root %s: %w", root, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// Run ingests every discovered event and replaces the catalog with the result.
// A failing event is recorded and skipped. Cancellation aborts the refresh and the
// previous catalog stays in place.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: o.now(),
	}

	paths, err := Discover(o.config.RawRoot)
	if err != nil {
		return nil, err
	}
	summary.Discovered = len(paths)

	o.logger.Info("Starting ingestion run",
		"run_id", summary.RunID,
		"raw_root", o.config.RawRoot,
		"events", len(paths),
		"workers", o.config.Workers)

	refresh, err := o.catalog.BeginRefresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin catalog refresh: %w", err)
	}

	claimedBy := claimEventIDs(paths)
	results := make([]eventResult, len(paths))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Workers)

	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			var failure *Failure
			if owner := claimedBy[i]; owner != "" {
				failure = newFailure(eventIDFor(path),
					fmt.Errorf("%w: event id already used by %s", common.ErrDuplicateEntry, filepath.Dir(owner)),
					common.KindCatalog)
			} else {
				start := time.Now()
				failure = o.ingestEvent(gctx, path, func(event model.CanonicalEvent) error {
					mu.Lock()
					defer mu.Unlock()
					return refresh.Stage(gctx, event)
				})
				metrics.EventDuration.Observe(time.Since(start).Seconds())
			}

			// Cancellation is a run-level outcome, not a per-event failure.
			if failure != nil && failure.Kind == common.KindCanceled && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			results[i] = eventResult{failure: failure, processed: true}
			done++
			if failure == nil {
				metrics.EventsIngested.WithLabelValues(metrics.StatusOK).Inc()
			} else {
				metrics.EventsIngested.WithLabelValues(failure.Kind).Inc()
				o.logger.Warn("Skipping event",
					"event_id", failure.EventID,
					"kind", failure.Kind,
					"error", failure.Err)
			}
			if o.progress != nil {
				o.progress(done, len(paths))
			}
			return nil
		})
	}

	waitErr := g.Wait()
	if waitErr == nil {
		waitErr = ctx.Err()
	}
	if waitErr != nil {
		metrics.IngestRuns.WithLabelValues(metrics.RunAborted).Inc()
		if abortErr := refresh.Abort(ctx); abortErr != nil {
			o.logger.Error("Failed to abort catalog refresh", "error", abortErr)
		}
		summary.collect(results)
		summary.FinishedAt = o.now()
		return summary, fmt.Errorf("ingestion interrupted, previous catalog kept: %w", waitErr)
	}

	if err := refresh.Commit(ctx); err != nil {
		metrics.IngestRuns.WithLabelValues(metrics.RunAborted).Inc()
		if abortErr := refresh.Abort(ctx); abortErr != nil {
			o.logger.Error("Failed to abort catalog refresh", "error", abortErr)
		}
		return nil, fmt.Errorf("failed to commit catalog refresh: %w", err)
	}
	metrics.IngestRuns.WithLabelValues(metrics.RunCommitted).Inc()

	summary.collect(results)
	summary.FinishedAt = o.now()
	metrics.CatalogEvents.Set(float64(summary.Succeeded))

	if err := o.catalog.SaveRun(ctx, summary.Run()); err != nil {
		o.logger.Warn("Failed to record ingestion run", "run_id", summary.RunID, "error", err)
	}

	o.logger.Info("Ingestion run complete",
		"run_id", summary.RunID,
		"discovered", summary.Discovered,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.Duration())

	return summary, nil
}

// eventIDFor derives the event id from the folder holding the metadata document.
func eventIDFor(metaPath string) string {
	return filepath.Base(filepath.Dir(metaPath))
}

// claimEventIDs assigns each event id to the first folder, in path order, that
// carries it. Entry i is empty when paths[i] owns its id, and otherwise holds
// the owning path. Later folders must fail before anything is written for them.
func claimEventIDs(paths []string) []string {
	owners := make(map[string]string, len(paths))
	claimedBy := make([]string, len(paths))
	for i, path := range paths {
		id := eventIDFor(path)
		if owner, ok := owners[id]; ok {
			claimedBy[i] = owner
			continue
		}
		owners[id] = path
	}
	return claimedBy
}

// ingestEvent processes one raw folder. The event is staged only when both the metadata
// and the waveform succeed.
func (o *Orchestrator) ingestEvent(ctx context.Context, metaPath string, stage func(model.CanonicalEvent) error) *Failure {
	dir := filepath.Dir(metaPath)
	eventID := eventIDFor(metaPath)

	meta, err := metadata.ResolveFile(metaPath)
	if err != nil {
		return newFailure(eventID, err, common.KindMetadata)
	}

	artifact, err := o.assembler.Build(ctx, dir, eventID)
	if err != nil {
		return newFailure(eventID, err, common.KindChunkParse)
	}

	event := model.CanonicalEvent{
		EventID:     eventID,
		PatientID:   meta.PatientID,
		EventName:   meta.Label,
		IsRejected:  meta.IsRejected,
		StartSample: meta.StartSample,
		ECGPath:     artifact,
	}
	if err := stage(event); err != nil {
		return newFailure(eventID, err, common.KindCatalog)
	}

	o.logger.Debug("Ingested event",
		"event_id", eventID,
		"patient_id", meta.PatientID,
		"label", meta.Label,
		"start_sample", meta.StartSample)
	return nil
}

func newFailure(eventID string, err error, fallback string) *Failure {
	kind := common.ErrorKind(err)
	if kind == common.KindUnknown {
		kind = fallback
	}
	if errors.Is(err, common.ErrDuplicateEntry) {
		kind = common.KindCatalog
	}
	return &Failure{EventID: eventID, Kind: kind, Err: err}
}
