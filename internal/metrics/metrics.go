// Package metrics holds the Prometheus collectors for ingestion and classification.
// The CLI is short-lived, so collectors are exported as a node_exporter textfile
// instead of being scraped.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values for EventsIngested besides error kinds.
const StatusOK = "ok"

var (
	// Ingestion metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trifetch_ingest_events_total",
			Help: "Total number of events processed by ingestion, by status or error kind",
		},
		[]string{"status"},
	)

	EventDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trifetch_ingest_event_duration_seconds",
			Help:    "Duration of assembling and staging a single event in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trifetch_ingest_runs_total",
			Help: "Total number of ingestion runs, by result",
		},
		[]string{"result"},
	)

	CatalogEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trifetch_catalog_events",
			Help: "Number of events in the catalog after the last committed refresh",
		},
	)

	// Classification metrics
	Classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trifetch_classifications_total",
			Help: "Total number of classifications, by outcome",
		},
		[]string{"outcome"},
	)

	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trifetch_inference_duration_seconds",
			Help:    "Duration of inference requests in seconds, including retries",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider"},
	)

	InferenceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trifetch_inference_errors_total",
			Help: "Total number of failed inference attempts",
		},
		[]string{"provider"},
	)
)

// Run results for IngestRuns.
const (
	RunCommitted = "committed"
	RunAborted   = "aborted"
)

// WriteTextfile writes every registered collector to path in the Prometheus text format.
func WriteTextfile(path string) error {
	return WriteTextfileFrom(prometheus.DefaultGatherer, path)
}

// WriteTextfileFrom writes the metrics gathered by g to path.
func WriteTextfileFrom(g prometheus.Gatherer, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
