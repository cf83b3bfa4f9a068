package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/trifetch/internal/cli"
	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/config"
	"github.com/Veraticus/trifetch/internal/ingest"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Rebuild the event catalog from raw recordings",
		Long: `Discover every event folder under the raw root, assemble its chunk files into
a canonical waveform artifact and replace the catalog with the events that
ingested cleanly. Events that fail are reported and skipped.

The catalog is only replaced when the run completes; an interrupted run leaves
the previous catalog in place.`,
		RunE: runIngest,
	}

	cmd.Flags().String("raw-root", "", "root directory of the raw event folders")
	cmd.Flags().Int("workers", 1, "number of events processed concurrently")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics to this textfile after the run")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")

	_ = viper.BindPFlag("raw.root", cmd.Flags().Lookup("raw-root"))
	_ = viper.BindPFlag("ingest.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("metrics.file", cmd.Flags().Lookup("metrics-file"))

	return cmd
}

func runIngest(cmd *cobra.Command, _ []string) error {
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireRawRoot(); err != nil {
		return err
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Ingestion", "The previous catalog was kept.")
	ctx := interrupts.HandleInterrupts(cmd.Context())
	defer interrupts.Stop()

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return common.NewUserError("could not open the catalog", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close catalog", "error", closeErr)
		}
	}()

	orchestrator := ingest.New(store, ingest.Config{
		RawRoot:     cfg.RawRoot,
		ArtifactDir: cfg.ArtifactDir(),
		Workers:     cfg.Workers,
	}, slog.Default())

	if !noProgress {
		paths, err := ingest.Discover(cfg.RawRoot)
		if err != nil {
			return err
		}
		if len(paths) > 0 {
			bar := cli.NewProgress(cmd.ErrOrStderr(), len(paths), "Ingesting events")
			orchestrator.OnProgress(bar.Update)
		}
	}

	summary, runErr := orchestrator.Run(ctx)
	if summary != nil {
		fmt.Fprintln(cmd.OutOrStdout(), cli.RenderIngestRun(summary.Run()))
	}
	if metricsErr := writeMetrics(cfg); metricsErr != nil {
		slog.Warn("Failed to export metrics", "error", metricsErr)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Catalog now holds %d events (%s)", summary.Succeeded, cfg.DatabasePath)))
	return nil
}
