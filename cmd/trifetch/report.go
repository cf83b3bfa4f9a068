package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/trifetch/internal/cli"
	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/config"
	"github.com/Veraticus/trifetch/internal/model"
	"github.com/Veraticus/trifetch/internal/service"
	"github.com/Veraticus/trifetch/internal/sheets"
	"github.com/Veraticus/trifetch/internal/waveform"
)

// eventClassifier is the part of llm.Classifier the report needs.
type eventClassifier interface {
	ClassifyEvent(ctx context.Context, event model.CanonicalEvent, loader service.WaveformLoader) model.ClassificationResult
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Classify catalogued events and report agreement with the recorded labels",
		Long: `Classify every catalogued event (or one patient's events) one request at a
time under the rate limit, print a table with the agreement rate and outcome
counts and optionally publish the rows to Google Sheets.

Sheets credentials come from sheets.* config keys or GOOGLE_SHEETS_* environment
variables (service account key or OAuth2 refresh token).`,
		RunE: runReport,
	}

	addLLMFlags(cmd)
	cmd.Flags().String("patient", "", "only classify this patient's events")
	cmd.Flags().Int("limit", 0, "classify at most this many events (0 for all)")
	cmd.Flags().Int("show", 50, "rows shown in the terminal table (0 for all)")
	cmd.Flags().Bool("include-rejected", false, "include events the monitor marked as rejected")
	cmd.Flags().Bool("sheets", false, "publish the report to Google Sheets")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")

	return cmd
}

func runReport(cmd *cobra.Command, _ []string) error {
	patient, _ := cmd.Flags().GetString("patient")
	limit, _ := cmd.Flags().GetInt("limit")
	show, _ := cmd.Flags().GetInt("show")
	includeRejected, _ := cmd.Flags().GetBool("include-rejected")
	toSheets, _ := cmd.Flags().GetBool("sheets")
	noProgress, _ := cmd.Flags().GetBool("no-progress")
	bindLLMFlags(cmd)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Fail on bad Sheets credentials before spending inference requests.
	var writer service.ReportWriter
	if toSheets {
		sheetsCfg, err := config.LoadSheetsConfig(nil)
		if err != nil {
			return common.NewUserError("Google Sheets is not configured", err)
		}
		writer, err = sheets.NewWriter(cmd.Context(), *sheetsCfg, slog.Default())
		if err != nil {
			return err
		}
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr(), "Report", "Partial results are shown below.")
	ctx := interrupts.HandleInterrupts(cmd.Context())
	defer interrupts.Stop()

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return common.NewUserError("could not open the catalog", err)
	}
	defer func() { _ = store.Close() }()

	events, err := store.ListEvents(ctx)
	if err != nil {
		return err
	}
	events = selectEvents(events, patient, includeRejected, limit)
	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("No catalogued events match"))
		return nil
	}

	classifier, err := createClassifier(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = classifier.Close() }()

	var onDone func()
	if !noProgress {
		bar := cli.NewProgress(cmd.ErrOrStderr(), len(events), "Classifying events")
		onDone = bar.Add
	}

	rows, classifyErr := classifyAll(ctx, events, classifier, waveform.Loader{}, onDone)
	summary := service.NewReportSummary(rows, time.Now())
	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderReport(rows, summary, show))

	if err := writeMetrics(cfg); err != nil {
		slog.Warn("Failed to export metrics", "error", err)
	}
	if classifyErr != nil {
		return fmt.Errorf("report interrupted after %d of %d events: %w", len(rows), len(events), classifyErr)
	}

	return publishReport(ctx, cmd.OutOrStdout(), writer, rows, summary)
}

// publishReport hands the finished report to writer. A nil writer is a no-op.
func publishReport(ctx context.Context, out io.Writer, writer service.ReportWriter, rows []model.ReportRow, summary *service.ReportSummary) error {
	if writer == nil {
		return nil
	}
	if err := writer.Write(ctx, rows, summary); err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Published %d events to Google Sheets", len(rows))))
	return nil
}

// selectEvents filters events by patient and rejection flag and caps the count.
func selectEvents(events []model.CanonicalEvent, patient string, includeRejected bool, limit int) []model.CanonicalEvent {
	selected := make([]model.CanonicalEvent, 0, len(events))
	for _, e := range events {
		if patient != "" && e.PatientID != patient {
			continue
		}
		if e.IsRejected && !includeRejected {
			continue
		}
		selected = append(selected, e)
		if limit > 0 && len(selected) == limit {
			break
		}
	}
	return selected
}

// classifyAll classifies events in order. On cancellation it returns the rows
// completed so far together with the context error.
func classifyAll(
	ctx context.Context,
	events []model.CanonicalEvent,
	classifier eventClassifier,
	loader service.WaveformLoader,
	onDone func(),
) ([]model.ReportRow, error) {
	rows := make([]model.ReportRow, 0, len(events))
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return rows, err
		}

		result := classifier.ClassifyEvent(ctx, event, loader)
		rows = append(rows, model.ReportRow{
			EventID:     event.EventID,
			PatientID:   event.PatientID,
			GroundTruth: event.EventName,
			Predicted:   result.Label,
			Outcome:     result.Outcome,
			Confidence:  result.Confidence,
			IsRejected:  event.IsRejected,
		})

		if onDone != nil {
			onDone()
		}
	}
	return rows, nil
}
