package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/trifetch/internal/cli"
	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/config"
	"github.com/Veraticus/trifetch/internal/render"
	"github.com/Veraticus/trifetch/internal/waveform"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <event-id>",
		Short: "Classify one catalogued event",
		Long: `Render the event's waveform as a strip-chart, ask the vision model for its
arrhythmia label and compare the answer with the recorded label.

The command always prints a result: when rendering or inference fails the
recorded label is reported with the fallback confidence.`,
		Args: cobra.ExactArgs(1),
		RunE: runClassify,
	}

	addLLMFlags(cmd)
	cmd.Flags().String("save-png", "", "also write the rendered strip-chart to this file")

	return cmd
}

func runClassify(cmd *cobra.Command, args []string) error {
	savePNG, _ := cmd.Flags().GetString("save-png")
	bindLLMFlags(cmd)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx, cfg)
	if err != nil {
		return common.NewUserError("could not open the catalog", err)
	}
	defer func() { _ = store.Close() }()

	event, err := store.GetEvent(ctx, args[0])
	if errors.Is(err, common.ErrNotFound) {
		return common.NewUserError(fmt.Sprintf("event %s is not in the catalog (run `trifetch ingest` first?)", args[0]), err)
	}
	if err != nil {
		return err
	}

	loader := waveform.Loader{}
	if savePNG != "" {
		if err := saveStripChart(loader, event.ECGPath, event.StartSample, savePNG); err != nil {
			slog.Warn("Failed to save strip-chart", "path", savePNG, "error", err)
		}
	}

	classifier, err := createClassifier(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = classifier.Close() }()

	result := classifier.ClassifyEvent(ctx, *event, loader)
	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderClassification(*event, result))

	if err := writeMetrics(cfg); err != nil {
		slog.Warn("Failed to export metrics", "error", err)
	}
	return nil
}

func saveStripChart(loader waveform.Loader, artifact string, onset int, path string) error {
	w, err := loader.Load(artifact)
	if err != nil {
		return err
	}
	img, err := render.NewDefaultRenderer().Render(w, onset)
	if err != nil {
		return err
	}
	return os.WriteFile(path, img.PNG, 0600)
}
