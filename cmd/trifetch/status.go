package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/trifetch/internal/cli"
	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/config"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the catalog contents and the last ingestion run",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
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

	patients, err := store.ListPatients(ctx)
	if err != nil {
		return err
	}
	events := 0
	for _, p := range patients {
		events += p.EpisodeCount
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%s: %d events across %d patients", cfg.DatabasePath, events, len(patients))))

	run, err := store.LatestRun(ctx)
	if errors.Is(err, common.ErrNotFound) {
		fmt.Fprintln(out, cli.FormatWarning("No ingestion run recorded yet"))
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, cli.RenderIngestRun(run))
	return nil
}
