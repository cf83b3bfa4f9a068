package main

import (
	"context"
	"fmt"

	"github.com/Veraticus/trifetch/internal/config"
	"github.com/Veraticus/trifetch/internal/metrics"
	"github.com/Veraticus/trifetch/internal/storage"
)

// initStorage opens the catalog and brings its schema up to date.
func initStorage(ctx context.Context, cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// writeMetrics exports the process metrics when metrics.file is configured.
func writeMetrics(cfg *config.Config) error {
	if cfg.MetricsFile == "" {
		return nil
	}
	if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
