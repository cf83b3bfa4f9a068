package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 2

// eventsTableDDL is shared by the live table and the refresh staging table.
// The column set is read directly by the serving layer.
const eventsTableDDL = `CREATE TABLE IF NOT EXISTS %s (
	event_id TEXT PRIMARY KEY,
	patient_id TEXT,
	event_name TEXT,
	is_rejected INTEGER,
	start_sample INTEGER,
	ecg_path TEXT
)`

const eventsIndexDDL = `CREATE INDEX IF NOT EXISTS idx_events_patient ON events(patient_id)`

// migration is one schema step. Its statements run in a single transaction
// together with the user_version bump.
type migration struct {
	description string
	statements  []string
	version     int
}

var migrations = []migration{
	{
		version:     1,
		description: "events catalog",
		statements: []string{
			fmt.Sprintf(eventsTableDDL, "events"),
			eventsIndexDDL,
		},
	},
	{
		version:     2,
		description: "ingestion run history",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS ingest_runs (
				id TEXT PRIMARY KEY,
				started_at DATETIME NOT NULL,
				finished_at DATETIME NOT NULL,
				discovered INTEGER NOT NULL DEFAULT 0,
				succeeded INTEGER NOT NULL DEFAULT 0,
				failed INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at)`,
			`CREATE TABLE IF NOT EXISTS ingest_failures (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL REFERENCES ingest_runs(id),
				event_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				message TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_ingest_failures_run ON ingest_failures(run_id)`,
		},
	},
}

func (m migration) apply(ctx context.Context, db *sql.DB) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range m.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
	}
	return nil
}

// SchemaVersion returns the database's current schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if err := m.apply(ctx, s.db); err != nil {
			return err
		}
		slog.Info("applied migration", "version", m.version, "description", m.description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
