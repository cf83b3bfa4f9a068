package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/model"
)

// SaveRun records an ingestion run and its failures. Run history is kept
// across refreshes.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *model.IngestRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO ingest_runs (id, started_at, finished_at, discovered, succeeded, failed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Discovered, run.Succeeded, run.Failed)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ingest_failures (run_id, event_id, kind, message)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, failure := range run.Failures {
		if _, err := stmt.ExecContext(ctx, run.ID, failure.EventID, failure.Kind, failure.Message); err != nil {
			return fmt.Errorf("failed to insert failure for %s: %w", failure.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a run by ID.
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*model.IngestRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, discovered, succeeded, failed
		FROM ingest_runs
		WHERE id = ?`, runID)
	return s.loadRun(ctx, row)
}

// LatestRun loads the most recently started run.
func (s *SQLiteStorage) LatestRun(ctx context.Context) (*model.IngestRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, discovered, succeeded, failed
		FROM ingest_runs
		ORDER BY started_at DESC
		LIMIT 1`)
	return s.loadRun(ctx, row)
}

func (s *SQLiteStorage) loadRun(ctx context.Context, row *sql.Row) (*model.IngestRun, error) {
	var run model.IngestRun
	err := row.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Discovered, &run.Succeeded, &run.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingest run: %w", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, kind, message
		FROM ingest_failures
		WHERE run_id = ?
		ORDER BY id`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var failure model.IngestFailure
		var message sql.NullString
		if err := rows.Scan(&failure.EventID, &failure.Kind, &message); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		failure.Message = message.String
		run.Failures = append(run.Failures, failure)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &run, nil
}
