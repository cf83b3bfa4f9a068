package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/trifetch/internal/common"
	"github.com/Veraticus/trifetch/internal/model"
	"github.com/Veraticus/trifetch/internal/service"
)

// SQLiteStorage implements service.Catalog using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// BeginRefresh starts a full catalog replacement. Rows are staged in events_staging and
// swapped in on Commit, so readers never observe a partially populated catalog.
func (s *SQLiteStorage) BeginRefresh(ctx context.Context) (service.Refresh, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	queries := []string{
		`DROP TABLE IF EXISTS events_staging`,
		fmt.Sprintf(eventsTableDDL, "events_staging"),
	}
	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return nil, fmt.Errorf("failed to prepare staging table: %w", err)
		}
	}

	return &sqliteRefresh{storage: s}, nil
}

// sqliteRefresh is a staged replacement of the events table.
type sqliteRefresh struct {
	storage *SQLiteStorage
	staged  int
	mu      sync.Mutex
	closed  bool
}

func (r *sqliteRefresh) Stage(ctx context.Context, event model.CanonicalEvent) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateEvent(&event); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return common.ErrRefreshClosed
	}

	_, err := r.storage.db.ExecContext(ctx, `
		INSERT INTO events_staging (event_id, patient_id, event_name, is_rejected, start_sample, ecg_path)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.EventID, event.PatientID, event.EventName, boolToInt(event.IsRejected), event.StartSample, event.ECGPath)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: event %s", common.ErrDuplicateEntry, event.EventID)
		}
		return fmt.Errorf("failed to stage event %s: %w", event.EventID, err)
	}

	r.staged++
	return nil
}

func (r *sqliteRefresh) Commit(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return common.ErrRefreshClosed
	}

	tx, err := r.storage.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	queries := []string{
		`DROP TABLE IF EXISTS events`,
		`ALTER TABLE events_staging RENAME TO events`,
		eventsIndexDDL,
	}
	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to swap catalog: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog swap: %w", err)
	}

	r.closed = true
	return nil
}

func (r *sqliteRefresh) Abort(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	// The caller's context may already be canceled.
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	if _, err := r.storage.db.ExecContext(ctx, `DROP TABLE IF EXISTS events_staging`); err != nil {
		return fmt.Errorf("failed to drop staging table: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
