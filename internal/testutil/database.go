// Package testutil provides shared fixtures for trifetch tests: raw event folders on disk
// and a migrated catalog that is closed when the test ends.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/trifetch/internal/storage"
)

// SetupTestCatalog creates a migrated SQLite catalog in a temp directory.
func SetupTestCatalog(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("failed to create test catalog: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}
