package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/interview-scheduler/internal/persistence/sqlstore"
)

// NewSQLiteStore opens a migrated SQLite database in a temporary directory.
// The database is closed when the test finishes.
func NewSQLiteStore(tb testing.TB) *sqlstore.Store {
	tb.Helper()

	ctx := context.Background()
	path := filepath.Join(tb.TempDir(), "interviews.db")
	store, err := sqlstore.Open(ctx, "sqlite", path)
	if err != nil {
		tb.Fatalf("open sqlite store: %v", err)
	}
	tb.Cleanup(func() {
		if err := store.Close(); err != nil {
			tb.Errorf("close sqlite store: %v", err)
		}
	})
	if _, err := store.Migrate(ctx); err != nil {
		tb.Fatalf("migrate sqlite store: %v", err)
	}
	return store
}
