package repository

import (
	"context"
	"path/filepath"
	"testing"
)

func openTempSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := OpenSQLite(filepath.Join(t.TempDir(), "attendees.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(context.Background()); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenSQLite(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestSQLiteStoreContract(t *testing.T) {
	testStoreContract(t, func(t *testing.T) Store {
		return openTempSQLite(t)
	})
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "attendees.db")
	first, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close(context.Background())

	var applied int
	if err := second.sqlDB.QueryRow(`SELECT COUNT(*) FROM ` + sqliteMigrationTable).Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied migrations = %d, want 1", applied)
	}
}

func TestExtractUpMigration(t *testing.T) {
	t.Parallel()

	content := "-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
	got := extractUpMigration(content)
	if got != "\nCREATE TABLE a (id INTEGER);\n" {
		t.Fatalf("up = %q", got)
	}
	if plain := extractUpMigration("SELECT 1;"); plain != "SELECT 1;" {
		t.Fatalf("plain = %q", plain)
	}
}
