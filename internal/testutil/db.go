package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/xxxsen/docsassist/internal/db"
)

// OpenTestDB opens a migrated sqlite database in a temp dir that is removed
// when the test ends.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenAndMigrate(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}
