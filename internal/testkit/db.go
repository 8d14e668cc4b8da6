// Package testkit holds helpers shared by package tests.
package testkit

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/database"
)

// OpenSQLite opens a fresh SQLite database in t's temp dir and closes it on cleanup.
// Callers create the tables they need through the repos' EnsureTable.
func OpenSQLite(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Driver:   database.DriverSQLite,
		DSN:      filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)",
		MaxConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
