package testutil

import (
	"path/filepath"
	"testing"

	"alcyxob/notes-app/internal/config"
)

// SQLiteConfig returns a database config pointing at a fresh SQLite file
// inside the test's temp dir.
func SQLiteConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "notes.db") + "?_busy_timeout=5000",
	}
}
