// Package dbtest opens throwaway SQLite databases for package tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/unclebandit/prospect-pipeline/internal/config"
	"github.com/unclebandit/prospect-pipeline/internal/db"
)

// Open returns a migrated database in the test's temp dir, closed on cleanup.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	conn, err := db.Open(context.Background(), config.DBConfig{
		Driver:      db.DriverSQLite,
		DSN:         filepath.Join(t.TempDir(), "test.db"),
		AutoMigrate: true,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn) })
	return conn
}
