// Package dbtest provides an in-memory SQLite database carrying the production schema.
package dbtest

import (
	"testing"

	"github.com/Dosada05/bracket-engine/db"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

// New opens a fresh in-memory database and applies migrations. The pool is pinned to one
// connection because every sqlite memory connection is its own database.
func New(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err, "Failed to connect to in-memory DB")
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { database.Close() })

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	m, err := db.NewMigrator(driver, "sqlite3")
	require.NoError(t, err)
	require.NoError(t, db.Up(m), "Failed to apply migrations")

	return database
}
