package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRunMigrationsIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "quota.db"))
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck // test cleanup

	require.NoError(t, RunMigrations(db, zerolog.Nop()))
	require.NoError(t, RunMigrations(db, zerolog.Nop()))

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'quota_usage'`).Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "quota_usage", name)
}
