package store

import (
	"database/sql"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("creates file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "runs.db")
		s, err := Open(path)
		require.NoError(t, err)
		defer s.Close()
		assert.FileExists(t, path)
	})

	t.Run("reopen keeps tables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "runs.db")
		for range 3 {
			s, err := Open(path)
			require.NoError(t, err)
			require.NoError(t, s.Close())
		}

		s, err := Open(path)
		require.NoError(t, err)
		defer s.Close()
		assert.Subset(t, tableNames(t, s.db), []string{"runs", "schedules"})
	})

	t.Run("in memory", func(t *testing.T) {
		s, err := Open(":memory:")
		require.NoError(t, err)
		defer s.Close()
		assert.Subset(t, tableNames(t, s.db), []string{"runs", "schedules"})
	})

	t.Run("unwritable directory", func(t *testing.T) {
		_, err := Open("/nonexistent/dir/runs.db")
		assert.Error(t, err)
	})
}

func TestClose(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())

	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestPragmasApplied(t *testing.T) {
	s := createTestStore(t)

	for _, p := range pragmas {
		t.Run(p.name, func(t *testing.T) {
			got, err := s.pragmaValue(p.name)
			require.NoError(t, err)
			assert.Equal(t, p.readBack, got)
		})
	}
}

func TestSchemaColumns(t *testing.T) {
	s := createTestStore(t)

	assert.Equal(t, []string{
		"id", "seq", "kernel_name", "kernel_hash", "status", "successes",
		"dead_ends", "longest_dead_end_len", "longest_dead_end", "boosted",
		"loop_priority", "error", "scheduler_version", "ir_version",
	}, columnNames(t, s.db, "runs"))
	assert.Equal(t, []string{"run_id", "idx", "schedule_hash", "dump", "items", "owed", "boosted"},
		columnNames(t, s.db, "schedules"))
}

func TestSchemaIndexes(t *testing.T) {
	s := createTestStore(t)

	assert.Subset(t, indexNames(t, s.db, "runs"), []string{"idx_runs_seq", "idx_runs_kernel"})
	assert.Contains(t, indexNames(t, s.db, "schedules"), "idx_schedules_hash")
}

func TestSchemaConstraints(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO runs (id, seq, kernel_name, kernel_hash, status, scheduler_version, ir_version)
		VALUES ('r1', 1, 'k', 'h', 'bogus', '0', '1')`)
	assert.Error(t, err, "status CHECK constraint")

	_, err = s.db.Exec(`INSERT INTO schedules (run_id, idx, schedule_hash, dump, items)
		VALUES ('missing', 0, 'h', '', '[]')`)
	assert.Error(t, err, "schedules.run_id foreign key")
}

func TestMigrate(t *testing.T) {
	t.Run("fresh database is current", func(t *testing.T) {
		s := createTestStore(t)
		assert.Equal(t, currentSchemaVersion, userVersion(t, s.db))
	})

	t.Run("upgrades version 0", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "runs.db")
		db, err := sql.Open("sqlite3", path)
		require.NoError(t, err)
		_, err = db.Exec(schemaSQL)
		require.NoError(t, err)
		require.NoError(t, db.Close())

		s, err := Open(path)
		require.NoError(t, err)
		defer s.Close()

		assert.Equal(t, currentSchemaVersion, userVersion(t, s.db))
		assert.Contains(t, indexNames(t, s.db, "schedules"), "idx_schedules_hash")
	})

	t.Run("skips applied migrations", func(t *testing.T) {
		s := createTestStore(t)
		require.NoError(t, migrate(s.db))
		assert.Equal(t, currentSchemaVersion, userVersion(t, s.db))
	})
}

func userVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	var v int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&v))
	return v
}

func columnNames(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	return queryNames(t, db, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
}

func indexNames(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()
	return queryNames(t, db, "SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ?", table)
}

func tableNames(t *testing.T, db *sql.DB) []string {
	t.Helper()
	names := queryNames(t, db, "SELECT name FROM sqlite_master WHERE type = 'table'")
	slices.Sort(names)
	return names
}

func queryNames(t *testing.T, db *sql.DB, query string, args ...any) []string {
	t.Helper()
	rows, err := db.Query(query, args...)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}
