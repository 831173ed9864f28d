package storage

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrationRunner_FreshDB(t *testing.T) {
	db := openRawDB(t)
	require.NoError(t, NewMigrationRunner(db).Run())

	for _, table := range []string{
		"bounce_candidates",
		"user_activations",
		"purge_log",
		"exemptions",
		"schema_migrations",
	} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrationRunner_IndexesCreated(t *testing.T) {
	db := openRawDB(t)
	require.NoError(t, NewMigrationRunner(db).Run())

	for _, idx := range []string{
		"idx_bounce_candidates_ts",
		"idx_user_activations_ts",
		"idx_purge_log_partition",
		"idx_exemptions_rule",
	} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx,
		).Scan(&name)
		require.NoError(t, err, "index %s should exist", idx)
	}
}

func TestMigrationRunner_Idempotent(t *testing.T) {
	db := openRawDB(t)
	runner := NewMigrationRunner(db)
	require.NoError(t, runner.Run())
	require.NoError(t, runner.Run())

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(migrations), count)

	v, err := runner.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestMigrationRunner_VersionOnFreshDB(t *testing.T) {
	db := openRawDB(t)
	runner := NewMigrationRunner(db)
	_, err := db.Exec(`CREATE TABLE schema_migrations (version INTEGER PRIMARY KEY, name TEXT NOT NULL, applied_at DATETIME)`)
	require.NoError(t, err)

	v, err := runner.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestMigrationRunner_SeedsDefaultExemptions(t *testing.T) {
	db := openRawDB(t)
	require.NoError(t, NewMigrationRunner(db).Run())

	var domains, regexes int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM exemptions WHERE rule_type = 'domain' AND is_default = 1",
	).Scan(&domains))
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM exemptions WHERE rule_type = 'regex' AND is_default = 1",
	).Scan(&regexes))
	assert.Equal(t, 10, domains)
	assert.Equal(t, 1, regexes)

	// Re-running must not duplicate the seed rows.
	require.NoError(t, NewMigrationRunner(db).Run())
	var total int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM exemptions").Scan(&total))
	assert.Equal(t, 11, total)
}

func TestMigrationRunner_RejectsUnknownRuleType(t *testing.T) {
	db := openRawDB(t)
	require.NoError(t, NewMigrationRunner(db).Run())

	_, err := db.Exec("INSERT INTO exemptions (rule_type, rule_value) VALUES ('glob', '*.com')")
	assert.Error(t, err)
}
