package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateAppliesEmbeddedSchema(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, NewMigrator(db).Migrate())
	// Idempotent on a second run.
	require.NoError(t, NewMigrator(db).Migrate())

	_, err = db.Exec(`INSERT INTO manifest (exchange, market, symbol, path, type)
		VALUES ('BINANCE', 'SPOT', 'BTC_USDT', '/data/a.parquet', 'raw')`)
	require.NoError(t, err)
}

func TestSplitStatementsDropsCommentLines(t *testing.T) {
	script := "-- lead comment; with a semicolon\n" +
		"CREATE TABLE a (id INTEGER);\n" +
		"  -- indented comment; also split bait\n" +
		"CREATE INDEX ix ON a (id);\n"

	stmts := splitStatements(script)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (id INTEGER)", stmts[0])
	assert.Equal(t, "CREATE INDEX ix ON a (id)", stmts[1])
}

func TestSplitStatementsEmbeddedSchema(t *testing.T) {
	// The embedded schema's comments contain prose; none of it may leak
	// into the executed statements.
	for _, stmt := range splitStatements(schemaSQL) {
		assert.NotContains(t, stmt, "--")
		assert.Contains(t, stmt, "CREATE")
	}
}
