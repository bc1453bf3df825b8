package sqlstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/interview-scheduler/internal/persistence"
	"github.com/example/interview-scheduler/internal/persistence/sqlstore"
	"github.com/example/interview-scheduler/internal/persistence/storetest"
	"github.com/example/interview-scheduler/internal/testfixtures"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) persistence.Store { return testfixtures.NewSQLiteStore(t) })
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := testfixtures.NewSQLiteStore(t)
	ctx := context.Background()

	ran, err := store.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, ran)

	applied, err := store.AppliedMigrations(ctx)
	require.NoError(t, err)
	migrations, err := sqlstore.Migrations()
	require.NoError(t, err)
	require.Len(t, applied, len(migrations))
	assert.Equal(t, migrations[0].Checksum, applied[0].Checksum)
	assert.Equal(t, 1, applied[0].Version)
}

func TestParseDialect(t *testing.T) {
	for input, want := range map[string]sqlstore.Dialect{
		"sqlite":     sqlstore.DialectSQLite,
		"SQLite3":    sqlstore.DialectSQLite,
		"postgres":   sqlstore.DialectPostgres,
		"postgresql": sqlstore.DialectPostgres,
	} {
		got, err := sqlstore.ParseDialect(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}
	_, err := sqlstore.ParseDialect("mysql")
	assert.Error(t, err)
}
