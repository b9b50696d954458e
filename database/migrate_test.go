package database

import (
	"context"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@db:5432/scm?sslmode=disable", "pgx5://u:p@db:5432/scm?sslmode=disable"},
		{"postgresql://db/scm", "pgx5://db/scm"},
		{"pgx5://db/scm", "pgx5://db/scm"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, driverURL(tt.in), tt.in)
	}
}

func TestMigrationsArePaired(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestMigrations(t *testing.T) {
	t.Parallel()

	pool, connStr := SetupTestDB(t)

	var exists bool
	err := pool.QueryRow(context.Background(),
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'entity_store')`,
	).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)

	// applying again is a no-op
	require.NoError(t, MigrateUp(connStr))

	fnames, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)

	require.NoError(t, MigrateDown(connStr, len(fnames)))
	require.NoError(t, MigrateUp(connStr))

	require.Error(t, MigrateDown(connStr, 0))
}
