package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/raybot/migrations"
)

func TestListMigrationsSortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0002_b.up.sql":   {Data: []byte("SELECT 2")},
		"sql/0001_a.up.sql":   {Data: []byte("SELECT 1")},
		"sql/0001_a.down.sql": {Data: []byte("SELECT 0")},
		"sql/README.md":       {Data: []byte("docs")},
	}

	names, err := ListMigrations(fsys, "sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.up.sql", "0002_b.up.sql"}, names)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	names, err := ListMigrations(migrations.FS, ".")
	require.NoError(t, err)
	assert.Contains(t, names, "0001_transactions.up.sql")
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, "a.up.sql", joinPath(".", "a.up.sql"))
	assert.Equal(t, "sql/a.up.sql", joinPath("sql/", "a.up.sql"))
}
