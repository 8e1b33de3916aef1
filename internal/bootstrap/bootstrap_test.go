package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allankoechke/mantis/internal/config"
	"github.com/allankoechke/mantis/internal/dbpool"
)

func TestDialectForKnownDatabases(t *testing.T) {
	cases := map[string]dbpool.Dialect{
		"sqlite": dbpool.DialectSQLite,
		"psql":   dbpool.DialectPostgres,
		"mysql":  dbpool.DialectMySQL,
	}

	for db, want := range cases {
		got, err := dialectFor(db)
		require.NoError(t, err, db)
		assert.Equal(t, want, got, db)
	}

	_, err := dialectFor("oracle")
	assert.Error(t, err)
}

func TestConnectionStringPrefersExplicitValue(t *testing.T) {
	cfg := &config.Config{ConnectionString: "postgres://explicit", DataDir: "/data"}
	assert.Equal(t, "postgres://explicit", connectionString(cfg, dbpool.DialectPostgres))
}

func TestConnectionStringFallsBackToSQLiteFileUnderDataDir(t *testing.T) {
	cfg := &config.Config{DataDir: "/data"}
	assert.Equal(t, "/data/mantis.db", connectionString(cfg, dbpool.DialectSQLite))
}

func TestConnectionStringBlankForNonSQLiteWithoutExplicitValue(t *testing.T) {
	cfg := &config.Config{DataDir: "/data"}
	assert.Equal(t, "", connectionString(cfg, dbpool.DialectPostgres))
}

func TestBuildWiresPoolAndAdminResult(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.PublicDir = filepath.Join(dir, "public")
	cfg.PoolSize = 1

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, app.Admin)
	require.NotNil(t, app.Pool)

	assert.NoError(t, app.Shutdown())
}
