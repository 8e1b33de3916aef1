package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allankoechke/mantis/internal/dbpool"
	"github.com/allankoechke/mantis/internal/entity"
	"github.com/allankoechke/mantis/internal/files"
	"github.com/allankoechke/mantis/internal/mlog"
	"github.com/allankoechke/mantis/internal/schema"
)

func newTestSettingsEntity(t *testing.T) *entity.Entity {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	pool, err := dbpool.Open(dbpool.DialectSQLite, dbPath, 1, &mlog.NoneLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	s := schema.New("_settings", schema.TypeBase, []schema.Field{
		{Name: "value", Type: schema.FieldJSON, Required: true},
	})

	_, err = pool.DB.Exec(pool.Dialect.CreateTableDDL(s))
	require.NoError(t, err)

	store := files.NewStore(t.TempDir(), &mlog.NoneLogger{})

	return entity.New(s, pool, store, &mlog.NoneLogger{})
}

func TestNewCacheSeedsDefaultsOnFirstBoot(t *testing.T) {
	ent := newTestSettingsEntity(t)

	cache, err := NewCache(context.Background(), ent)
	require.NoError(t, err)

	assert.Equal(t, Defaults(), cache.Get())
	assert.NotEmpty(t, cache.RowID)
}

func TestNewCacheReloadsExistingRow(t *testing.T) {
	ent := newTestSettingsEntity(t)
	ctx := context.Background()

	first, err := NewCache(ctx, ent)
	require.NoError(t, err)

	updated := Defaults()
	updated.AppName = "Custom App"
	require.NoError(t, first.Update(ctx, updated))

	second, err := NewCache(ctx, ent)
	require.NoError(t, err)

	assert.Equal(t, "Custom App", second.Get().AppName)
	assert.Equal(t, first.RowID, second.RowID)
}

func TestUpdateRefreshesCache(t *testing.T) {
	ent := newTestSettingsEntity(t)
	ctx := context.Background()

	cache, err := NewCache(ctx, ent)
	require.NoError(t, err)

	updated := cache.Get()
	updated.MaintenanceMode = true
	updated.MaxFileSize = 42

	require.NoError(t, cache.Update(ctx, updated))

	assert.True(t, cache.Get().MaintenanceMode)
	assert.Equal(t, 42, cache.Get().MaxFileSize)
}
