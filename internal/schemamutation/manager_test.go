package schemamutation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allankoechke/mantis/internal/dbpool"
	"github.com/allankoechke/mantis/internal/files"
	"github.com/allankoechke/mantis/internal/jwtauth"
	"github.com/allankoechke/mantis/internal/mlog"
	"github.com/allankoechke/mantis/internal/router"
	"github.com/allankoechke/mantis/internal/ruleengine"
	"github.com/allankoechke/mantis/internal/schema"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	pool, err := dbpool.Open(dbpool.DialectSQLite, dbPath, 1, &mlog.NoneLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	require.NoError(t, dbpool.Bootstrap(context.Background(), pool, &mlog.NoneLogger{}))

	store := files.NewStore(t.TempDir(), &mlog.NoneLogger{})
	deps := &router.Deps{Issuer: jwtauth.NewIssuer("test-secret"), Evaluator: ruleengine.New()}
	rtr := router.New(deps, &mlog.NoneLogger{})

	mgr := New(pool, store, rtr, deps, deps.Issuer, &mlog.NoneLogger{})
	mgr.LoadSystem()

	return mgr
}

func postsSchema() schema.Schema {
	return schema.New("posts", schema.TypeBase, []schema.Field{
		{Name: "title", Type: schema.FieldString, Required: true},
	})
}

func TestAddEntityRegistersRoutesAndTablesRow(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.AddEntity(ctx, postsSchema()))

	_, ok := mgr.Get("posts")
	assert.True(t, ok)

	_, _, found := mgr.router.Registry.Find("GET", "/api/v1/posts")
	assert.True(t, found)
	_, _, found = mgr.router.Registry.Find("POST", "/api/v1/posts")
	assert.True(t, found)

	row, found, err := mgr.tablesEnt.QueryFromCols(ctx, "posts", []string{"name"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "posts", row["name"])
}

func TestAddEntityRejectsDuplicateName(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.AddEntity(ctx, postsSchema()))

	err := mgr.AddEntity(ctx, postsSchema())
	assert.Error(t, err)
}

func TestRenameEntityWithdrawsOldRoutesAndRegistersNew(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.AddEntity(ctx, postsSchema()))

	newSchema := postsSchema()
	newSchema.Name = "articles"

	require.NoError(t, mgr.RenameEntity(ctx, "posts", newSchema))

	_, _, found := mgr.router.Registry.Find("GET", "/api/v1/posts")
	assert.False(t, found, "old route set must be fully withdrawn after a rename")
	_, _, found = mgr.router.Registry.Find("GET", "/api/v1/posts/:id")
	assert.False(t, found)

	_, _, found = mgr.router.Registry.Find("GET", "/api/v1/articles")
	assert.True(t, found, "new route set must be registered after a rename")

	_, ok := mgr.Get("posts")
	assert.False(t, ok)
	_, ok = mgr.Get("articles")
	assert.True(t, ok)
}

func TestRenameEntityRejectsSystemEntity(t *testing.T) {
	mgr := newTestManager(t)

	newSchema := postsSchema()
	newSchema.Name = "hijacked"

	err := mgr.RenameEntity(context.Background(), "_admins", newSchema)
	assert.Error(t, err)
}

func TestRemoveEntityWithdrawsRoutesAndRow(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.AddEntity(ctx, postsSchema()))
	require.NoError(t, mgr.RemoveEntity(ctx, "posts"))

	_, ok := mgr.Get("posts")
	assert.False(t, ok)

	_, _, found := mgr.router.Registry.Find("GET", "/api/v1/posts")
	assert.False(t, found)

	_, found, err := mgr.tablesEnt.QueryFromCols(ctx, "posts", []string{"name"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRemoveEntityRejectsSystemEntity(t *testing.T) {
	mgr := newTestManager(t)

	err := mgr.RemoveEntity(context.Background(), "_tables")
	assert.Error(t, err)
}

func TestLoadUserEntitiesMaterializesExistingRows(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.AddEntity(ctx, postsSchema()))

	fresh := newTestManagerSamePool(t, mgr)
	fresh.LoadSystem()
	require.NoError(t, fresh.LoadUserEntities(ctx))

	_, ok := fresh.Get("posts")
	assert.True(t, ok)

	_, _, found := fresh.router.Registry.Find("GET", "/api/v1/posts")
	assert.True(t, found)
}

// newTestManagerSamePool builds a second Manager sharing the same pool as
// mgr, simulating a fresh process restart against an existing database.
func newTestManagerSamePool(t *testing.T, mgr *Manager) *Manager {
	t.Helper()

	deps := &router.Deps{Issuer: mgr.issuer, Evaluator: ruleengine.New()}
	rtr := router.New(deps, &mlog.NoneLogger{})

	return New(mgr.pool, mgr.store, rtr, deps, deps.Issuer, &mlog.NoneLogger{})
}
