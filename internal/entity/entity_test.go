package entity

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allankoechke/mantis/internal/dbpool"
	"github.com/allankoechke/mantis/internal/files"
	"github.com/allankoechke/mantis/internal/mlog"
	"github.com/allankoechke/mantis/internal/schema"
)

func newTestEntity(t *testing.T, s schema.Schema) *Entity {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	pool, err := dbpool.Open(dbpool.DialectSQLite, dbPath, 1, &mlog.NoneLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	ddl := pool.Dialect.CreateTableDDL(s)
	_, err = pool.DB.Exec(ddl)
	require.NoError(t, err)

	store := files.NewStore(t.TempDir(), &mlog.NoneLogger{})

	return New(s, pool, store, &mlog.NoneLogger{})
}

func postsSchema() schema.Schema {
	return schema.New("posts", schema.TypeBase, []schema.Field{
		{Name: "title", Type: schema.FieldString, Required: true,
			Constraints: map[string]any{"min_value": float64(3)}},
	})
}

func usersSchema() schema.Schema {
	return schema.New("users", schema.TypeAuth, nil)
}

func TestCreateThenReadRoundTrip(t *testing.T) {
	e := newTestEntity(t, postsSchema())

	rec, err := e.Create(context.Background(), map[string]any{"title": "hello world"})
	require.NoError(t, err)

	id, _ := rec["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "hello world", rec["title"])
	assert.NotEmpty(t, rec["created"])
	assert.NotEmpty(t, rec["updated"])

	fetched, found, err := e.Read(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, rec["title"], fetched["title"])
	assert.Equal(t, rec["id"], fetched["id"])
}

func TestCreateRejectsShortField(t *testing.T) {
	e := newTestEntity(t, postsSchema())

	_, err := e.Create(context.Background(), map[string]any{"title": "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title should be at least 3 chars long")
}

func TestPasswordNeverLeavesAuthEntity(t *testing.T) {
	e := newTestEntity(t, usersSchema())

	rec, err := e.Create(context.Background(), map[string]any{
		"email":    "a@b.c",
		"password": "Abcdef12",
	})
	require.NoError(t, err)

	_, present := rec["password"]
	assert.False(t, present, "create response must omit password")

	id, _ := rec["id"].(string)

	fetched, found, err := e.Read(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)

	_, present = fetched["password"]
	assert.False(t, present, "read response must omit password")
}

func TestUpdateRemovesSupersededFile(t *testing.T) {
	s := schema.New("docs", schema.TypeBase, []schema.Field{
		{Name: "attachments", Type: schema.FieldFiles},
	})
	e := newTestEntity(t, s)

	rec, err := e.Create(context.Background(), map[string]any{
		"attachments": []string{"A", "B", "C"},
	})
	require.NoError(t, err)

	for _, name := range []string{"A", "B", "C"} {
		_, err := e.Files.Write("docs", name, strings.NewReader(""))
		require.NoError(t, err)
	}

	id, _ := rec["id"].(string)

	_, err = e.Update(context.Background(), id, map[string]any{
		"attachments": []string{"A", "C"},
	})
	require.NoError(t, err)

	dir, err := e.Files.EntityDir("docs")
	require.NoError(t, err)

	assertFileAbsent(t, filepath.Join(dir, "B"))
	assertFilePresent(t, filepath.Join(dir, "A"))
	assertFilePresent(t, filepath.Join(dir, "C"))
}

func TestRemoveDeletesReferencedFiles(t *testing.T) {
	s := schema.New("docs", schema.TypeBase, []schema.Field{
		{Name: "attachments", Type: schema.FieldFiles},
	})
	e := newTestEntity(t, s)

	rec, err := e.Create(context.Background(), map[string]any{
		"attachments": []string{"A"},
	})
	require.NoError(t, err)

	_, err = e.Files.Write("docs", "A", strings.NewReader(""))
	require.NoError(t, err)

	id, _ := rec["id"].(string)
	require.NoError(t, e.Remove(context.Background(), id))

	dir, err := e.Files.EntityDir("docs")
	require.NoError(t, err)
	assertFileAbsent(t, filepath.Join(dir, "A"))

	_, found, err := e.Read(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListPaginationYieldsDisjointPages(t *testing.T) {
	e := newTestEntity(t, postsSchema())

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		_, err := e.Create(ctx, map[string]any{"title": "post number"})
		require.NoError(t, err)
	}

	pageOne, _, err := e.List(ctx, ListOptions{PageIndex: 1, PerPage: 3})
	require.NoError(t, err)

	pageTwo, _, err := e.List(ctx, ListOptions{PageIndex: 2, PerPage: 3})
	require.NoError(t, err)

	require.Len(t, pageOne, 3)
	require.Len(t, pageTwo, 3)

	seen := make(map[string]bool, 6)
	for _, r := range pageOne {
		seen[r["id"].(string)] = true
	}
	for _, r := range pageTwo {
		assert.False(t, seen[r["id"].(string)], "page two must not repeat an id from page one")
	}
}

func TestListRejectsInvalidPagination(t *testing.T) {
	e := newTestEntity(t, postsSchema())

	_, _, err := e.List(context.Background(), ListOptions{PageIndex: 0, PerPage: 10})
	assert.Error(t, err)

	_, _, err = e.List(context.Background(), ListOptions{PageIndex: 1, PerPage: 0})
	assert.Error(t, err)
}

func TestViewEntityRejectsMutation(t *testing.T) {
	s := schema.New("active_posts", schema.TypeView, nil)
	s.ViewQuery = "SELECT * FROM posts"
	e := newTestEntity(t, s)

	_, err := e.Create(context.Background(), map[string]any{})
	assert.Error(t, err)

	err = e.Remove(context.Background(), "anything")
	assert.Error(t, err)
}

func assertFileAbsent(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "expected %s to be absent", path)
}

func assertFilePresent(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.NoError(t, err, "expected %s to exist", path)
}
