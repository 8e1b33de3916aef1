package dbpool

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allankoechke/mantis/internal/mlog"
)

func openTestPool(t *testing.T, poolSize int) *Pool {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	pool, err := Open(DialectSQLite, dbPath, poolSize, &mlog.NoneLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func TestCheckoutBlocksUntilReturned(t *testing.T) {
	pool := openTestPool(t, 1)

	sess, err := pool.Checkout(context.Background())
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		second, err := pool.Checkout(ctx)
		if err == nil {
			pool.Return(second)
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second checkout should not succeed while the only slot is held")
	case <-time.After(50 * time.Millisecond):
	}

	pool.Return(sess)

	select {
	case <-acquired:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("second checkout should succeed once the slot is returned")
	}
}

func TestCheckoutRespectsContextCancellation(t *testing.T) {
	pool := openTestPool(t, 1)

	sess, err := pool.Checkout(context.Background())
	require.NoError(t, err)
	defer pool.Return(sess)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = pool.Checkout(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBootstrapCreatesSystemTables(t *testing.T) {
	pool := openTestPool(t, 1)

	require.NoError(t, Bootstrap(context.Background(), pool, &mlog.NoneLogger{}))

	for _, s := range SystemSchemas() {
		row := pool.DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", s.Name)
		var name string
		require.NoError(t, row.Scan(&name))
		assert.Equal(t, s.Name, name)
	}

	// Idempotent: calling it again must not error.
	assert.NoError(t, Bootstrap(context.Background(), pool, &mlog.NoneLogger{}))
}
