package dbpool

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"  // mysql driver registration
	_ "github.com/jackc/pgx/v5/stdlib"  // postgres driver registration
	_ "modernc.org/sqlite"              // pure-Go sqlite driver registration

	"github.com/allankoechke/mantis/internal/mlog"
)

// Pool is a fixed-size session pool over a single *sql.DB handle:
// checkout() blocks until a slot is free, return() releases it.
// database/sql already pools physical connections; Pool's semaphore
// models an explicit checkout/return contract on top of it so callers
// observe a bounded number of concurrent logical sessions.
type Pool struct {
	DB      *sql.DB
	Dialect Dialect
	tokens  chan struct{}
	log     mlog.Logger
}

// Session is a leased handle borrowed from the Pool for the duration of a
// logical operation; Pool.Return gives it back to the pool.
type Session struct {
	DB      *sql.DB
	Dialect Dialect
	pool    *Pool
}

// Open opens the underlying *sql.DB for the given dialect and connection
// string, and builds a Pool with the given fixed size.
func Open(dialect Dialect, connStr string, poolSize int, log mlog.Logger) (*Pool, error) {
	driverName := driverNameFor(dialect)

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", dialect, err)
	}

	if poolSize <= 0 {
		poolSize = 10
	}
	db.SetMaxOpenConns(poolSize)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging %s database: %w", dialect, err)
	}

	tokens := make(chan struct{}, poolSize)
	for i := 0; i < poolSize; i++ {
		tokens <- struct{}{}
	}

	return &Pool{DB: db, Dialect: dialect, tokens: tokens, log: log}, nil
}

func driverNameFor(d Dialect) string {
	switch d {
	case DialectPostgres:
		return "pgx"
	case DialectMySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// Checkout blocks until a session slot is available or ctx is cancelled.
func (p *Pool) Checkout(ctx context.Context) (*Session, error) {
	select {
	case <-p.tokens:
		return &Session{DB: p.DB, Dialect: p.Dialect, pool: p}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Return releases s back to the pool. Safe to call exactly once per
// Session obtained from Checkout.
func (p *Pool) Return(s *Session) {
	if s == nil {
		return
	}
	p.tokens <- struct{}{}
}

// Close closes the underlying database handle.
func (p *Pool) Close() error {
	return p.DB.Close()
}
