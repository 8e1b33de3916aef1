// Package bootstrap wires the process together: config load, logger
// construction, DB pool construction, admin bootstrap, and graceful
// shutdown.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/allankoechke/mantis/internal/adminbootstrap"
	"github.com/allankoechke/mantis/internal/config"
	"github.com/allankoechke/mantis/internal/dbpool"
	"github.com/allankoechke/mantis/internal/mlog"
)

// App bundles the fully-wired server and its dependencies, ready to
// Serve and, later, Shutdown.
type App struct {
	Config *config.Config
	Log    mlog.Logger
	Pool   *dbpool.Pool
	Admin  *adminbootstrap.Result
}

// Build runs the full boot sequence against cfg: logger, DB pool, system
// table bootstrap, entity/route materialization.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("constructing logger: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dialect, err := dialectFor(cfg.Database)
	if err != nil {
		return nil, err
	}

	pool, err := dbpool.Open(dialect, connectionString(cfg, dialect), int(cfg.PoolSize), log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	result, err := adminbootstrap.Run(ctx, cfg, pool, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrapping admin entities: %w", err)
	}

	return &App{Config: cfg, Log: log, Pool: pool, Admin: result}, nil
}

func newLogger(cfg *config.Config) (mlog.Logger, error) {
	return mlog.NewZapLogger(cfg.Dev)
}

// connectionString resolves cfg.ConnectionString, falling back to a
// file path under DataDir for sqlite when the operator left it blank.
func connectionString(cfg *config.Config, dialect dbpool.Dialect) string {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString
	}

	if dialect == dbpool.DialectSQLite {
		return cfg.DataDir + "/mantis.db"
	}

	return ""
}

func dialectFor(db string) (dbpool.Dialect, error) {
	switch config.Database(db) {
	case config.DatabaseSQLite:
		return dbpool.DialectSQLite, nil
	case config.DatabasePostgreSQL:
		return dbpool.DialectPostgres, nil
	case config.DatabaseMySQL:
		return dbpool.DialectMySQL, nil
	default:
		return "", fmt.Errorf("unknown database dialect %q", db)
	}
}

// Serve starts the HTTP listener and blocks until the process receives
// SIGINT/SIGTERM, then drains in-flight requests before returning.
func (a *App) Serve() error {
	addr := a.Config.Host + ":" + a.Config.Port

	errCh := make(chan error, 1)
	go func() {
		a.Log.Infof("listening on %s", addr)
		errCh <- a.Admin.Router.Listen(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		a.Log.Infof("received %s, shutting down", sig)
		return a.Shutdown()
	}
}

// Shutdown gracefully stops the HTTP server and releases the DB pool.
func (a *App) Shutdown() error {
	if err := a.Admin.Router.Shutdown(); err != nil {
		a.Log.Errorf("error shutting down router: %v", err)
	}

	_ = a.Log.Sync()

	return a.Pool.Close()
}
