package dbpool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/allankoechke/mantis/internal/mlog"
	"github.com/allankoechke/mantis/internal/schema"
)

// SystemSchemas returns the three system entities that must exist
// unconditionally on boot.
func SystemSchemas() []schema.Schema {
	tables := schema.New("_tables", schema.TypeBase, []schema.Field{
		{Name: "name", Type: schema.FieldString, Required: true, Unique: true},
		{Name: "type", Type: schema.FieldString, Required: true},
		{Name: "schema", Type: schema.FieldJSON, Required: true},
		{Name: "has_api", Type: schema.FieldBool},
	})
	tables.System = true

	admins := schema.New("_admins", schema.TypeAuth, nil)
	admins.System = true

	settings := schema.New("_settings", schema.TypeBase, []schema.Field{
		{Name: "value", Type: schema.FieldJSON, Required: true},
	})
	settings.System = true

	return []schema.Schema{tables, admins, settings}
}

// Bootstrap ensures the three system tables exist, creating them with
// `CREATE TABLE IF NOT EXISTS` if absent. Idempotent and safe to call on
// every boot.
func Bootstrap(ctx context.Context, pool *Pool, log mlog.Logger) error {
	sess, err := pool.Checkout(ctx)
	if err != nil {
		return err
	}
	defer pool.Return(sess)

	for _, s := range SystemSchemas() {
		ddl := pool.Dialect.CreateTableDDL(s)
		if _, err := sess.DB.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("bootstrapping system table %s: %w", s.Name, err)
		}
		log.Debugf("ensured system table %s", s.Name)
	}

	return nil
}

// RunMigrations applies operator-supplied SQL migration files from
// scriptsDir, matching the reserved `migrate` CLI subcommand.
//
// For postgres and mysql this delegates to golang-migrate's database
// drivers. SQLite is driven directly: golang-migrate's own sqlite3 driver
// requires the cgo mattn/go-sqlite3 binding, which this service avoids in
// favor of the pure-Go modernc.org/sqlite driver (see DESIGN.md), so
// SQLite migrations are applied as plain sequential SQL files instead.
func RunMigrations(pool *Pool, scriptsDir string) error {
	if pool.Dialect == DialectSQLite {
		return runSQLiteMigrations(pool, scriptsDir)
	}

	var driver interface {
		Close() error
	}

	var name string

	switch pool.Dialect {
	case DialectPostgres:
		d, err := postgres.WithInstance(pool.DB, &postgres.Config{})
		if err != nil {
			return err
		}
		driver = d
		name = "postgres"

		m, err := migrate.NewWithDatabaseInstance("file://"+scriptsDir, name, d)
		if err != nil {
			return err
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	case DialectMySQL:
		d, err := mysql.WithInstance(pool.DB, &mysql.Config{})
		if err != nil {
			return err
		}
		driver = d
		name = "mysql"

		m, err := migrate.NewWithDatabaseInstance("file://"+scriptsDir, name, d)
		if err != nil {
			return err
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
	}

	_ = driver

	return nil
}

func runSQLiteMigrations(pool *Pool, scriptsDir string) error {
	entries, err := os.ReadDir(scriptsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		content, err := os.ReadFile(filepath.Join(scriptsDir, f))
		if err != nil {
			return err
		}
		if _, err := pool.DB.Exec(string(content)); err != nil {
			return fmt.Errorf("applying migration %s: %w", f, err)
		}
	}

	return nil
}
