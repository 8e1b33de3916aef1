// Package cli implements the operator-facing command surface described in
// / : `serve`, `admins --add/--rm`, `migrate`,
// and a reserved `sync` subcommand, built on cobra as the rest of the
// service's ambient stack does for every other operator-facing concern.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/allankoechke/mantis/internal/bootstrap"
	"github.com/allankoechke/mantis/internal/config"
	"github.com/allankoechke/mantis/internal/dbpool"
	"github.com/allankoechke/mantis/internal/mlog"
)

// Root builds the top-level `mantis` command tree.
func Root() *cobra.Command {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}

	root := &cobra.Command{
		Use:           "mantis",
		Short:         "Mantis dynamic REST API backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&cfg.Database, "db", cfg.Database, "database dialect: sqlite, psql, mysql")
	root.PersistentFlags().StringVar(&cfg.ConnectionString, "connection", cfg.ConnectionString, "database connection string")
	root.PersistentFlags().StringVar(&cfg.DataDir, "dataDir", cfg.DataDir, "directory for uploaded files and the sqlite db")
	root.PersistentFlags().StringVar(&cfg.PublicDir, "publicDir", cfg.PublicDir, "directory served as static content")
	root.PersistentFlags().StringVar(&cfg.ScriptsDir, "scriptsDir", cfg.ScriptsDir, "directory containing migration scripts")
	root.PersistentFlags().BoolVar(&cfg.Dev, "dev", cfg.Dev, "enable development logging")

	root.AddCommand(serveCmd(cfg))
	root.AddCommand(adminsCmd(cfg))
	root.AddCommand(migrateCmd(cfg))
	root.AddCommand(syncCmd(cfg))

	return root
}

func serveCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return app.Serve()
		},
	}

	cmd.Flags().StringVar(&cfg.Host, "host", cfg.Host, "listen address")
	cmd.Flags().StringVar(&cfg.Port, "port", cfg.Port, "listen port")
	cmd.Flags().Int64Var(&cfg.PoolSize, "poolSize", cfg.PoolSize, "maximum concurrent DB sessions")

	return cmd
}

func migrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations from the scripts directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dialect, err := dialectFromFlag(cfg.Database)
			if err != nil {
				return err
			}

			pool, err := dbpool.Open(dialect, cfg.ConnectionString, int(cfg.PoolSize), &mlog.NoneLogger{})
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := dbpool.RunMigrations(pool, cfg.ScriptsDir); err != nil {
				return err
			}

			fmt.Println("migrations applied")

			return nil
		},
	}
}

func syncCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:    "sync",
		Short:  "Reserved for future entity/schema synchronization tooling",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("sync: nothing to do yet")
			return nil
		},
	}
}

func dialectFromFlag(db string) (dbpool.Dialect, error) {
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
