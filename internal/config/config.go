package config

// Database identifies the relational dialect a Config targets.
type Database string

const (
	DatabaseSQLite     Database = "sqlite"
	DatabasePostgreSQL Database = "psql"
	DatabaseMySQL      Database = "mysql"
)

// Config is the process-wide settings value threaded through every
// component at construction time. CLI flags take precedence over
// environment variables; fields are bound from the environment first via
// SetFromEnvVars and then overridden by cobra flag values in internal/cli.
type Config struct {
	// Connection
	Database         string `env:"MANTIS_DATABASE"`
	ConnectionString string `env:"MANTIS_CONNECTION"`
	DataDir          string `env:"MANTIS_DATA_DIR"`
	PublicDir        string `env:"MANTIS_PUBLIC_DIR"`
	ScriptsDir       string `env:"MANTIS_SCRIPTS_DIR"`
	Dev              bool   `env:"MANTIS_DEV"`

	// serve subcommand
	Host     string `env:"MANTIS_HOST"`
	Port     string `env:"MANTIS_PORT"`
	PoolSize int64  `env:"MANTIS_POOL_SIZE"`

	// JWT secret; MANTIS_JWT_SECRET overrides the baked-in default per
	// the external-interfaces contract.
	JWTSecret string `env:"MANTIS_JWT_SECRET"`
}

// Default values applied before environment/flag overrides, matching the
// CLI flag defaults.
func Default() *Config {
	return &Config{
		Database:   string(DatabaseSQLite),
		DataDir:    "./data",
		PublicDir:  "./public",
		ScriptsDir: "./scripts",
		Host:       "0.0.0.0",
		Port:       "7070",
		PoolSize:   10,
		JWTSecret:  "mantis-dev-secret-change-me",
	}
}

// Load builds a Config from its defaults, then overlays any matching
// environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if err := SetFromEnvVars(cfg); err != nil {
		return nil, err
	}

	if secret := GetenvOrDefault("MANTIS_JWT_SECRET", ""); secret != "" {
		cfg.JWTSecret = secret
	}

	return cfg, nil
}
