// Package config loads and validates harness configuration from files and
// environment variables.
package config

// Config holds all harness configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Engine    EngineConfig              `mapstructure:"engine"     validate:"required"`
	Databases map[string]DatabaseConfig `mapstructure:"databases"  validate:"required,min=1"`

	// ReuseDB skips physical database creation when the databases already
	// exist, and skips destruction at the end of the run. Faster across
	// runs, at the accepted risk of a stale schema.
	ReuseDB bool `mapstructure:"reuse_db"`

	// DatabaseSuffix is appended to every physical database name. Parallel
	// workers set distinct suffixes so they never share a physical database.
	DatabaseSuffix string `mapstructure:"database_suffix"`

	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// EngineConfig selects and parameterizes the database engine.
type EngineConfig struct {
	Name string `mapstructure:"name" validate:"required"`

	// AdminURL is the privileged connection string for server-backed
	// engines (postgres). Unused by file-backed engines.
	AdminURL string `mapstructure:"admin_url" validate:"omitempty,url"`

	// Dir is the database file directory for file-backed engines (sqlite).
	Dir string `mapstructure:"dir"`

	// MigrationsDir holds goose migrations applied to every database at
	// session start. Empty means no schema setup.
	MigrationsDir string `mapstructure:"migrations_dir"`

	// FixturesPath is an optional SQL file with initial data, loaded after
	// schema setup and after every destructive flush.
	FixturesPath string `mapstructure:"fixtures_path"`
}

// DatabaseConfig describes one database alias.
type DatabaseConfig struct {
	// Mirror names the alias this one is a read replica of. A mirror shares
	// its source's physical database and gets no database of its own.
	Mirror string `mapstructure:"mirror"`
}

// DefaultAlias is the alias granted when a test declares database access
// without naming databases explicitly.
const DefaultAlias = "default"

// Default returns a minimal configuration with a single default alias,
// suitable as a starting point for programmatic setup in TestMain.
func Default(engineName string) *Config {
	return &Config{
		Engine:    EngineConfig{Name: engineName},
		Databases: map[string]DatabaseConfig{DefaultAlias: {}},
		LogLevel:  "warn",
	}
}
