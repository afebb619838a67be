package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Capabilities reports which optional behaviors the underlying engine
// supports. The harness queries these before selecting an isolation mode:
// sequence resets require SequenceReset, and the rollback-based isolation
// mode requires Transactions.
type Capabilities struct {
	// Transactions is true when the engine supports transactions that can be
	// rolled back, enabling the savepoint-wrapped isolation mode.
	Transactions bool

	// SequenceReset is true when auto-increment counters can be restored to
	// their initial value after a flush.
	SequenceReset bool
}

// Database describes one physical database managed for a run.
type Database struct {
	// Alias is the logical name tests use to refer to this database.
	Alias string

	// Name is the physical database name (or file name for file-backed
	// engines).
	Name string

	// DSN is the connection string for this database.
	DSN string
}

// Options carries engine-specific settings resolved from configuration.
// Fields that do not apply to a given engine are ignored by it.
type Options struct {
	// AdminURL is a connection string with privileges to create and drop
	// databases. Required by server-backed engines such as postgres.
	AdminURL string

	// Dir is the directory holding database files for file-backed engines.
	Dir string

	// MigrationsDir is a directory of goose migrations applied when setting
	// up the test environment. Empty means no schema setup.
	MigrationsDir string

	// FixturesPath is an optional SQL file with initial data, loaded after
	// schema setup and re-loaded after every destructive flush.
	FixturesPath string

	// Logger receives structured progress output. Defaults to slog.Default.
	Logger *slog.Logger
}

// Adapter is the stable primitive set the harness depends on. It is the only
// seam between the access-control core and a concrete database engine, so
// engine version differences stay contained in the implementations.
type Adapter interface {
	// Name returns the registered engine name.
	Name() string

	// Capabilities reports the engine's optional feature support.
	Capabilities() Capabilities

	// CreateDatabase provisions the physical database for alias under the
	// given physical name. When reuse is true and the database already
	// exists, it is kept as-is (stale schema is the caller's accepted risk).
	CreateDatabase(ctx context.Context, alias, name string, reuse bool) (*Database, error)

	// DatabaseExists reports whether the physical database already exists.
	DatabaseExists(ctx context.Context, name string) (bool, error)

	// DropDatabase removes the physical database.
	DropDatabase(ctx context.Context, db *Database) error

	// SetupTestEnvironment prepares the database for tests, applying schema
	// migrations and loading initial fixture data.
	SetupTestEnvironment(ctx context.Context, db *Database) error

	// TeardownTestEnvironment releases any per-database resources held by
	// the adapter. It does not drop the database.
	TeardownTestEnvironment(ctx context.Context, db *Database) error

	// Connector returns a driver-level connector for the database. The
	// session wraps it with the access guard before handing it to tests.
	Connector(db *Database) (driver.Connector, error)

	// FlushTables deletes all rows from every user table, leaving schema and
	// auto-increment counters intact. h must be a handle onto db.
	FlushTables(ctx context.Context, h *sql.DB, db *Database) error

	// ResetSequences restores every auto-increment counter to its initial
	// value. Only meaningful after a flush. Engines without sequence-reset
	// support return an error from New or report it via Capabilities.
	ResetSequences(ctx context.Context, h *sql.DB, db *Database) error

	// LoadFixtures re-applies the initial fixture data, if any was
	// configured. Called after every destructive flush.
	LoadFixtures(ctx context.Context, h *sql.DB, db *Database) error

	// Close releases adapter-level resources such as admin connections.
	Close() error
}

// Factory constructs an adapter from resolved options.
type Factory func(Options) (Adapter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an engine available under the given name. It is intended to
// be called from engine implementation init functions and panics on a
// duplicate name, matching the database/sql driver registration contract.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("engine: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("engine: Register called twice for engine " + name)
	}
	registry[name] = f
}

// New constructs the named engine. The name must have been registered by
// importing the corresponding engine package.
func New(name string, opts Options) (Adapter, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: unknown engine %q (registered: %v)", name, Engines())
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return f(opts)
}

// Engines returns the sorted names of all registered engines.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DSNConnector adapts a plain driver.Driver into a driver.Connector for a
// fixed DSN, for drivers that do not implement driver.DriverContext. This is
// the same fallback database/sql applies internally.
func DSNConnector(dsn string, drv driver.Driver) driver.Connector {
	return dsnConnector{dsn: dsn, drv: drv}
}

type dsnConnector struct {
	dsn string
	drv driver.Driver
}

func (c dsnConnector) Connect(context.Context) (driver.Conn, error) {
	return c.drv.Open(c.dsn)
}

func (c dsnConnector) Driver() driver.Driver {
	return c.drv
}
