// Package postgres implements the harness engine adapter for PostgreSQL
// using the pgx driver. Databases are created and dropped through an admin
// connection, schema is applied with goose migrations, and destructive-mode
// flushes use TRUNCATE. Importing this package registers the engine under the
// name "postgres".
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/phrazzld/dbharness/engine"
)

func init() {
	engine.Register("postgres", New)
}

// MigrationTableName is the goose version table, excluded from flushes.
const MigrationTableName = "schema_migrations"

type adapter struct {
	opts engine.Options

	mu    sync.Mutex
	admin *sql.DB
}

// New returns a postgres adapter. opts.AdminURL must point at a database the
// harness may connect to with CREATE DATABASE privileges (conventionally the
// "postgres" maintenance database).
func New(opts engine.Options) (engine.Adapter, error) {
	if opts.AdminURL == "" {
		return nil, fmt.Errorf("postgres: admin URL is required")
	}
	if _, err := url.Parse(opts.AdminURL); err != nil {
		return nil, fmt.Errorf("postgres: invalid admin URL: %w", err)
	}
	return &adapter{opts: opts}, nil
}

func (a *adapter) Name() string { return "postgres" }

func (a *adapter) Capabilities() engine.Capabilities {
	return engine.Capabilities{Transactions: true, SequenceReset: true}
}

// adminDB lazily opens the admin connection used for create/drop.
func (a *adapter) adminDB() (*sql.DB, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.admin != nil {
		return a.admin, nil
	}
	db, err := sql.Open("pgx", a.opts.AdminURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open admin connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	a.admin = db
	return db, nil
}

// databaseDSN rewrites the admin URL's path to point at the named database.
func (a *adapter) databaseDSN(name string) (string, error) {
	u, err := url.Parse(a.opts.AdminURL)
	if err != nil {
		return "", fmt.Errorf("postgres: parse admin URL: %w", err)
	}
	u.Path = "/" + name
	return u.String(), nil
}

func (a *adapter) CreateDatabase(ctx context.Context, alias, name string, reuse bool) (*engine.Database, error) {
	admin, err := a.adminDB()
	if err != nil {
		return nil, err
	}
	dsn, err := a.databaseDSN(name)
	if err != nil {
		return nil, err
	}
	db := &engine.Database{Alias: alias, Name: name, DSN: dsn}

	exists, err := a.DatabaseExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		if reuse {
			a.opts.Logger.Info("reusing existing database",
				"alias", alias, "database", name)
			return db, nil
		}
		if _, err := admin.ExecContext(ctx, fmt.Sprintf(`DROP DATABASE %s WITH (FORCE)`, quoteIdent(name))); err != nil {
			return nil, fmt.Errorf("postgres: drop stale database %s: %w", name, err)
		}
	}
	if _, err := admin.ExecContext(ctx, fmt.Sprintf(`CREATE DATABASE %s`, quoteIdent(name))); err != nil {
		return nil, fmt.Errorf("postgres: create database %s: %w", name, err)
	}
	return db, nil
}

func (a *adapter) DatabaseExists(ctx context.Context, name string) (bool, error) {
	admin, err := a.adminDB()
	if err != nil {
		return false, err
	}
	var exists bool
	err = admin.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check database %s: %w", name, err)
	}
	return exists, nil
}

func (a *adapter) DropDatabase(ctx context.Context, db *engine.Database) error {
	admin, err := a.adminDB()
	if err != nil {
		return err
	}
	if _, err := admin.ExecContext(ctx, fmt.Sprintf(`DROP DATABASE IF EXISTS %s WITH (FORCE)`, quoteIdent(db.Name))); err != nil {
		return fmt.Errorf("postgres: drop database %s: %w", db.Name, err)
	}
	return nil
}

func (a *adapter) SetupTestEnvironment(ctx context.Context, db *engine.Database) error {
	if a.opts.MigrationsDir == "" && a.opts.FixturesPath == "" {
		return nil
	}
	h, err := sql.Open("pgx", db.DSN)
	if err != nil {
		return fmt.Errorf("postgres: open %s: %w", db.Name, err)
	}
	defer h.Close()

	if a.opts.MigrationsDir != "" {
		if err := engine.RunMigrations(ctx, h, a.opts.MigrationsDir, "postgres", MigrationTableName); err != nil {
			return fmt.Errorf("postgres: migrate %s: %w", db.Name, err)
		}
	}
	return a.LoadFixtures(ctx, h, db)
}

func (a *adapter) TeardownTestEnvironment(context.Context, *engine.Database) error {
	return nil
}

func (a *adapter) Connector(db *engine.Database) (driver.Connector, error) {
	cfg, err := pgx.ParseConfig(db.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse DSN for %s: %w", db.Alias, err)
	}
	return stdlib.GetConnector(*cfg), nil
}

func (a *adapter) FlushTables(ctx context.Context, h *sql.DB, db *engine.Database) error {
	tables, err := a.userTables(ctx, h)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return nil
	}
	// One TRUNCATE with CASCADE handles foreign keys. Sequences are left
	// alone here; ResetSequences restarts them separately so the plain
	// destructive mode keeps counting from where the test left off.
	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = quoteIdent(t)
	}
	stmt := `TRUNCATE TABLE ` + strings.Join(quoted, ", ") + ` CASCADE`
	if _, err := h.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: flush tables in %s: %w", db.Name, err)
	}
	return nil
}

func (a *adapter) ResetSequences(ctx context.Context, h *sql.DB, db *engine.Database) error {
	rows, err := h.QueryContext(ctx,
		`SELECT sequencename FROM pg_sequences WHERE schemaname = 'public'`)
	if err != nil {
		return fmt.Errorf("postgres: list sequences in %s: %w", db.Name, err)
	}
	defer rows.Close()

	var seqs []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("postgres: scan sequence name: %w", err)
		}
		seqs = append(seqs, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, seq := range seqs {
		if _, err := h.ExecContext(ctx, `ALTER SEQUENCE `+quoteIdent(seq)+` RESTART`); err != nil {
			return fmt.Errorf("postgres: reset sequence %s in %s: %w", seq, db.Name, err)
		}
	}
	return nil
}

func (a *adapter) LoadFixtures(ctx context.Context, h *sql.DB, db *engine.Database) error {
	if a.opts.FixturesPath == "" {
		return nil
	}
	script, err := os.ReadFile(a.opts.FixturesPath)
	if err != nil {
		return fmt.Errorf("postgres: read fixtures %s: %w", a.opts.FixturesPath, err)
	}
	if err := engine.ExecScript(ctx, h, string(script)); err != nil {
		return fmt.Errorf("postgres: load fixtures into %s: %w", db.Name, err)
	}
	return nil
}

func (a *adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.admin == nil {
		return nil
	}
	err := a.admin.Close()
	a.admin = nil
	return err
}

func (a *adapter) userTables(ctx context.Context, h *sql.DB) ([]string, error) {
	rows, err := h.QueryContext(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public' AND tablename <> $1`, MigrationTableName)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("postgres: scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// quoteIdent double-quotes an identifier for interpolation into DDL, which
// cannot take bind parameters.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
