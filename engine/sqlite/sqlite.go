// Package sqlite implements the harness engine adapter on top of
// modernc.org/sqlite, a pure-Go SQLite driver. Each alias is backed by one
// database file under a configured directory, so the full harness behavior
// matrix runs without any database server. Importing this package registers
// the engine under the name "sqlite".
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sqlite "modernc.org/sqlite"

	"github.com/phrazzld/dbharness/engine"
)

func init() {
	engine.Register("sqlite", New)
}

// MigrationTableName is the goose version table, excluded from flushes.
const MigrationTableName = "schema_migrations"

type adapter struct {
	opts engine.Options
}

// New returns a sqlite adapter storing database files under opts.Dir.
func New(opts engine.Options) (engine.Adapter, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("sqlite: engine dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create engine dir: %w", err)
	}
	return &adapter{opts: opts}, nil
}

func (a *adapter) Name() string { return "sqlite" }

func (a *adapter) Capabilities() engine.Capabilities {
	// AUTOINCREMENT counters live in sqlite_sequence, which can be cleared.
	return engine.Capabilities{Transactions: true, SequenceReset: true}
}

func (a *adapter) path(name string) string {
	return filepath.Join(a.opts.Dir, name+".db")
}

func (a *adapter) dsn(name string) string {
	return "file:" + a.path(name) + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func (a *adapter) CreateDatabase(ctx context.Context, alias, name string, reuse bool) (*engine.Database, error) {
	path := a.path(name)
	if reuse {
		if _, err := os.Stat(path); err == nil {
			a.opts.Logger.Info("reusing existing database file",
				"alias", alias, "path", path)
			return &engine.Database{Alias: alias, Name: name, DSN: a.dsn(name)}, nil
		}
	} else {
		// Remove the main file and the WAL sidecars from a previous run.
		for _, p := range []string{path, path + "-wal", path + "-shm"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("sqlite: remove stale %s: %w", p, err)
			}
		}
	}

	db := &engine.Database{Alias: alias, Name: name, DSN: a.dsn(name)}

	// Touch the file so DatabaseExists is meaningful before schema setup.
	h, err := sql.Open("sqlite", db.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	defer h.Close()
	if err := h.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("sqlite: create %s: %w", path, err)
	}
	return db, nil
}

func (a *adapter) DatabaseExists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(a.path(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (a *adapter) DropDatabase(_ context.Context, db *engine.Database) error {
	path := a.path(db.Name)
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("sqlite: drop %s: %w", p, err)
		}
	}
	return nil
}

func (a *adapter) SetupTestEnvironment(ctx context.Context, db *engine.Database) error {
	if a.opts.MigrationsDir == "" && a.opts.FixturesPath == "" {
		return nil
	}
	h, err := sql.Open("sqlite", db.DSN)
	if err != nil {
		return fmt.Errorf("sqlite: open %s: %w", db.Name, err)
	}
	defer h.Close()

	if a.opts.MigrationsDir != "" {
		if err := engine.RunMigrations(ctx, h, a.opts.MigrationsDir, "sqlite3", MigrationTableName); err != nil {
			return fmt.Errorf("sqlite: migrate %s: %w", db.Name, err)
		}
	}
	return a.LoadFixtures(ctx, h, db)
}

func (a *adapter) TeardownTestEnvironment(context.Context, *engine.Database) error {
	return nil
}

func (a *adapter) Connector(db *engine.Database) (driver.Connector, error) {
	return engine.DSNConnector(db.DSN, &sqlite.Driver{}), nil
}

func (a *adapter) FlushTables(ctx context.Context, h *sql.DB, db *engine.Database) error {
	tables, err := a.userTables(ctx, h)
	if err != nil {
		return err
	}
	// Foreign keys are re-enabled even if a delete fails; the pragma is
	// per-connection and the harness handle is pinned to one connection.
	if _, err := h.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("sqlite: disable foreign keys: %w", err)
	}
	defer func() {
		_, _ = h.ExecContext(ctx, "PRAGMA foreign_keys = ON")
	}()
	for _, table := range tables {
		if _, err := h.ExecContext(ctx, `DELETE FROM "`+table+`"`); err != nil {
			return fmt.Errorf("sqlite: flush table %s in %s: %w", table, db.Name, err)
		}
	}
	return nil
}

func (a *adapter) ResetSequences(ctx context.Context, h *sql.DB, db *engine.Database) error {
	// sqlite_sequence only exists once a table with AUTOINCREMENT has been
	// written to; absence means there is nothing to reset.
	var name string
	err := h.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'`,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("sqlite: check sqlite_sequence in %s: %w", db.Name, err)
	}
	if _, err := h.ExecContext(ctx, `DELETE FROM sqlite_sequence`); err != nil {
		return fmt.Errorf("sqlite: reset sequences in %s: %w", db.Name, err)
	}
	return nil
}

func (a *adapter) LoadFixtures(ctx context.Context, h *sql.DB, db *engine.Database) error {
	if a.opts.FixturesPath == "" {
		return nil
	}
	script, err := os.ReadFile(a.opts.FixturesPath)
	if err != nil {
		return fmt.Errorf("sqlite: read fixtures %s: %w", a.opts.FixturesPath, err)
	}
	if err := engine.ExecScript(ctx, h, string(script)); err != nil {
		return fmt.Errorf("sqlite: load fixtures into %s: %w", db.Name, err)
	}
	return nil
}

func (a *adapter) Close() error { return nil }

func (a *adapter) userTables(ctx context.Context, h *sql.DB) ([]string, error) {
	rows, err := h.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		  AND name <> ?`, MigrationTableName)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: scan table name: %w", err)
		}
		if strings.HasPrefix(name, "goose_") {
			continue
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
