package sqlite

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/dbharness/engine"
)

func newAdapter(t *testing.T, opts engine.Options) engine.Adapter {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	opts.Logger = slog.Default()
	a, err := New(opts)
	require.NoError(t, err)
	return a
}

func openHandle(t *testing.T, db *engine.Database) *sql.DB {
	t.Helper()
	h, err := sql.Open("sqlite", db.DSN)
	require.NoError(t, err)
	h.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestCreateAndDropDatabase(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t, engine.Options{})

	db, err := a.CreateDatabase(ctx, "default", "test_default", false)
	require.NoError(t, err)

	exists, err := a.DatabaseExists(ctx, "test_default")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, a.DropDatabase(ctx, db))
	exists, err = a.DatabaseExists(ctx, "test_default")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCreateDatabaseReuseKeepsData(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t, engine.Options{})

	db, err := a.CreateDatabase(ctx, "default", "test_default", false)
	require.NoError(t, err)
	h := openHandle(t, db)
	_, err = h.ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)")
	require.NoError(t, err)
	_, err = h.ExecContext(ctx, "INSERT INTO items (name) VALUES ('kept')")
	require.NoError(t, err)

	// Reuse keeps the existing file and its contents.
	db2, err := a.CreateDatabase(ctx, "default", "test_default", true)
	require.NoError(t, err)
	h2 := openHandle(t, db2)
	var n int
	require.NoError(t, h2.QueryRowContext(ctx, "SELECT count(*) FROM items").Scan(&n))
	assert.Equal(t, 1, n)

	// Fresh creation replaces it.
	db3, err := a.CreateDatabase(ctx, "default", "test_default", false)
	require.NoError(t, err)
	h3 := openHandle(t, db3)
	err = h3.QueryRowContext(ctx, "SELECT count(*) FROM items").Scan(&n)
	assert.Error(t, err, "table should be gone in a fresh database")
}

func TestSetupTestEnvironmentAppliesMigrations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	migrations := filepath.Join(dir, "migrations")
	require.NoError(t, os.Mkdir(migrations, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(migrations, "00001_create_items.sql"),
		[]byte("-- +goose Up\nCREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);\n\n-- +goose Down\nDROP TABLE items;\n"),
		0o644))

	a := newAdapter(t, engine.Options{MigrationsDir: migrations})
	db, err := a.CreateDatabase(ctx, "default", "test_default", false)
	require.NoError(t, err)
	require.NoError(t, a.SetupTestEnvironment(ctx, db))

	h := openHandle(t, db)
	_, err = h.ExecContext(ctx, "INSERT INTO items (name) VALUES ('spam')")
	require.NoError(t, err)
}

func TestSetupTestEnvironmentConcurrent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	migrations := filepath.Join(dir, "migrations")
	require.NoError(t, os.Mkdir(migrations, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(migrations, "00001_create_items.sql"),
		[]byte("-- +goose Up\nCREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);\n\n-- +goose Down\nDROP TABLE items;\n"),
		0o644))

	// Sessions set up their aliases concurrently; the adapter must tolerate
	// parallel migration runs against distinct databases.
	a := newAdapter(t, engine.Options{MigrationsDir: migrations})
	var dbs []*engine.Database
	for _, alias := range []string{"one", "two", "three"} {
		db, err := a.CreateDatabase(ctx, alias, "test_"+alias, false)
		require.NoError(t, err)
		dbs = append(dbs, db)
	}

	var grp errgroup.Group
	for _, db := range dbs {
		db := db
		grp.Go(func() error { return a.SetupTestEnvironment(ctx, db) })
	}
	require.NoError(t, grp.Wait())

	for _, db := range dbs {
		h := openHandle(t, db)
		_, err := h.ExecContext(ctx, "INSERT INTO items (name) VALUES ('x')")
		require.NoError(t, err, "database %s", db.Name)
	}
}

func TestFlushTablesKeepsSequence(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t, engine.Options{})
	db, err := a.CreateDatabase(ctx, "default", "test_default", false)
	require.NoError(t, err)

	h := openHandle(t, db)
	_, err = h.ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)")
	require.NoError(t, err)
	_, err = h.ExecContext(ctx, "INSERT INTO items (name) VALUES ('a'), ('b')")
	require.NoError(t, err)

	require.NoError(t, a.FlushTables(ctx, h, db))

	var n int
	require.NoError(t, h.QueryRowContext(ctx, "SELECT count(*) FROM items").Scan(&n))
	assert.Equal(t, 0, n)

	// The counter continues where it left off.
	res, err := h.ExecContext(ctx, "INSERT INTO items (name) VALUES ('c')")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
}

func TestResetSequencesRestartsCounter(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t, engine.Options{})
	db, err := a.CreateDatabase(ctx, "default", "test_default", false)
	require.NoError(t, err)

	h := openHandle(t, db)
	_, err = h.ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)")
	require.NoError(t, err)
	_, err = h.ExecContext(ctx, "INSERT INTO items (name) VALUES ('a'), ('b')")
	require.NoError(t, err)

	require.NoError(t, a.FlushTables(ctx, h, db))
	require.NoError(t, a.ResetSequences(ctx, h, db))

	res, err := h.ExecContext(ctx, "INSERT INTO items (name) VALUES ('c')")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestResetSequencesWithoutAutoincrementTables(t *testing.T) {
	ctx := context.Background()
	a := newAdapter(t, engine.Options{})
	db, err := a.CreateDatabase(ctx, "default", "test_default", false)
	require.NoError(t, err)

	h := openHandle(t, db)
	// No AUTOINCREMENT table means no sqlite_sequence; reset is a no-op.
	require.NoError(t, a.ResetSequences(ctx, h, db))
}

func TestLoadFixtures(t *testing.T) {
	ctx := context.Background()
	fixtures := filepath.Join(t.TempDir(), "seed.sql")
	require.NoError(t, os.WriteFile(fixtures,
		[]byte("-- seed\nINSERT INTO items (name) VALUES ('seeded');\n"), 0o644))

	a := newAdapter(t, engine.Options{FixturesPath: fixtures})
	db, err := a.CreateDatabase(ctx, "default", "test_default", false)
	require.NoError(t, err)

	h := openHandle(t, db)
	_, err = h.ExecContext(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)")
	require.NoError(t, err)

	require.NoError(t, a.LoadFixtures(ctx, h, db))
	var name string
	require.NoError(t, h.QueryRowContext(ctx, "SELECT name FROM items").Scan(&name))
	assert.Equal(t, "seeded", name)
}

func TestCapabilities(t *testing.T) {
	a := newAdapter(t, engine.Options{})
	caps := a.Capabilities()
	assert.True(t, caps.Transactions)
	assert.True(t, caps.SequenceReset)
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(engine.Options{Logger: slog.Default()})
	assert.Error(t, err)
}
