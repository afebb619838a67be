package dbharness

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/phrazzld/dbharness/engine"
	"github.com/phrazzld/dbharness/guard"
	"github.com/phrazzld/dbharness/internal/platform/logger"
)

// Config is the programmatic configuration for a session. The dbharness CLI
// and the internal/config loader produce the same shape from files and
// DBHARNESS_* environment variables.
type Config struct {
	// Engine names a registered engine ("postgres", "sqlite"). The
	// corresponding engine package must be imported for its side effect.
	Engine string

	// EngineOptions parameterizes the engine: admin URL, file directory,
	// migrations, fixtures.
	EngineOptions engine.Options

	// Databases maps each alias to its settings. Empty means a single
	// DefaultAlias entry.
	Databases map[string]Database

	// ReuseDB keeps previously created physical databases (skipping creation
	// and final destruction). Faster across runs, at the accepted risk of a
	// stale schema.
	ReuseDB bool

	// DatabaseSuffix is appended to every physical database name. Parallel
	// workers set distinct suffixes so they never share a physical database.
	// When empty and ReuseDB is off, a per-run unique suffix is generated.
	DatabaseSuffix string

	// LogLevel is debug, info, warn, or error.
	LogLevel string
}

// Database describes one alias.
type Database struct {
	// Mirror names the alias this one is a read replica of. A mirror shares
	// its source's physical database and gets none of its own; writes
	// committed on the source are visible through the mirror. Access is
	// still per alias: a test must declare the mirror to use its handle.
	Mirror string
}

type aliasState struct {
	database *engine.Database // nil for mirrors
	handle   *sql.DB
	mirrorOf string
}

// Session owns the run-level database state: physical databases, the access
// guard, and the gated connection handles tests use. Create one in TestMain,
// share it across the whole run, and Close it when the run ends.
type Session struct {
	cfg     *Config
	adapter engine.Adapter
	guard   *guard.Guard
	log     *slog.Logger
	runID   string

	mu      sync.Mutex
	aliases map[string]*aliasState
	current *testState
	closed  bool
}

// Start creates the physical databases (once, concurrently), applies schema
// setup, and installs the access guard. After Start every database handle is
// gated: access without a declared requirement fails.
func Start(ctx context.Context, cfg *Config) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrConfiguration)
	}
	log := logger.Setup(cfg.LogLevel)

	if len(cfg.Databases) == 0 {
		cfg.Databases = map[string]Database{DefaultAlias: {}}
	}
	if err := validateMirrors(cfg.Databases); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	suffix := cfg.DatabaseSuffix
	if suffix == "" && !cfg.ReuseDB {
		// Fresh databases get a per-run unique name so concurrent workers
		// on the same server never collide.
		suffix = "_" + runID[:8]
	}

	opts := cfg.EngineOptions
	opts.Logger = log
	if opts.Dir == "" {
		if cfg.ReuseDB {
			opts.Dir = filepath.Join(os.TempDir(), "dbharness")
		} else {
			opts.Dir = filepath.Join(os.TempDir(), "dbharness-"+runID[:8])
		}
	}
	adapter, err := engine.New(cfg.Engine, opts)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     cfg,
		adapter: adapter,
		guard:   guard.New(),
		log:     log,
		runID:   runID,
		aliases: make(map[string]*aliasState, len(cfg.Databases)),
	}

	// Mirror entries are registered up front, before any worker starts, so
	// the concurrent create loop below is the only writer besides createMu.
	for alias, db := range cfg.Databases {
		if db.Mirror != "" {
			s.aliases[alias] = &aliasState{mirrorOf: db.Mirror}
		}
	}

	// Create and set up each physical database. Mirrors are skipped: they
	// borrow their source's database.
	grp, grpCtx := errgroup.WithContext(ctx)
	var createMu sync.Mutex
	for alias, db := range cfg.Databases {
		if db.Mirror != "" {
			continue
		}
		alias := alias
		grp.Go(func() error {
			name := "test_" + alias + suffix
			created, err := adapter.CreateDatabase(grpCtx, alias, name, cfg.ReuseDB)
			if err != nil {
				return fmt.Errorf("create database for alias %q: %w", alias, err)
			}
			if err := adapter.SetupTestEnvironment(grpCtx, created); err != nil {
				return fmt.Errorf("set up database for alias %q: %w", alias, err)
			}
			createMu.Lock()
			s.aliases[alias] = &aliasState{database: created}
			createMu.Unlock()
			log.Info("test database ready", "alias", alias, "database", created.Name)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		_ = adapter.Close()
		return nil, err
	}

	// Build the gated handles. A mirror's connector targets its source's
	// physical database but carries the mirror's own alias, so the guard
	// decision is made against the alias the test actually used.
	for alias, state := range s.aliases {
		source := state
		if state.mirrorOf != "" {
			source = s.aliases[state.mirrorOf]
		}
		connector, err := adapter.Connector(source.database)
		if err != nil {
			_ = adapter.Close()
			return nil, fmt.Errorf("connector for alias %q: %w", alias, err)
		}
		handle := sql.OpenDB(guard.NewConnector(s.guard, alias, connector))
		// One connection per alias: the transactional wrapper relies on
		// every statement of a test reaching the same connection.
		handle.SetMaxOpenConns(1)
		handle.SetMaxIdleConns(1)
		state.handle = handle
	}

	s.log.Info("harness session started",
		"engine", adapter.Name(),
		"run_id", runID,
		"aliases", s.knownAliases(),
		"reuse_db", cfg.ReuseDB)
	return s, nil
}

// DB returns the gated handle for an alias. The handle exists for the whole
// run; whether a statement on it succeeds is decided per test by the guard.
func (s *Session) DB(alias string) (*sql.DB, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}
	return s.handle(alias)
}

// handle is DB without the closed-session check. Teardown paths still need
// handles after Close has begun: the in-flight wrapper's rollback or flush
// runs before the handles are actually closed.
func (s *Session) handle(alias string) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.aliases[alias]
	if !ok {
		return nil, fmt.Errorf("%w: unknown database alias %q (known: %v)",
			ErrConfiguration, alias, s.knownAliasesLocked())
	}
	return state.handle, nil
}

// Default returns the gated handle for the default alias.
func (s *Session) Default() (*sql.DB, error) {
	return s.DB(DefaultAlias)
}

// Capabilities reports the optional feature support of the underlying
// engine, so tests can skip when transactions or sequence resets are
// unavailable.
func (s *Session) Capabilities() engine.Capabilities {
	return s.adapter.Capabilities()
}

// Close tears the run down: disarms the guard, closes every handle, and
// destroys the physical databases unless reuse was requested. It is
// idempotent and safe to call from interrupt paths; a test that was still
// armed is released first so no permissive state or dirty data survives
// into a reused database.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	current := s.current
	s.current = nil
	s.mu.Unlock()

	// An aborted run may leave the last test's wrapper open; release it so
	// destructive leftovers are flushed before any reuse.
	if current != nil {
		if err := current.wrapper.exit(ctx); err != nil {
			s.log.Warn("failed to release in-flight test state", "error", err)
		}
	}
	s.guard.Disarm()

	var firstErr error
	for alias, state := range s.aliases {
		if err := state.handle.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close handle for alias %q: %w", alias, err)
		}
	}
	for alias, state := range s.aliases {
		if state.database == nil {
			continue
		}
		if err := s.adapter.TeardownTestEnvironment(ctx, state.database); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("teardown for alias %q: %w", alias, err)
		}
		if s.cfg.ReuseDB {
			continue
		}
		if err := s.adapter.DropDatabase(ctx, state.database); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("drop database for alias %q: %w", alias, err)
		}
	}
	if s.cfg.ReuseDB {
		s.log.Info("keeping test databases for reuse", "aliases", s.knownAliases())
	}
	if err := s.adapter.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// isMirror reports whether alias is configured as a mirror.
func (s *Session) isMirror(alias string) bool {
	state, ok := s.aliases[alias]
	return ok && state.mirrorOf != ""
}

func (s *Session) knownAliases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.knownAliasesLocked()
}

func (s *Session) knownAliasesLocked() []string {
	aliases := make([]string, 0, len(s.aliases))
	for alias := range s.aliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

func validateMirrors(databases map[string]Database) error {
	for alias, db := range databases {
		if db.Mirror == "" {
			continue
		}
		source, ok := databases[db.Mirror]
		if !ok {
			return fmt.Errorf("%w: alias %q mirrors unknown alias %q", ErrConfiguration, alias, db.Mirror)
		}
		if source.Mirror != "" {
			return fmt.Errorf("%w: alias %q mirrors %q, which is itself a mirror", ErrConfiguration, alias, db.Mirror)
		}
	}
	return nil
}
