package dbharness

import (
	"context"
	"testing"
)

// testState accumulates the grants of the currently executing test. Stacked
// grants (marker plus fixture-shaped helpers) merge into one state: unioned
// scope, most permissive mode, a single wrapper entry per alias.
type testState struct {
	name    string
	wrapper *wrapper
}

// Require grants the calling test the database access described by req and
// registers cleanup that closes the isolation boundary and disarms the guard
// on every exit path, including failure and panic. Calling Require (or any
// of the fixture helpers) again in the same test widens the grant; the union
// of the declared databases and the most permissive of the declared modes
// apply.
//
// Configuration problems (unknown alias, unsupported mode for the engine)
// fail the test here, before its body runs.
func (s *Session) Require(t testing.TB, req Requirement) {
	t.Helper()
	ctx := context.Background()

	scope, mode, err := s.resolveRequirement(req)
	if err != nil {
		t.Fatalf("dbharness: %v", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.Fatalf("dbharness: %v", ErrSessionClosed)
	}
	current := s.current
	s.mu.Unlock()

	if current != nil {
		if current.name != t.Name() {
			// Two tests' setups have interleaved; the harness guarantees
			// no overlapping scopes, so refuse loudly.
			t.Fatalf("dbharness: still armed for test %q while setting up %q", current.name, t.Name())
		}
		// Stacked grant on the same test: widen, never re-wrap.
		if err := s.guard.Extend(scope); err != nil {
			t.Fatalf("dbharness: %v", err)
		}
		if err := current.wrapper.extend(ctx, mode, scope); err != nil {
			t.Fatalf("dbharness: %v", err)
		}
		return
	}

	if err := s.guard.Arm(scope); err != nil {
		t.Fatalf("dbharness: %v", err)
	}
	w, err := s.enterWrapper(ctx, mode, scope)
	if err != nil {
		s.guard.Disarm()
		t.Fatalf("dbharness: %v", err)
	}

	state := &testState{name: t.Name(), wrapper: w}
	s.mu.Lock()
	s.current = state
	s.mu.Unlock()

	// Registered on the first grant only, so it runs after every cleanup
	// the test registers later — a finalizer registered inside a grant may
	// still touch the database.
	t.Cleanup(func() {
		s.release(t, state)
	})
}

// release closes the test's isolation boundary and disarms the guard. The
// disarm is unconditional: even if the flush or rollback fails, permission
// must not leak into the next test.
func (s *Session) release(t testing.TB, state *testState) {
	t.Helper()
	s.mu.Lock()
	if s.current != state {
		// Session.Close already released this test's state.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	defer func() {
		s.guard.Disarm()
		s.mu.Lock()
		if s.current == state {
			s.current = nil
		}
		s.mu.Unlock()
	}()
	if err := state.wrapper.exit(context.Background()); err != nil {
		t.Errorf("dbharness: teardown failed: %v", err)
	}
}

// WithDB grants rollback-wrapped access to the default alias, the fastest
// and most common declaration.
func (s *Session) WithDB(t testing.TB) {
	t.Helper()
	s.Require(t, Requirement{})
}

// WithTransactionalDB grants unwrapped access to the default alias for tests
// that exercise transaction behavior themselves. All tables are flushed at
// teardown.
func (s *Session) WithTransactionalDB(t testing.TB) {
	t.Helper()
	s.Require(t, Requirement{Transaction: true})
}

// WithResetSequences is WithTransactionalDB plus restoring auto-increment
// counters at teardown, for tests asserting on specific generated IDs.
func (s *Session) WithResetSequences(t testing.TB) {
	t.Helper()
	s.Require(t, Requirement{Transaction: true, ResetSequences: true})
}
