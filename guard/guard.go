package guard

import (
	"fmt"
	"sync"
)

// Guard is the process-wide gate. The zero state blocks everything; Arm
// grants a scope for the duration of one test; Disarm restores blocking.
//
// The mutex only guards the setup/teardown transitions. During a test body
// the scope is read-only, and tests with overlapping scopes never run
// concurrently against the same session, so reads take the lock briefly and
// never block each other for long.
type Guard struct {
	mu    sync.Mutex
	scope *Scope
}

// New returns a guard in the blocking state.
func New() *Guard {
	return &Guard{}
}

// Arm grants the scope until Disarm. Arming while already armed with the
// same scope is a no-op; arming with a different scope is a hard error,
// because it means two tests' setups have interleaved and the harness is
// being misused.
func (g *Guard) Arm(scope *Scope) error {
	if scope == nil {
		return fmt.Errorf("guard: cannot arm with a nil scope")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.scope != nil {
		if g.scope == scope || g.scope.Equal(scope) {
			return nil
		}
		return fmt.Errorf("guard: already armed for aliases %v, refusing to re-arm for %v",
			g.scope.Aliases(), scope.Aliases())
	}
	g.scope = scope
	return nil
}

// Extend widens the current scope with additional grants. It is the path for
// stacked fixtures on one test: unlike Arm it requires the guard to already
// be armed, and it can only add access, never remove it.
func (g *Guard) Extend(scope *Scope) error {
	if scope == nil {
		return fmt.Errorf("guard: cannot extend with a nil scope")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.scope == nil {
		return fmt.Errorf("guard: cannot extend, not armed")
	}
	g.scope.Union(scope)
	return nil
}

// Disarm clears the scope unconditionally. It is idempotent and must run on
// every test exit path, including failure and panic, so a test can never
// leak its permissions into the next one.
func (g *Guard) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scope = nil
}

// Armed reports whether a scope is currently granted.
func (g *Guard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scope != nil
}

// check is the single decision point consulted by the gating connector for
// every connection acquisition and statement execution. It runs before any
// driver call, so a forbidden access never reaches the engine.
func (g *Guard) check(alias string) error {
	g.mu.Lock()
	scope := g.scope
	g.mu.Unlock()
	if scope == nil {
		return &AccessError{}
	}
	if !scope.Allows(alias) {
		return &AccessError{Alias: alias}
	}
	return nil
}
