package dbharness

import (
	"context"
	"fmt"

	"github.com/phrazzld/dbharness/guard"
)

// savepointName is the nested atomic block opened per alias under
// transactional isolation.
const savepointName = "dbharness_test"

// wrapper is the isolation boundary for one test. Under transactional mode
// it holds an open transaction plus savepoint per allowed alias; under the
// destructive modes it holds nothing and does its work at exit.
type wrapper struct {
	s      *Session
	mode   Mode
	scope  *guard.Scope
	blocks map[string]struct{} // aliases with an open atomic block
}

// enterWrapper opens the isolation boundary for the given mode and scope.
// The guard must already be armed for the scope: the BEGIN/SAVEPOINT
// statements themselves run through the gated handles.
func (s *Session) enterWrapper(ctx context.Context, mode Mode, scope *guard.Scope) (*wrapper, error) {
	w := &wrapper{s: s, mode: mode, scope: scope, blocks: make(map[string]struct{})}
	if mode != ModeTransactional {
		return w, nil
	}
	for _, alias := range scope.Aliases() {
		if err := w.beginBlock(ctx, alias); err != nil {
			w.rollbackBlocks(ctx)
			return nil, err
		}
	}
	return w, nil
}

// beginBlock opens the atomic block for one alias. Entering twice for the
// same alias is a no-op: stacked fixtures reuse the existing block instead of
// double-wrapping.
func (w *wrapper) beginBlock(ctx context.Context, alias string) error {
	if _, open := w.blocks[alias]; open {
		return nil
	}
	if w.s.isMirror(alias) {
		// A mirror has no database of its own; its source's block covers it.
		return nil
	}
	h, err := w.s.handle(alias)
	if err != nil {
		return err
	}
	if _, err := h.ExecContext(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("begin atomic block on %q: %w", alias, err)
	}
	if _, err := h.ExecContext(ctx, "SAVEPOINT "+savepointName); err != nil {
		return fmt.Errorf("open savepoint on %q: %w", alias, err)
	}
	w.blocks[alias] = struct{}{}
	return nil
}

// extend widens the wrapper for a stacked grant: new aliases get blocks under
// transactional mode, and a more permissive mode wins over the current one.
// Upgrading away from transactional rolls back the open blocks first, since a
// rollback wrapper cannot coexist with a test that commits.
func (w *wrapper) extend(ctx context.Context, mode Mode, scope *guard.Scope) error {
	w.scope.Union(scope)
	next := maxMode(w.mode, mode)
	if next != w.mode && w.mode == ModeTransactional {
		w.rollbackBlocks(ctx)
	}
	w.mode = next
	if w.mode != ModeTransactional {
		return nil
	}
	for _, alias := range w.scope.Aliases() {
		if err := w.beginBlock(ctx, alias); err != nil {
			return err
		}
	}
	return nil
}

// exit closes the isolation boundary. Transactional mode discards every
// write by rolling back; the destructive modes flush all tables (and
// optionally reset sequences), then reload fixture data. exit runs on every
// test exit path, pass or fail.
func (w *wrapper) exit(ctx context.Context) error {
	switch w.mode {
	case ModeTransactional:
		w.rollbackBlocks(ctx)
		return nil
	case ModeDestructive, ModeDestructiveResetSequences:
		return w.flush(ctx)
	default:
		return nil
	}
}

func (w *wrapper) rollbackBlocks(ctx context.Context) {
	for alias := range w.blocks {
		h, err := w.s.handle(alias)
		if err != nil {
			continue
		}
		if _, err := h.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepointName); err != nil {
			w.s.log.Warn("failed to roll back savepoint", "alias", alias, "error", err)
		}
		if _, err := h.ExecContext(ctx, "ROLLBACK"); err != nil {
			w.s.log.Warn("failed to roll back atomic block", "alias", alias, "error", err)
		}
		delete(w.blocks, alias)
	}
}

func (w *wrapper) flush(ctx context.Context) error {
	for _, alias := range w.scope.Aliases() {
		if w.s.isMirror(alias) {
			continue
		}
		state := w.s.aliases[alias]
		h, err := w.s.handle(alias)
		if err != nil {
			return err
		}
		if err := w.s.adapter.FlushTables(ctx, h, state.database); err != nil {
			return fmt.Errorf("flush %q: %w", alias, err)
		}
		if w.mode == ModeDestructiveResetSequences {
			if err := w.s.adapter.ResetSequences(ctx, h, state.database); err != nil {
				return fmt.Errorf("reset sequences on %q: %w", alias, err)
			}
		}
		if err := w.s.adapter.LoadFixtures(ctx, h, state.database); err != nil {
			return fmt.Errorf("reload fixtures on %q: %w", alias, err)
		}
	}
	return nil
}
