package dbharness

import (
	"fmt"

	"github.com/phrazzld/dbharness/guard"
)

// resolveRequirement turns one declared requirement into the scope and
// isolation mode it asks for. Unknown aliases are a configuration error here,
// at setup, rather than at first use, so the failure points at the
// declaration instead of a random query deep in the test.
func (s *Session) resolveRequirement(req Requirement) (*guard.Scope, Mode, error) {
	aliases := req.Databases
	if len(aliases) == 0 {
		aliases = []string{DefaultAlias}
	}

	scope := guard.NewScope()
	for _, alias := range aliases {
		if alias == DatabasesAll {
			for _, known := range s.knownAliases() {
				scope.Add(known)
			}
			continue
		}
		if _, ok := s.aliases[alias]; !ok {
			return nil, ModeBlocked, fmt.Errorf("%w: requirement names unknown database alias %q (known: %v)",
				ErrConfiguration, alias, s.knownAliases())
		}
		scope.Add(alias)
	}

	mode := req.mode()
	caps := s.adapter.Capabilities()
	if mode == ModeDestructiveResetSequences && !caps.SequenceReset {
		return nil, ModeBlocked, fmt.Errorf("%w: engine %q does not support sequence reset",
			ErrConfiguration, s.adapter.Name())
	}
	if mode == ModeTransactional && !caps.Transactions {
		// No rollback support means no wrapper; fall back to flush-based
		// isolation rather than refusing to run.
		mode = ModeDestructive
	}
	return scope, mode, nil
}
