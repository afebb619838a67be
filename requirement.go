package dbharness

// DefaultAlias is the database granted when a declaration names no databases.
const DefaultAlias = "default"

// DatabasesAll, used as an entry in Requirement.Databases, grants every alias
// known to the session.
const DatabasesAll = "__all__"

// Requirement is the declarative description of a test's database needs,
// the marker surface of the harness. The zero value requests rollback-wrapped
// access to the default alias.
type Requirement struct {
	// Transaction disables the rollback wrapper so the test can manage
	// transactions itself: commits become durable, and teardown flushes all
	// tables instead of rolling back. Needed when the test exercises
	// transaction behavior.
	Transaction bool

	// ResetSequences additionally restores auto-increment counters to their
	// initial value at teardown, for tests asserting on generated IDs. It
	// implies Transaction semantics, since a sequence reset requires a real
	// flush.
	ResetSequences bool

	// Databases lists the aliases the test may touch. Empty means
	// {DefaultAlias}; the DatabasesAll entry grants every known alias.
	Databases []string
}

// mode maps a single requirement to its isolation mode.
func (r Requirement) mode() Mode {
	switch {
	case r.ResetSequences:
		return ModeDestructiveResetSequences
	case r.Transaction:
		return ModeDestructive
	default:
		return ModeTransactional
	}
}

// Mode is the isolation strategy applied to one test's database access.
// Higher values are more permissive; when stacked declarations disagree the
// highest wins, because a rollback wrapper cannot coexist with a test that
// commits.
type Mode int

const (
	// ModeBlocked grants nothing. The default for undeclared tests.
	ModeBlocked Mode = iota

	// ModeTransactional wraps the test in an atomic block rolled back at
	// teardown. Fast, and the default for declared tests.
	ModeTransactional

	// ModeDestructive opens no wrapper; the test may commit. Teardown
	// flushes every table in every allowed database.
	ModeDestructive

	// ModeDestructiveResetSequences is ModeDestructive plus restoring
	// auto-increment counters to their initial value at teardown.
	ModeDestructiveResetSequences
)

func (m Mode) String() string {
	switch m {
	case ModeBlocked:
		return "blocked"
	case ModeTransactional:
		return "transactional"
	case ModeDestructive:
		return "destructive"
	case ModeDestructiveResetSequences:
		return "destructive+reset-sequences"
	default:
		return "unknown"
	}
}

func maxMode(a, b Mode) Mode {
	if a > b {
		return a
	}
	return b
}
