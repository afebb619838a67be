package guard

import (
	"errors"
	"fmt"
)

// ErrAccessDenied is the root of every gate rejection. Callers match it with
// errors.Is regardless of which variant fired.
var ErrAccessDenied = errors.New("database access denied")

// blockedMessage is the exact text raised when no scope is armed. The wording
// is part of the public contract: user tooling pattern-matches on it, so it
// must name the declarative mechanisms available to opt in.
const blockedMessage = `Database access not allowed, use the "dbharness.Require" mark, ` +
	`or the "dbharness.WithDB" or "dbharness.WithTransactionalDB" fixtures to enable it.`

// AccessError reports a blocked database access. Alias is empty when the
// guard was not armed at all, and names the offending database when access
// was armed but out of scope.
type AccessError struct {
	// Alias is the database the caller tried to reach, or "" when the guard
	// was not armed.
	Alias string
}

func (e *AccessError) Error() string {
	if e.Alias == "" {
		return blockedMessage
	}
	// The "not allowed" substring plus the alias name is matchable, per the
	// error surface contract.
	return fmt.Sprintf("database %q is not allowed in this test; add it to the declared databases", e.Alias)
}

func (e *AccessError) Unwrap() error { return ErrAccessDenied }

// IsAccessDenied reports whether err is (or wraps) a gate rejection.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
