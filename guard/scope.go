package guard

import "sort"

// Scope is the set of database aliases one test is permitted to use. It is
// built by the harness at test setup and read-only from then on; the guard
// never mutates it during execution.
//
// A mirror alias is no different from any other here: sharing a source's
// physical database is a replication concern, not an access grant, so a
// mirror must be declared itself to be usable.
type Scope struct {
	allowed map[string]struct{}
}

// NewScope returns a scope permitting the given aliases.
func NewScope(aliases ...string) *Scope {
	s := &Scope{allowed: make(map[string]struct{}, len(aliases))}
	for _, alias := range aliases {
		s.allowed[alias] = struct{}{}
	}
	return s
}

// Add permits one more alias.
func (s *Scope) Add(alias string) {
	s.allowed[alias] = struct{}{}
}

// Allows reports whether the alias may be used under this scope.
func (s *Scope) Allows(alias string) bool {
	_, ok := s.allowed[alias]
	return ok
}

// Aliases returns the allowed aliases, sorted.
func (s *Scope) Aliases() []string {
	aliases := make([]string, 0, len(s.allowed))
	for alias := range s.allowed {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// Union folds other's aliases into s.
func (s *Scope) Union(other *Scope) {
	if other == nil {
		return
	}
	for alias := range other.allowed {
		s.allowed[alias] = struct{}{}
	}
}

// Equal reports whether both scopes allow exactly the same aliases.
func (s *Scope) Equal(other *Scope) bool {
	if other == nil || len(s.allowed) != len(other.allowed) {
		return false
	}
	for alias := range s.allowed {
		if _, ok := other.allowed[alias]; !ok {
			return false
		}
	}
	return true
}
