package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeAllows(t *testing.T) {
	scope := NewScope("default", "second")

	assert.True(t, scope.Allows("default"))
	assert.True(t, scope.Allows("second"))
	assert.False(t, scope.Allows("replica"))
	assert.False(t, scope.Allows(""))
}

func TestScopeMirrorAliasMustBeDeclared(t *testing.T) {
	// Sharing a source's physical database does not grant access: a mirror
	// alias stays blocked until it is declared like any other alias.
	scope := NewScope("default")
	assert.False(t, scope.Allows("replica"))

	scope.Add("replica")
	assert.True(t, scope.Allows("replica"))
}

func TestScopeUnion(t *testing.T) {
	a := NewScope("default")
	b := NewScope("second")

	a.Union(b)

	assert.True(t, a.Allows("default"))
	assert.True(t, a.Allows("second"))
	assert.False(t, a.Allows("replica"))
	assert.Equal(t, []string{"default", "second"}, a.Aliases())
}

func TestScopeUnionNil(t *testing.T) {
	a := NewScope("default")
	a.Union(nil)
	assert.Equal(t, []string{"default"}, a.Aliases())
}

func TestScopeEqual(t *testing.T) {
	assert.True(t, NewScope("a", "b").Equal(NewScope("b", "a")))
	assert.False(t, NewScope("a").Equal(NewScope("a", "b")))
	assert.False(t, NewScope("a").Equal(nil))
}
