package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardBlocksByDefault(t *testing.T) {
	g := New()

	err := g.check("default")
	require.Error(t, err)
	assert.True(t, IsAccessDenied(err))

	// The exact wording is part of the public contract; user tooling
	// pattern-matches on it.
	assert.Equal(t,
		`Database access not allowed, use the "dbharness.Require" mark, `+
			`or the "dbharness.WithDB" or "dbharness.WithTransactionalDB" fixtures to enable it.`,
		err.Error())
}

func TestGuardArmGrantsScope(t *testing.T) {
	g := New()
	require.NoError(t, g.Arm(NewScope("default")))

	assert.NoError(t, g.check("default"))
	assert.True(t, g.Armed())
}

func TestGuardOutOfScopeAliasNamesIt(t *testing.T) {
	g := New()
	require.NoError(t, g.Arm(NewScope("default")))

	err := g.check("second")
	require.Error(t, err)
	assert.True(t, IsAccessDenied(err))
	assert.Contains(t, err.Error(), "not allowed")
	assert.Contains(t, err.Error(), `"second"`)
}

func TestGuardRearmSameScopeIsNoop(t *testing.T) {
	g := New()
	scope := NewScope("default")
	require.NoError(t, g.Arm(scope))
	require.NoError(t, g.Arm(scope))
	require.NoError(t, g.Arm(NewScope("default"))) // equal scope, distinct value
}

func TestGuardRearmDifferentScopeFails(t *testing.T) {
	g := New()
	require.NoError(t, g.Arm(NewScope("default")))

	err := g.Arm(NewScope("second"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already armed")
}

func TestGuardExtendRequiresArmed(t *testing.T) {
	g := New()
	require.Error(t, g.Extend(NewScope("default")))

	require.NoError(t, g.Arm(NewScope("default")))
	require.NoError(t, g.Extend(NewScope("second")))
	assert.NoError(t, g.check("second"))
}

func TestGuardDisarmIsUnconditional(t *testing.T) {
	g := New()
	require.NoError(t, g.Arm(NewScope("default")))

	g.Disarm()
	assert.False(t, g.Armed())
	assert.Error(t, g.check("default"))

	// Idempotent.
	g.Disarm()
	assert.False(t, g.Armed())
}

func TestGuardArmNilScope(t *testing.T) {
	g := New()
	require.Error(t, g.Arm(nil))
	require.NoError(t, g.Arm(NewScope("default")))
	require.Error(t, g.Extend(nil))
}
