package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/dbharness/internal/config"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := `
engine:
  name: sqlite
  dir: ` + filepath.Join(dir, "databases") + `
databases:
  default: {}
  second: {}
  replica:
    mirror: default
log_level: error
`
	path := filepath.Join(dir, "dbharness.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCreateStatusDestroy(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, "create", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "created default (test_default)")
	assert.Contains(t, out, "created second (test_second)")
	assert.NotContains(t, out, "replica (", "mirrors get no database of their own")

	out, err = runCLI(t, "status", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "true")
	assert.Contains(t, out, "(mirror of default)")

	out, err = runCLI(t, "destroy", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "dropped default (test_default)")

	out, err = runCLI(t, "status", "--config", cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "true")
}

func TestCreateWithBadConfigPath(t *testing.T) {
	_, err := runCLI(t, "create", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestPhysicalName(t *testing.T) {
	cfg := config.Default("sqlite")
	assert.Equal(t, "test_default", physicalName(cfg, "default"))

	cfg.DatabaseSuffix = "_gw3"
	assert.Equal(t, "test_default_gw3", physicalName(cfg, "default"))
}

func TestSortedAliasesSkipsMirrors(t *testing.T) {
	cfg := config.Default("sqlite")
	cfg.Databases["second"] = config.DatabaseConfig{}
	cfg.Databases["replica"] = config.DatabaseConfig{Mirror: "default"}

	assert.Equal(t, []string{"default", "second"}, sortedAliases(cfg))
}
