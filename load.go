package dbharness

import (
	"context"

	"github.com/phrazzld/dbharness/engine"
	"github.com/phrazzld/dbharness/internal/config"
)

// StartFromFile starts a session from a config file plus DBHARNESS_*
// environment variables, for suites that keep harness settings next to the
// code instead of building a Config in TestMain. An empty path loads from the
// environment and defaults alone.
func StartFromFile(ctx context.Context, path string) (*Session, error) {
	fileCfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	databases := make(map[string]Database, len(fileCfg.Databases))
	for alias, db := range fileCfg.Databases {
		databases[alias] = Database{Mirror: db.Mirror}
	}

	return Start(ctx, &Config{
		Engine: fileCfg.Engine.Name,
		EngineOptions: engine.Options{
			AdminURL:      fileCfg.Engine.AdminURL,
			Dir:           fileCfg.Engine.Dir,
			MigrationsDir: fileCfg.Engine.MigrationsDir,
			FixturesPath:  fileCfg.Engine.FixturesPath,
		},
		Databases:      databases,
		ReuseDB:        fileCfg.ReuseDB,
		DatabaseSuffix: fileCfg.DatabaseSuffix,
		LogLevel:       fileCfg.LogLevel,
	})
}
