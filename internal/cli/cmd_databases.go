package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/phrazzld/dbharness/engine"
	"github.com/phrazzld/dbharness/internal/config"
	"github.com/phrazzld/dbharness/internal/platform/logger"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the test databases and apply schema setup",
	Long: `Create the physical test database for every configured alias and apply
schema migrations. With --reuse-db, databases that already exist are kept
as-is (their schema may be stale; that is the accepted tradeoff of reuse).`,
	RunE: runCreate,
}

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Drop the test databases",
	RunE:  runDestroy,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which test databases currently exist",
	RunE:  runStatus,
}

// physicalName mirrors the naming the session uses in reuse mode, so the CLI
// and test runs agree on which databases they are managing.
func physicalName(cfg *config.Config, alias string) string {
	return "test_" + alias + cfg.DatabaseSuffix
}

// openAdapter builds the configured engine adapter.
func openAdapter(cfg *config.Config) (engine.Adapter, error) {
	log := logger.Setup(cfg.LogLevel)
	return engine.New(cfg.Engine.Name, engine.Options{
		AdminURL:      cfg.Engine.AdminURL,
		Dir:           cfg.Engine.Dir,
		MigrationsDir: cfg.Engine.MigrationsDir,
		FixturesPath:  cfg.Engine.FixturesPath,
		Logger:        log,
	})
}

// sortedAliases returns the non-mirror aliases in stable order. Mirrors have
// no physical database to manage.
func sortedAliases(cfg *config.Config) []string {
	aliases := make([]string, 0, len(cfg.Databases))
	for alias, db := range cfg.Databases {
		if db.Mirror == "" {
			aliases = append(aliases, alias)
		}
	}
	sort.Strings(aliases)
	return aliases
}

func runCreate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	adapter, err := openAdapter(cfg)
	if err != nil {
		return err
	}
	defer adapter.Close()

	ctx := cmd.Context()
	for _, alias := range sortedAliases(cfg) {
		name := physicalName(cfg, alias)
		db, err := adapter.CreateDatabase(ctx, alias, name, cfg.ReuseDB)
		if err != nil {
			return fmt.Errorf("create %q: %w", alias, err)
		}
		if err := adapter.SetupTestEnvironment(ctx, db); err != nil {
			return fmt.Errorf("set up %q: %w", alias, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", alias, db.Name)
	}
	return nil
}

func runDestroy(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	adapter, err := openAdapter(cfg)
	if err != nil {
		return err
	}
	defer adapter.Close()

	ctx := cmd.Context()
	for _, alias := range sortedAliases(cfg) {
		name := physicalName(cfg, alias)
		db := &engine.Database{Alias: alias, Name: name}
		if err := adapter.DropDatabase(ctx, db); err != nil {
			return fmt.Errorf("drop %q: %w", alias, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dropped %s (%s)\n", alias, name)
	}
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	adapter, err := openAdapter(cfg)
	if err != nil {
		return err
	}
	defer adapter.Close()

	ctx := cmd.Context()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tDATABASE\tEXISTS")
	for _, alias := range sortedAliases(cfg) {
		name := physicalName(cfg, alias)
		exists, err := adapter.DatabaseExists(ctx, name)
		if err != nil {
			return fmt.Errorf("check %q: %w", alias, err)
		}
		fmt.Fprintf(w, "%s\t%s\t%v\n", alias, name, exists)
	}
	for alias, db := range cfg.Databases {
		if db.Mirror != "" {
			fmt.Fprintf(w, "%s\t(mirror of %s)\t-\n", alias, db.Mirror)
		}
	}
	return w.Flush()
}
