package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/pressly/goose/v3"
)

// gooseMu serializes migration runs. goose configuration (dialect, base FS,
// version table) is package-global, and a session sets up its aliases
// concurrently, so the whole configure-and-run sequence must not interleave.
var gooseMu sync.Mutex

// RunMigrations applies every goose migration in dir to h using the given
// dialect. table names the goose version table.
func RunMigrations(ctx context.Context, h *sql.DB, dir, dialect, table string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetLogger(goose.NopLogger())
	goose.SetTableName(table)
	goose.SetBaseFS(os.DirFS(dir))
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect %q: %w", dialect, err)
	}
	return goose.UpContext(ctx, h, ".")
}
