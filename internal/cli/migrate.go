package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"cookbook/internal/db"
)

var errMockMigrate = errors.New("migrate needs a real database, not --mock")

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Apply, roll back or report schema migrations",
		Example: `  # Apply pending migrations
  cookbook migrate

  # Roll back the latest migration
  cookbook migrate down --connection cookbook.db`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			return runMigrate(cmd, action)
		},
	}
}

func runMigrate(cmd *cobra.Command, action string) error {
	cfg, err := newFactory(cmd).Config(nil)
	if err != nil {
		return err
	}
	if cfg.Database.UseMock {
		return errMockMigrate
	}

	database, err := db.Initialize(cfg.Database, db.WithSQLEcho(cfg.Logging.SQL))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close(database)

	ctx := cmd.Context()
	driver := cfg.Database.Driver

	switch action {
	case "up":
		err = db.Migrate(ctx, database, driver)
	case "down":
		err = db.Rollback(ctx, database, driver)
	}
	if err != nil {
		return err
	}

	version, err := db.SchemaVersion(ctx, database, driver)
	if err != nil {
		return err
	}
	printf(cmd, "schema version %d\n", version)
	return nil
}
