package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/internal/storage/postgres"
)

// migrate: apply, roll back or inspect the PostgreSQL schema.
func migrateCmd(a *app) *cobra.Command {
	var (
		down   int
		status bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply PostgreSQL schema migrations",
		Long: "Apply all pending PostgreSQL schema migrations.\n" +
			"SQLite databases are migrated automatically when opened.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Store != config.StorePostgres {
				return fmt.Errorf("migrate requires the postgres store, got %q", a.cfg.Store)
			}
			if down > 0 && status {
				return fmt.Errorf("--down and --status are mutually exclusive")
			}
			url, err := a.databaseURLFor()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			switch {
			case status:
				version, dirty, err := postgres.MigrationStatus(url)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "version %d dirty %t\n", version, dirty)
			case down > 0:
				if err := postgres.MigrateDown(url, down); err != nil {
					return err
				}
				a.logger.Info("Migrations rolled back", "steps", down)
				fmt.Fprintf(out, "rolled back %d\n", down)
			default:
				version, changed, err := postgres.Migrate(url)
				if err != nil {
					return err
				}
				if changed {
					a.logger.Info("Database migrated", "version", version)
				}
				fmt.Fprintf(out, "version %d\n", version)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "roll back this many migrations instead")
	cmd.Flags().BoolVar(&status, "status", false, "print the current schema version")
	return cmd
}
