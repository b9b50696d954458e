package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/scmgo/scm-server/database"
)

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		Long: `Apply all pending database migrations to bring the schema up to date.
The connection parameters are read from the database section of the config file;
the migration user is used when configured.`,
		RunE: runMigrateUp,
	}
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	cfg, connString, err := migrationTarget(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	if !yes {
		if err := requireTerminal(cmd.InOrStdin()); err != nil {
			return err
		}
		prompt := fmt.Sprintf("About to apply migrations to %s:%d/%s as %s. Continue?",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.Database, cfg.Database.GetMigrationUser())
		if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt) {
			slog.Info("Migration cancelled by user")
			return nil
		}
	}

	slog.Info("Applying database migrations")
	if err := database.MigrateUp(connString); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	displayMigrationVersion(connString)
	return nil
}
