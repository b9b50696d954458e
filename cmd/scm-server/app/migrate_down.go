package app

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/scmgo/scm-server/database"
)

func newMigrateDownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Migrate the database down",
		Long: `Migrate the database schema down by reverting migrations.
WARNING: This operation can result in data loss. Use with caution.

Examples:
  # Migrate down by 1 step
  scm-server migrate down --config config.yaml --num-steps 1 --yes

  # Migrate down all the way (WARNING: destroys all data)
  scm-server migrate down --config config.yaml --yes`,
		RunE: runMigrateDown,
	}
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	_, connString, err := migrationTarget(cmd.Context(), cmd)
	if err != nil {
		return err
	}

	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}
	if numSteps > math.MaxInt {
		return fmt.Errorf("number of steps exceeds maximum allowed value")
	}

	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	if !yes {
		if err := requireTerminal(cmd.InOrStdin()); err != nil {
			return err
		}
		prompt := "WARNING: This will migrate down ALL steps and may result in complete data loss. Continue?"
		if numSteps > 0 {
			prompt = fmt.Sprintf("WARNING: This will migrate down %d step(s) and may result in data loss. Continue?",
				numSteps)
		}
		if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt) {
			slog.Info("Migration cancelled")
			return fmt.Errorf("migration cancelled by user")
		}
	}

	if numSteps > 0 {
		slog.Info("Migrating down", "steps", numSteps)
		err = database.MigrateDown(connString, int(numSteps)) // #nosec G115 -- overflow checked above
	} else {
		slog.Warn("Migrating down all steps, this removes the whole schema")
		err = migrateDownAll(connString)
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("Migration completed successfully")
	displayMigrationVersion(connString)
	return nil
}

func migrateDownAll(connString string) error {
	m, err := database.NewMigrator(connString)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
