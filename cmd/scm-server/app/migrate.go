package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/scmgo/scm-server/database"
	"github.com/scmgo/scm-server/internal/config"
	"github.com/scmgo/scm-server/internal/store/dbauth"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Database migration tool for managing schema versions. Use with 'up' or 'down' subcommands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}

	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	cmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")
	cmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := cmd.MarkPersistentFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	return cmd
}

// migrationTarget loads the configuration named by --config and resolves the
// connection string of the migration user.
func migrationTarget(ctx context.Context, cmd *cobra.Command) (*config.Config, string, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, "", fmt.Errorf("failed to get config flag: %w", err)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database == nil {
		return nil, "", fmt.Errorf("database configuration is required")
	}

	connString, err := dbauth.MigrationConnectionString(ctx, cfg.Database)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get migration connection string: %w", err)
	}
	return cfg, connString, nil
}

// requireTerminal refuses to prompt when in is a file that is not a terminal,
// such as a pipe or a redirected script. Readers that are not files are
// taken as interactive.
func requireTerminal(in io.Reader) error {
	if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return fmt.Errorf("refusing to prompt: stdin is not a terminal, pass --yes to confirm")
	}
	return nil
}

// confirm asks prompt on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	_, _ = fmt.Fprintf(out, "%s (yes/no): ", prompt)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "yes" || answer == "y"
}

func displayMigrationVersion(connString string) {
	m, err := database.NewMigrator(connString)
	if err != nil {
		slog.Warn("Unable to get migration version", "error", err)
		return
	}
	defer func() {
		_, _ = m.Close()
	}()

	version, dirty, err := m.Version()
	switch {
	case err != nil:
		slog.Info("Database schema has no applied migrations")
	case dirty:
		slog.Warn("Database is in a dirty state, manual intervention may be required", "version", version)
	default:
		slog.Info("Current migration version", "version", version)
	}
}
