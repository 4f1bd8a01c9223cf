// Package migrate exposes the goose-backed schema commands as a cobra
// subcommand tree, grounded on the teacher's own migrate command package.
package migrate

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moguard/panel/internal/config"
	"github.com/moguard/panel/internal/shared/logger"
	"github.com/moguard/panel/internal/store"
)

var configPath string

// NewCommand builds the `migrate` command tree: `up` and `status`.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.AddCommand(newUpCommand(), newStatusCommand())
	return cmd
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runUp,
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current migration version",
		RunE:  runStatus,
	}
}

func load() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(&cfg.Logger); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

func runUp(cmd *cobra.Command, args []string) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	logger.Info("running migrations", zap.String("driver", cfg.Database.Driver))
	if err := store.Migrate(sqlDB, cfg.Database.Driver); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("migrations completed")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := load()
	if err != nil {
		return err
	}
	defer logger.Sync()

	db, err := store.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	version, err := store.MigrateStatus(sqlDB, cfg.Database.Driver)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	fmt.Printf("current migration version: %d\n", version)
	return nil
}
