package main

import (
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/review-reply-service/internal/database"
)

func migrateCommand(c *cli) *cobra.Command {
	var path string

	// withMigrator connects without auto-migration and hands fn a migrator.
	withMigrator := func(cmd *cobra.Command, fn func(*database.Migrator, zerolog.Logger) error) error {
		logger := c.logger.With().Str("component", "migrate").Logger()

		dbCfg := c.cfg.Database
		dir := dbCfg.MigrationPath
		if path != "" {
			dir = path
		}

		db, err := database.New(cmd.Context(), &dbCfg, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		migrator, err := database.NewMigrator(db, dir, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := fn(migrator, logger); err != nil {
			return err
		}
		printVersion(migrator, logger)
		return nil
	}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "Read migrations from this directory instead of the embedded set")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, func(m *database.Migrator, _ zerolog.Logger) error {
					if err := m.Up(); err != nil {
						return fmt.Errorf("migrate up: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, func(m *database.Migrator, _ zerolog.Logger) error {
					if err := m.Down(); err != nil {
						return fmt.Errorf("migrate down: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Run n migration steps (positive=up, negative=down)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("steps must be a non-zero integer, got %q", args[0])
				}
				return withMigrator(cmd, func(m *database.Migrator, _ zerolog.Logger) error {
					if err := m.Steps(n); err != nil {
						return fmt.Errorf("migrate steps: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current migration version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(cmd, func(*database.Migrator, zerolog.Logger) error { return nil })
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force the migration version (recovery from a failed migration)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 0 {
					return fmt.Errorf("version must be a non-negative integer, got %q", args[0])
				}
				return withMigrator(cmd, func(m *database.Migrator, logger zerolog.Logger) error {
					logger.Warn().Int("version", v).Msg("forcing migration version")
					if err := m.Force(v); err != nil {
						return fmt.Errorf("force version: %w", err)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

// printVersion logs the current migration version.
func printVersion(migrator *database.Migrator, logger zerolog.Logger) {
	status, err := migrator.Status()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return
	}
	logger.Info().
		Uint("version", status.Version).
		Bool("dirty", status.Dirty).
		Str("source", status.Source).
		Msg("current migration version")
}
