// Package main provides the reviewreply command line: ingestion, approval polling,
// the admin API, and maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/helixir/review-reply-service/internal/config"
	"github.com/helixir/review-reply-service/internal/observability"
)

// version is set at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries state shared by all subcommands.
type cli struct {
	cfg    *config.Config
	logger zerolog.Logger
	debug  bool
}

func rootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "reviewreply",
		Short:         "Review ingestion, analysis and owner-approved replies",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if c.debug {
				cfg.Logging.Level = "debug"
			}
			c.cfg = cfg
			c.logger = observability.NewLogger(observability.LoggingConfig{
				Level:      cfg.Logging.Level,
				Format:     cfg.Logging.Format,
				Output:     cfg.Logging.Output,
				AddSource:  cfg.Logging.AddSource,
				TimeFormat: cfg.Logging.TimeFormat,
			}).With().Str("command", cmd.Name()).Logger()
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&c.debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(
		runCommand(c),
		serveCommand(c),
		discoverCommand(c),
		cleanupCommand(c),
		reprocessCommand(c),
		migrateCommand(c),
		eventsCommand(c),
	)
	return root
}
