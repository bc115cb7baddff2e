package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/helixir/review-reply-service/internal/config"
	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/events"
	"github.com/helixir/review-reply-service/internal/ingest"
	"github.com/helixir/review-reply-service/internal/repository"
	"github.com/helixir/review-reply-service/internal/scheduler"
	httpserver "github.com/helixir/review-reply-service/internal/server/http"
)

func newLoop(a *app) (*scheduler.Loop, error) {
	return scheduler.New(a.ingest, a.gate, scheduler.Config{
		IngestInterval: a.cfg.Scheduler.IngestInterval,
		PollInterval:   a.cfg.Scheduler.PollInterval,
	}, a.metrics, a.reporter, a.logger)
}

func runCommand(c *cli) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest reviews and poll for owner approvals",
		Long: `Run the ingestion and approval loop until interrupted.

With --once (or scheduler.mode=once) a single ingestion pass runs and its
statistics are printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			loop, err := newLoop(a)
			if err != nil {
				return err
			}

			if once || c.cfg.Scheduler.Mode == config.ModeOnce {
				stats, err := loop.RunOnce(ctx)
				if encErr := printJSON(cmd, stats); encErr != nil {
					return encErr
				}
				return err
			}
			return loop.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Run a single ingestion pass and exit")
	return cmd
}

func serveCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin HTTP API alongside the ingestion loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := c.logger
			a, err := newApp(ctx, c.cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			loop, err := newLoop(a)
			if err != nil {
				return err
			}

			httpCfg := httpserver.Config{
				Address:         c.cfg.Server.HTTPAddress(),
				ReadTimeout:     c.cfg.Server.ReadTimeout,
				WriteTimeout:    c.cfg.Server.WriteTimeout,
				ShutdownTimeout: c.cfg.Server.ShutdownTimeout,
			}
			if c.cfg.Metrics.Enabled {
				httpCfg.MetricsPath = c.cfg.Metrics.Path
			}
			httpSrv := httpserver.NewServer(httpCfg, a.reviews, a.fetcher, a.db, logger)

			loopCtx, cancelLoop := context.WithCancel(ctx)
			defer cancelLoop()

			errCh := make(chan error, 2)
			var wg sync.WaitGroup

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- fmt.Errorf("HTTP server error: %w", err)
				}
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := loop.Run(loopCtx); err != nil {
					errCh <- fmt.Errorf("scheduler error: %w", err)
				}
			}()

			logger.Info().Str("http_address", httpCfg.Address).Msg("review-reply-service is ready")

			var runErr error
			select {
			case <-ctx.Done():
				logger.Info().Msg("received shutdown signal")
			case runErr = <-errCh:
				logger.Error().Err(runErr).Msg("component failed")
			}

			cancelLoop()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("HTTP server shutdown error")
			}
			wg.Wait()

			logger.Info().Msg("review-reply-service shutdown complete")
			return runErr
		},
	}
}

func discoverCommand(c *cli) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "discover <query>",
		Short: "Search for businesses and print their source identifiers",
		Example: `  reviewreply discover "lotus nails austin"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := newFetcher(c.cfg, nil, c.logger)
			if err != nil {
				return err
			}

			query := strings.Join(args, " ")
			candidates, err := f.SearchBusinesses(cmd.Context(), query)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, candidates)
			}
			if len(candidates) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no businesses found for %q\n", query)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BUSINESS ID\tNAME\tRATING\tREVIEWS\tADDRESS")
			for _, b := range candidates {
				fmt.Fprintf(w, "%s\t%s\t%.1f\t%d\t%s\n", b.BusinessID, b.BusinessName, b.Rating, b.ReviewCount, b.Address)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func cleanupCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete records whose analysis degraded",
		Long: `Delete records that carry a degraded-analysis marker (failed translation,
rate-limited backend, or the analysis-failed category) so the next run
ingests and analyzes them again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := repository.NewPgReviewRepository(db).DeleteDegraded(cmd.Context())
			if err != nil {
				return err
			}
			c.logger.Info().Int64("deleted", n).Msg("degraded records removed")
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d degraded records\n", n)
			return nil
		},
	}
}

func reprocessCommand(c *cli) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "reprocess [review-id...]",
		Short: "Re-run analysis for records left in INGESTED",
		Long: `Re-run analysis for the given records, or for every INGESTED record when no
ids are given. Records in any other status are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.ingest.Reprocess(cmd.Context(), ingest.ReprocessRequest{
				ReviewIDs: args,
				Limit:     limit,
			})
			if encErr := printJSON(cmd, stats); encErr != nil {
				return encErr
			}
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum records to reprocess (0 uses the query default)")
	return cmd
}

func eventsCommand(c *cli) *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect review lifecycle events",
	}

	var group string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print lifecycle events from Kafka as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return tailEvents(cmd, c, group)
		},
	}
	tail.Flags().StringVar(&group, "group", "reviewreply-tail", "Kafka consumer group")

	eventsCmd.AddCommand(tail)
	return eventsCmd
}

func tailEvents(cmd *cobra.Command, c *cli, group string) error {
	if len(c.cfg.Kafka.Brokers) == 0 {
		return domain.NewConfigurationError("kafka.brokers", "at least one broker is required")
	}

	consumer := events.NewConsumer(c.cfg.Kafka.Brokers, c.cfg.Kafka.Topic, group, c.logger)
	defer func() {
		if err := consumer.Close(); err != nil {
			c.logger.Error().Err(err).Msg("failed to close consumer")
		}
	}()

	enc := json.NewEncoder(cmd.OutOrStdout())
	err := consumer.Run(cmd.Context(), func(_ context.Context, ev *domain.Event) error {
		return enc.Encode(ev)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
