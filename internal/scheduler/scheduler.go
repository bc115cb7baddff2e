// Package scheduler drives the ingestion and approval cycles from a single
// goroutine: ingestion on a long interval, one approval poll per tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/approval"
	"github.com/helixir/review-reply-service/internal/ingest"
	"github.com/helixir/review-reply-service/internal/observability"
)

const (
	cycleIngest   = "ingest"
	cycleApproval = "approval"
)

// Ingester runs one ingestion pass.
type Ingester interface {
	RunOnce(ctx context.Context) (ingest.CycleStats, error)
}

// Poller runs one approval poll.
type Poller interface {
	PollOnce(ctx context.Context) (approval.Outcome, error)
}

// Config holds the loop cadence.
type Config struct {
	// IngestInterval is the minimum time between ingestion passes.
	IngestInterval time.Duration
	// PollInterval is the sleep between iterations.
	PollInterval time.Duration
}

// Loop alternates ingestion and approval polling.
type Loop struct {
	ingester Ingester
	poller   Poller
	cfg      Config
	metrics  *observability.Metrics
	reporter observability.Reporter
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a Loop. Metrics and reporter may be nil.
func New(ingester Ingester, poller Poller, cfg Config, metrics *observability.Metrics, reporter observability.Reporter, logger zerolog.Logger) (*Loop, error) {
	if ingester == nil || poller == nil {
		return nil, errors.New("scheduler: ingester and poller are required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("scheduler: poll interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.IngestInterval < cfg.PollInterval {
		cfg.IngestInterval = cfg.PollInterval
	}
	if reporter == nil {
		reporter = observability.NopReporter{}
	}

	return &Loop{
		ingester: ingester,
		poller:   poller,
		cfg:      cfg,
		metrics:  metrics,
		reporter: reporter,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}, nil
}

// Run loops until ctx is cancelled. The first iteration always ingests. Cycle
// failures are logged and the loop continues. Run returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().
		Dur("ingest_interval", l.cfg.IngestInterval).
		Dur("poll_interval", l.cfg.PollInterval).
		Msg("scheduler started")

	timer := time.NewTimer(l.cfg.PollInterval)
	defer timer.Stop()

	var lastIngest time.Time
	for {
		if ctx.Err() != nil {
			l.logger.Info().Msg("scheduler stopped")
			return nil
		}

		if lastIngest.IsZero() || l.now().Sub(lastIngest) >= l.cfg.IngestInterval {
			lastIngest = l.now()
			l.runIngest(ctx)
		}

		if ctx.Err() == nil {
			l.runPoll(ctx)
		}

		timer.Reset(l.cfg.PollInterval)
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("scheduler stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce performs a single ingestion pass and returns its result.
func (l *Loop) RunOnce(ctx context.Context) (ingest.CycleStats, error) {
	var stats ingest.CycleStats
	err := l.cycle(ctx, cycleIngest, func(ctx context.Context) error {
		var err error
		stats, err = l.ingester.RunOnce(ctx)
		return err
	})
	return stats, err
}

func (l *Loop) runIngest(ctx context.Context) {
	_ = l.cycle(ctx, cycleIngest, func(ctx context.Context) error {
		_, err := l.ingester.RunOnce(ctx)
		return err
	})
}

func (l *Loop) runPoll(ctx context.Context) {
	_ = l.cycle(ctx, cycleApproval, func(ctx context.Context) error {
		outcome, err := l.poller.PollOnce(ctx)
		if err == nil && outcome != approval.OutcomeNoMessage {
			l.logger.Debug().Str("outcome", string(outcome)).Msg("approval poll completed")
		}
		return err
	})
}

// cycle runs fn with timing, metrics and panic isolation.
func (l *Loop) cycle(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	start := l.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s cycle panic: %v", name, r)
		}
		if l.metrics != nil {
			l.metrics.RecordCycle(name, l.now().Sub(start).Seconds(), err)
		}
		if err != nil && ctx.Err() == nil {
			l.logger.Error().Err(err).Str("cycle", name).Msg("cycle failed; continuing")
			l.reporter.CaptureError(err, map[string]string{"cycle": name})
		}
	}()

	return fn(ctx)
}
