package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/alerts"
	"github.com/helixir/review-reply-service/internal/analysis"
	"github.com/helixir/review-reply-service/internal/approval"
	"github.com/helixir/review-reply-service/internal/config"
	"github.com/helixir/review-reply-service/internal/database"
	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/events"
	"github.com/helixir/review-reply-service/internal/fetcher"
	"github.com/helixir/review-reply-service/internal/ingest"
	"github.com/helixir/review-reply-service/internal/llm"
	"github.com/helixir/review-reply-service/internal/messaging"
	"github.com/helixir/review-reply-service/internal/observability"
	"github.com/helixir/review-reply-service/internal/publisher"
	"github.com/helixir/review-reply-service/internal/repository"
)

const (
	metricsNamespace = "review_reply"
	flushTimeout     = 2 * time.Second
)

// app is the fully wired service graph used by run, serve and reprocess.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	metrics  *observability.Metrics
	reporter observability.Reporter

	db      *database.DB
	reviews *repository.PgReviewRepository
	fetcher *fetcher.DataForSEO
	emitter *events.Emitter
	ingest  *ingest.Service
	gate    *approval.Gate

	closers []func()
}

// newApp connects to every backend. On error, whatever was already opened is closed.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *app, err error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: observability.NewMetrics(metricsNamespace),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.reporter, err = observability.NewReporter(observability.ReporterConfig{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     version,
		SampleRate:  cfg.Sentry.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { a.reporter.Flush(flushTimeout) })

	a.db, err = openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.db.Close)
	a.reviews = repository.NewPgReviewRepository(a.db)
	ledger := repository.NewPgApprovalLedger(a.db)

	pipeline, err := newPipeline(cfg, a.metrics, logger)
	if err != nil {
		return nil, err
	}

	a.fetcher, err = newFetcher(cfg, a.metrics, logger)
	if err != nil {
		return nil, err
	}

	channel, closeChannel, err := newChannel(ctx, cfg, a.metrics, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeChannel)

	var eventPublisher events.Publisher
	if cfg.Kafka.Enabled {
		eventPublisher = events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger)
	}
	a.emitter = events.NewEmitter(eventPublisher, logger)
	a.closers = append(a.closers, func() {
		if closeErr := a.emitter.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close event publisher")
		}
	})

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	a.ingest, err = ingest.NewService(ingest.Dependencies{
		Fetcher:  a.fetcher,
		Reviews:  a.reviews,
		Analyzer: pipeline,
		Channel:  channel,
		Events:   a.emitter,
		Alerts:   notifier,
		Metrics:  a.metrics,
		Reporter: a.reporter,
	}, ingest.Options{
		BusinessID:    cfg.Fetcher.BusinessID,
		BusinessName:  cfg.Fetcher.BusinessName,
		HistoryLimit:  cfg.Analysis.HistoryLimit,
		AlertPolicy:   alerts.Policy{MinRating: cfg.Alerts.MinRating},
		OwnerLanguage: cfg.Analysis.OwnerLanguage,
	}, logger)
	if err != nil {
		return nil, err
	}

	a.gate, err = approval.NewGate(approval.Dependencies{
		Reviews: a.reviews,
		Ledger:  ledger,
		Channel: channel,
		Publisher: publisher.New(publisher.Config{
			BaseURL:     cfg.Publisher.BaseURL,
			AccountID:   cfg.Publisher.AccountID,
			LocationID:  cfg.Publisher.LocationID,
			AccessToken: cfg.Publisher.AccessToken,
			Timeout:     cfg.Publisher.Timeout,
			RateLimit:   cfg.Publisher.RateLimit,
		}, a.metrics, logger),
		Events:   a.emitter,
		Metrics:  a.metrics,
		Reporter: a.reporter,
	}, approval.Options{
		Tokens: cfg.Scheduler.ApprovalTokens,
		MaxAge: cfg.Scheduler.ApprovalMaxAge,
	}, logger)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openDatabase connects to PostgreSQL and applies migrations when configured.
func openDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*database.DB, error) {
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("database connection established")

	if !cfg.Database.MigrationAutoRun {
		return db, nil
	}

	migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()
	if err := migrator.Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

func newFetcher(cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) (*fetcher.DataForSEO, error) {
	return fetcher.NewDataForSEO(fetcher.Config{
		BaseURL:      cfg.Fetcher.BaseURL,
		Login:        cfg.Fetcher.Login,
		Password:     cfg.Fetcher.Password,
		LanguageCode: cfg.Fetcher.LanguageCode,
		LocationCode: cfg.Fetcher.LocationCode,
		Depth:        cfg.Fetcher.Depth,
		Timeout:      cfg.Fetcher.Timeout,
		RateLimit:    cfg.Fetcher.RateLimit,
		CacheTTL:     cfg.Fetcher.DiscoveryCacheTTL,
	}, metrics, logger)
}

// newPipeline builds one LLM client per configured stage. Only the primary
// backend is required.
func newPipeline(cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) (*analysis.Pipeline, error) {
	triage, err := newBackend("triage", cfg.Analysis.Triage)
	if err != nil {
		return nil, err
	}
	backends := analysis.Backends{Triage: triage}

	optional := []struct {
		stage  string
		cfg    config.BackendConfig
		target *llm.Client
	}{
		{"consult", cfg.Analysis.Consult, &backends.Consult},
		{"draft", cfg.Analysis.Draft, &backends.Draft},
		{"translate", cfg.Analysis.Translate, &backends.Translate},
	}
	for _, o := range optional {
		if !o.cfg.Configured() {
			logger.Warn().Str("stage", o.stage).Msg("analysis backend not configured, using fallback")
			continue
		}
		client, err := newBackend(o.stage, o.cfg)
		if err != nil {
			return nil, err
		}
		*o.target = client
	}

	var reference string
	if path := cfg.Analysis.ReferencePath; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.NewConfigurationError("analysis.reference_path", fmt.Sprintf("read reference material: %v", err))
		}
		reference = string(data)
	}

	return analysis.NewPipeline(backends, analysis.Options{
		OwnerLanguage: cfg.Analysis.OwnerLanguage,
		Reference:     reference,
		Metrics:       metrics,
	}, logger)
}

func newBackend(stage string, b config.BackendConfig) (llm.Client, error) {
	client, err := llm.NewClient(llm.ProviderConfig{
		Provider:    b.Provider,
		APIKey:      b.APIKey,
		Model:       b.Model,
		BaseURL:     b.BaseURL,
		Temperature: b.Temperature,
		Timeout:     b.Timeout,
		MaxRetries:  b.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", stage, err)
	}
	return client, nil
}

// newChannel returns the configured messaging channel and its close function.
func newChannel(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) (messaging.Channel, func(), error) {
	m := cfg.Messaging
	switch m.Provider {
	case config.MessagingMQTT:
		ch, err := messaging.NewMQTT(messaging.MQTTConfig{
			Broker:        m.MQTT.Broker,
			ClientID:      m.MQTT.ClientID,
			Username:      m.MQTT.Username,
			Password:      m.MQTT.Password,
			OutboundTopic: m.MQTT.OutboundTopic,
			InboundTopic:  m.MQTT.InboundTopic,
			OwnerAddress:  m.OwnerAddress,
			QoS:           m.MQTT.QoS,
			Timeout:       m.MQTT.Timeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := ch.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("connect to MQTT broker: %w", err)
		}
		return ch, ch.Close, nil
	default:
		ch, err := messaging.NewTwilio(messaging.TwilioConfig{
			BaseURL:     m.Twilio.BaseURL,
			AccountSID:  m.Twilio.AccountSID,
			AuthToken:   m.Twilio.AuthToken,
			FromNumber:  m.Twilio.FromNumber,
			OwnerNumber: m.OwnerAddress,
			Timeout:     m.Twilio.Timeout,
			RateLimit:   m.Twilio.RateLimit,
		}, metrics, logger)
		if err != nil {
			return nil, nil, err
		}
		return ch, func() {}, nil
	}
}

func newNotifier(cfg *config.Config, logger zerolog.Logger) (alerts.Notifier, error) {
	if len(cfg.Alerts.URLs) == 0 {
		return alerts.Nop{}, nil
	}
	return alerts.NewShoutrrr(cfg.Alerts.URLs, 0, logger)
}
