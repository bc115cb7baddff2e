// Package config provides configuration management for the review reply service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/helixir/review-reply-service/internal/domain"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Process modes.
const (
	// ModeOnce runs a single ingestion-and-analysis pass and exits.
	ModeOnce = "once"
	// ModeDaemon loops ingestion and approval polling until cancelled.
	ModeDaemon = "daemon"
)

// Messaging providers.
const (
	MessagingTwilio = "twilio"
	MessagingMQTT   = "mqtt"
)

// EnvPrefix is the prefix for every environment variable read by Load.
const EnvPrefix = "REVIEWREPLY"

// Config holds all configuration for the review reply service.
type Config struct {
	// Server contains the admin HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Sentry contains error reporting settings.
	Sentry SentryConfig `mapstructure:"sentry"`
	// Analysis contains the per-stage analysis backend settings.
	Analysis AnalysisConfig `mapstructure:"analysis"`
	// Fetcher contains review source settings.
	Fetcher FetcherConfig `mapstructure:"fetcher"`
	// Messaging contains the owner approval channel settings.
	Messaging MessagingConfig `mapstructure:"messaging"`
	// Publisher contains reply publication settings.
	Publisher PublisherConfig `mapstructure:"publisher"`
	// Scheduler contains loop cadence and approval settings.
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	// Kafka contains lifecycle event publisher settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Alerts contains operator notification settings.
	Alerts AlertsConfig `mapstructure:"alerts"`
}

// ServerConfig holds admin server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (loaded from REVIEWREPLY_DATABASE_PASSWORD).
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath overrides the embedded migrations with a directory on disk.
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr, file path).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// SentryConfig holds error reporting configuration. Reporting is off when DSN is empty.
type SentryConfig struct {
	DSN         string  `mapstructure:"-"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// BackendConfig describes a single analysis backend.
type BackendConfig struct {
	// Provider is one of openai, deepseek, anthropic, gemini. Empty disables the backend.
	Provider string `mapstructure:"provider"`
	// Model is the model name.
	Model string `mapstructure:"model"`
	// BaseURL overrides the provider's default endpoint.
	BaseURL string `mapstructure:"base_url"`
	// APIKey is loaded from REVIEWREPLY_ANALYSIS_<STAGE>_API_KEY.
	APIKey string `mapstructure:"-"`
	// Timeout bounds one call including retries.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries is the number of retries for transient failures.
	MaxRetries int `mapstructure:"max_retries"`
	// Temperature is the sampling temperature.
	Temperature float64 `mapstructure:"temperature"`
}

// Configured reports whether the backend has a provider and a credential.
func (b BackendConfig) Configured() bool {
	return b.Provider != "" && b.APIKey != ""
}

// AnalysisConfig holds the analysis pipeline configuration.
type AnalysisConfig struct {
	// Triage is the primary backend. It is required.
	Triage BackendConfig `mapstructure:"triage"`
	// Consult is the optional escalation backend.
	Consult BackendConfig `mapstructure:"consult"`
	// Draft is the optional reply backend; the primary backend is used when absent.
	Draft BackendConfig `mapstructure:"draft"`
	// Translate is the optional localization backend.
	Translate BackendConfig `mapstructure:"translate"`
	// OwnerLanguage is the language the owner reads summaries in.
	OwnerLanguage string `mapstructure:"owner_language"`
	// ReferencePath points to an optional price/policy reference file.
	ReferencePath string `mapstructure:"reference_path"`
	// HistoryLimit is how many recent drafted replies are injected as context.
	HistoryLimit int `mapstructure:"history_limit"`
}

// FetcherConfig holds DataForSEO settings.
type FetcherConfig struct {
	// BaseURL is the DataForSEO API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Login is loaded from REVIEWREPLY_FETCHER_LOGIN.
	Login string `mapstructure:"-"`
	// Password is loaded from REVIEWREPLY_FETCHER_PASSWORD.
	Password string `mapstructure:"-"`
	// BusinessID is the Google CID of the business whose reviews are ingested.
	BusinessID string `mapstructure:"business_id"`
	// BusinessName is a display name stored with each record.
	BusinessName string `mapstructure:"business_name"`
	// LanguageCode is the review language requested.
	LanguageCode string `mapstructure:"language_code"`
	// LocationCode is the DataForSEO location code.
	LocationCode int `mapstructure:"location_code"`
	// Depth is the number of reviews requested per fetch.
	Depth int `mapstructure:"depth"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// DiscoveryCacheTTL is how long business search results are cached.
	DiscoveryCacheTTL time.Duration `mapstructure:"discovery_cache_ttl"`
}

// MessagingConfig holds the approval channel settings.
type MessagingConfig struct {
	// Provider is twilio or mqtt.
	Provider string `mapstructure:"provider"`
	// OwnerAddress is the pre-authorized sender (phone number or client id).
	OwnerAddress string `mapstructure:"owner_address"`
	// Twilio contains Twilio SMS settings.
	Twilio TwilioConfig `mapstructure:"twilio"`
	// MQTT contains MQTT broker settings.
	MQTT MQTTConfig `mapstructure:"mqtt"`
}

// TwilioConfig holds Twilio REST settings.
type TwilioConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	AccountSID string        `mapstructure:"-"`
	AuthToken  string        `mapstructure:"-"`
	FromNumber string        `mapstructure:"from_number"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"`
}

// MQTTConfig holds MQTT broker settings.
type MQTTConfig struct {
	Broker        string        `mapstructure:"broker"`
	ClientID      string        `mapstructure:"client_id"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"-"`
	OutboundTopic string        `mapstructure:"outbound_topic"`
	InboundTopic  string        `mapstructure:"inbound_topic"`
	QoS           byte          `mapstructure:"qos"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// PublisherConfig holds Google Business Profile settings. Without an access token the
// publisher runs in log-only mode.
type PublisherConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	AccountID   string        `mapstructure:"account_id"`
	LocationID  string        `mapstructure:"location_id"`
	AccessToken string        `mapstructure:"-"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   float64       `mapstructure:"rate_limit"`
}

// SchedulerConfig holds loop cadence settings.
type SchedulerConfig struct {
	// Mode is once or daemon.
	Mode string `mapstructure:"mode"`
	// IngestInterval is the long interval between ingestion passes.
	IngestInterval time.Duration `mapstructure:"ingest_interval"`
	// PollInterval is the short interval between approval polls.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// ApprovalTokens is the allow-list of affirmative replies.
	ApprovalTokens []string `mapstructure:"approval_tokens"`
	// ApprovalMaxAge ignores approval messages older than this; zero disables the check.
	ApprovalMaxAge time.Duration `mapstructure:"approval_max_age"`
}

// KafkaConfig holds lifecycle event publisher settings.
type KafkaConfig struct {
	// Enabled controls whether Kafka publishing is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic lifecycle events are written to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// AlertsConfig holds operator notification settings.
type AlertsConfig struct {
	// URLs are shoutrrr service URLs, loaded from REVIEWREPLY_ALERTS_URLS (comma separated).
	URLs []string `mapstructure:"-"`
	// MinRating is the rating at or below which an alert is sent regardless of risk.
	MinRating int `mapstructure:"min_rating"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/review-reply-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets never come from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func env(key string) string {
	return os.Getenv(EnvPrefix + "_" + key)
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Database.Password = env("DATABASE_PASSWORD")
	cfg.Sentry.DSN = env("SENTRY_DSN")

	cfg.Analysis.Triage.APIKey = env("ANALYSIS_TRIAGE_API_KEY")
	cfg.Analysis.Consult.APIKey = env("ANALYSIS_CONSULT_API_KEY")
	cfg.Analysis.Draft.APIKey = env("ANALYSIS_DRAFT_API_KEY")
	cfg.Analysis.Translate.APIKey = env("ANALYSIS_TRANSLATE_API_KEY")

	cfg.Fetcher.Login = env("FETCHER_LOGIN")
	cfg.Fetcher.Password = env("FETCHER_PASSWORD")

	cfg.Messaging.Twilio.AccountSID = env("MESSAGING_TWILIO_ACCOUNT_SID")
	cfg.Messaging.Twilio.AuthToken = env("MESSAGING_TWILIO_AUTH_TOKEN")
	cfg.Messaging.MQTT.Password = env("MESSAGING_MQTT_PASSWORD")

	cfg.Publisher.AccessToken = env("PUBLISHER_ACCESS_TOKEN")

	if urls := env("ALERTS_URLS"); urls != "" {
		for _, u := range strings.Split(urls, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.Alerts.URLs = append(cfg.Alerts.URLs, u)
			}
		}
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "reviewreply")
	v.SetDefault("database.name", "review_reply_service")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 5)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.sample_rate", 1.0)

	// Analysis defaults
	v.SetDefault("analysis.triage.provider", "gemini")
	v.SetDefault("analysis.triage.model", "gemini-1.5-flash")
	v.SetDefault("analysis.triage.base_url", "")
	v.SetDefault("analysis.triage.timeout", "60s")
	v.SetDefault("analysis.triage.max_retries", 3)
	v.SetDefault("analysis.triage.temperature", 0.2)

	v.SetDefault("analysis.consult.provider", "anthropic")
	v.SetDefault("analysis.consult.model", "claude-3-5-sonnet-20241022")
	v.SetDefault("analysis.consult.base_url", "")
	v.SetDefault("analysis.consult.timeout", "90s")
	v.SetDefault("analysis.consult.max_retries", 2)
	v.SetDefault("analysis.consult.temperature", 0.3)

	v.SetDefault("analysis.draft.provider", "")
	v.SetDefault("analysis.draft.model", "")
	v.SetDefault("analysis.draft.base_url", "")
	v.SetDefault("analysis.draft.timeout", "60s")
	v.SetDefault("analysis.draft.max_retries", 3)
	v.SetDefault("analysis.draft.temperature", 0.7)

	v.SetDefault("analysis.translate.provider", "deepseek")
	v.SetDefault("analysis.translate.model", "deepseek-chat")
	v.SetDefault("analysis.translate.base_url", "")
	v.SetDefault("analysis.translate.timeout", "60s")
	v.SetDefault("analysis.translate.max_retries", 2)
	v.SetDefault("analysis.translate.temperature", 0.3)

	v.SetDefault("analysis.owner_language", "Vietnamese")
	v.SetDefault("analysis.reference_path", "")
	v.SetDefault("analysis.history_limit", 5)

	// Fetcher defaults
	v.SetDefault("fetcher.base_url", "https://api.dataforseo.com")
	v.SetDefault("fetcher.business_id", "")
	v.SetDefault("fetcher.business_name", "")
	v.SetDefault("fetcher.language_code", "en")
	v.SetDefault("fetcher.location_code", 2840)
	v.SetDefault("fetcher.depth", 10)
	v.SetDefault("fetcher.timeout", "120s")
	v.SetDefault("fetcher.rate_limit", 1.0)
	v.SetDefault("fetcher.discovery_cache_ttl", "1h")

	// Messaging defaults
	v.SetDefault("messaging.provider", MessagingTwilio)
	v.SetDefault("messaging.owner_address", "")
	v.SetDefault("messaging.twilio.base_url", "https://api.twilio.com")
	v.SetDefault("messaging.twilio.from_number", "")
	v.SetDefault("messaging.twilio.timeout", "30s")
	v.SetDefault("messaging.twilio.rate_limit", 1.0)
	v.SetDefault("messaging.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("messaging.mqtt.client_id", "review-reply-service")
	v.SetDefault("messaging.mqtt.username", "")
	v.SetDefault("messaging.mqtt.outbound_topic", "reviews/approval/requests")
	v.SetDefault("messaging.mqtt.inbound_topic", "reviews/approval/replies")
	v.SetDefault("messaging.mqtt.qos", 1)
	v.SetDefault("messaging.mqtt.timeout", "10s")

	// Publisher defaults
	v.SetDefault("publisher.base_url", "https://mybusiness.googleapis.com/v4")
	v.SetDefault("publisher.account_id", "")
	v.SetDefault("publisher.location_id", "")
	v.SetDefault("publisher.timeout", "30s")
	v.SetDefault("publisher.rate_limit", 1.0)

	// Scheduler defaults
	v.SetDefault("scheduler.mode", ModeDaemon)
	v.SetDefault("scheduler.ingest_interval", "1h")
	v.SetDefault("scheduler.poll_interval", "30s")
	v.SetDefault("scheduler.approval_tokens", []string{"OK", "YES", "Y", "CO", "DUYET"})
	v.SetDefault("scheduler.approval_max_age", "1h")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.review_reply_service")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	v.SetDefault("alerts.min_rating", 2)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Sentry.SampleRate < 0 || c.Sentry.SampleRate > 1 {
		return fmt.Errorf("sentry sample rate must be between 0 and 1")
	}

	switch c.Scheduler.Mode {
	case ModeOnce, ModeDaemon:
	default:
		return fmt.Errorf("invalid scheduler mode: %q", c.Scheduler.Mode)
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler poll_interval must be positive")
	}
	if c.Scheduler.IngestInterval < c.Scheduler.PollInterval {
		return fmt.Errorf("scheduler ingest_interval (%s) must be >= poll_interval (%s)",
			c.Scheduler.IngestInterval, c.Scheduler.PollInterval)
	}
	if len(c.Scheduler.ApprovalTokens) == 0 {
		return fmt.Errorf("at least one approval token is required")
	}
	if c.Scheduler.ApprovalMaxAge < 0 {
		return fmt.Errorf("scheduler approval_max_age must not be negative")
	}

	switch c.Messaging.Provider {
	case MessagingTwilio, MessagingMQTT:
	default:
		return fmt.Errorf("invalid messaging provider: %q", c.Messaging.Provider)
	}

	if c.Analysis.HistoryLimit < 0 {
		return fmt.Errorf("analysis history_limit must not be negative")
	}

	// The primary backend is the only hard requirement; every other backend degrades.
	if c.Analysis.Triage.Provider == "" {
		return domain.NewConfigurationError("analysis.triage.provider", "primary analysis backend is not configured")
	}
	if c.Analysis.Triage.APIKey == "" {
		return domain.NewConfigurationError(EnvPrefix+"_ANALYSIS_TRIAGE_API_KEY",
			fmt.Sprintf("primary analysis backend %q requires an API key", c.Analysis.Triage.Provider))
	}

	return nil
}
