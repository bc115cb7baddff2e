package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter forwards unexpected errors to an error tracking backend.
type Reporter interface {
	// CaptureError reports err with the given tags.
	CaptureError(err error, tags map[string]string)
	// Flush waits up to timeout for buffered reports to be delivered.
	Flush(timeout time.Duration) bool
}

// ReporterConfig configures the Sentry reporter.
type ReporterConfig struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
	// Transport overrides the HTTP transport; used by tests.
	Transport sentry.Transport
}

// NewReporter returns a Sentry-backed Reporter, or a no-op Reporter when DSN is empty.
func NewReporter(cfg ReporterConfig) (Reporter, error) {
	if cfg.DSN == "" {
		return NopReporter{}, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       cfg.SampleRate,
		AttachStacktrace: true,
		ServerName:       "",
		Transport:        cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}

	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// SentryReporter reports errors to Sentry through a dedicated hub.
type SentryReporter struct {
	hub *sentry.Hub
}

// CaptureError implements Reporter.
func (r *SentryReporter) CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		r.hub.CaptureException(err)
	})
}

// Flush implements Reporter.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

// NopReporter discards every report.
type NopReporter struct{}

// CaptureError implements Reporter.
func (NopReporter) CaptureError(error, map[string]string) {}

// Flush implements Reporter.
func (NopReporter) Flush(time.Duration) bool { return true }
