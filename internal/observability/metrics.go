package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the review reply service.
// Metrics are grouped by concern: ingestion, pipeline stages, analysis backends,
// approval, publication, external APIs and scheduler cycles. All collectors are
// registered via promauto with the default Prometheus registry.
type Metrics struct {
	// ReviewsFetched counts raw reviews returned by the fetcher.
	ReviewsFetched prometheus.Counter

	// ReviewsIngested counts records created in the store.
	ReviewsIngested prometheus.Counter

	// ReviewsSkipped counts raw reviews not ingested, labeled by reason (duplicate, malformed).
	ReviewsSkipped *prometheus.CounterVec

	// ReviewsAnalyzed counts records that reached PENDING_APPROVAL.
	ReviewsAnalyzed prometheus.Counter

	// ReviewsFailed counts records moved to FAILED.
	ReviewsFailed prometheus.Counter

	// StageOutcomes counts pipeline stage results, labeled by stage and outcome.
	StageOutcomes *prometheus.CounterVec

	// StageDuration observes stage duration in seconds, labeled by stage.
	StageDuration *prometheus.HistogramVec

	// BackendRequestsTotal counts analysis backend calls, labeled by stage and provider.
	BackendRequestsTotal *prometheus.CounterVec

	// BackendRequestsFailed counts failed analysis backend calls, labeled by stage, provider and error type.
	BackendRequestsFailed *prometheus.CounterVec

	// BackendTokensUsed counts tokens consumed, labeled by provider and token type.
	BackendTokensUsed *prometheus.CounterVec

	// ApprovalRequestsSent counts approval request messages delivered to the owner.
	ApprovalRequestsSent prometheus.Counter

	// ApprovalSignals counts poll results, labeled by result (none, ignored, consumed, accepted).
	ApprovalSignals *prometheus.CounterVec

	// RepliesPosted counts replies published successfully.
	RepliesPosted prometheus.Counter

	// PublishFailures counts publication attempts that failed.
	PublishFailures prometheus.Counter

	// ExternalRequestsTotal counts HTTP requests to external APIs, labeled by client and endpoint.
	ExternalRequestsTotal *prometheus.CounterVec

	// ExternalRequestsFailed counts failed external requests, labeled by client, endpoint and error type.
	ExternalRequestsFailed *prometheus.CounterVec

	// ExternalRequestDuration observes external request duration in seconds.
	ExternalRequestDuration *prometheus.HistogramVec

	// ExternalRateLimited counts 429 responses, labeled by client.
	ExternalRateLimited *prometheus.CounterVec

	// CycleDuration observes scheduler cycle duration in seconds, labeled by cycle (ingest, poll).
	CycleDuration *prometheus.HistogramVec

	// CycleErrors counts cycles that ended in error, labeled by cycle.
	CycleErrors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Ingestion
		ReviewsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_fetched_total",
			Help:      "Total number of raw reviews returned by the fetcher",
		}),
		ReviewsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_ingested_total",
			Help:      "Total number of review records created",
		}),
		ReviewsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_skipped_total",
			Help:      "Total number of raw reviews skipped during ingestion",
		}, []string{"reason"}),
		ReviewsAnalyzed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_analyzed_total",
			Help:      "Total number of reviews that completed analysis",
		}),
		ReviewsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_failed_total",
			Help:      "Total number of reviews whose analysis could not run",
		}),

		// Pipeline
		StageOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_outcomes_total",
			Help:      "Pipeline stage results by stage and outcome",
		}, []string{"stage", "outcome"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage"}),

		// Backends
		BackendRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total analysis backend requests",
		}, []string{"stage", "provider"}),
		BackendRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_failed_total",
			Help:      "Total failed analysis backend requests",
		}, []string{"stage", "provider", "error_type"}),
		BackendTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "tokens_total",
			Help:      "Total tokens consumed by analysis backends",
		}, []string{"provider", "type"}),

		// Approval and publication
		ApprovalRequestsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "requests_sent_total",
			Help:      "Total approval request messages sent to the owner",
		}),
		ApprovalSignals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "approval",
			Name:      "signals_total",
			Help:      "Approval poll results",
		}, []string{"result"}),
		RepliesPosted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_posted_total",
			Help:      "Total replies published",
		}),
		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Total reply publication failures",
		}),

		// External APIs
		ExternalRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "requests_total",
			Help:      "Total requests to external APIs",
		}, []string{"client", "endpoint"}),
		ExternalRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "requests_failed_total",
			Help:      "Total failed requests to external APIs",
		}, []string{"client", "endpoint", "error_type"}),
		ExternalRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "request_duration_seconds",
			Help:      "External API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"client", "endpoint"}),
		ExternalRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "external",
			Name:      "rate_limited_total",
			Help:      "Total rate-limited responses from external APIs",
		}, []string{"client"}),

		// Scheduler
		CycleDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycle_duration_seconds",
			Help:      "Scheduler cycle duration in seconds",
			Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 900, 1800},
		}, []string{"cycle"}),
		CycleErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycle_errors_total",
			Help:      "Scheduler cycles that ended in error",
		}, []string{"cycle"}),
	}
}

// RecordFetched records the number of raw reviews returned by one fetch.
func (m *Metrics) RecordFetched(count int) {
	m.ReviewsFetched.Add(float64(count))
}

// RecordIngested records a created record.
func (m *Metrics) RecordIngested() {
	m.ReviewsIngested.Inc()
}

// RecordSkipped records a skipped raw review.
func (m *Metrics) RecordSkipped(reason string) {
	m.ReviewsSkipped.WithLabelValues(reason).Inc()
}

// RecordAnalyzed records a record that reached PENDING_APPROVAL.
func (m *Metrics) RecordAnalyzed() {
	m.ReviewsAnalyzed.Inc()
}

// RecordFailed records a record moved to FAILED.
func (m *Metrics) RecordFailed() {
	m.ReviewsFailed.Inc()
}

// RecordStage records one pipeline stage result.
func (m *Metrics) RecordStage(stage, outcome string, durationSeconds float64) {
	m.StageOutcomes.WithLabelValues(stage, outcome).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordBackendRequest records a successful analysis backend call.
func (m *Metrics) RecordBackendRequest(stage, provider string, inputTokens, outputTokens int) {
	m.BackendRequestsTotal.WithLabelValues(stage, provider).Inc()
	m.BackendTokensUsed.WithLabelValues(provider, "input").Add(float64(inputTokens))
	m.BackendTokensUsed.WithLabelValues(provider, "output").Add(float64(outputTokens))
}

// RecordBackendRequestFailed records a failed analysis backend call.
func (m *Metrics) RecordBackendRequestFailed(stage, provider, errorType string) {
	m.BackendRequestsTotal.WithLabelValues(stage, provider).Inc()
	m.BackendRequestsFailed.WithLabelValues(stage, provider, errorType).Inc()
}

// RecordApprovalRequestSent records a delivered approval request.
func (m *Metrics) RecordApprovalRequestSent() {
	m.ApprovalRequestsSent.Inc()
}

// RecordApprovalSignal records the result of one approval poll.
func (m *Metrics) RecordApprovalSignal(result string) {
	m.ApprovalSignals.WithLabelValues(result).Inc()
}

// RecordReplyPosted records a published reply.
func (m *Metrics) RecordReplyPosted() {
	m.RepliesPosted.Inc()
}

// RecordPublishFailure records a failed publication.
func (m *Metrics) RecordPublishFailure() {
	m.PublishFailures.Inc()
}

// RecordExternalRequest records a request to an external API.
func (m *Metrics) RecordExternalRequest(client, endpoint string, durationSeconds float64) {
	m.ExternalRequestsTotal.WithLabelValues(client, endpoint).Inc()
	m.ExternalRequestDuration.WithLabelValues(client, endpoint).Observe(durationSeconds)
}

// RecordExternalRequestFailed records a failed request to an external API.
func (m *Metrics) RecordExternalRequestFailed(client, endpoint, errorType string) {
	m.ExternalRequestsFailed.WithLabelValues(client, endpoint, errorType).Inc()
}

// RecordExternalRateLimited records a rate limit response from an external API.
func (m *Metrics) RecordExternalRateLimited(client string) {
	m.ExternalRateLimited.WithLabelValues(client).Inc()
}

// RecordCycle records a scheduler cycle.
func (m *Metrics) RecordCycle(cycle string, durationSeconds float64, err error) {
	m.CycleDuration.WithLabelValues(cycle).Observe(durationSeconds)
	if err != nil {
		m.CycleErrors.WithLabelValues(cycle).Inc()
	}
}
