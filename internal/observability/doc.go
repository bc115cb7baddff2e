// Package observability provides logging, metrics, and error reporting for
// the review reply service.
//
// # Logging
//
//	logger := observability.NewLogger(observability.LoggingConfig{Level: "info", Format: "json"})
//	logger = observability.WithReviewContext(logger, reviewID, businessID)
//
// Identifiers placed on the context with WithCycleID and WithReviewID are
// picked up by LoggerFromContext.
//
// # Metrics
//
//	metrics := observability.NewMetrics("review_reply")
//	metrics.RecordStage("triage", "succeeded", 0.42)
//
// # Error reporting
//
// NewReporter returns a Sentry-backed Reporter when a DSN is configured and a
// no-op Reporter otherwise.
//
// Standard fields: review_id, business_id, cycle_id, stage, provider, component.
package observability
