// Package events publishes review lifecycle events for downstream consumers.
//
// # Overview
//
// Every state change of a review record produces a domain.Event. Events are
// best effort: a failed publish is logged and never rolls back the state
// change that produced it.
//
// # Components
//
//   - Emitter: builds events and hands them to a Publisher, logging failures
//   - KafkaPublisher: writes events to a Kafka topic keyed by review_id
//   - NopPublisher: discards events when Kafka is disabled
//   - Consumer: reads events back from the topic (used by the events tail command)
//
// # Event Types
//
//   - review.ingested: a new review was stored
//   - review.analyzed: the pipeline finished and the record awaits approval
//   - review.approval_requested: the approval request was sent to the owner
//   - review.posted: the approved reply was published
//   - review.publish_failed: publication was attempted and failed
//   - review.failed: the pipeline failed and the record is terminal
//
// # Usage
//
//	pub := events.NewKafkaPublisher(events.KafkaConfig{
//	    Brokers: []string{"localhost:9092"},
//	    Topic:   "events.review_reply_service",
//	}, logger)
//	emitter := events.NewEmitter(pub, logger)
//	emitter.Emit(ctx, domain.EventTypeReviewPosted, "r1", domain.StatusPosted, payload)
package events
