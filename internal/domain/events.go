package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types.
const (
	EventTypeReviewIngested      = "review.ingested"
	EventTypeReviewAnalyzed      = "review.analyzed"
	EventTypeApprovalRequested   = "review.approval_requested"
	EventTypeReviewPosted        = "review.posted"
	EventTypeReviewPublishFailed = "review.publish_failed"
	EventTypeReviewFailed        = "review.failed"
)

// Event is a lifecycle notification published for downstream consumers.
type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	ReviewID  string          `json:"review_id"`
	Status    ReviewStatus    `json:"status"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent creates a new event. The payload is JSON-serialized automatically.
func NewEvent(eventType, reviewID string, status ReviewStatus, payload any) (*Event, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	return &Event{
		EventID:   uuid.New().String(),
		EventType: eventType,
		ReviewID:  reviewID,
		Status:    status,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}
