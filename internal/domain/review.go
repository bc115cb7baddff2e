// Package domain provides the review record, its lifecycle and the analysis result types.
package domain

import (
	"strings"
	"time"
)

// ReviewStatus represents the lifecycle state of a review record.
// These values must match the review_status check constraint.
type ReviewStatus string

const (
	// StatusIngested means the record exists but has not been analyzed.
	StatusIngested ReviewStatus = "INGESTED"
	// StatusAnalyzed means analysis fields are populated. Operationally equal to
	// StatusPendingApproval.
	StatusAnalyzed ReviewStatus = "ANALYZED"
	// StatusPendingApproval means a drafted reply awaits owner sign-off.
	StatusPendingApproval ReviewStatus = "PENDING_APPROVAL"
	// StatusPosted means the reply was published.
	StatusPosted ReviewStatus = "POSTED"
	// StatusFailed means the pipeline itself failed for the record.
	StatusFailed ReviewStatus = "FAILED"
)

// PendingStatuses are the statuses an approval signal may select from.
var PendingStatuses = []ReviewStatus{StatusPendingApproval, StatusAnalyzed}

// validTransitions is forward-only. FAILED and POSTED are sinks.
var validTransitions = map[ReviewStatus][]ReviewStatus{
	StatusIngested:        {StatusAnalyzed, StatusPendingApproval, StatusFailed},
	StatusAnalyzed:        {StatusPendingApproval, StatusPosted},
	StatusPendingApproval: {StatusPosted},
}

// IsTerminal returns true if the status will never change again.
func (s ReviewStatus) IsTerminal() bool {
	return s == StatusPosted || s == StatusFailed
}

// IsPending returns true if the record is awaiting approval.
func (s ReviewStatus) IsPending() bool {
	return s == StatusPendingApproval || s == StatusAnalyzed
}

// Valid reports whether s is a known status.
func (s ReviewStatus) Valid() bool {
	switch s {
	case StatusIngested, StatusAnalyzed, StatusPendingApproval, StatusPosted, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed. Re-asserting the
// current status is allowed.
func (s ReviewStatus) CanTransitionTo(next ReviewStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseReviewStatus converts a case-insensitive string to a ReviewStatus.
func ParseReviewStatus(s string) (ReviewStatus, error) {
	st := ReviewStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", NewValidationError("status", "unknown status "+s)
	}
	return st, nil
}

// Review is the persisted review record.
type Review struct {
	// Identity
	ReviewID     string `json:"review_id"`
	BusinessID   string `json:"business_id,omitempty"`
	BusinessName string `json:"business_name,omitempty"`

	// Source fields
	AuthorName      string         `json:"author_name"`
	Rating          int            `json:"rating"`
	OriginalText    string         `json:"original_text"`
	OwnerReply      string         `json:"owner_reply,omitempty"`
	ProfileURL      string         `json:"profile_url,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	SourceTimestamp *time.Time     `json:"source_timestamp,omitempty"`

	// Lifecycle
	Status ReviewStatus `json:"status"`

	// Derived analysis fields
	Sentiment        Sentiment      `json:"sentiment,omitempty"`
	SentimentScore   float64        `json:"sentiment_score"`
	Category         string         `json:"category,omitempty"`
	RiskFlag         bool           `json:"risk_flag"`
	Tags             []string       `json:"tags,omitempty"`
	LocalizedSummary string         `json:"localized_summary,omitempty"`
	DraftReply       string         `json:"draft_reply,omitempty"`
	LocalizedReply   string         `json:"localized_reply,omitempty"`
	ConsultNotes     string         `json:"consult_notes,omitempty"`
	Trace            *AnalysisTrace `json:"analysis_trace,omitempty"`

	// Audit
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	PostedAt  *time.Time `json:"posted_at,omitempty"`
}

// ApplyAnalysis copies the derived fields of a pipeline result onto the record.
func (r *Review) ApplyAnalysis(trace *AnalysisTrace) {
	r.Sentiment = trace.Triage.Sentiment
	r.SentimentScore = trace.Triage.SentimentScore
	r.Category = trace.Triage.Category
	r.RiskFlag = trace.Triage.RiskFlag
	r.Tags = trace.Triage.Tags
	r.DraftReply = trace.Draft
	r.LocalizedSummary = trace.Localized.Summary
	r.LocalizedReply = trace.Localized.Reply
	r.ConsultNotes = trace.Consult.String()
	r.Trace = trace
}

// RawReview is one review as returned by a Fetcher, before it becomes a record.
type RawReview struct {
	ID              string
	AuthorName      string
	Rating          int
	Text            string
	OwnerReply      string
	ProfileURL      string
	Metadata        map[string]any
	SourceTimestamp *time.Time
}

// MaxRating is the top of the star scale. A rating of 0 means the source gave none.
const MaxRating = 5

// Validate checks the fields required to create a record.
func (r RawReview) Validate(source string) error {
	if strings.TrimSpace(r.ID) == "" {
		return NewDataShapeError(source, "review_id")
	}
	if r.Rating < 0 || r.Rating > MaxRating {
		return NewDataShapeError(source, "rating")
	}
	return nil
}

// ToRecord converts the raw review into a new INGESTED record.
func (r RawReview) ToRecord(businessID, businessName string) *Review {
	return &Review{
		ReviewID:        strings.TrimSpace(r.ID),
		BusinessID:      businessID,
		BusinessName:    businessName,
		AuthorName:      r.AuthorName,
		Rating:          r.Rating,
		OriginalText:    r.Text,
		OwnerReply:      r.OwnerReply,
		ProfileURL:      r.ProfileURL,
		Metadata:        r.Metadata,
		SourceTimestamp: r.SourceTimestamp,
		Status:          StatusIngested,
	}
}

// BusinessCandidate is one result of a discovery query.
type BusinessCandidate struct {
	BusinessID   string  `json:"business_id"`
	BusinessName string  `json:"business_name"`
	Address      string  `json:"address,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
	ReviewCount  int     `json:"review_count,omitempty"`
}

// InboundMessage is the latest message received from the owner on the approval channel.
type InboundMessage struct {
	ID        string
	From      string
	Body      string
	Timestamp time.Time
}
