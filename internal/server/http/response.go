package httpserver

import (
	"time"

	"github.com/helixir/review-reply-service/internal/domain"
)

type reviewSummaryResponse struct {
	ReviewID     string     `json:"review_id"`
	BusinessID   string     `json:"business_id,omitempty"`
	AuthorName   string     `json:"author_name"`
	Rating       int        `json:"rating"`
	Status       string     `json:"status"`
	Sentiment    string     `json:"sentiment,omitempty"`
	Category     string     `json:"category,omitempty"`
	RiskFlag     bool       `json:"risk_flag"`
	HasDraft     bool       `json:"has_draft"`
	CreatedAt    time.Time  `json:"created_at"`
	PostedAt     *time.Time `json:"posted_at,omitempty"`
	TextPreview  string     `json:"text_preview,omitempty"`
	BusinessName string     `json:"business_name,omitempty"`
}

type listReviewsResponse struct {
	Reviews       []reviewSummaryResponse `json:"reviews"`
	NextPageToken string                  `json:"next_page_token,omitempty"`
}

type businessResponse struct {
	BusinessID   string  `json:"business_id"`
	BusinessName string  `json:"business_name"`
	Address      string  `json:"address,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
	ReviewCount  int     `json:"review_count,omitempty"`
}

type listBusinessesResponse struct {
	Businesses []businessResponse `json:"businesses"`
}

const previewLength = 120

// Converter functions

func domainReviewToSummary(r *domain.Review) reviewSummaryResponse {
	return reviewSummaryResponse{
		ReviewID:     r.ReviewID,
		BusinessID:   r.BusinessID,
		BusinessName: r.BusinessName,
		AuthorName:   r.AuthorName,
		Rating:       r.Rating,
		Status:       string(r.Status),
		Sentiment:    string(r.Sentiment),
		Category:     r.Category,
		RiskFlag:     r.RiskFlag,
		HasDraft:     r.DraftReply != "",
		CreatedAt:    r.CreatedAt,
		PostedAt:     r.PostedAt,
		TextPreview:  preview(r.OriginalText),
	}
}

func domainCandidateToResponse(c domain.BusinessCandidate) businessResponse {
	return businessResponse{
		BusinessID:   c.BusinessID,
		BusinessName: c.BusinessName,
		Address:      c.Address,
		Rating:       c.Rating,
		ReviewCount:  c.ReviewCount,
	}
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "…"
}
