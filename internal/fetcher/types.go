package fetcher

import (
	"encoding/json"
	"strings"
	"time"
)

// statusOK is the DataForSEO success status code.
const statusOK = 20000

// timestampLayout is the format DataForSEO uses for review timestamps.
const timestampLayout = "2006-01-02 15:04:05 -07:00"

// apiResponse is the envelope shared by every DataForSEO endpoint.
type apiResponse struct {
	StatusCode    int       `json:"status_code"`
	StatusMessage string    `json:"status_message"`
	Tasks         []apiTask `json:"tasks"`
}

type apiTask struct {
	ID            string            `json:"id"`
	StatusCode    int               `json:"status_code"`
	StatusMessage string            `json:"status_message"`
	Result        []json.RawMessage `json:"result"`
}

// reviewsPayload is one task of the reviews/live request.
type reviewsPayload struct {
	CID          string `json:"cid"`
	LanguageCode string `json:"language_code"`
	LocationCode int    `json:"location_code"`
	Depth        int    `json:"depth"`
	SortBy       string `json:"sort_by"`
}

// listingsPayload is one task of the business_listings/search/live request.
type listingsPayload struct {
	Title        string `json:"title"`
	LocationCode int    `json:"location_code,omitempty"`
	Limit        int    `json:"limit"`
}

type reviewsResult struct {
	CID   string       `json:"cid"`
	Title string       `json:"title"`
	Items []reviewItem `json:"items"`
}

type ratingInfo struct {
	Value      float64 `json:"value"`
	VotesCount int     `json:"votes_count"`
}

// reviewItem is one review. Older API versions used id_review, reviewer_name
// and rating_value; both spellings are accepted.
type reviewItem struct {
	ReviewID        string      `json:"review_id"`
	IDReview        string      `json:"id_review"`
	ProfileName     string      `json:"profile_name"`
	ReviewerName    string      `json:"reviewer_name"`
	ProfileURL      string      `json:"profile_url"`
	ProfileImageURL string      `json:"profile_image_url"`
	Rating          *ratingInfo `json:"rating"`
	RatingValue     *float64    `json:"rating_value"`
	ReviewText      string      `json:"review_text"`
	OwnerAnswer     string      `json:"owner_answer"`
	Timestamp       string      `json:"timestamp"`
	TimeAgo         string      `json:"time_ago"`
	LocalGuide      bool        `json:"local_guide"`
	ReviewImages    []string    `json:"review_images"`
}

func (r reviewItem) id() string {
	if s := strings.TrimSpace(r.ReviewID); s != "" {
		return s
	}
	return strings.TrimSpace(r.IDReview)
}

func (r reviewItem) author() string {
	switch {
	case r.ProfileName != "":
		return r.ProfileName
	case r.ReviewerName != "":
		return r.ReviewerName
	default:
		return "Anonymous"
	}
}

func (r reviewItem) rating() int {
	switch {
	case r.Rating != nil:
		return int(r.Rating.Value + 0.5)
	case r.RatingValue != nil:
		return int(*r.RatingValue + 0.5)
	default:
		return 0
	}
}

func (r reviewItem) timestamp() *time.Time {
	if r.Timestamp == "" {
		return nil
	}
	t, err := time.Parse(timestampLayout, r.Timestamp)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

func (r reviewItem) metadata() map[string]any {
	md := map[string]any{}
	if r.ProfileImageURL != "" {
		md["profile_image_url"] = r.ProfileImageURL
	}
	if len(r.ReviewImages) > 0 {
		md["review_images"] = r.ReviewImages
	}
	if r.LocalGuide {
		md["local_guide"] = true
	}
	if r.TimeAgo != "" {
		md["time_ago"] = r.TimeAgo
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

type listingsResult struct {
	TotalCount int           `json:"total_count"`
	Items      []listingItem `json:"items"`
}

type listingItem struct {
	Title   string      `json:"title"`
	CID     string      `json:"cid"`
	Address string      `json:"address"`
	Rating  *ratingInfo `json:"rating"`
}
