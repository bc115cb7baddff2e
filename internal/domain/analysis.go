package domain

import (
	"strings"
	"time"
)

// Sentiment is the coarse polarity assigned by triage.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Review categories. Any other label produced by a backend is mapped to CategoryOther.
const (
	CategoryServiceQuality = "Service Quality"
	CategoryCleanliness    = "Cleanliness"
	CategoryPrice          = "Price"
	CategoryStaffAttitude  = "Staff Attitude"
	CategoryWaitTime       = "Wait Time"
	CategoryOther          = "Other"

	// CategoryAnalysisFailed marks legacy rows whose analysis never completed.
	CategoryAnalysisFailed = "Analysis Failed"
)

// Categories is the closed set of triage categories.
var Categories = []string{
	CategoryServiceQuality,
	CategoryCleanliness,
	CategoryPrice,
	CategoryStaffAttitude,
	CategoryWaitTime,
	CategoryOther,
}

// NormalizeCategory maps a label onto Categories, case-insensitively.
func NormalizeCategory(label string) string {
	label = strings.TrimSpace(label)
	for _, c := range Categories {
		if strings.EqualFold(c, label) {
			return c
		}
	}
	return CategoryOther
}

// Fixed degraded outputs.
const (
	// TranslationFailed replaces each localized field when no backend could produce it.
	TranslationFailed = "Translation failed."
	// FallbackReply is the draft used when the draft backend fails.
	FallbackReply = "Thank you for your feedback. We appreciate you taking the time to share your experience."
)

// DegradedMarkers are stored values that identify rows the cleanup command removes.
// The Vietnamese entries were written by earlier deployments.
var DegradedMarkers = []string{
	TranslationFailed,
	"Lỗi dịch thuật.",
	"Lỗi phân tích (Rate Limit).",
}

// Pipeline stage names.
const (
	StageTriage   = "triage"
	StageConsult  = "consult"
	StageDraft    = "draft"
	StageLocalize = "localize"
)

// Stage outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeDefaulted = "defaulted"
	OutcomeSkipped   = "skipped"
	OutcomeFallback  = "fallback"
)

// TriageResult is the output of the triage stage.
type TriageResult struct {
	Sentiment      Sentiment `json:"sentiment"`
	SentimentScore float64   `json:"sentiment_score"`
	Category       string    `json:"category"`
	RiskFlag       bool      `json:"risk_flag"`
	IsComplex      bool      `json:"is_complex"`
	Tags           []string  `json:"tags"`
	// Defaulted is true when the backend failed and the safe default was used.
	// A defaulted result is still a valid terminal triage result.
	Defaulted bool `json:"defaulted"`
}

// DefaultTriage returns the safe default used on any triage failure.
func DefaultTriage() TriageResult {
	return TriageResult{
		Sentiment:      SentimentNeutral,
		SentimentScore: 0,
		Category:       CategoryOther,
		RiskFlag:       false,
		Tags:           []string{},
		Defaulted:      true,
	}
}

// NeedsConsult reports whether the result calls for the consult stage.
func (t TriageResult) NeedsConsult() bool {
	return t.RiskFlag || t.Sentiment == SentimentNegative || t.IsComplex
}

// ConsultNotes holds the consult stage output. Empty when the stage was skipped or failed.
type ConsultNotes struct {
	RootCause         string `json:"root_cause,omitempty"`
	RecommendedAction string `json:"recommended_action,omitempty"`
}

// Empty reports whether no notes were produced.
func (c ConsultNotes) Empty() bool {
	return c.RootCause == "" && c.RecommendedAction == ""
}

// String renders the notes for storage and prompts.
func (c ConsultNotes) String() string {
	if c.Empty() {
		return ""
	}
	var sb strings.Builder
	if c.RootCause != "" {
		sb.WriteString("Root cause: ")
		sb.WriteString(c.RootCause)
	}
	if c.RecommendedAction != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Recommended action: ")
		sb.WriteString(c.RecommendedAction)
	}
	return sb.String()
}

// LocalizedContent is the owner-language output of the localize stage.
type LocalizedContent struct {
	Summary string `json:"summary"`
	Reply   string `json:"reply"`
}

// Failed reports whether the content is the translation-failed sentinel.
func (l LocalizedContent) Failed() bool {
	return l.Summary == TranslationFailed && l.Reply == TranslationFailed
}

// StageRecord captures how one stage ran.
type StageRecord struct {
	Stage    string        `json:"stage"`
	Backend  string        `json:"backend,omitempty"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// AnalysisTrace is the full pipeline output. It is written once and never mutated.
type AnalysisTrace struct {
	Triage      TriageResult     `json:"triage"`
	Consulted   bool             `json:"consulted"`
	Consult     ConsultNotes     `json:"consult"`
	Draft       string           `json:"draft"`
	Localized   LocalizedContent `json:"localized"`
	Stages      []StageRecord    `json:"stages"`
	ProcessedAt time.Time        `json:"processed_at"`
}

// Stage returns the record for the named stage, if present.
func (a *AnalysisTrace) Stage(name string) (StageRecord, bool) {
	for _, s := range a.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageRecord{}, false
}
