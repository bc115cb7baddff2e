package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/llm"
)

// triagePayload is the JSON contract of the triage backend.
type triagePayload struct {
	Sentiment      string   `json:"sentiment" validate:"required,oneof=positive neutral negative"`
	SentimentScore *float64 `json:"sentiment_score" validate:"required,min=-1,max=1"`
	Category       string   `json:"category" validate:"notblank"`
	RiskFlag       *bool    `json:"risk_flag" validate:"required"`
	IsComplex      bool     `json:"is_complex"`
	Tags           []string `json:"tags" validate:"omitempty,max=10,dive,required"`
}

// consultPayload is the JSON contract of the consult backend.
type consultPayload struct {
	RootCause         string `json:"root_cause" validate:"notblank"`
	RecommendedAction string `json:"recommended_action"`
}

// localizePayload is the JSON contract of the localize stage.
type localizePayload struct {
	Summary string `json:"summary" validate:"notblank"`
	Reply   string `json:"reply" validate:"notblank"`
}

// decoder parses and validates model output in one step.
type decoder struct {
	validate *validator.Validate
}

func newDecoder() *decoder {
	v := validator.New(validator.WithRequiredStructEnabled())
	// notblank rejects whitespace-only text, which required would accept.
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return &decoder{validate: v}
}

// decode unmarshals content into dst and validates it. Surrounding code fences
// are tolerated. Unknown fields, trailing data and anything else that does not
// match the contract is an error.
func (d *decoder) decode(content string, dst any) error {
	body := llm.StripCodeFence(content)
	if body == "" {
		return errors.New("empty model output")
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("decode model output: trailing data after JSON object")
	}
	if err := d.validate.Struct(dst); err != nil {
		return fmt.Errorf("validate model output: %w", err)
	}
	return nil
}

func (p triagePayload) toResult() domain.TriageResult {
	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return domain.TriageResult{
		Sentiment:      domain.Sentiment(p.Sentiment),
		SentimentScore: *p.SentimentScore,
		Category:       domain.NormalizeCategory(p.Category),
		RiskFlag:       *p.RiskFlag,
		IsComplex:      p.IsComplex,
		Tags:           tags,
	}
}
