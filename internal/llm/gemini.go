package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultGeminiBaseURL   = "https://generativelanguage.googleapis.com"
	defaultGeminiModel     = "gemini-1.5-flash"
	defaultGeminiMaxTokens = 1024
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// generateRequest is the request body for the generateContent endpoint.
type generateRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// generateResponse is the response body of the generateContent endpoint.
type generateResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata geminiUsage       `json:"usageMetadata"`
	ModelVersion  string            `json:"modelVersion"`
}

// GeminiProvider implements Client over the Gemini generateContent API.
type GeminiProvider struct {
	endpoint
	apiKey      string
	model       string
	temperature float64
}

// GeminiConfig holds the parameters needed to create a Gemini provider.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewGeminiProvider creates a GeminiProvider. The key travels in the query string,
// so it is scrubbed from transport errors.
func NewGeminiProvider(cfg GeminiConfig, temperature float64, timeout time.Duration, maxRetries int) *GeminiProvider {
	p := &GeminiProvider{
		endpoint:    newEndpoint(ProviderGemini, orDefault(cfg.BaseURL, defaultGeminiBaseURL), timeout, maxRetries, decodeGeminiError),
		apiKey:      cfg.APIKey,
		model:       orDefault(cfg.Model, defaultGeminiModel),
		temperature: temperature,
	}
	p.secret = cfg.APIKey
	return p
}

// Complete implements Client. Assistant turns are sent with the "model" role and
// FormatJSON sets the response MIME type.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	system, rest := splitSystem(req.Messages)

	body := generateRequest{
		Contents: make([]geminiContent, 0, len(rest)),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     p.temperature,
			MaxOutputTokens: defaultGeminiMaxTokens,
		},
	}
	if system != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}
	for _, m := range rest {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if req.Temperature != nil {
		body.GenerationConfig.Temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		body.GenerationConfig.MaxOutputTokens = req.MaxTokens
	}
	if req.ResponseFormat == FormatJSON {
		body.GenerationConfig.ResponseMimeType = "application/json"
	}

	path := fmt.Sprintf("/v1beta/models/%s:generateContent?key=%s", url.PathEscape(p.model), url.QueryEscape(p.apiKey))

	var out generateResponse
	if err := p.call(ctx, path, nil, body, &out); err != nil {
		return nil, err
	}
	if len(out.Candidates) == 0 {
		return nil, errors.New("gemini: empty candidates in response")
	}

	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("gemini: response contains no text parts (finish reason %s)", out.Candidates[0].FinishReason)
	}

	return &Response{
		Content: sb.String(),
		Model:   orDefault(out.ModelVersion, p.model),
		Usage: Usage{
			InputTokens:  out.UsageMetadata.PromptTokenCount,
			OutputTokens: out.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}

// Provider returns "gemini".
func (p *GeminiProvider) Provider() string { return ProviderGemini }

// Model returns the model identifier being used.
func (p *GeminiProvider) Model() string { return p.model }

func decodeGeminiError(statusCode int, body []byte) *APIError {
	apiErr := rawAPIError(ProviderGemini, statusCode, body)

	var envelope struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Type = envelope.Error.Status
	}
	return apiErr
}
