package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultOpenAIModel     = "gpt-4o-mini"
	defaultDeepSeekBaseURL = "https://api.deepseek.com/v1"
	defaultDeepSeekModel   = "deepseek-chat"
	defaultOpenAIMaxTokens = 1024
)

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []wireMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// OpenAIProvider implements Client over the Chat Completions API. DeepSeek speaks the
// same protocol and is served by this type under its own name and defaults.
type OpenAIProvider struct {
	endpoint
	apiKey      string
	model       string
	temperature float64
}

// OpenAIConfig holds the parameters needed to create an OpenAI-compatible provider.
type OpenAIConfig struct {
	// Name is reported by Provider and selects vendor defaults. Empty means "openai".
	Name    string
	APIKey  string
	Model   string
	BaseURL string
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg OpenAIConfig, temperature float64, timeout time.Duration, maxRetries int) *OpenAIProvider {
	name := orDefault(cfg.Name, ProviderOpenAI)
	baseURL, model := defaultOpenAIBaseURL, defaultOpenAIModel
	if name == ProviderDeepSeek {
		baseURL, model = defaultDeepSeekBaseURL, defaultDeepSeekModel
	}

	decode := func(statusCode int, body []byte) *APIError {
		return decodeOpenAIError(name, statusCode, body)
	}
	return &OpenAIProvider{
		endpoint:    newEndpoint(name, orDefault(cfg.BaseURL, baseURL), timeout, maxRetries, decode),
		apiKey:      cfg.APIKey,
		model:       orDefault(cfg.Model, model),
		temperature: temperature,
	}
}

// Complete implements Client. FormatJSON enables the json_object response format.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	body := chatRequest{
		Model:       p.model,
		Messages:    toWireMessages(req.Messages),
		Temperature: p.temperature,
		MaxTokens:   defaultOpenAIMaxTokens,
	}
	if req.Temperature != nil {
		body.Temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.ResponseFormat == FormatJSON {
		body.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.apiKey)

	var out chatResponse
	if err := p.call(ctx, "/chat/completions", header, body, &out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%s: empty choices in response", p.provider)
	}

	return &Response{
		Content: out.Choices[0].Message.Content,
		Model:   orDefault(out.Model, p.model),
		Usage:   Usage{InputTokens: out.Usage.PromptTokens, OutputTokens: out.Usage.CompletionTokens},
	}, nil
}

// Provider returns the configured vendor name.
func (p *OpenAIProvider) Provider() string { return p.provider }

// Model returns the model identifier being used.
func (p *OpenAIProvider) Model() string { return p.model }

func decodeOpenAIError(provider string, statusCode int, body []byte) *APIError {
	apiErr := rawAPIError(provider, statusCode, body)

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Type = envelope.Error.Type
		apiErr.Code = envelope.Error.Code
	}
	return apiErr
}
