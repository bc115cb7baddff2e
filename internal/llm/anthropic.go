package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

const (
	anthropicAPIVersion       = "2023-06-01"
	defaultAnthropicBaseURL   = "https://api.anthropic.com"
	defaultAnthropicModel     = "claude-3-5-sonnet-20241022"
	defaultAnthropicMaxTokens = 1024
)

type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// wireMessage is the role/content pair shared by the Anthropic and OpenAI wire formats.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// AnthropicProvider implements Client over the Anthropic Messages API.
type AnthropicProvider struct {
	endpoint
	apiKey      string
	model       string
	temperature float64
}

// AnthropicConfig holds the parameters needed to create an Anthropic provider.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewAnthropicProvider creates an AnthropicProvider. A non-positive timeout uses the
// package default and negative maxRetries disables retries.
func NewAnthropicProvider(cfg AnthropicConfig, temperature float64, timeout time.Duration, maxRetries int) *AnthropicProvider {
	p := &AnthropicProvider{
		endpoint:    newEndpoint(ProviderAnthropic, orDefault(cfg.BaseURL, defaultAnthropicBaseURL), timeout, maxRetries, decodeAnthropicError),
		apiKey:      cfg.APIKey,
		model:       orDefault(cfg.Model, defaultAnthropicModel),
		temperature: temperature,
	}
	p.retryDelay = time.Second
	return p
}

// Complete implements Client. System messages travel in the top-level system field.
// The Messages API has no JSON mode, so FormatJSON relies on the prompt alone.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	system, rest := splitSystem(req.Messages)

	body := messagesRequest{
		Model:       p.model,
		MaxTokens:   defaultAnthropicMaxTokens,
		System:      system,
		Messages:    toWireMessages(rest),
		Temperature: p.temperature,
	}
	if req.Temperature != nil {
		body.Temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}

	header := http.Header{}
	header.Set("x-api-key", p.apiKey)
	header.Set("anthropic-version", anthropicAPIVersion)

	var out messagesResponse
	if err := p.call(ctx, "/v1/messages", header, body, &out); err != nil {
		return nil, err
	}

	for _, block := range out.Content {
		if block.Type == "text" && block.Text != "" {
			return &Response{
				Content: block.Text,
				Model:   orDefault(out.Model, p.model),
				Usage:   Usage{InputTokens: out.Usage.InputTokens, OutputTokens: out.Usage.OutputTokens},
			}, nil
		}
	}
	return nil, errors.New("anthropic: response contains no text content blocks")
}

// Provider returns "anthropic".
func (p *AnthropicProvider) Provider() string { return ProviderAnthropic }

// Model returns the model identifier being used.
func (p *AnthropicProvider) Model() string { return p.model }

func decodeAnthropicError(statusCode int, body []byte) *APIError {
	apiErr := rawAPIError(ProviderAnthropic, statusCode, body)

	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Type = envelope.Error.Type
	}
	return apiErr
}

func toWireMessages(msgs []Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, wireMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
