// Package llm provides chat-completion clients for the analysis backends.
//
// Every provider implements Client. Providers speak their vendor's HTTP API
// directly and share the APIError type and retry policy.
//
//	client, err := llm.NewClient(llm.ProviderConfig{Provider: "gemini", APIKey: key})
//	resp, err := client.Complete(ctx, llm.Request{
//		Messages:       []llm.Message{{Role: llm.RoleUser, Content: prompt}},
//		ResponseFormat: llm.FormatJSON,
//	})
package llm

import (
	"context"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Response formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Message is a single chat message.
type Message struct {
	Role    string
	Content string
}

// Request is a provider-neutral completion request.
type Request struct {
	Messages []Message
	// ResponseFormat is FormatText (default) or FormatJSON.
	ResponseFormat string
	// Temperature overrides the client default when non-nil.
	Temperature *float64
	// MaxTokens overrides the client default when positive.
	MaxTokens int
}

// Usage reports token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a provider-neutral completion result.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Client is a chat-completion backend.
type Client interface {
	// Complete sends the request and returns the first text completion.
	// Implementations retry transient failures and respect ctx cancellation.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Provider returns the provider name (e.g., "openai", "anthropic", "gemini").
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}

// splitSystem separates system messages from the conversation, for APIs that
// take the system prompt as a separate field.
func splitSystem(msgs []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// StripCodeFence removes a surrounding markdown code fence from model output.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
