package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Client = (*GeminiProvider)(nil)

func newGeminiTestProvider(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p := NewGeminiProvider(GeminiConfig{APIKey: "g-key", BaseURL: server.URL + "/"}, 0.1, 5*time.Second, 1)
	p.retryDelay = 10 * time.Millisecond
	return p
}

func TestGeminiProvider_Complete(t *testing.T) {
	var received generateRequest
	var path, key string

	provider := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		key = r.URL.Query().Get("key")
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"sentiment\":"}, {"text": "\"positive\"}"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 80, "candidatesTokenCount": 12, "totalTokenCount": 92}
		}`))
	})

	resp, err := provider.Complete(context.Background(), Request{
		Messages: []Message{
			{Role: RoleSystem, Content: "Classify."},
			{Role: RoleUser, Content: "Lovely staff."},
			{Role: RoleAssistant, Content: "ok"},
		},
		ResponseFormat: FormatJSON,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"sentiment":"positive"}`, resp.Content)
	assert.Equal(t, "gemini-1.5-flash", resp.Model)
	assert.Equal(t, 80, resp.Usage.InputTokens)
	assert.Equal(t, 12, resp.Usage.OutputTokens)

	assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", path)
	assert.Equal(t, "g-key", key)
	require.NotNil(t, received.SystemInstruction)
	assert.Equal(t, "Classify.", received.SystemInstruction.Parts[0].Text)
	require.Len(t, received.Contents, 2)
	assert.Equal(t, "user", received.Contents[0].Role)
	assert.Equal(t, "model", received.Contents[1].Role)
	assert.Equal(t, "application/json", received.GenerationConfig.ResponseMimeType)
	assert.Equal(t, 0.1, received.GenerationConfig.Temperature)
}

func TestGeminiProvider_Complete_Errors(t *testing.T) {
	t.Run("quota exhausted maps to transient APIError", func(t *testing.T) {
		provider := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`))
		})

		_, err := provider.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
		require.Error(t, err)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "RESOURCE_EXHAUSTED", apiErr.Type)
		assert.True(t, apiErr.IsTransient())
		assert.Equal(t, "rate_limit", ErrorType(err))
	})

	t.Run("no candidates", func(t *testing.T) {
		provider := newGeminiTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"candidates": []}`))
		})

		_, err := provider.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty candidates")
	})
}

func TestGeminiProvider_TransportErrorHidesKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	p := NewGeminiProvider(GeminiConfig{APIKey: "g-secret/key", BaseURL: server.URL}, 0, time.Second, 0)
	_, err := p.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "g-secret")
	assert.Equal(t, "network", ErrorType(err))
}
