package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultRetryDelay = 2 * time.Second
	maxResponseBytes  = 10 << 20
)

// errorDecoder turns a non-200 response into an APIError using the vendor's error envelope.
type errorDecoder func(statusCode int, body []byte) *APIError

// endpoint is the JSON-over-HTTP plumbing every provider embeds.
type endpoint struct {
	provider    string
	httpClient  *http.Client
	baseURL     string
	maxRetries  int
	retryDelay  time.Duration
	decodeError errorDecoder
	// secret is scrubbed from transport errors, for vendors that take the key in the URL.
	secret string
}

func newEndpoint(provider, baseURL string, timeout time.Duration, maxRetries int, decode errorDecoder) endpoint {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return endpoint{
		provider: provider,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:     strings.TrimRight(baseURL, "/"),
		maxRetries:  max(maxRetries, 0),
		retryDelay:  defaultRetryDelay,
		decodeError: decode,
	}
}

// call POSTs in to path and decodes the 200 body into out, retrying transient failures.
func (e *endpoint) call(ctx context.Context, path string, header http.Header, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal request: %w", e.provider, err)
	}

	_, err = retry(ctx, e.provider, e.maxRetries, e.retryDelay, func() (struct{}, error) {
		return struct{}{}, e.post(ctx, path, header, body, out)
	})
	return err
}

func (e *endpoint) post(ctx context.Context, path string, header http.Header, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", e.provider, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return networkError(e.provider, e.scrub(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return networkError(e.provider, e.scrub(err))
	}
	if resp.StatusCode != http.StatusOK {
		return e.decodeError(resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: failed to unmarshal response: %w", e.provider, err)
	}
	return nil
}

// scrub removes the secret from err, which may embed the request URL.
func (e *endpoint) scrub(err error) error {
	if e.secret == "" {
		return err
	}
	msg := strings.ReplaceAll(err.Error(), url.QueryEscape(e.secret), "REDACTED")
	return fmt.Errorf("%s", strings.ReplaceAll(msg, e.secret, "REDACTED"))
}

// rawAPIError is the fallback used when the body is not the vendor's error envelope.
func rawAPIError(provider string, statusCode int, body []byte) *APIError {
	return &APIError{Provider: provider, StatusCode: statusCode, Message: string(body)}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
