package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-reply-service/internal/domain"
)

const replyURL = "https://gbp.test/v4/accounts/acc-1/locations/loc-1/reviews/r1/reply"

func newTestGoogle(t *testing.T) *Google {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	return NewGoogle(Config{
		BaseURL:     "https://gbp.test/v4/",
		AccountID:   "acc-1",
		LocationID:  "loc-1",
		AccessToken: "token",
		RateLimit:   100,
	}, nil, zerolog.Nop())
}

func TestNew_SelectsImplementation(t *testing.T) {
	_, ok := New(Config{}, nil, zerolog.Nop()).(*LogOnly)
	assert.True(t, ok)

	_, ok = New(Config{AccessToken: "t", AccountID: "a", LocationID: "l"}, nil, zerolog.Nop()).(*Google)
	assert.True(t, ok)
}

func TestGoogle_PostReply(t *testing.T) {
	g := newTestGoogle(t)

	httpmock.RegisterResponder(http.MethodPut, replyURL,
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("Authorization") != "Bearer token" {
				return httpmock.NewStringResponse(http.StatusUnauthorized, "{}"), nil
			}
			var body map[string]string
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return nil, err
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"comment": body["comment"]})
		})

	ok, err := g.PostReply(context.Background(), "r1", "We are so sorry, Lan.")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestGoogle_PostReply_Failures(t *testing.T) {
	t.Run("rejected by the platform", func(t *testing.T) {
		g := newTestGoogle(t)
		httpmock.RegisterResponder(http.MethodPut, replyURL,
			httpmock.NewStringResponder(http.StatusForbidden, `{"error":{"message":"denied"}}`))

		ok, err := g.PostReply(context.Background(), "r1", "Thanks!")
		assert.False(t, ok)
		var apiErr *domain.ExternalAPIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	})

	t.Run("network failure", func(t *testing.T) {
		g := newTestGoogle(t)
		httpmock.RegisterResponder(http.MethodPut, replyURL, httpmock.NewErrorResponder(errors.New("connection reset")))

		ok, err := g.PostReply(context.Background(), "r1", "Thanks!")
		assert.False(t, ok)
		assert.ErrorContains(t, err, "connection reset")
	})

	t.Run("empty reply is refused without a request", func(t *testing.T) {
		g := newTestGoogle(t)

		ok, err := g.PostReply(context.Background(), "r1", "  ")
		assert.False(t, ok)
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		assert.Equal(t, 0, httpmock.GetTotalCallCount())
	})
}

func TestLogOnly_PostReply(t *testing.T) {
	ok, err := NewLogOnly(zerolog.Nop()).PostReply(context.Background(), "r1", "Thanks!")
	require.NoError(t, err)
	assert.True(t, ok)
}
