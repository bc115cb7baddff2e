package alerts

import (
	"context"
	"errors"
	"testing"

	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-reply-service/internal/domain"
)

func TestPolicy_ShouldAlert(t *testing.T) {
	p := Policy{MinRating: 2}

	tests := []struct {
		name   string
		review *domain.Review
		want   bool
	}{
		{"nil review", nil, false},
		{"high risk five star", &domain.Review{Rating: 5, RiskFlag: true}, true},
		{"low rating", &domain.Review{Rating: 2}, true},
		{"one star", &domain.Review{Rating: 1}, true},
		{"average rating", &domain.Review{Rating: 3}, false},
		{"unrated", &domain.Review{Rating: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldAlert(tt.review))
		})
	}
}

func TestMessage(t *testing.T) {
	title, body := Message(&domain.Review{
		ReviewID:     "r1",
		Rating:       1,
		RiskFlag:     true,
		OriginalText: "Dirty tools.",
		BusinessName: "Lotus Nails",
		Category:     domain.CategoryCleanliness,
		ConsultNotes: "Root cause: tools not sanitized",
	})

	assert.Equal(t, "High-risk review r1 (1★)", title)
	assert.Contains(t, body, "Anonymous at Lotus Nails wrote:")
	assert.Contains(t, body, "Category: Cleanliness")
	assert.Contains(t, body, "Root cause: tools not sanitized")
}

func TestNewShoutrrr_Validation(t *testing.T) {
	_, err := NewShoutrrr(nil, 0, zerolog.Nop())
	assert.True(t, errors.Is(err, domain.ErrConfiguration))

	_, err = NewShoutrrr([]string{"notaservice://token@host"}, 0, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
	assert.NotContains(t, err.Error(), "token")
}

type fakeSender struct {
	message string
	title   string
	errs    []error
}

func (f *fakeSender) Send(message string, params *stypes.Params) []error {
	f.message = message
	if params != nil {
		f.title, _ = params.Title()
	}
	return f.errs
}

func TestShoutrrrNotifier_Notify(t *testing.T) {
	fs := &fakeSender{errs: []error{nil}}
	n := &ShoutrrrNotifier{sender: fs, logger: zerolog.Nop()}

	require.NoError(t, n.Notify(context.Background(), "title", "body"))
	assert.Equal(t, "body", fs.message)
	assert.Equal(t, "title", fs.title)

	fs.errs = []error{nil, errors.New("telegram: 401")}
	err := n.Notify(context.Background(), "title", "body")
	assert.ErrorContains(t, err, "telegram: 401")
}
