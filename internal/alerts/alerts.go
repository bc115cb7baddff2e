// Package alerts notifies the operator about reviews that need attention
// beyond the regular approval request.
package alerts

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/rs/zerolog"

	"github.com/helixir/review-reply-service/internal/domain"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Policy decides which reviews raise an alert.
type Policy struct {
	// MinRating alerts on ratings at or below this value. Unrated reviews never match.
	MinRating int
}

// ShouldAlert reports whether the analyzed review warrants an alert.
func (p Policy) ShouldAlert(r *domain.Review) bool {
	if r == nil {
		return false
	}
	if r.RiskFlag {
		return true
	}
	return r.Rating > 0 && r.Rating <= p.MinRating
}

// Message renders the alert title and body for a review.
func Message(r *domain.Review) (string, string) {
	title := fmt.Sprintf("Review %s needs attention (%d★)", r.ReviewID, r.Rating)
	if r.RiskFlag {
		title = fmt.Sprintf("High-risk review %s (%d★)", r.ReviewID, r.Rating)
	}

	var b strings.Builder
	author := r.AuthorName
	if author == "" {
		author = "Anonymous"
	}
	if r.BusinessName != "" {
		author += " at " + r.BusinessName
	}
	fmt.Fprintf(&b, "%s wrote:\n%s\n", author, r.OriginalText)
	if r.Category != "" {
		fmt.Fprintf(&b, "\nCategory: %s", r.Category)
	}
	if r.ConsultNotes != "" {
		fmt.Fprintf(&b, "\n%s", r.ConsultNotes)
	}
	return title, b.String()
}

// sender is the subset of the shoutrrr router used here.
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// ShoutrrrNotifier fans an alert out to every configured shoutrrr URL.
type ShoutrrrNotifier struct {
	sender sender
	logger zerolog.Logger
}

// NewShoutrrr builds a notifier for the given service URLs. URLs are validated here
// so a typo fails at startup instead of on the first alert.
func NewShoutrrr(urls []string, timeout time.Duration, logger zerolog.Logger) (*ShoutrrrNotifier, error) {
	if len(urls) == 0 {
		return nil, domain.NewConfigurationError("alerts.urls", "at least one URL is required")
	}

	router, err := shoutrrr.CreateSender(slices.Clone(urls)...)
	if err != nil {
		// The raw error can echo tokens embedded in the URL.
		return nil, domain.NewConfigurationError("alerts.urls", "invalid notification URL")
	}
	if timeout > 0 {
		router.Timeout = timeout
	}
	router.SetLogger(log.New(io.Discard, "", 0))

	return &ShoutrrrNotifier{
		sender: router,
		logger: logger.With().Str("component", "alerts").Logger(),
	}, nil
}

// Notify sends the alert. It returns the first delivery error.
func (n *ShoutrrrNotifier) Notify(_ context.Context, title, message string) error {
	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}

	for _, err := range n.sender.Send(message, &params) {
		if err != nil {
			return fmt.Errorf("alert delivery failed: %w", err)
		}
	}

	n.logger.Debug().Str("title", title).Msg("alert sent")
	return nil
}

// Nop drops alerts.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, string, string) error { return nil }
