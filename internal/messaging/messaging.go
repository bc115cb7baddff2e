// Package messaging carries approval requests to the business owner and reads the
// owner's replies back.
package messaging

import (
	"cmp"
	"context"
	"fmt"
	"strings"

	"github.com/helixir/review-reply-service/internal/domain"
)

// Channel is an out-of-band conversation with one pre-authorized owner address.
type Channel interface {
	// Send delivers body to the owner and returns the transport's delivery id.
	Send(ctx context.Context, body string) (string, error)

	// PollLatestInbound returns the most recent message received from the owner,
	// or nil when there is none.
	PollLatestInbound(ctx context.Context) (*domain.InboundMessage, error)

	// Name identifies the transport in logs and metrics.
	Name() string
}

// FormatApprovalRequest composes the message that asks the owner to approve a drafted
// reply. ownerLanguage names the language of the localized summary and reply.
func FormatApprovalRequest(r *domain.Review, ownerLanguage string) string {
	var sb strings.Builder
	lang := cmp.Or(strings.TrimSpace(ownerLanguage), "translated")

	author := r.AuthorName
	if author == "" {
		author = "Anonymous"
	}
	fmt.Fprintf(&sb, "Customer %s (%d★) said: %s\n\n", author, r.Rating, strings.TrimSpace(r.OriginalText))
	if r.RiskFlag {
		sb.WriteString("!! Flagged as high risk\n\n")
	}
	fmt.Fprintf(&sb, "Summary (%s): %s\n\n", lang, r.LocalizedSummary)
	fmt.Fprintf(&sb, "Reply to post: %s\n\n", r.DraftReply)
	fmt.Fprintf(&sb, "Reply (%s): %s\n\n", lang, r.LocalizedReply)
	sb.WriteString("Reply OK/YES to post.")

	return sb.String()
}
