package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/review-reply-service/internal/domain"
)

func TestFormatApprovalRequest(t *testing.T) {
	r := &domain.Review{
		AuthorName:       "Lan",
		Rating:           1,
		OriginalText:     " Terrible, found a hair in my manicure ",
		RiskFlag:         true,
		LocalizedSummary: "Khách phàn nàn về vệ sinh",
		DraftReply:       "We are so sorry, Lan.",
		LocalizedReply:   "Chúng tôi rất xin lỗi, Lan.",
	}

	got := FormatApprovalRequest(r, "Vietnamese")

	assert.Equal(t, "Customer Lan (1★) said: Terrible, found a hair in my manicure\n\n"+
		"!! Flagged as high risk\n\n"+
		"Summary (Vietnamese): Khách phàn nàn về vệ sinh\n\n"+
		"Reply to post: We are so sorry, Lan.\n\n"+
		"Reply (Vietnamese): Chúng tôi rất xin lỗi, Lan.\n\n"+
		"Reply OK/YES to post.", got)
}

func TestFormatApprovalRequest_LabelsFollowOwnerLanguage(t *testing.T) {
	r := &domain.Review{Rating: 4, OriginalText: "Bien", LocalizedSummary: "Contento", LocalizedReply: "Gracias"}

	got := FormatApprovalRequest(r, "Spanish")
	assert.Contains(t, got, "Summary (Spanish): Contento")
	assert.Contains(t, got, "Reply (Spanish): Gracias")
	assert.NotContains(t, got, "Vietnamese")

	assert.Contains(t, FormatApprovalRequest(r, " "), "Summary (translated): Contento")
}

func TestFormatApprovalRequest_AnonymousLowRisk(t *testing.T) {
	got := FormatApprovalRequest(&domain.Review{Rating: 5, OriginalText: "Great service!"}, "Vietnamese")

	assert.Contains(t, got, "Customer Anonymous (5★) said: Great service!")
	assert.NotContains(t, got, "high risk")
}
