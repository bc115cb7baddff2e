package analysis

import (
	"fmt"
	"strings"

	"github.com/helixir/review-reply-service/internal/domain"
)

const triageSystemPrompt = `You triage customer reviews for a beauty salon.
Respond with a single JSON object and nothing else:
{
  "sentiment": "positive" | "neutral" | "negative",
  "sentiment_score": number between -1 (very negative) and 1 (very positive),
  "category": one of [%s],
  "risk_flag": true if the review needs urgent attention (hygiene or infection, injury, rude staff, refund or legal threat),
  "is_complex": true if the review raises several issues or needs investigation,
  "tags": up to 5 short keywords
}`

const consultSystemPrompt = `You are a crisis management consultant for a beauty salon.
Find what really went wrong and what the owner should do internally.
Respond with a single JSON object and nothing else:
{"root_cause": "...", "recommended_action": "..."}`

const draftSystemPrompt = `You write public replies to customer reviews on behalf of a beauty salon owner.
Write only the reply text, no preamble, no quotes, no signature placeholders.
Keep it under 120 words and in the language of the review.
Tone policy:
- Positive reviews: thank the customer warmly by name and invite them back.
- Negative reviews: apologize sincerely and without defensiveness, acknowledge the real issue, stay firm on stated prices and policies, and invite the customer to contact the manager directly.
- Neutral reviews: thank the customer and address any concern briefly.`

const localizeSystemPrompt = `You translate for a salon owner who reads %s.
Respond with a single JSON object and nothing else:
{"summary": one sentence in %s summarizing the main complaint or compliment,
 "reply": the full reply translated into %s}`

const localizeReducedPrompt = `Translate into %s. Return JSON {"summary": "...", "reply": "..."} where summary is one sentence summarizing the review and reply is the translated reply.`

func triageSystem() string {
	return fmt.Sprintf(triageSystemPrompt, strings.Join(domain.Categories, ", "))
}

func triageUser(in Input) string {
	return fmt.Sprintf("Rating: %d/5\nReview: %q", in.Rating, in.Text)
}

func consultUser(in Input, triage domain.TriageResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Rating: %d/5\nCategory: %s\nSentiment: %s\n", in.Rating, triage.Category, triage.Sentiment)
	if len(triage.Tags) > 0 {
		fmt.Fprintf(&sb, "Tags: %s\n", strings.Join(triage.Tags, ", "))
	}
	fmt.Fprintf(&sb, "Review: %q\n", in.Text)
	writeHistory(&sb, in.History)
	return sb.String()
}

func draftUser(in Input, triage domain.TriageResult, notes domain.ConsultNotes, reference string) string {
	var sb strings.Builder
	author := in.AuthorName
	if author == "" {
		author = "the customer"
	}
	fmt.Fprintf(&sb, "Author: %s\nRating: %d/5\nSentiment: %s\nCategory: %s\nReview: %q\n",
		author, in.Rating, triage.Sentiment, triage.Category, in.Text)
	if !notes.Empty() {
		fmt.Fprintf(&sb, "\nThe real issue, per internal review:\n%s\n", notes.String())
	}
	if reference != "" {
		fmt.Fprintf(&sb, "\nReference material (prices and policies):\n%s\n", reference)
	}
	writeHistory(&sb, in.History)
	return sb.String()
}

func localizeUser(in Input, reply string) string {
	return fmt.Sprintf("Review: %q\n\nReply: %q", in.Text, reply)
}

// writeHistory appends recent replies as style context.
func writeHistory(sb *strings.Builder, history []string) {
	if len(history) == 0 {
		return
	}
	sb.WriteString("\nRecent replies from this business, for consistency of voice:\n")
	for _, h := range history {
		fmt.Fprintf(sb, "- %s\n", strings.TrimSpace(h))
	}
}
