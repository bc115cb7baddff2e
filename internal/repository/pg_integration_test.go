//go:build integration

package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-reply-service/internal/database/dbtest"
	"github.com/helixir/review-reply-service/internal/domain"
	"github.com/helixir/review-reply-service/internal/repository"
)

func TestPgReviewRepository_Integration(t *testing.T) {
	db := dbtest.NewPostgres(t, true)
	ctx := context.Background()
	repo := repository.NewPgReviewRepository(db)
	base := time.Now().UTC().Truncate(time.Second)

	insert := func(id string, age time.Duration) {
		t.Helper()
		r := domain.RawReview{ID: id, AuthorName: "Lan", Rating: 2, Text: "slow"}.ToRecord("cid-1", "Lotus Nails")
		r.CreatedAt = base.Add(-age)
		require.NoError(t, repo.Insert(ctx, r))
	}

	t.Run("insert then exists and get", func(t *testing.T) {
		insert("r1", 3*time.Hour)

		exists, err := repo.Exists(ctx, "r1")
		require.NoError(t, err)
		assert.True(t, exists)

		got, err := repo.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusIngested, got.Status)
		assert.Equal(t, "Lotus Nails", got.BusinessName)
		assert.Nil(t, got.Trace)
	})

	t.Run("duplicate insert fails loudly and insert-if-absent skips", func(t *testing.T) {
		err := repo.Insert(ctx, &domain.Review{ReviewID: "r1"})
		assert.True(t, errors.Is(err, domain.ErrAlreadyExists))

		written, err := repo.InsertIfAbsent(ctx, &domain.Review{ReviewID: "r1"})
		require.NoError(t, err)
		assert.False(t, written)
	})

	t.Run("analysis is written once and status moves forward", func(t *testing.T) {
		trace := &domain.AnalysisTrace{
			Triage:    domain.TriageResult{Sentiment: domain.SentimentNegative, Category: domain.CategoryWaitTime, Tags: []string{"wait"}},
			Draft:     "Sorry for the wait.",
			Localized: domain.LocalizedContent{Summary: "Chờ lâu", Reply: "Xin lỗi"},
		}
		pending := domain.StatusPendingApproval
		require.NoError(t, repo.Update(ctx, "r1", repository.ReviewUpdate{Status: &pending, Analysis: trace}))

		err := repo.Update(ctx, "r1", repository.ReviewUpdate{Analysis: trace})
		assert.True(t, errors.Is(err, domain.ErrImmutable))

		err = repo.Update(ctx, "r1", repository.StatusUpdate(domain.StatusIngested))
		assert.True(t, errors.Is(err, domain.ErrInvalidStatusTransition))

		got, err := repo.Get(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPendingApproval, got.Status)
		assert.Equal(t, []string{"wait"}, got.Tags)
		require.NotNil(t, got.Trace)
		assert.Equal(t, "Sorry for the wait.", got.Trace.Draft)
	})

	t.Run("query orders pending records newest first", func(t *testing.T) {
		insert("r2", time.Hour)
		insert("r3", 2*time.Hour)
		for _, id := range []string{"r2", "r3"} {
			require.NoError(t, repo.Update(ctx, id, repository.StatusUpdate(domain.StatusAnalyzed)))
		}

		got, err := repo.Query(ctx, repository.ReviewFilter{Statuses: domain.PendingStatuses, Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "r2", got[0].ReviewID)

		got, err = repo.Query(ctx, repository.ReviewFilter{Statuses: domain.PendingStatuses, Direction: repository.SortAsc})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "r1", got[0].ReviewID)
	})

	t.Run("recent drafted replies", func(t *testing.T) {
		replies, err := repo.RecentDraftedReplies(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"Sorry for the wait."}, replies)
	})

	t.Run("delete degraded keeps healthy rows", func(t *testing.T) {
		insert("r4", 0)
		trace := &domain.AnalysisTrace{
			Triage:    domain.DefaultTriage(),
			Draft:     domain.FallbackReply,
			Localized: domain.LocalizedContent{Summary: domain.TranslationFailed, Reply: domain.TranslationFailed},
		}
		require.NoError(t, repo.Update(ctx, "r4", repository.ReviewUpdate{Analysis: trace}))

		n, err := repo.DeleteDegraded(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		exists, err := repo.Exists(ctx, "r4")
		require.NoError(t, err)
		assert.False(t, exists)
		exists, err = repo.Exists(ctx, "r1")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("approval ledger claims a message once", func(t *testing.T) {
		ledger := repository.NewPgApprovalLedger(db)

		claimed, err := ledger.MarkConsumed(ctx, "SM1", "r1")
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = ledger.MarkConsumed(ctx, "SM1", "r2")
		require.NoError(t, err)
		assert.False(t, claimed)

		consumed, err := ledger.IsConsumed(ctx, "SM1")
		require.NoError(t, err)
		assert.True(t, consumed)
	})
}
