package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/review-reply-service/internal/domain"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// txBeginner is an interface for types that can begin a transaction (e.g., *pgxpool.Pool, *database.DB).
// Used by Update to wrap SELECT FOR UPDATE + UPDATE in an explicit transaction
// when the underlying DBTX is not already a transaction.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// reviewColumns is the column list shared by every SELECT.
const reviewColumns = `review_id, business_id, business_name, author_name, rating,
			original_text, owner_reply, profile_url, metadata, source_timestamp,
			status, sentiment, sentiment_score, category, risk_flag, tags,
			localized_summary, draft_reply, localized_reply, consult_notes, analysis_trace,
			created_at, updated_at, posted_at`

const insertReviewQuery = `
		INSERT INTO reviews (
			review_id, business_id, business_name, author_name, rating,
			original_text, owner_reply, profile_url, metadata, source_timestamp,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13
		)`

// PgReviewRepository implements ReviewRepository using PostgreSQL.
type PgReviewRepository struct {
	db DBTX
}

// Compile-time check that PgReviewRepository implements ReviewRepository.
var _ ReviewRepository = (*PgReviewRepository)(nil)

// NewPgReviewRepository creates a new PostgreSQL review repository.
func NewPgReviewRepository(db DBTX) *PgReviewRepository {
	return &PgReviewRepository{db: db}
}

// Exists reports whether a record with the given review_id is stored.
func (r *PgReviewRepository) Exists(ctx context.Context, reviewID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM reviews WHERE review_id = $1)`, reviewID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check review existence: %w", err)
	}
	return exists, nil
}

// Insert creates a new record.
func (r *PgReviewRepository) Insert(ctx context.Context, review *domain.Review) error {
	args, err := insertArgs(review)
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, insertReviewQuery, args...); err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("review", review.ReviewID)
		}
		return fmt.Errorf("failed to insert review: %w", err)
	}

	return nil
}

// InsertIfAbsent creates the record unless the review_id is already stored.
func (r *PgReviewRepository) InsertIfAbsent(ctx context.Context, review *domain.Review) (bool, error) {
	args, err := insertArgs(review)
	if err != nil {
		return false, err
	}

	tag, err := r.db.Exec(ctx, insertReviewQuery+"\n\t\tON CONFLICT (review_id) DO NOTHING", args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert review: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// insertArgs validates the record, fills defaults and returns the insert arguments.
func insertArgs(review *domain.Review) ([]interface{}, error) {
	if review == nil {
		return nil, domain.NewValidationError("review", "review cannot be nil")
	}
	review.ReviewID = strings.TrimSpace(review.ReviewID)
	if review.ReviewID == "" {
		return nil, domain.NewValidationError("review_id", "review ID is required")
	}
	if review.Rating < 0 || review.Rating > domain.MaxRating {
		return nil, domain.NewValidationError("rating", fmt.Sprintf("rating %d out of range", review.Rating))
	}
	if review.Status == "" {
		review.Status = domain.StatusIngested
	}
	if !review.Status.Valid() {
		return nil, domain.NewValidationError("status", "unknown status "+string(review.Status))
	}

	now := time.Now().UTC()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now
	}
	if review.UpdatedAt.IsZero() {
		review.UpdatedAt = review.CreatedAt
	}

	var metadataJSON []byte
	if len(review.Metadata) > 0 {
		b, err := json.Marshal(review.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataJSON = b
	}

	return []interface{}{
		review.ReviewID, review.BusinessID, review.BusinessName, review.AuthorName, review.Rating,
		review.OriginalText, nullString(review.OwnerReply), nullString(review.ProfileURL), metadataJSON, review.SourceTimestamp,
		review.Status, review.CreatedAt, review.UpdatedAt,
	}, nil
}

// Get retrieves a record by review_id.
func (r *PgReviewRepository) Get(ctx context.Context, reviewID string) (*domain.Review, error) {
	query := `
		SELECT ` + reviewColumns + `
		FROM reviews
		WHERE review_id = $1`

	review, err := scanReview(r.db.QueryRow(ctx, query, reviewID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("review", reviewID)
		}
		return nil, fmt.Errorf("failed to get review: %w", err)
	}

	return review, nil
}

// Update applies a partial update using SELECT FOR UPDATE.
//
// If the underlying DBTX is a connection pool (supports Begin), the method wraps the
// lock and the write in an explicit transaction. If it is already a transaction, it
// executes within that transaction.
func (r *PgReviewRepository) Update(ctx context.Context, reviewID string, update ReviewUpdate) error {
	if update.Status != nil && !update.Status.Valid() {
		return domain.NewValidationError("status", "unknown status "+string(*update.Status))
	}

	if beginner, ok := r.db.(txBeginner); ok {
		tx, err := beginner.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for update: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		txRepo := &PgReviewRepository{db: tx}
		if err := txRepo.updateInTx(ctx, reviewID, update); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	return r.updateInTx(ctx, reviewID, update)
}

func (r *PgReviewRepository) updateInTx(ctx context.Context, reviewID string, update ReviewUpdate) error {
	var (
		current  domain.ReviewStatus
		hasTrace bool
	)
	err := r.db.QueryRow(ctx, `
		SELECT status, analysis_trace IS NOT NULL
		FROM reviews
		WHERE review_id = $1
		FOR UPDATE`, reviewID).Scan(&current, &hasTrace)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("review", reviewID)
		}
		return fmt.Errorf("failed to query review for update: %w", err)
	}

	if update.Status != nil && !current.CanTransitionTo(*update.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, current, *update.Status)
	}
	if update.Analysis != nil && hasTrace {
		return fmt.Errorf("review %s analysis trace: %w", reviewID, domain.ErrImmutable)
	}

	var (
		sets []string
		args []interface{}
	)
	set := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if a := update.Analysis; a != nil {
		traceJSON, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal analysis trace: %w", err)
		}
		tags := a.Triage.Tags
		if tags == nil {
			tags = []string{}
		}
		set("sentiment", string(a.Triage.Sentiment))
		set("sentiment_score", a.Triage.SentimentScore)
		set("category", a.Triage.Category)
		set("risk_flag", a.Triage.RiskFlag)
		set("tags", tags)
		set("localized_summary", a.Localized.Summary)
		set("draft_reply", a.Draft)
		set("localized_reply", a.Localized.Reply)
		set("consult_notes", nullString(a.Consult.String()))
		set("analysis_trace", traceJSON)
	}
	if update.Status != nil {
		set("status", *update.Status)
	}
	if update.PostedAt != nil {
		set("posted_at", update.PostedAt.UTC())
	}
	set("updated_at", time.Now().UTC())

	args = append(args, reviewID)
	query := fmt.Sprintf("UPDATE reviews SET %s WHERE review_id = $%d", strings.Join(sets, ", "), len(args))

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}

	return nil
}

// Query retrieves records matching the filter criteria.
func (r *PgReviewRepository) Query(ctx context.Context, filter ReviewFilter) ([]*domain.Review, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var (
		conditions []string
		args       []interface{}
	)
	argIndex := 1

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", argIndex)
			args = append(args, s)
			argIndex++
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	if filter.BusinessID != "" {
		conditions = append(conditions, fmt.Sprintf("business_id = $%d", argIndex))
		args = append(args, filter.BusinessID)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// review_id breaks ties between rows inserted in the same instant.
	selectQuery := fmt.Sprintf(`
		SELECT `+reviewColumns+`
		FROM reviews
		%s
		ORDER BY created_at %s, review_id %s
		LIMIT $%d OFFSET $%d`,
		whereClause, filter.Direction, filter.Direction, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]*domain.Review, 0)
	for rows.Next() {
		review, err := scanReviewFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, review)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}

	return reviews, nil
}

// RecentDraftedReplies returns up to limit non-empty draft replies, newest first.
func (r *PgReviewRepository) RecentDraftedReplies(ctx context.Context, limit int) ([]string, error) {
	replies := make([]string, 0, max(limit, 0))
	if limit <= 0 {
		return replies, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT draft_reply
		FROM reviews
		WHERE draft_reply IS NOT NULL AND draft_reply <> ''
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query drafted replies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reply string
		if err := rows.Scan(&reply); err != nil {
			return nil, fmt.Errorf("failed to scan drafted reply: %w", err)
		}
		replies = append(replies, reply)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drafted replies: %w", err)
	}

	return replies, nil
}

// DeleteDegraded removes unposted records carrying a translation or analysis failure marker.
func (r *PgReviewRepository) DeleteDegraded(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM reviews
		WHERE status <> $1
			AND (localized_summary = ANY($2) OR localized_reply = ANY($2) OR category = $3)`

	tag, err := r.db.Exec(ctx, query, domain.StatusPosted, domain.DegradedMarkers, domain.CategoryAnalysisFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to delete degraded reviews: %w", err)
	}

	return tag.RowsAffected(), nil
}

// isPgUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}

// reviewScanDest holds the destination pointers for scanning a review row.
// This eliminates code duplication between pgx.Row and pgx.Rows scanning.
type reviewScanDest struct {
	review           domain.Review
	ownerReply       *string
	profileURL       *string
	metadataJSON     []byte
	sentiment        *string
	sentimentScore   *float64
	category         *string
	localizedSummary *string
	draftReply       *string
	localizedReply   *string
	consultNotes     *string
	traceJSON        []byte
}

// destinations returns the slice of pointers for Scan operations.
func (d *reviewScanDest) destinations() []interface{} {
	return []interface{}{
		&d.review.ReviewID, &d.review.BusinessID, &d.review.BusinessName, &d.review.AuthorName, &d.review.Rating,
		&d.review.OriginalText, &d.ownerReply, &d.profileURL, &d.metadataJSON, &d.review.SourceTimestamp,
		&d.review.Status, &d.sentiment, &d.sentimentScore, &d.category, &d.review.RiskFlag, &d.review.Tags,
		&d.localizedSummary, &d.draftReply, &d.localizedReply, &d.consultNotes, &d.traceJSON,
		&d.review.CreatedAt, &d.review.UpdatedAt, &d.review.PostedAt,
	}
}

// finalize performs post-scan processing: sets nullable fields and unmarshals JSON.
func (d *reviewScanDest) finalize() (*domain.Review, error) {
	d.review.OwnerReply = derefString(d.ownerReply)
	d.review.ProfileURL = derefString(d.profileURL)
	d.review.Sentiment = domain.Sentiment(derefString(d.sentiment))
	d.review.Category = derefString(d.category)
	d.review.LocalizedSummary = derefString(d.localizedSummary)
	d.review.DraftReply = derefString(d.draftReply)
	d.review.LocalizedReply = derefString(d.localizedReply)
	d.review.ConsultNotes = derefString(d.consultNotes)
	if d.sentimentScore != nil {
		d.review.SentimentScore = *d.sentimentScore
	}

	if len(d.metadataJSON) > 0 {
		if err := json.Unmarshal(d.metadataJSON, &d.review.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	if len(d.traceJSON) > 0 {
		var trace domain.AnalysisTrace
		if err := json.Unmarshal(d.traceJSON, &trace); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis trace: %w", err)
		}
		d.review.Trace = &trace
	}

	return &d.review, nil
}

// scanReview scans a single row into a Review.
func scanReview(row pgx.Row) (*domain.Review, error) {
	var dest reviewScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// scanReviewFromRows scans the current row from pgx.Rows into a Review.
func scanReviewFromRows(rows pgx.Rows) (*domain.Review, error) {
	var dest reviewScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// nullString returns a pointer to the string if non-empty, otherwise nil.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
