package repository

import (
	"context"
	"fmt"
	"time"
)

// ApprovalLedger records inbound approval messages that were already acted on, so the
// same message read on a later poll does not publish a second reply.
type ApprovalLedger interface {
	// IsConsumed reports whether the message was already claimed.
	IsConsumed(ctx context.Context, messageID string) (bool, error)

	// MarkConsumed claims the message for reviewID (empty when nothing was pending).
	// It reports false when the message had already been claimed.
	MarkConsumed(ctx context.Context, messageID, reviewID string) (bool, error)
}

// PgApprovalLedger implements ApprovalLedger using PostgreSQL.
type PgApprovalLedger struct {
	db DBTX
}

// Compile-time check that PgApprovalLedger implements ApprovalLedger.
var _ ApprovalLedger = (*PgApprovalLedger)(nil)

// NewPgApprovalLedger creates a new PostgreSQL approval ledger.
func NewPgApprovalLedger(db DBTX) *PgApprovalLedger {
	return &PgApprovalLedger{db: db}
}

// IsConsumed reports whether the message was already claimed.
func (l *PgApprovalLedger) IsConsumed(ctx context.Context, messageID string) (bool, error) {
	var consumed bool
	err := l.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM approval_signals WHERE message_id = $1)`, messageID).Scan(&consumed)
	if err != nil {
		return false, fmt.Errorf("failed to check approval signal: %w", err)
	}
	return consumed, nil
}

// MarkConsumed claims the message. The insert is atomic, so two pollers racing on the same
// message cannot both succeed.
func (l *PgApprovalLedger) MarkConsumed(ctx context.Context, messageID, reviewID string) (bool, error) {
	tag, err := l.db.Exec(ctx, `
		INSERT INTO approval_signals (message_id, review_id, consumed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id) DO NOTHING`,
		messageID, nullString(reviewID), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record approval signal: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
