// Package repository persists review records and the approval ledger in PostgreSQL.
//
// ReviewRepository owns the review record and enforces its lifecycle: status only
// moves forward and the analysis trace is written once. ApprovalLedger remembers
// which inbound approval messages were already acted on.
//
// Errors are domain errors, matched with errors.Is: domain.ErrNotFound,
// domain.ErrAlreadyExists, domain.ErrInvalidInput, domain.ErrInvalidStatusTransition
// and domain.ErrImmutable.
package repository

import (
	"github.com/helixir/review-reply-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
// A repository built on a pgx.Tx joins that transaction:
//
//	tx, _ := db.Begin(ctx)
//	defer tx.Rollback(ctx)
//	if err := repository.NewPgReviewRepository(tx).Insert(ctx, review); err != nil { ... }
//	err = tx.Commit(ctx)
type DBTX = database.DBTX

// Filter pagination defaults and limits.
const (
	defaultFilterLimit = 100
	maxFilterLimit     = 1000
)

// applyPaginationDefaults defaults a non-positive limit, caps it at maxFilterLimit
// and floors offset at zero.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	*limit = min(*limit, maxFilterLimit)
	*offset = max(*offset, 0)
}
