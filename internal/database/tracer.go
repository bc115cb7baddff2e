package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// SlowQueryThreshold is the duration above which a statement is logged at warn level.
const SlowQueryThreshold = 500 * time.Millisecond

// maxLoggedSQL bounds the statement text attached to log events.
const maxLoggedSQL = 200

type queryStartKey struct{}

type queryStart struct {
	sql string
	at  time.Time
}

// queryTracer logs slow and failed statements. Arguments are never logged since
// they carry review text and owner phone numbers.
type queryTracer struct {
	logger    zerolog.Logger
	threshold time.Duration
	now       func() time.Time
}

var _ pgx.QueryTracer = (*queryTracer)(nil)

func newQueryTracer(logger zerolog.Logger, threshold time.Duration) *queryTracer {
	return &queryTracer{logger: logger, threshold: threshold, now: time.Now}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{sql: data.SQL, at: t.now()})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	elapsed := t.now().Sub(start.at)

	switch {
	case data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows):
		t.logger.Debug().
			Err(data.Err).
			Str("sql", compactSQL(start.sql)).
			Dur("elapsed", elapsed).
			Msg("query failed")
	case t.threshold > 0 && elapsed >= t.threshold:
		t.logger.Warn().
			Str("sql", compactSQL(start.sql)).
			Dur("elapsed", elapsed).
			Int64("rows", data.CommandTag.RowsAffected()).
			Msg("slow query")
	}
}

// compactSQL collapses whitespace and truncates long statements.
func compactSQL(sql string) string {
	s := strings.Join(strings.Fields(sql), " ")
	if len(s) > maxLoggedSQL {
		return s[:maxLoggedSQL] + "..."
	}
	return s
}
