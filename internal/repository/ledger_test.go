package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgApprovalLedger_IsConsumed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM approval_signals WHERE message_id = \\$1\\)").
		WithArgs("SM123").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	consumed, err := NewPgApprovalLedger(mock).IsConsumed(context.Background(), "SM123")
	require.NoError(t, err)
	assert.True(t, consumed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgApprovalLedger_MarkConsumed(t *testing.T) {
	ctx := context.Background()

	t.Run("claims a new message", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec("INSERT INTO approval_signals .* ON CONFLICT \\(message_id\\) DO NOTHING").
			WithArgs("SM123", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		claimed, err := NewPgApprovalLedger(mock).MarkConsumed(ctx, "SM123", "r1")
		require.NoError(t, err)
		assert.True(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports an already claimed message", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec("INSERT INTO approval_signals").
			WithArgs("SM123", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		claimed, err := NewPgApprovalLedger(mock).MarkConsumed(ctx, "SM123", "")
		require.NoError(t, err)
		assert.False(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("wraps database errors", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectExec("INSERT INTO approval_signals").
			WithArgs("SM123", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(errors.New("disk full"))

		_, err = NewPgApprovalLedger(mock).MarkConsumed(ctx, "SM123", "r1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
	})
}
