//go:build integration

package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/review-reply-service/internal/database"
	"github.com/helixir/review-reply-service/internal/database/dbtest"
)

func TestMigrator_Lifecycle(t *testing.T) {
	db := dbtest.NewPostgres(t, false)
	ctx := context.Background()
	logger := zerolog.Nop()

	t.Run("empty path uses embedded migrations", func(t *testing.T) {
		m, err := database.NewMigrator(db, "", logger)
		require.NoError(t, err)
		defer m.Close()

		status, err := m.Status()
		require.NoError(t, err)
		assert.Equal(t, "embedded", status.Source)
		assert.Equal(t, uint(0), status.Version)
	})

	t.Run("fails with invalid migrations path", func(t *testing.T) {
		_, err := database.NewMigrator(db, "/nonexistent/path", logger)
		assert.ErrorContains(t, err, "migrations path validation failed")
	})

	migrator, err := database.NewMigrator(db, dbtest.MigrationsPath(t), logger)
	require.NoError(t, err)
	defer migrator.Close()

	t.Run("up creates the schema", func(t *testing.T) {
		require.NoError(t, migrator.Up())

		status, err := migrator.Status()
		require.NoError(t, err)
		assert.False(t, status.Dirty)
		assert.GreaterOrEqual(t, status.Version, uint(2))

		var exists bool
		require.NoError(t, db.QueryRow(ctx, `SELECT to_regclass('public.reviews') IS NOT NULL`).Scan(&exists))
		assert.True(t, exists)
	})

	t.Run("up again is a no-op", func(t *testing.T) {
		assert.NoError(t, migrator.Up())
	})

	t.Run("status check constraint rejects unknown statuses", func(t *testing.T) {
		_, err := db.Exec(ctx, `INSERT INTO reviews (review_id, status) VALUES ('bad', 'DRAFT')`)
		assert.Error(t, err)
	})

	t.Run("down then steps restores the schema", func(t *testing.T) {
		require.NoError(t, migrator.Down())
		require.NoError(t, migrator.Steps(2))

		version, _, err := migrator.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(2), version)
	})
}

func TestDB_Integration(t *testing.T) {
	db := dbtest.NewPostgres(t, false)
	ctx := context.Background()

	t.Run("Ping verifies connection", func(t *testing.T) {
		assert.NoError(t, db.Ping(ctx))
	})

	t.Run("Health returns health information", func(t *testing.T) {
		health := db.Health(ctx)
		assert.Equal(t, "healthy", health.Status)
		assert.GreaterOrEqual(t, health.MaxConns, int32(1))
	})

	t.Run("Begin scopes work to a transaction", func(t *testing.T) {
		tx, err := db.Begin(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback(ctx) }()

		var result int
		require.NoError(t, tx.QueryRow(ctx, "SELECT 42").Scan(&result))
		assert.Equal(t, 42, result)
		require.NoError(t, tx.Commit(ctx))
	})

	t.Run("missing row surfaces pgx.ErrNoRows", func(t *testing.T) {
		var id string
		err := db.QueryRow(ctx, "SELECT 'x' WHERE false").Scan(&id)
		assert.True(t, errors.Is(err, pgx.ErrNoRows))
	})
}
