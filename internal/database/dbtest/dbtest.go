// Package dbtest starts a disposable PostgreSQL container for integration tests.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/helixir/review-reply-service/internal/config"
	"github.com/helixir/review-reply-service/internal/database"
)

// Image is the PostgreSQL image used by integration tests.
const Image = "postgres:16-alpine"

// MigrationsPath returns the repository's migrations directory.
func MigrationsPath(t testing.TB) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)

	// internal/database/dbtest -> project root
	path := filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
	if _, err := os.Stat(path); err != nil {
		t.Skipf("Skipping test: migrations directory not found at %s", path)
	}
	return path
}

// NewPostgres starts a container, connects a pool and, when migrate is true, applies
// every migration. The container and pool are released with t.Cleanup.
func NewPostgres(t testing.TB, migrate bool) *database.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, Image,
		postgres.WithDatabase("review_reply_service"),
		postgres.WithUsername("reviewreply"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Skipf("Skipping integration test: cannot start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{
		Host:              host,
		Port:              port.Int(),
		Name:              "review_reply_service",
		User:              "reviewreply",
		Password:          "password",
		SSLMode:           config.SSLModeDisable,
		MaxConns:          5,
		MinConns:          1,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   30 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    10 * time.Second,
	}

	db, err := database.New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	if migrate {
		m, err := database.NewMigrator(db, MigrationsPath(t), zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, m.Up())
		require.NoError(t, m.Close())
	}

	return db
}
